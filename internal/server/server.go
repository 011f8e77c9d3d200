package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/isak-aslund/airologV2-ralph/internal/storage"
)

// Server coordinates the HTTP handlers and the on-disk layout of stored
// flight logs and attachments.
type Server struct {
	store          storage.Store
	logger         *zap.Logger
	storageDir     string
	logsDir        string
	maxUploadBytes int64
	baseURL        string
}

// NewServer constructs a Server and creates the storage directories.
func NewServer(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("server: store is required")
	}
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = "data"
	}
	logsDir := filepath.Join(storageDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating logs directory: %w", err)
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:          opts.Store,
		logger:         logger,
		storageDir:     storageDir,
		logsDir:        logsDir,
		maxUploadBytes: maxUpload,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
	}, nil
}

// logPath is where an uploaded .ulg file lives on disk.
func (s *Server) logPath(id string) string {
	return filepath.Join(s.logsDir, id+".ulg")
}

// attachmentDir follows the fleet convention of grouping attachments under
// the vehicle serial.
func (s *Server) attachmentDir(serial *string, logID string) string {
	bucket := "unknown"
	if serial != nil && *serial != "" {
		bucket = sanitizeFilename(*serial)
	}
	return filepath.Join(s.logsDir, bucket, "attachments", logID)
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, errorResponse{Detail: fmt.Sprintf(format, args...)})
}

// sanitizeFilename reduces a client-supplied name to a safe single path
// element.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '\x00':
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "attachment"
	}
	return name
}

// uniquePath returns a path in dir that does not collide with an existing
// file, suffixing the stem with a counter when needed.
func uniquePath(dir, name string) string {
	candidate := filepath.Join(dir, name)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func guessContentType(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
