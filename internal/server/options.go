package server

import (
	"go.uber.org/zap"

	"github.com/isak-aslund/airologV2-ralph/internal/storage"
)

// DefaultMaxUploadBytes caps multipart bodies at 500 MiB, matching the
// largest flight logs the fleet produces.
const DefaultMaxUploadBytes = 500 << 20

// Options configures server creation.
type Options struct {
	// StorageDir is the root directory for stored log files and attachments.
	StorageDir string

	// Store is the catalog database. Required.
	Store storage.Store

	// MaxUploadBytes limits multipart request bodies. Zero selects
	// DefaultMaxUploadBytes.
	MaxUploadBytes int64

	// BaseURL is the externally visible prefix used when the server has to
	// render absolute links (the QR code in PDF reports). Optional.
	BaseURL string

	// Logger receives request and handler logs. A nil logger is replaced
	// with zap.NewNop().
	Logger *zap.Logger
}
