package server

import (
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/isak-aslund/airologV2-ralph/internal/storage"
)

func (s *Server) handleUploadAttachments(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.getLog(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "parse multipart: %v", err)
		return
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided")
		return
	}

	dir := s.attachmentDir(rec.SerialNumber, rec.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Error("creating attachment directory", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store attachments")
		return
	}

	created := []storage.Attachment{}
	for _, files := range r.MultipartForm.File {
		for _, fh := range files {
			att, err := s.saveAttachment(r, dir, rec.ID, fh)
			if err != nil {
				s.logger.Error("saving attachment", zap.String("file", fh.Filename), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "failed to save %s", fh.Filename)
				return
			}
			created = append(created, att)
		}
	}
	if len(created) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) saveAttachment(r *http.Request, dir, logID string, fh *multipart.FileHeader) (storage.Attachment, error) {
	src, err := fh.Open()
	if err != nil {
		return storage.Attachment{}, err
	}
	defer src.Close()

	safeName := sanitizeFilename(fh.Filename)
	path := uniquePath(dir, safeName)
	size, err := saveUpload(src, path)
	if err != nil {
		return storage.Attachment{}, err
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = guessContentType(safeName)
	}

	att := storage.Attachment{
		ID:          uuid.NewString(),
		FlightLogID: logID,
		Filename:    filepath.Base(path),
		FilePath:    path,
		FileSize:    size,
		ContentType: contentType,
	}
	if err := s.store.CreateAttachment(r.Context(), &att); err != nil {
		_ = os.Remove(path)
		return storage.Attachment{}, err
	}
	return att, nil
}

func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.getLog(w, r); !ok {
		return
	}
	atts, err := s.store.Attachments(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.logger.Error("listing attachments", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list attachments")
		return
	}
	writeJSON(w, http.StatusOK, atts)
}

// getAttachment loads the attachment addressed by the path variables, or
// writes a 404.
func (s *Server) getAttachment(w http.ResponseWriter, r *http.Request) (*storage.Attachment, bool) {
	vars := mux.Vars(r)
	att, err := s.store.Attachment(r.Context(), vars["id"], vars["attachmentID"])
	if err != nil {
		writeError(w, http.StatusNotFound, "attachment not found")
		return nil, false
	}
	return att, true
}

func (s *Server) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.getLog(w, r); !ok {
		return
	}
	att, ok := s.getAttachment(w, r)
	if !ok {
		return
	}
	if _, err := os.Stat(att.FilePath); err != nil {
		writeError(w, http.StatusNotFound, "attachment file not found on disk")
		return
	}
	w.Header().Set("Content-Type", att.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+att.Filename+"\"")
	http.ServeFile(w, r, att.FilePath)
}

func (s *Server) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.getLog(w, r); !ok {
		return
	}
	att, ok := s.getAttachment(w, r)
	if !ok {
		return
	}

	if err := os.Remove(att.FilePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("removing attachment file", zap.String("path", att.FilePath), zap.Error(err))
	}
	if err := s.store.DeleteAttachment(r.Context(), att.FlightLogID, att.ID); err != nil {
		s.logger.Error("deleting attachment", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete attachment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "attachment deleted"})
}
