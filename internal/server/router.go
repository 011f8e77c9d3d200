package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires HTTP routes to the server's handlers.
func NewRouter(s *Server) http.Handler {
	r := mux.NewRouter()

	r.Use(s.metricsMiddleware)
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/api/logs", s.handleListLogs).Methods(http.MethodGet)
	r.HandleFunc("/api/logs", s.handleCreateLog).Methods(http.MethodPost)
	r.HandleFunc("/api/logs/extract", s.handleExtractPreview).Methods(http.MethodPost)
	r.HandleFunc("/api/logs/check-duplicates", s.handleCheckDuplicates).Methods(http.MethodPost)
	r.HandleFunc("/api/logs/{id}", s.handleGetLog).Methods(http.MethodGet)
	r.HandleFunc("/api/logs/{id}", s.handleUpdateLog).Methods(http.MethodPut)
	r.HandleFunc("/api/logs/{id}", s.handleDeleteLog).Methods(http.MethodDelete)
	r.HandleFunc("/api/logs/{id}/download", s.handleDownloadLog).Methods(http.MethodGet)
	r.HandleFunc("/api/logs/{id}/parameters", s.handleLogParameters).Methods(http.MethodGet)
	r.HandleFunc("/api/logs/{id}/report", s.handleLogReport).Methods(http.MethodGet)

	r.HandleFunc("/api/logs/{id}/attachments", s.handleUploadAttachments).Methods(http.MethodPost)
	r.HandleFunc("/api/logs/{id}/attachments", s.handleListAttachments).Methods(http.MethodGet)
	r.HandleFunc("/api/logs/{id}/attachments/{attachmentID}", s.handleGetAttachment).Methods(http.MethodGet)
	r.HandleFunc("/api/logs/{id}/attachments/{attachmentID}", s.handleDeleteAttachment).Methods(http.MethodDelete)

	r.HandleFunc("/api/tags", s.handleListTags).Methods(http.MethodGet)
	r.HandleFunc("/api/tags", s.handleCreateTag).Methods(http.MethodPost)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/pilots", s.handlePilots).Methods(http.MethodGet)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}
