package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/isak-aslund/airologV2-ralph/internal/report"
)

func (s *Server) handleLogReport(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.getLog(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.WriteFlightPDF(&buf, rec, s.downloadURL(r, rec.ID)); err != nil {
		s.logger.Error("rendering flight report", zap.String("id", rec.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", "flight_report_"+rec.ID+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// downloadURL builds the absolute link encoded into the report's QR code.
// The configured base URL wins; otherwise the link is derived from the
// request.
func (s *Server) downloadURL(r *http.Request, id string) string {
	base := s.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + "/api/logs/" + id + "/download"
}
