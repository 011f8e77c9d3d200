package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/isak-aslund/airologV2-ralph/internal/meta"
	"github.com/isak-aslund/airologV2-ralph/internal/metrics"
	"github.com/isak-aslund/airologV2-ralph/internal/storage"
	"github.com/isak-aslund/airologV2-ralph/internal/ulog"
)

// multipartMemory is the in-memory threshold for multipart parsing; larger
// parts spill to disk.
const multipartMemory = 32 << 20

func (s *Server) handleCreateLog(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "parse multipart: %v", err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if !hasULGExt(header.Filename) {
		writeError(w, http.StatusBadRequest, "file must be a .ulg file")
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	pilot := strings.TrimSpace(r.FormValue("pilot"))
	model := strings.TrimSpace(r.FormValue("drone_model"))
	if title == "" || pilot == "" || model == "" {
		writeError(w, http.StatusBadRequest, "title, pilot and drone_model are required")
		return
	}
	if !isKnownModel(model) {
		writeError(w, http.StatusBadRequest, "unknown drone model %q", model)
		return
	}

	id := uuid.NewString()
	path := s.logPath(id)
	size, err := saveUpload(file, path)
	if err != nil {
		s.logger.Error("saving upload", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save file")
		return
	}
	metrics.LogUploads.Inc()
	metrics.LogUploadBytes.Observe(float64(size))

	md := s.extractTimed(path, header.Filename)

	serial := strings.TrimSpace(r.FormValue("serial_number"))
	serialPtr := md.SerialNumber
	if serial != "" {
		serialPtr = &serial
	}
	var commentPtr *string
	if comment := r.FormValue("comment"); comment != "" {
		commentPtr = &comment
	}

	rec := &storage.FlightLog{
		ID:              id,
		Title:           title,
		Pilot:           pilot,
		SerialNumber:    serialPtr,
		LogIdentifier:   md.LogIdentifier,
		DroneModel:      model,
		DurationSeconds: md.DurationSeconds,
		FilePath:        path,
		Comment:         commentPtr,
		TakeoffLat:      md.TakeoffLat,
		TakeoffLon:      md.TakeoffLon,
		FlightDate:      md.FlightDate,
		FlightModes:     md.FlightModes,
	}

	if err := s.store.CreateFlightLog(r.Context(), rec, splitCSV(r.FormValue("tags"))); err != nil {
		_ = os.Remove(path)
		s.logger.Error("creating flight log", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create flight log")
		return
	}

	s.logger.Info("flight log uploaded",
		zap.String("id", id),
		zap.String("pilot", pilot),
		zap.Int64("size", size),
	)
	writeJSON(w, http.StatusCreated, rec)
}

// extractTimed runs metadata extraction with parse failure accounting.
func (s *Server) extractTimed(path, originalFilename string) meta.Metadata {
	start := time.Now()
	parsed, err := ulog.ParseFile(path)
	if err != nil {
		metrics.ParseFailures.Inc()
		s.logger.Warn("unreadable flight log", zap.String("file", originalFilename), zap.Error(err))
		parsed = nil
	}
	md := meta.Extract(parsed, originalFilename)
	metrics.ExtractDuration.Observe(time.Since(start).Seconds())
	return md
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ListFilter{
		Search:  q.Get("search"),
		Pilot:   q.Get("pilot"),
		Page:    1,
		PerPage: 25,
	}

	if page := q.Get("page"); page != "" {
		n, err := parsePositiveInt(page)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid page: %s", page)
			return
		}
		filter.Page = n
	}
	if perPage := q.Get("per_page"); perPage != "" {
		n, err := parsePositiveInt(perPage)
		if err != nil || (n != 25 && n != 50 && n != 100) {
			writeError(w, http.StatusBadRequest, "per_page must be 25, 50 or 100")
			return
		}
		filter.PerPage = n
	}
	for _, model := range splitCSV(q.Get("drone_model")) {
		model = strings.ToUpper(model)
		if isKnownModel(model) {
			filter.DroneModels = append(filter.DroneModels, model)
		}
	}
	filter.Tags = splitCSV(q.Get("tags"))

	var err error
	if filter.DateFrom, err = parseDateParam(q.Get("date_from")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_from")
		return
	}
	if filter.DateTo, err = parseDateParam(q.Get("date_to")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_to")
		return
	}

	page, err := s.store.ListFlightLogs(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing flight logs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list flight logs")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// getLog loads the record for the {id} path variable, writing a 404 on a
// miss.
func (s *Server) getLog(w http.ResponseWriter, r *http.Request) (*storage.FlightLog, bool) {
	id := mux.Vars(r)["id"]
	rec, err := s.store.FlightLog(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "flight log with id %q not found", id)
		return nil, false
	}
	if err != nil {
		s.logger.Error("loading flight log", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load flight log")
		return nil, false
	}
	return rec, true
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.getLog(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdateLog(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title      *string   `json:"title"`
		Pilot      *string   `json:"pilot"`
		DroneModel *string   `json:"drone_model"`
		Comment    *string   `json:"comment"`
		Tags       *[]string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	if req.DroneModel != nil && !isKnownModel(*req.DroneModel) {
		writeError(w, http.StatusBadRequest, "unknown drone model %q", *req.DroneModel)
		return
	}

	upd := storage.FlightLogUpdate{
		Title:      req.Title,
		Pilot:      req.Pilot,
		DroneModel: req.DroneModel,
		Comment:    req.Comment,
	}
	if req.Tags != nil {
		upd.Tags = *req.Tags
		upd.HasTags = true
	}

	id := mux.Vars(r)["id"]
	rec, err := s.store.UpdateFlightLog(r.Context(), id, upd)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "flight log with id %q not found", id)
		return
	}
	if err != nil {
		s.logger.Error("updating flight log", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update flight log")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteLog(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.getLog(w, r)
	if !ok {
		return
	}

	// Files go first; a failed unlink does not block catalog removal.
	if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("removing log file", zap.String("path", rec.FilePath), zap.Error(err))
	}
	for _, att := range rec.Attachments {
		if err := os.Remove(att.FilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing attachment file", zap.String("path", att.FilePath), zap.Error(err))
		}
	}

	if err := s.store.DeleteFlightLog(r.Context(), rec.ID); err != nil {
		s.logger.Error("deleting flight log", zap.String("id", rec.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete flight log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("flight log %q deleted", rec.ID),
	})
}

func (s *Server) handleDownloadLog(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.getLog(w, r)
	if !ok {
		return
	}
	if _, err := os.Stat(rec.FilePath); err != nil {
		writeError(w, http.StatusNotFound, "file not found on disk")
		return
	}

	filename := fmt.Sprintf("%s_%s.ulg", strings.ReplaceAll(rec.Title, " ", "_"), rec.ID)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, rec.FilePath)
}

func (s *Server) handleLogParameters(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.getLog(w, r)
	if !ok {
		return
	}

	// An unreadable file yields an empty table, not an error.
	params := map[string]any{}
	if parsed, err := ulog.ParseFile(rec.FilePath); err == nil {
		for _, p := range meta.ListParameters(parsed) {
			params[p.Name] = nativeValue(p.Value)
		}
	}
	writeJSON(w, http.StatusOK, params)
}

func (s *Server) handleExtractPreview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "parse multipart: %v", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "airolog-extract-*.ulg")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stage file")
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		writeError(w, http.StatusInternalServerError, "failed to stage file")
		return
	}
	tmp.Close()

	md := s.extractTimed(tmpPath, header.Filename)
	writeJSON(w, http.StatusOK, md)
}

func (s *Server) handleCheckDuplicates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items []storage.Duplicate `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}

	results, err := s.store.CheckDuplicates(r.Context(), req.Items)
	if err != nil {
		s.logger.Error("checking duplicates", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to check duplicates")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.store.Tags(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		s.logger.Error("listing tags", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list tags")
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "tag name is required")
		return
	}

	tag, err := s.store.CreateTag(r.Context(), req.Name)
	if err != nil {
		s.logger.Error("creating tag", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create tag")
		return
	}
	writeJSON(w, http.StatusCreated, tag)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("computing stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	if stats.HoursByModel == nil {
		stats.HoursByModel = make(map[string]float64)
	}
	for _, model := range meta.KnownModels() {
		if _, ok := stats.HoursByModel[model]; !ok {
			stats.HoursByModel[model] = 0
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handlePilots(w http.ResponseWriter, r *http.Request) {
	pilots, err := s.store.Pilots(r.Context())
	if err != nil {
		s.logger.Error("listing pilots", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list pilots")
		return
	}
	writeJSON(w, http.StatusOK, pilots)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func hasULGExt(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".ulg")
}

func isKnownModel(model string) bool {
	for _, m := range meta.KnownModels() {
		if m == model {
			return true
		}
	}
	return false
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parsePositiveInt(value string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("must be positive")
	}
	return n, nil
}

// parseDateParam accepts RFC 3339 timestamps and plain dates.
func parseDateParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unparseable date %q", value)
}

func nativeValue(v ulog.Value) any {
	switch v.Kind {
	case ulog.KindInt:
		return v.IntV
	case ulog.KindFloat:
		return v.FloatV
	default:
		return v.TextV
	}
}

func saveUpload(src io.Reader, path string) (int64, error) {
	dest, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	size, err := io.Copy(dest, src)
	if err != nil {
		dest.Close()
		_ = os.Remove(path)
		return 0, err
	}
	if err := dest.Close(); err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return size, nil
}
