package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/isak-aslund/airologV2-ralph/internal/storage"
	"github.com/isak-aslund/airologV2-ralph/internal/ulog/ulogtest"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	dir := t.TempDir()
	store := storage.NewSqliteStore(filepath.Join(dir, "catalog.db"))
	require.NoError(t, store.Init())
	t.Cleanup(func() { _ = store.Close() })

	s, err := NewServer(Options{
		StorageDir: filepath.Join(dir, "data"),
		Store:      store,
		Logger:     zap.NewNop(),
	})
	require.NoError(t, err)
	return s, NewRouter(s)
}

// sampleLogBytes builds a log with a serial, a known airframe, GPS fixes and
// a couple of mode changes.
func sampleLogBytes() []byte {
	b := ulogtest.New(1_000_000)
	b.ParamInt32("SYS_AUTOSTART", 4030)
	b.ParamInt32("AIROLIT_SERIAL", 1177)
	b.Format("vehicle_status:uint64_t timestamp;uint8_t nav_state")
	b.Format("vehicle_gps_position:uint64_t timestamp;int32_t lat;int32_t lon")
	b.Subscribe(1, 0, "vehicle_status")
	b.Subscribe(2, 0, "vehicle_gps_position")
	b.Data(1, ulogtest.NewRecord().U64(2_000_000).U8(17).Bytes())
	b.Data(2, ulogtest.NewRecord().U64(3_000_000).I32(377749000).I32(-1224194000).Bytes())
	b.Data(1, ulogtest.NewRecord().U64(61_000_000).U8(3).Bytes())
	return b.Bytes()
}

type multipartBody struct {
	buf    bytes.Buffer
	writer *multipart.Writer
}

func newMultipartBody() *multipartBody {
	m := &multipartBody{}
	m.writer = multipart.NewWriter(&m.buf)
	return m
}

func (m *multipartBody) file(t *testing.T, field, filename string, content []byte) *multipartBody {
	t.Helper()
	part, err := m.writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	return m
}

func (m *multipartBody) field(t *testing.T, name, value string) *multipartBody {
	t.Helper()
	require.NoError(t, m.writer.WriteField(name, value))
	return m
}

func (m *multipartBody) request(t *testing.T, method, target string) *http.Request {
	t.Helper()
	require.NoError(t, m.writer.Close())
	req := httptest.NewRequest(method, target, &m.buf)
	req.Header.Set("Content-Type", m.writer.FormDataContentType())
	return req
}

func uploadSampleLog(t *testing.T, router http.Handler) storage.FlightLog {
	t.Helper()
	req := newMultipartBody().
		file(t, "file", "log_7_2024-1-5-9-3-0.ulg", sampleLogBytes()).
		field(t, "title", "Morning survey").
		field(t, "pilot", "Erik").
		field(t, "drone_model", "CX10").
		field(t, "tags", "survey, Coastal").
		request(t, http.MethodPost, "/api/logs")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var rec storage.FlightLog
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	return rec
}

func TestCreateLog(t *testing.T) {
	s, router := newTestServer(t)

	rec := uploadSampleLog(t, router)
	assert.Equal(t, "Morning survey", rec.Title)
	assert.Equal(t, "CX10", rec.DroneModel)
	require.NotNil(t, rec.SerialNumber)
	assert.Equal(t, "1177", *rec.SerialNumber)
	require.NotNil(t, rec.LogIdentifier)
	assert.Equal(t, "log_7_2024-1-5-9-3-0", *rec.LogIdentifier)
	require.NotNil(t, rec.DurationSeconds)
	assert.Equal(t, 60.0, *rec.DurationSeconds)
	require.NotNil(t, rec.TakeoffLat)
	assert.InDelta(t, 37.7749, *rec.TakeoffLat, 1e-6)
	assert.Equal(t, []string{"Mission", "Takeoff"}, rec.FlightModes)
	require.Len(t, rec.Tags, 2)
	assert.Equal(t, "coastal", rec.Tags[0].Name)

	// The raw bytes landed under the storage root.
	_, err := os.Stat(s.logPath(rec.ID))
	assert.NoError(t, err)
}

func TestCreateLogFormSerialWins(t *testing.T) {
	_, router := newTestServer(t)

	req := newMultipartBody().
		file(t, "file", "flight.ulg", sampleLogBytes()).
		field(t, "title", "t").
		field(t, "pilot", "p").
		field(t, "drone_model", "S1").
		field(t, "serial_number", "override-9").
		request(t, http.MethodPost, "/api/logs")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code)

	var rec storage.FlightLog
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	require.NotNil(t, rec.SerialNumber)
	assert.Equal(t, "override-9", *rec.SerialNumber)
}

func TestCreateLogValidation(t *testing.T) {
	_, router := newTestServer(t)

	tests := []struct {
		name  string
		build func() *http.Request
	}{
		{
			name: "wrong extension",
			build: func() *http.Request {
				return newMultipartBody().
					file(t, "file", "flight.txt", []byte("x")).
					field(t, "title", "t").field(t, "pilot", "p").field(t, "drone_model", "S1").
					request(t, http.MethodPost, "/api/logs")
			},
		},
		{
			name: "missing title",
			build: func() *http.Request {
				return newMultipartBody().
					file(t, "file", "flight.ulg", []byte("x")).
					field(t, "pilot", "p").field(t, "drone_model", "S1").
					request(t, http.MethodPost, "/api/logs")
			},
		},
		{
			name: "unknown model",
			build: func() *http.Request {
				return newMultipartBody().
					file(t, "file", "flight.ulg", []byte("x")).
					field(t, "title", "t").field(t, "pilot", "p").field(t, "drone_model", "Mavic").
					request(t, http.MethodPost, "/api/logs")
			},
		},
		{
			name: "missing file",
			build: func() *http.Request {
				return newMultipartBody().
					field(t, "title", "t").field(t, "pilot", "p").field(t, "drone_model", "S1").
					request(t, http.MethodPost, "/api/logs")
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, tc.build())
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestCreateLogUnreadableFileStillAccepted(t *testing.T) {
	_, router := newTestServer(t)

	req := newMultipartBody().
		file(t, "file", "garbage.ulg", []byte("definitely not a flight log")).
		field(t, "title", "t").
		field(t, "pilot", "p").
		field(t, "drone_model", "XLT").
		request(t, http.MethodPost, "/api/logs")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var rec storage.FlightLog
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Nil(t, rec.DurationSeconds)
	assert.Nil(t, rec.SerialNumber)
	require.NotNil(t, rec.LogIdentifier)
	assert.Equal(t, "garbage", *rec.LogIdentifier)
	assert.Empty(t, rec.FlightModes)
}

func TestGetUpdateDeleteLog(t *testing.T) {
	s, router := newTestServer(t)
	rec := uploadSampleLog(t, router)

	t.Run("get", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/logs/"+rec.ID, nil))
		require.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("get missing", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/logs/nope", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("update", func(t *testing.T) {
		body := strings.NewReader(`{"title":"Evening survey","tags":["fresh"]}`)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/logs/"+rec.ID, body))
		require.Equal(t, http.StatusOK, rr.Code)

		var updated storage.FlightLog
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &updated))
		assert.Equal(t, "Evening survey", updated.Title)
		require.Len(t, updated.Tags, 1)
		assert.Equal(t, "fresh", updated.Tags[0].Name)
	})

	t.Run("update rejects unknown model", func(t *testing.T) {
		body := strings.NewReader(`{"drone_model":"Phantom"}`)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/logs/"+rec.ID, body))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/logs/"+rec.ID, nil))
		require.Equal(t, http.StatusOK, rr.Code)

		_, err := os.Stat(s.logPath(rec.ID))
		assert.True(t, os.IsNotExist(err))

		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/logs/"+rec.ID, nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestListLogs(t *testing.T) {
	_, router := newTestServer(t)
	uploadSampleLog(t, router)

	t.Run("envelope", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/logs", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var page storage.Page
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
		assert.Equal(t, 1, page.Total)
		assert.Equal(t, 25, page.PerPage)
		require.Len(t, page.Items, 1)
	})

	t.Run("search miss", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/logs?search=nothing", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var page storage.Page
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
		assert.Equal(t, 0, page.Total)
	})

	t.Run("invalid per_page", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/logs?per_page=33", nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestDownloadLog(t *testing.T) {
	_, router := newTestServer(t)
	rec := uploadSampleLog(t, router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/logs/"+rec.ID+"/download", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "Morning_survey_"+rec.ID+".ulg")
	assert.Equal(t, sampleLogBytes(), rr.Body.Bytes())
}

func TestLogParameters(t *testing.T) {
	_, router := newTestServer(t)
	rec := uploadSampleLog(t, router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/logs/"+rec.ID+"/parameters", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var params map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &params))
	assert.Equal(t, float64(4030), params["SYS_AUTOSTART"])
	assert.Equal(t, float64(1177), params["AIROLIT_SERIAL"])
}

func TestExtractPreviewDoesNotStore(t *testing.T) {
	_, router := newTestServer(t)

	req := newMultipartBody().
		file(t, "file", "log_7_2024-1-5-9-3-0.ulg", sampleLogBytes()).
		request(t, http.MethodPost, "/api/logs/extract")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var md struct {
		DurationSeconds *float64 `json:"duration_seconds"`
		SerialNumber    *string  `json:"serial_number"`
		DroneModel      *string  `json:"drone_model"`
		LogIdentifier   *string  `json:"log_identifier"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &md))
	require.NotNil(t, md.DroneModel)
	assert.Equal(t, "CX10", *md.DroneModel)
	require.NotNil(t, md.SerialNumber)
	assert.Equal(t, "1177", *md.SerialNumber)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/logs", nil))
	var page storage.Page
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, 0, page.Total)
}

func TestCheckDuplicates(t *testing.T) {
	_, router := newTestServer(t)
	rec := uploadSampleLog(t, router)

	body := strings.NewReader(`{"items":[
		{"serial_number":"1177","log_identifier":"log_7_2024-1-5-9-3-0"},
		{"serial_number":"1177","log_identifier":"other"}]}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/logs/check-duplicates", body))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Results []storage.Duplicate `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Exists)
	require.NotNil(t, resp.Results[0].ExistingLogID)
	assert.Equal(t, rec.ID, *resp.Results[0].ExistingLogID)
	assert.False(t, resp.Results[1].Exists)
}

func TestTagsEndpoints(t *testing.T) {
	_, router := newTestServer(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/tags", strings.NewReader(`{"name":" Coastal "}`)))
	require.Equal(t, http.StatusCreated, rr.Code)

	var tag storage.Tag
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tag))
	assert.Equal(t, "coastal", tag.Name)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/tags?search=coast", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var tags []storage.Tag
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tags))
	require.Len(t, tags, 1)
	assert.Equal(t, "coastal", tags[0].Name)
}

func TestStatsAndPilotsEndpoints(t *testing.T) {
	_, router := newTestServer(t)
	uploadSampleLog(t, router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var stats storage.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalFlights)
	assert.InDelta(t, 60.0/3600, stats.TotalHours, 1e-9)
	// All known models appear, zero-filled.
	assert.Contains(t, stats.HoursByModel, "XLT")
	assert.Contains(t, stats.HoursByModel, "S1")
	assert.InDelta(t, 60.0/3600, stats.HoursByModel["CX10"], 1e-9)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/pilots", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var pilots []string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pilots))
	assert.Equal(t, []string{"Erik"}, pilots)
}

func TestAttachmentLifecycle(t *testing.T) {
	_, router := newTestServer(t)
	rec := uploadSampleLog(t, router)

	req := newMultipartBody().
		file(t, "files", "../notes.txt", []byte("flight notes")).
		request(t, http.MethodPost, "/api/logs/"+rec.ID+"/attachments")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created []storage.Attachment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.Len(t, created, 1)
	// Path traversal in the client filename is neutralized.
	assert.Equal(t, "notes.txt", created[0].Filename)
	assert.Equal(t, int64(len("flight notes")), created[0].FileSize)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/logs/"+rec.ID+"/attachments", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var listed []storage.Attachment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	attURL := fmt.Sprintf("/api/logs/%s/attachments/%s", rec.ID, created[0].ID)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, attURL, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.Equal(t, "flight notes", string(body))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, attURL, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, attURL, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestFlightReport(t *testing.T) {
	_, router := newTestServer(t)
	rec := uploadSampleLog(t, router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/logs/"+rec.ID+"/report", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF")))
}

func TestHealth(t *testing.T) {
	_, router := newTestServer(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}
