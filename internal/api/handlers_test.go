package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/rueckwand/configurator/internal/layout"
	"github.com/rueckwand/configurator/internal/persistence"
	"github.com/rueckwand/configurator/internal/render"
	"github.com/rueckwand/configurator/internal/session"
	"github.com/rueckwand/configurator/internal/testutil"
	"github.com/rueckwand/configurator/internal/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

const testMotif = "https://example.com/motif.jpg"

// stubMotifs serves one gradient for every reference.
type stubMotifs struct{ loads atomic.Int32 }

func (s *stubMotifs) Load(ctx context.Context, ref string) (image.Image, error) {
	s.loads.Add(1)
	return testutil.Gradient(300, 128), nil
}

type testServer struct {
	e        *echo.Echo
	sessions *session.Manager
	motifs   *testutil.MockStorage
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := log.New(&bytes.Buffer{})

	sessions := session.NewManager(persistence.NullStore{}, nil, logger, session.DefaultOptions(testMotif))
	motifs := testutil.NewMockStorage()
	exporter := render.NewExporter(&stubMotifs{}, nil, render.ExportOptions{Layout: layout.DefaultConfig()}, logger)

	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	RegisterRoutes(e, NewHandlers(&Dependencies{
		Sessions: sessions,
		Motifs:   motifs,
		Ingest:   upload.NewManager(motifs, upload.Options{}, logger),
		Exporter: exporter,
		Layout:   layout.DefaultConfig(),
		Logger:   logger,
		Version:  "test",
	}))
	return &testServer{e: e, sessions: sessions, motifs: motifs}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) create(t *testing.T) sessionResponse {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionResponse {
	t.Helper()
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr), rec.Body.String())
	return apiErr
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	ts.create(t)

	rec := ts.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"sessions":1`)
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	created := ts.create(t)
	require.Len(t, created.Plates, 2)
	assert.Equal(t, 1, created.Revision)
	assert.Equal(t, testMotif, created.MotifURL)
	assert.Equal(t, 280.0, created.Summary.TotalWidthCm)

	rec := ts.do(t, http.MethodGet, "/api/sessions/"+created.ID+"?unit=in", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeSession(t, rec)
	assert.Equal(t, "in", string(got.Unit))
	assert.Equal(t, "98.43", got.Plates[0].Width)

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+created.ID+"/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reset := decodeSession(t, rec)
	require.Len(t, reset.Plates, 1)
	assert.Equal(t, 250.0, reset.Plates[0].WidthCm)

	rec = ts.do(t, http.MethodGet, "/api/sessions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+created.ID+"?unit=ft", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNKNOWN_UNIT", decodeError(t, rec).Code)
}

func TestPlateEditing(t *testing.T) {
	ts := newTestServer(t)
	s := ts.create(t)
	base := "/api/sessions/" + s.ID

	// Add up to the limit.
	for i := 0; i < 8; i++ {
		rec := ts.do(t, http.MethodPost, base+"/plates", nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := ts.do(t, http.MethodPost, base+"/plates", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "PLATE_LIMIT", decodeError(t, rec).Code)

	plateID := s.Plates[1].ID

	// Comma decimal input in inches.
	rec = ts.do(t, http.MethodPatch, base+"/plates/"+plateID, map[string]string{"width": "20,5", "unit": "in"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeSession(t, rec)
	assert.InDelta(t, 52.07, updated.Plates[1].WidthCm, 1e-9)
	assert.Equal(t, 30.0, updated.Plates[1].HeightCm)

	// Out of range reports the allowed range in the input unit.
	rec = ts.do(t, http.MethodPatch, base+"/plates/"+plateID, map[string]string{"height": "200"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	apiErr := decodeError(t, rec)
	assert.Equal(t, "OUT_OF_RANGE", apiErr.Code)
	assert.Equal(t, "30–128 cm", apiErr.Details)
	assert.True(t, strings.HasPrefix(apiErr.Message, "height: "))

	rec = ts.do(t, http.MethodPatch, base+"/plates/"+plateID, map[string]string{"width": "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "NOT_A_NUMBER", decodeError(t, rec).Code)

	rec = ts.do(t, http.MethodPatch, base+"/plates/"+plateID, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPatch, base+"/plates/missing", map[string]string{"width": "50"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, base+"/plates/"+plateID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeSession(t, rec).Plates, 9)
}

func TestRemoveLastPlate(t *testing.T) {
	ts := newTestServer(t)
	s := ts.create(t)
	base := "/api/sessions/" + s.ID

	rec := ts.do(t, http.MethodDelete, base+"/plates/"+s.Plates[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodDelete, base+"/plates/"+s.Plates[1].ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "LAST_PLATE", decodeError(t, rec).Code)
}

func TestReorderPlates(t *testing.T) {
	ts := newTestServer(t)
	s := ts.create(t)
	base := "/api/sessions/" + s.ID
	ts.do(t, http.MethodPost, base+"/plates", nil)

	rec := ts.do(t, http.MethodGet, base, nil)
	ids := []string{}
	for _, p := range decodeSession(t, rec).Plates {
		ids = append(ids, p.ID)
	}

	rec = ts.do(t, http.MethodPost, base+"/plates/reorder", map[string]int{"from": 0, "to": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decodeSession(t, rec)
	assert.Equal(t, []string{ids[1], ids[2], ids[0]}, []string{moved.Plates[0].ID, moved.Plates[1].ID, moved.Plates[2].ID})

	rec = ts.do(t, http.MethodPost, base+"/plates/reorder", map[string][]string{"order": ids})
	require.Equal(t, http.StatusOK, rec.Code)
	restored := decodeSession(t, rec)
	assert.Equal(t, ids[0], restored.Plates[0].ID)

	rec = ts.do(t, http.MethodPost, base+"/plates/reorder", map[string][]string{"order": {ids[0], ids[0], ids[1]}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ORDER", decodeError(t, rec).Code)

	rec = ts.do(t, http.MethodPost, base+"/plates/reorder", map[string]int{"from": 0, "to": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, base+"/plates/reorder", map[string]int{"from": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
}

func TestLayoutEndpoints(t *testing.T) {
	ts := newTestServer(t)
	s := ts.create(t)
	base := "/api/sessions/" + s.ID

	rec := ts.do(t, http.MethodGet, base+"/layout?width=1000&height=400", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var res layout.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, layout.ModeSlice, res.Mode)
	require.Len(t, res.Plates, 2)
	assert.Equal(t, 781, res.Plates[0].WidthPx)
	assert.Equal(t, 400, res.Plates[0].HeightPx)
	assert.Equal(t, 781, res.Plates[1].LeftPx)

	// Defaults to the preview box size.
	rec = ts.do(t, http.MethodGet, base+"/layout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, DefaultViewport, res.Viewport)

	rec = ts.do(t, http.MethodGet, base+"/layout?width=-5", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, base+"/layout/msgpack?width=1000&height=400", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))
	var packed layout.Result
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &packed))
	assert.Equal(t, 781, packed.Plates[0].WidthPx)
}

func TestExportPNG(t *testing.T) {
	ts := newTestServer(t)
	s := ts.create(t)

	rec := ts.do(t, http.MethodGet, "/api/sessions/"+s.ID+"/export.png?width=200&height=100&ratio=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "Rueckwand-Preview.png")

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())

	rec = ts.do(t, http.MethodGet, "/api/sessions/"+s.ID+"/export.png?width=9000&ratio=1", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "EXPORT_TOO_LARGE", decodeError(t, rec).Code)
}

func TestLimits(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/limits", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp limitsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "20–300 cm", resp.Width.Label["cm"])
	assert.Equal(t, "11.81–50.39 in", resp.Height.Label["in"])
	assert.Equal(t, 10, resp.MaxPlates)
	assert.Equal(t, 128.0, resp.MaxHeightCm)
	assert.Equal(t, []string{"plates-step3@1", "plate-gen-step1@2"}, resp.StorageKeys)
}

func TestMotifEndpoints(t *testing.T) {
	ts := newTestServer(t)
	s := ts.create(t)
	base := "/api/sessions/" + s.ID

	rec := ts.do(t, http.MethodPut, base+"/motif", map[string]string{"url": "https://example.com/other.jpg"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.com/other.jpg", decodeSession(t, rec).MotifURL)

	rec = ts.do(t, http.MethodPut, base+"/motif", map[string]string{"url": "ftp://example.com/x.jpg"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_MOTIF", decodeError(t, rec).Code)

	rec = ts.do(t, http.MethodDelete, base+"/motif", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testMotif, decodeSession(t, rec).MotifURL)
}

func TestUploadMotifMultipart(t *testing.T) {
	ts := newTestServer(t)
	s := ts.create(t)

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile("file", "kitchen.png")
	part.Write(testutil.PNG(testutil.Gradient(40, 20)))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+s.ID+"/motif/upload", body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp uploadMotifResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.File)
	assert.Equal(t, "motif:"+resp.File.ID, resp.Ref)
	assert.Equal(t, resp.Ref, resp.Session.MotifURL)
	assert.Equal(t, 1, ts.motifs.GetFileCount())

	// The stored image is served back with cache headers.
	rec = ts.do(t, http.MethodGet, "/api/motifs/"+resp.File.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("ETag"))
	_, _, err := image.Decode(rec.Body)
	assert.NoError(t, err)

	req = httptest.NewRequest(http.MethodGet, "/api/motifs/"+resp.File.ID, nil)
	req.Header.Set("If-None-Match", `"`+resp.File.ID+`"`)
	rec = httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/motifs/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadMotifDataURI(t *testing.T) {
	ts := newTestServer(t)
	s := ts.create(t)

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(testutil.PNG(testutil.Gradient(8, 8)))
	rec := ts.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/motif/upload", map[string]string{"name": "tiny.png", "data": uri})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/sessions/"+s.ID+"/motif/upload", map[string]string{"data": "data:text/plain;base64,aGVsbG8="})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sessions/missing/motif/upload", map[string]string{"data": uri})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 1, ts.motifs.GetFileCount())
}

func TestImportExportStorage(t *testing.T) {
	ts := newTestServer(t)
	s := ts.create(t)
	base := "/api/sessions/" + s.ID

	current := `[{"id":"a","widthCm":100,"heightCm":"oops","motifUrl":"javascript:alert(1)"},{"id":"a","widthCm":500,"heightCm":60}]`
	rec := ts.do(t, http.MethodPost, base+"/import", map[string]string{"plates-step3@1": current})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp importStorageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, persistence.SourceCurrent, resp.Report.Source)
	assert.NotEmpty(t, resp.Report.Substitutions)
	require.Len(t, resp.Session.Plates, 2)
	assert.Equal(t, 100.0, resp.Session.Plates[0].WidthCm)
	assert.Equal(t, 30.0, resp.Session.Plates[0].HeightCm)
	assert.Equal(t, 300.0, resp.Session.Plates[1].WidthCm)
	assert.NotEqual(t, resp.Session.Plates[0].ID, resp.Session.Plates[1].ID)
	assert.Equal(t, testMotif, resp.Session.MotifURL)

	rec = ts.do(t, http.MethodGet, base+"/export/storage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stored map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	require.Contains(t, stored, "plates-step3@1")
	assert.Contains(t, stored["plates-step3@1"], `"widthCm":300`)

	// Legacy single-plate value alone.
	rec = ts.do(t, http.MethodPost, base+"/import", map[string]string{"plate-gen-step1@2": `{"widthCm":120,"heightCm":90}`})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, persistence.SourceLegacy, resp.Report.Source)
	require.Len(t, resp.Session.Plates, 1)
	assert.Equal(t, 120.0, resp.Session.Plates[0].WidthCm)
}

func TestErrorHandler_MapsDomainErrors(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	ErrorHandler(session.ErrPlateLimit, c)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	ErrorHandler(echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"), c)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "HTTP_ERROR")

	SetErrorDetails(false)
	defer SetErrorDetails(true)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	ErrorHandler(assert.AnError, c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNKNOWN_ERROR")
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}
