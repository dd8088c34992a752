package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Kotoad/APP-PyQt-sub000/internal/compiler"
	"github.com/Kotoad/APP-PyQt-sub000/internal/execution"
	"github.com/Kotoad/APP-PyQt-sub000/internal/history"
	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
	"github.com/Kotoad/APP-PyQt-sub000/internal/storage"
	"github.com/Kotoad/APP-PyQt-sub000/internal/testutil"
	"github.com/Kotoad/APP-PyQt-sub000/internal/workspace"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type testServer struct {
	e          *echo.Echo
	mock       *testutil.MockBackend
	manager    *execution.Manager
	history    *history.Store
	projectDir string
}

func newTestServer(t *testing.T, withHistory bool) *testServer {
	t.Helper()
	dir := t.TempDir()
	projectDir := filepath.Join(dir, "projects")
	store, err := storage.NewLocalStore(projectDir, filepath.Join(dir, "backup"))
	require.NoError(t, err)

	var hist *history.Store
	var recorder execution.Recorder
	if withHistory {
		hist, err = history.Open(filepath.Join(dir, "history.duckdb"))
		require.NoError(t, err)
		t.Cleanup(func() { hist.Close() })
		recorder = hist
	}

	mock := testutil.NewMockBackend()
	manager := execution.NewManager(mock, mock, recorder)
	ws, err := workspace.New(workspace.Options{
		Store:        store,
		Runner:       manager,
		ArtifactPath: filepath.Join(dir, "build", compiler.DefaultArtifact),
	})
	require.NoError(t, err)

	e := echo.New()
	e.HTTPErrorHandler = NewErrorHandler(false)
	h := NewHandler(ws, manager, hist, "test")
	RegisterRoutes(e, h, NewWebSocketHandler(h, 0))
	return &testServer{e: e, mock: mock, manager: manager, history: hist, projectDir: projectDir}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

// id posts body and returns the "id" field of the response.
func (s *testServer) id(t *testing.T, path, body string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, path, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out["id"]
}

func (s *testServer) place(t *testing.T, typ models.BlockType, x, y int) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/canvas/main_canvas/add", fmt.Sprintf(`{"type":%q}`, typ))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"state":"ADDING_BLOCK"}`, rec.Body.String())
	return s.id(t, "/api/canvas/main_canvas/click", fmt.Sprintf(`{"x":%d,"y":%d}`, x, y))
}

func (s *testServer) connect(t *testing.T, from, to string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/canvas/main_canvas/output", fmt.Sprintf(`{"blockId":%q,"port":"out"}`, from))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s.id(t, "/api/canvas/main_canvas/input", fmt.Sprintf(`{"blockId":%q,"port":"in"}`, to))
}

// blink builds Start -> Blink(LED1) -> End over HTTP.
func (s *testServer) blink(t *testing.T) string {
	t.Helper()
	s.id(t, "/api/scopes/main_canvas/devices", `{"name":"LED1","type":"Output","PIN":17}`)
	start := s.place(t, models.BlockStart, 0, 0)
	blink := s.place(t, models.BlockBlinkLED, 200, 0)
	end := s.place(t, models.BlockEnd, 400, 0)
	rec := s.do(t, http.MethodPut, "/api/blocks/"+blink+"/params/"+models.KeyValue1Name, `{"value":"LED1"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPut, "/api/blocks/"+blink+"/params/"+models.KeySleepTime, `{"value":500}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	s.connect(t, start, blink)
	s.connect(t, blink, end)
	return blink
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr), rec.Body.String())
	return apiErr
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, false)
	rec := s.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"test","history":false}`, rec.Body.String())
}

func TestProjectLifecycle(t *testing.T) {
	s := newTestServer(t, false)
	blink := s.blink(t)

	rec := s.do(t, http.MethodGet, "/api/project", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"LED1"`)
	assert.Contains(t, rec.Body.String(), blink)

	rec = s.do(t, http.MethodPost, "/api/project/save", `{"name":"blinky"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.FileExists(t, filepath.Join(s.projectDir, "blinky"+storage.ProjectExt))

	rec = s.do(t, http.MethodGet, "/api/project/diff", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"has_changes":false`)

	rec = s.do(t, http.MethodGet, "/api/projects/recent?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []models.ProjectInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "blinky", infos[0].Name)

	rec = s.do(t, http.MethodPost, "/api/project/new", `{"name":"fresh"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), blink)

	rec = s.do(t, http.MethodPost, "/api/project/open", `{"name":"blinky"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), blink)
}

func TestErrorCodes(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodPost, "/api/project/open", `{"name":"nope"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "MISSING_FILE", decodeError(t, rec).Code)

	require.NoError(t, os.WriteFile(filepath.Join(s.projectDir, "broken"+storage.ProjectExt), []byte("{not json"), 0644))
	rec = s.do(t, http.MethodPost, "/api/project/open", `{"name":"broken"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "CORRUPT_PROJECT", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/project/open", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/canvas/main_canvas/add", `{"type":"Timer"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/scopes/main_canvas/variables", `{"name":"a"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "GATE_CLOSED", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodPost, "/api/canvas/main_canvas/cancel", "")
	assert.JSONEq(t, `{"cancelled":true}`, rec.Body.String())

	s.id(t, "/api/scopes/main_canvas/variables", `{"name":"a"}`)
	s.id(t, "/api/scopes/main_canvas/variables", `{"name":"a"}`)
	rec = s.do(t, http.MethodGet, "/api/project/duplicates", "")
	assert.Contains(t, rec.Body.String(), "main_canvas")
	rec = s.do(t, http.MethodPost, "/api/compile", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NAME_COLLISION", decodeError(t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/canvas/nope/state", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/compile/artifact", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorHandler(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = NewErrorHandler(false)
	e.GET("/boom", func(c echo.Context) error { return errors.New("secret path /etc") })
	e.GET("/wrapped", func(c echo.Context) error {
		return fmt.Errorf("open: %w", storage.ErrMissingFile)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wrapped", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "MISSING_FILE")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "HTTP_ERROR")
}

func TestGesturesAndBindings(t *testing.T) {
	s := newTestServer(t, false)
	timer := s.place(t, models.BlockTimer, 112, 38)

	rec := s.do(t, http.MethodPost, "/api/canvas/main_canvas/press", fmt.Sprintf(`{"blockId":%q}`, timer))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"state":"MOVING_ITEM"}`, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/canvas/main_canvas/drag", `{"x":300,"y":300}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/canvas/main_canvas/release", `{"x":300,"y":300}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"state":"IDLE"}`, rec.Body.String())

	rec = s.do(t, http.MethodDelete, "/api/canvas/main_canvas/items/"+timer, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/project", "")
	assert.NotContains(t, rec.Body.String(), timer)

	v := s.id(t, "/api/scopes/main_canvas/variables", `{"name":"counter","type":"Int","value":"1"}`)
	rec = s.do(t, http.MethodPut, "/api/scopes/main_canvas/variables/"+v, `{"name":"count","type":"Int","value":"2"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPut, "/api/scopes/main_canvas/bindings/"+v+"/name", `{"name":"total"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPut, "/api/scopes/main_canvas/bindings/missing/name", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/project", "")
	assert.Contains(t, rec.Body.String(), `"total"`)
	rec = s.do(t, http.MethodDelete, "/api/scopes/main_canvas/bindings/"+v, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	fn := s.id(t, "/api/functions", `{"name":"helper"}`)
	rec = s.do(t, http.MethodGet, "/api/canvas/"+fn+"/state", "")
	assert.JSONEq(t, `{"state":"IDLE"}`, rec.Body.String())
	rec = s.do(t, http.MethodPut, "/api/functions/"+fn, `{"name":"blinker"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodDelete, "/api/functions/"+fn, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/canvas/"+fn+"/state", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDialogs(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodPost, "/api/dialogs/SETTINGS_DIALOG", "")
	assert.JSONEq(t, `{"raised":false,"open":["SETTINGS_DIALOG"]}`, rec.Body.String())
	s.do(t, http.MethodPost, "/api/dialogs/HELP_DIALOG", "")
	rec = s.do(t, http.MethodPost, "/api/dialogs/SETTINGS_DIALOG", "")
	assert.JSONEq(t, `{"raised":true,"open":["HELP_DIALOG","SETTINGS_DIALOG"]}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/dialogs/COMPILING", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/dialogs/HELP_DIALOG", "")
	assert.JSONEq(t, `{"closed":true,"open":["SETTINGS_DIALOG"]}`, rec.Body.String())
}

func TestCompileAndExport(t *testing.T) {
	s := newTestServer(t, false)
	s.blink(t)

	rec := s.do(t, http.MethodPost, "/api/compile", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var art artifactResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &art))
	assert.Contains(t, art.Source, "for _ in range(2):")
	assert.Equal(t, []int{17}, art.Pins)

	rec = s.do(t, http.MethodGet, "/api/compile/artifact", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/project/export.msgpack", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))
	var snap storage.Snapshot
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, workspace.DefaultProjectName, snap.ProjectName)
	assert.Contains(t, string(snap.Document), "LED1")

	rec = s.do(t, http.MethodPost, "/api/project/autosave", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/project/new", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/project/recover", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodGet, "/api/project", "")
	assert.Contains(t, rec.Body.String(), "LED1")
}

func TestSettingsAndTranslate(t *testing.T) {
	s := newTestServer(t, false)

	rec := s.do(t, http.MethodPut, "/api/settings", `{"rpi_model_index":6,"rpi_host":"pi.local","language":"cs"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var saved models.AppSettings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, "cs", saved.Language)
	assert.Equal(t, 6, saved.RPIModelIndex)

	rec = s.do(t, http.MethodGet, "/api/settings", "")
	assert.Contains(t, rec.Body.String(), `"pi.local"`)

	rec = s.do(t, http.MethodGet, "/api/languages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"cs"`)
	assert.Contains(t, rec.Body.String(), `"code":"en"`)

	// Missing in Czech: falls back to English.
	rec = s.do(t, http.MethodGet, "/api/translate?key=menu.help", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"text":"menu.help"`)

	rec = s.do(t, http.MethodGet, "/api/translate?key=no.such.key", "")
	assert.Contains(t, rec.Body.String(), `"text":"no.such.key"`)

	rec = s.do(t, http.MethodGet, "/api/translate", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunAndHistory(t *testing.T) {
	s := newTestServer(t, true)
	s.blink(t)
	rec := s.do(t, http.MethodPut, "/api/settings", `{"rpi_model_index":6,"rpi_host":"pi.local","rpi_user":"pi","rpi_password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	s.mock.Program = testutil.Script{
		Chunks: []string{"blinking\n", `__REPORT__{"variables":{},"devices":{"LED1":{"state":0}}}` + "\n"},
	}

	rec = s.do(t, http.MethodPost, "/api/run", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var info models.RunInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.True(t, s.manager.Wait(info.ID, 10*time.Second))

	rec = s.do(t, http.MethodGet, "/api/runs/"+info.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.RunInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.RunStatusComplete, got.Status)
	require.NotNil(t, got.Telemetry)
	assert.Equal(t, 0, got.Telemetry.Devices["LED1"].State)

	rec = s.do(t, http.MethodGet, "/api/runs", "")
	assert.Contains(t, rec.Body.String(), info.ID)
	rec = s.do(t, http.MethodPost, "/api/runs/"+info.ID+"/keepalive", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/runs/unknown/keepalive", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/run/stop", "")
	assert.JSONEq(t, `{"stopped":false}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/history/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), info.ID)

	rec = s.do(t, http.MethodGet, "/api/history/runs/"+info.ID+"/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []models.RunEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.NotEmpty(t, events)
	assert.Equal(t, models.RunEventCompleted, events[len(events)-1].Type)

	rec = s.do(t, http.MethodGet, "/api/history/runs/"+info.ID+"/telemetry", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"LED1"`)

	rec = s.do(t, http.MethodPost, "/api/history/cleanup?days=1", "")
	assert.JSONEq(t, `{"deleted":0}`, rec.Body.String())
}

func TestHistoryDisabled(t *testing.T) {
	s := newTestServer(t, false)
	rec := s.do(t, http.MethodGet, "/api/history/runs", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, rec).Code)
}
