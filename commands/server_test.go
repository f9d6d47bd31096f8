package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp/syntax"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledokol-inc/moodle-load/load"
	"github.com/ledokol-inc/moodle-load/load/variables"
	"github.com/ledokol-inc/moodle-load/store"
)

type idleBehavior struct{}

func (idleBehavior) OnStart(context.Context) {}

func (idleBehavior) Tasks() []load.Task {
	return []load.Task{{Name: "idle", Weight: 1, Run: func(context.Context) error { return nil }}}
}

func init() {
	gin.SetMode(gin.TestMode)
	load.RegisterBehavior("idle", func(load.UserContext) (load.Behavior, error) {
		return idleBehavior{}, nil
	})
}

const shortTest = `{
  "Name": "short",
  "Scenarios": [{
    "Name": "idle-users",
    "Behavior": "idle",
    "WaitMin": 0.01,
    "WaitMax": 0.02,
    "Steps": [
      {"Action": "start", "TotalUsersCount": 2, "CountUsersByPeriod": 2},
      {"Action": "duration", "Period": 0.1}
    ]
  }],
  "Variables": [{"Name": "search", "generationRegex": "[a-z]{4}"}]
}`

func newTestServer(t *testing.T) (*controlServer, *gin.Engine) {
	t.Helper()
	server := newControlServer(store.NewFileStore(t.TempDir()), nil, nil)
	return server, server.router()
}

func request(t *testing.T, router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func runBody(t *testing.T, test string, options map[string]interface{}) []byte {
	t.Helper()
	var testData map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(test), &testData))
	body, err := json.Marshal(map[string]interface{}{"test": testData, "options": options})
	require.NoError(t, err)
	return body
}

func TestRunRecordsHistory(t *testing.T) {
	server, router := newTestServer(t)

	w := request(t, router, http.MethodPost, "/run", runBody(t, shortTest, map[string]interface{}{"TotalDuration": 5}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var started struct {
		Id string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	require.NotEmpty(t, started.Id)

	server.finished.Wait()

	w = request(t, router, http.MethodGet, "/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var runs []store.TestQuery
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, started.Id, runs[0].Id)
	assert.Equal(t, "short", runs[0].Name)

	w = request(t, router, http.MethodGet, "/history/"+started.Id, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(t, router, http.MethodGet, "/running", nil)
	assert.JSONEq(t, `{"running": []}`, w.Body.String())
}

func TestRunUnknownBehavior(t *testing.T) {
	_, router := newTestServer(t)
	test := `{"Name": "bad", "Scenarios": [{"Name": "x", "Behavior": "nobody", "Steps": []}]}`

	w := request(t, router, http.MethodPost, "/run", runBody(t, test, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown behavior")
}

func TestRunFromCatalog(t *testing.T) {
	server, router := newTestServer(t)

	w := request(t, router, http.MethodPost, "/run", []byte(`{"name": "short"}`))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = request(t, router, http.MethodPut, "/catalog/short", []byte(shortTest))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = request(t, router, http.MethodGet, "/catalog", nil)
	assert.JSONEq(t, `["short"]`, w.Body.String())

	w = request(t, router, http.MethodPost, "/run", []byte(`{"name": "short"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	server.finished.Wait()
}

func TestRunNeedsTestOrName(t *testing.T) {
	_, router := newTestServer(t)
	w := request(t, router, http.MethodPost, "/run", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStopTest(t *testing.T) {
	server, router := newTestServer(t)

	w := request(t, router, http.MethodPost, "/unknown/stop", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	long := `{"Name": "long", "Scenarios": [{"Name": "idle-users", "Behavior": "idle", "WaitMin": 0.01, "WaitMax": 0.02,
  "Steps": [{"Action": "start", "TotalUsersCount": 1}, {"Action": "duration", "Period": 600}]}]}`
	w = request(t, router, http.MethodPost, "/run", runBody(t, long, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var started struct {
		Id string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))

	w = request(t, router, http.MethodPost, "/"+started.Id+"/stop", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	server.finished.Wait()

	w = request(t, router, http.MethodPost, "/"+started.Id+"/stop", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	_, router := newTestServer(t)
	assert.Equal(t, http.StatusOK, request(t, router, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, request(t, router, http.MethodGet, "/metrics", nil).Code)
	assert.Equal(t, http.StatusNotFound, request(t, router, http.MethodGet, "/history/missing", nil).Code)
}

func TestDecodeRegexpHooks(t *testing.T) {
	var variable variables.Variable
	err := decode(map[string]interface{}{"Name": "search", "generationRegex": "[0-9]{2}"}, &variable)
	require.NoError(t, err)
	assert.Equal(t, "search", variable.Name)
	require.NotNil(t, variable.GenerationRegex)
	assert.Equal(t, syntax.OpRepeat, variable.GenerationRegex.Op)

	err = decode(map[string]interface{}{"Name": "search", "generationRegex": "("}, &variable)
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: warn
moodle:
  base-url: https://moodle.example
  timeout: 5s
  users:
    - username: alumno
      password: secreto
seed:
  num-students: 3
search:
  pattern: "tema[0-9]"
store:
  type: bolt
  path: data.db
`), 0600))

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://moodle.example", cfg.Moodle.BaseUrl)
	assert.Equal(t, "TOKEN_VALUE", cfg.Moodle.Token)
	assert.Equal(t, 5.0, cfg.Moodle.Timeout.Seconds())
	require.Len(t, cfg.Moodle.Users, 1)
	assert.Equal(t, "alumno", cfg.Moodle.Users[0].Username)
	assert.Equal(t, 3, cfg.Seed.NumStudents)
	assert.Equal(t, 5, cfg.Seed.NumTeachers)
	assert.Len(t, cfg.Seed.Courses, 5)
	assert.Equal(t, portDefault, cfg.Server.HttpPort)

	userCfg, err := cfg.userConfig()
	require.NoError(t, err)
	assert.NotNil(t, userCfg.SearchPattern)

	testStore, err := cfg.newStore()
	require.NoError(t, err)
	assert.IsType(t, &store.BoltStore{}, testStore)
}
