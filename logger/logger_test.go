package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	Setup(Config{Level: "warn", File: filepath.Join(t.TempDir(), "test.log")})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	assert.Same(t, &log.Logger, zerolog.DefaultContextLogger)

	Setup(Config{Level: "nonsense"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestAccessLogLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var out bytes.Buffer
	previous := log.Logger
	log.Logger = zerolog.New(&out)
	defer func() { log.Logger = previous }()

	router := gin.New()
	router.Use(Logger())
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	router.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	router.POST("/:id/stop", func(c *gin.Context) { c.Status(http.StatusOK) })

	levels := map[string]string{"/ok?x=1": "info", "/bad": "warn", "/fail": "error"}
	for path, level := range levels {
		out.Reset()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(RequestIdHeader, "req-1")
		router.ServeHTTP(httptest.NewRecorder(), req)

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(out.Bytes(), &entry), path)
		assert.Equal(t, level, entry["level"], path)
		assert.Equal(t, path, entry["path"])
		assert.Equal(t, "req-1", entry["requestId"])
	}

	out.Reset()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/abc/stop", nil))
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, "abc", entry["testId"])
	assert.NotContains(t, entry, "requestId")
}
