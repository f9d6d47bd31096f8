package commands

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"regexp"
	"regexp/syntax"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/mitchellh/mapstructure"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/ledokol-inc/moodle-load/discovery"
	"github.com/ledokol-inc/moodle-load/load"
	"github.com/ledokol-inc/moodle-load/logger"
	"github.com/ledokol-inc/moodle-load/store"
)

// controlServer starts and stops tests on request and remembers the finished ones.
type controlServer struct {
	store   store.Store
	service *discovery.Service
	sink    load.ResultSink

	lock         sync.Mutex
	runningTests map[string]*load.Test
	finished     sync.WaitGroup
}

func newControlServer(testStore store.Store, service *discovery.Service, sink load.ResultSink) *controlServer {
	return &controlServer{
		store:        testStore,
		service:      service,
		sink:         sink,
		runningTests: make(map[string]*load.Test),
	}
}

type runRequest struct {
	// catalog name, used when Test is empty
	Name    string                 `json:"name"`
	Test    map[string]interface{} `json:"test"`
	Options map[string]interface{} `json:"options"`
}

func (server *controlServer) router() *gin.Engine {
	router := gin.New()
	router.Use(logger.Logger(), gin.Recovery())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Consul check"})
	})
	router.POST("/run", server.handleRun)
	router.POST("/:id/stop", server.handleStop)
	router.GET("/running", server.handleRunning)
	router.GET("/history", server.handleHistory)
	router.GET("/history/:id", server.handleHistoryRun)
	router.GET("/catalog", server.handleCatalog)
	router.PUT("/catalog/:name", server.handleCatalogInsert)
	return router
}

func (server *controlServer) handleRun(c *gin.Context) {
	var request runRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	test, err := server.resolveTest(request)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	var options load.TestOptions
	if err := decode(request.Options, &options); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	test.SetOptions(&options)

	if err := server.runTest(test); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Test started", "id": test.Id})
}

func (server *controlServer) resolveTest(request runRequest) (*load.Test, error) {
	if request.Test == nil {
		if request.Name == "" {
			return nil, badRequest(errors.New("either test or name is required"))
		}
		return server.store.FindTest(request.Name)
	}
	test := new(load.Test)
	if err := decode(request.Test, test); err != nil {
		return nil, badRequest(err)
	}
	return test, nil
}

func (server *controlServer) handleStop(c *gin.Context) {
	if server.stopTest(c.Param("id")) {
		c.JSON(http.StatusOK, gin.H{"message": "Test stop requested"})
	} else {
		c.JSON(http.StatusNotFound, gin.H{"error": "No running test with this id"})
	}
}

func (server *controlServer) handleRunning(c *gin.Context) {
	server.lock.Lock()
	ids := make([]string, 0, len(server.runningTests))
	for id := range server.runningTests {
		ids = append(ids, id)
	}
	server.lock.Unlock()
	sort.Strings(ids)
	c.JSON(http.StatusOK, gin.H{"running": ids})
}

func (server *controlServer) handleHistory(c *gin.Context) {
	tests, err := server.store.FindAllTestsFromHistory()
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, tests)
}

func (server *controlServer) handleHistoryRun(c *gin.Context) {
	start, end, err := server.store.FindTestTimeFromHistory(c.Param("id"))
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":        c.Param("id"),
		"startTime": start.Format(load.TimeFormat),
		"endTime":   end.Format(load.TimeFormat),
	})
}

func (server *controlServer) handleCatalog(c *gin.Context) {
	names, err := server.store.FindAllTestsFromCatalog()
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, names)
}

func (server *controlServer) handleCatalogInsert(c *gin.Context) {
	description, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := server.store.InsertTestInCatalog(c.Param("name"), description); err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Test saved"})
}

// runTest registers the test before starting it, so a stop request can never miss it.
func (server *controlServer) runTest(test *load.Test) error {
	if server.sink != nil {
		test.SetSink(server.sink)
	}
	if err := test.PrepareTest(); err != nil {
		return err
	}

	server.lock.Lock()
	if _, exists := server.runningTests[test.Id]; exists {
		server.lock.Unlock()
		return fmt.Errorf("test %s is already running", test.Id)
	}
	server.runningTests[test.Id] = test
	server.lock.Unlock()

	server.finished.Add(1)
	go func() {
		defer server.finished.Done()
		start, end := test.Run()

		server.lock.Lock()
		delete(server.runningTests, test.Id)
		server.lock.Unlock()

		if err := server.store.InsertTest(test.Id, test.Name, start, end); err != nil {
			log.Error().Err(err).Str("test", test.Id).Msg("Failed to save the run in history")
		}
		if server.service != nil {
			server.service.SendEndTestRequestToMain(test.Id, test.Name, start, end)
		}
	}()
	return nil
}

func (server *controlServer) stopTest(testId string) bool {
	server.lock.Lock()
	test, exist := server.runningTests[testId]
	server.lock.Unlock()
	if !exist {
		return false
	}
	test.Stop()
	return true
}

// stopAll stops every running test and waits until their runs are recorded.
func (server *controlServer) stopAll() {
	server.lock.Lock()
	for _, test := range server.runningTests {
		test.Stop()
	}
	server.lock.Unlock()
	server.finished.Wait()
}

type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string {
	return e.err.Error()
}

func badRequest(err error) error {
	return &badRequestError{err}
}

func statusOf(err error) int {
	var notFound *store.NotFoundError
	var invalid *badRequestError
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(input interface{}, result interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: result,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			unmarshalSyntaxRegexp,
			unmarshalStandardRegexp,
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

func unmarshalSyntaxRegexp(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(&syntax.Regexp{}) {
		return data, nil
	}

	regexString, ok := data.(string)
	if !ok {
		return nil, fmt.Errorf("can't read regex string from %v", data)
	}

	return syntax.Parse(regexString, syntax.Perl)
}

func unmarshalStandardRegexp(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(&regexp.Regexp{}) {
		return data, nil
	}

	regexString, ok := data.(string)
	if !ok {
		return nil, fmt.Errorf("can't read regex string from %v", data)
	}

	return regexp.Compile(regexString)
}
