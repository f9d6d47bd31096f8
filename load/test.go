package load

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ledokol-inc/moodle-load/load/variables"
)

const TimeFormat = "2006-01-02 15:04:05"

const testIdLength = 9

type TestOptions struct {
	// seconds, zero runs until every step is done
	TotalDuration float64
	Tags          []string
	ExcludeTags   []string
}

type Test struct {
	Id        string
	Name      string
	Scenarios []*Scenario
	Variables []*variables.Variable

	options *TestOptions
	sink    ResultSink
	lock    sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

func (test *Test) SetOptions(options *TestOptions) {
	test.options = options
}

func (test *Test) SetSink(sink ResultSink) {
	test.sink = sink
}

func (test *Test) PrepareTest() error {
	if test.Id == "" {
		id, err := randomId(testIdLength)
		if err != nil {
			return err
		}
		test.Id = id
	}
	if test.Name == "" {
		test.Name = test.Id
	}
	if len(test.Scenarios) == 0 {
		return errors.New("test has no scenarios")
	}
	if test.options == nil {
		test.options = &TestOptions{}
	}
	if test.sink == nil {
		test.sink = discardSink{}
	}

	vars := make(map[string]*variables.Variable, len(test.Variables))
	for _, variable := range test.Variables {
		if variable.Name == "" || variable.GenerationRegex == nil {
			return fmt.Errorf("variable %q has no name or generation regex", variable.Name)
		}
		vars[variable.Name] = variable
	}

	for _, scenario := range test.Scenarios {
		if len(scenario.Tags) == 0 {
			scenario.Tags = test.options.Tags
		}
		if len(scenario.ExcludeTags) == 0 {
			scenario.ExcludeTags = test.options.ExcludeTags
		}
		scenario.sink = test.sink
		scenario.testId = test.Id
		if err := scenario.PrepareScenario(test.options.TotalDuration, vars); err != nil {
			return err
		}
	}
	return nil
}

// Run blocks until every scenario finished its steps, the total duration passed or Stop was called.
// Users still running at that point are stopped.
func (test *Test) Run() (int64, int64) {
	var ctx context.Context
	var cancel context.CancelFunc
	if test.options != nil && test.options.TotalDuration > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), time.Duration(test.options.TotalDuration*float64(time.Second)))
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	defer cancel()

	test.lock.Lock()
	test.cancel = cancel
	if test.stopped {
		cancel()
	}
	test.lock.Unlock()

	startTime := time.Now()
	log.Info().Str("test", test.Name).Str("id", test.Id).Msg("Test started")
	test.publish(EventTestStarted, startTime)

	wg := sync.WaitGroup{}
	for _, scenario := range test.Scenarios {
		wg.Add(1)
		go func(scenario *Scenario) {
			defer wg.Done()
			scenario.Run(ctx, test.Name)
		}(scenario)
	}
	wg.Wait()

	cancel()
	for _, scenario := range test.Scenarios {
		scenario.Wait()
	}

	endTime := time.Now()
	log.Info().Str("test", test.Name).Str("id", test.Id).Dur("duration", endTime.Sub(startTime)).Msg("Test finished")
	test.publish(EventTestFinished, endTime)
	return startTime.Unix(), endTime.Unix()
}

func (test *Test) Stop() {
	test.lock.Lock()
	defer test.lock.Unlock()
	test.stopped = true
	if test.cancel != nil {
		test.cancel()
	}
}

func (test *Test) publish(eventType string, at time.Time) {
	err := test.sink.Publish(context.Background(), Event{
		Type:     eventType,
		TestId:   test.Id,
		TestName: test.Name,
		Success:  true,
		Time:     at,
	})
	if err != nil {
		log.Warn().Err(err).Str("test", test.Name).Msg("Failed to publish test event")
	}
}
