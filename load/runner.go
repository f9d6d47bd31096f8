package load

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ledokol-inc/moodle-load/load/variables"
)

func (scenario *Scenario) PrepareScenario(totalDuration float64, vars map[string]*variables.Variable) error {
	factory, err := findBehavior(scenario.Behavior)
	if err != nil {
		return fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	scenario.factory = factory

	if totalDuration > 0 {
		sumTimeBefore := 0.0
		for i := 0; i < len(scenario.Steps); i++ {
			if sumTimeBefore+scenario.Steps[i].Period > totalDuration {
				scenario.Steps[i].Period = totalDuration - sumTimeBefore
				scenario.Steps = scenario.Steps[:i+1]
				break
			}
			sumTimeBefore += scenario.Steps[i].Period
		}
	}

	for _, step := range scenario.Steps {
		switch step.Action {
		case ActionStart, ActionStop:
			if step.CountUsersByPeriod <= 0 {
				step.CountUsersByPeriod = step.TotalUsersCount
			}
		case ActionDuration:
		default:
			return fmt.Errorf("scenario %s: unknown step action %q", scenario.Name, step.Action)
		}
	}

	if scenario.WaitMin == 0 && scenario.WaitMax == 0 {
		scenario.WaitMin, scenario.WaitMax = defaultWaitMin, defaultWaitMax
	}
	if scenario.WaitMin < 0 || scenario.WaitMax < scenario.WaitMin {
		return fmt.Errorf("scenario %s: invalid wait time [%v, %v]", scenario.Name, scenario.WaitMin, scenario.WaitMax)
	}

	if scenario.sink == nil {
		scenario.sink = discardSink{}
	}
	scenario.variables = vars
	scenario.stopUserChannel = make(chan bool)
	scenario.users = &sync.WaitGroup{}
	scenario.userCounter = new(int64)
	scenario.running = new(int64)
	return nil
}

func (scenario *Scenario) Run(ctx context.Context, testName string) {
	for _, step := range scenario.Steps {
		if ctx.Err() != nil {
			return
		}
		period := time.Duration(step.Period * float64(time.Second))
		switch step.Action {
		case ActionStart:
			scenario.StartUsersContinually(ctx, step.TotalUsersCount, step.CountUsersByPeriod, period, testName)
		case ActionDuration:
			sleep(ctx, period)
		case ActionStop:
			scenario.StopUsersContinually(ctx, step.TotalUsersCount, step.CountUsersByPeriod, period)
		}
	}
}

// Wait blocks until every user of the scenario has returned.
func (scenario *Scenario) Wait() {
	scenario.users.Wait()
}

func (scenario *Scenario) StartUsers(ctx context.Context, count int, testName string) {
	for i := 0; i < count; i++ {
		scenario.users.Add(1)
		go scenario.StartUser(ctx, testName)
	}
}

func (scenario *Scenario) StartUsersContinually(ctx context.Context, totalCount int, countByPeriod int, period time.Duration, testName string) {
	for i := 0; i < totalCount; i += countByPeriod {
		scenario.StartUsers(ctx, batchSize(i, totalCount, countByPeriod), testName)
		if !sleep(ctx, period) {
			return
		}
	}
}

func (scenario *Scenario) StopUsersContinually(ctx context.Context, totalCount int, countByPeriod int, period time.Duration) {
	for i := 0; i < totalCount; i += countByPeriod {
		count := batchSize(i, totalCount, countByPeriod)
		if running := int(atomic.LoadInt64(scenario.running)); count > running {
			count = running
		}
		for j := 0; j < count; j++ {
			select {
			case scenario.stopUserChannel <- true:
			case <-ctx.Done():
				return
			}
		}
		if !sleep(ctx, period) {
			return
		}
	}
}

func (scenario *Scenario) StartUser(ctx context.Context, testName string) {
	defer scenario.users.Done()

	index := int(atomic.AddInt64(scenario.userCounter, 1))
	rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(index)))
	userLogger := log.With().Str("test", testName).Str("scenario", scenario.Name).Int("user", index).Logger()
	ctx = userLogger.WithContext(ctx)

	behavior, err := scenario.factory(UserContext{
		TestName:     testName,
		ScenarioName: scenario.Name,
		Index:        index,
		Rand:         rnd,
		Variables:    scenario.variables,
	})
	if err != nil {
		userLogger.Error().Err(err).Msg("Failed to create simulated user")
		return
	}

	atomic.AddInt64(scenario.running, 1)
	defer atomic.AddInt64(scenario.running, -1)
	usersCountMetric.WithLabelValues(testName, scenario.Name).Inc()
	defer usersCountMetric.WithLabelValues(testName, scenario.Name).Dec()

	behavior.OnStart(ctx)
	picker := newTaskPicker(behavior.Tasks(), scenario.Tags, scenario.ExcludeTags)
	if picker.totalWeight == 0 {
		userLogger.Warn().Msg("No task left after tag filtering, user is idle")
	}

	for {
		if task, ok := picker.pick(rnd); ok {
			scenario.runTask(ctx, testName, index, task)
		}
		select {
		case <-scenario.stopUserChannel:
			userLogger.Debug().Msg("User stopped")
			return
		case <-ctx.Done():
			return
		case <-time.After(scenario.waitTime(rnd)):
		}
	}
}

func (scenario *Scenario) runTask(ctx context.Context, testName string, user int, task Task) {
	logger := log.Ctx(ctx)
	startTime := time.Now()
	err := task.Run(ctx)
	elapsed := time.Since(startTime)

	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// the test is being stopped
		return
	}

	event := Event{
		Type:       EventTask,
		TestId:     scenario.testId,
		TestName:   testName,
		Scenario:   scenario.Name,
		User:       user,
		Task:       task.Name,
		DurationMs: elapsed.Milliseconds(),
		Time:       startTime,
	}
	if err != nil {
		failedTaskCountMetric.WithLabelValues(testName, scenario.Name, task.Name).Inc()
		logger.Error().Err(err).Str("task", task.Name).Msg("Task failed")
		event.Error = err.Error()
	} else {
		successTaskDurationMetric.WithLabelValues(testName, scenario.Name, task.Name).Observe(elapsed.Seconds())
		logger.Debug().Str("task", task.Name).Dur("duration", elapsed).Msg("Task finished")
		event.Success = true
	}

	if err := scenario.sink.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish task result")
	}
}

func batchSize(started, totalCount, countByPeriod int) int {
	if started+countByPeriod > totalCount {
		return totalCount - started
	}
	return countByPeriod
}

// sleep returns false when the context ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
