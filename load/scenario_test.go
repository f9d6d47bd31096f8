package load

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBehavior struct {
	started *int64
	runs    *int64
}

func (b *countingBehavior) OnStart(context.Context) {
	atomic.AddInt64(b.started, 1)
}

func (b *countingBehavior) Tasks() []Task {
	return []Task{{Name: "count", Weight: 1, Tags: []string{"count"}, Run: func(context.Context) error {
		atomic.AddInt64(b.runs, 1)
		return nil
	}}}
}

type counters struct {
	started int64
	runs    int64
}

func registerCounting(name string) *counters {
	c := &counters{}
	RegisterBehavior(name, func(UserContext) (Behavior, error) {
		return &countingBehavior{started: &c.started, runs: &c.runs}, nil
	})
	return c
}

type recordingSink struct {
	lock   sync.Mutex
	events []Event
}

func (sink *recordingSink) Publish(_ context.Context, event Event) error {
	sink.lock.Lock()
	defer sink.lock.Unlock()
	sink.events = append(sink.events, event)
	return nil
}

func (sink *recordingSink) ofType(eventType string) []Event {
	sink.lock.Lock()
	defer sink.lock.Unlock()
	var result []Event
	for _, event := range sink.events {
		if event.Type == eventType {
			result = append(result, event)
		}
	}
	return result
}

func TestPrepareScenarioTruncatesSteps(t *testing.T) {
	registerCounting("prepare")
	scenario := &Scenario{
		Name:     "ramp",
		Behavior: "prepare",
		Steps: []*Step{
			{Action: ActionStart, TotalUsersCount: 10, CountUsersByPeriod: 2, Period: 10},
			{Action: ActionDuration, Period: 60},
			{Action: ActionStop, TotalUsersCount: 10, Period: 10},
		},
	}

	require.NoError(t, scenario.PrepareScenario(30, nil))
	require.Len(t, scenario.Steps, 2)
	assert.Equal(t, 20.0, scenario.Steps[1].Period)
	assert.Equal(t, defaultWaitMin, scenario.WaitMin)
	assert.Equal(t, defaultWaitMax, scenario.WaitMax)
}

func TestPrepareScenarioDefaultsBatchToTotal(t *testing.T) {
	registerCounting("prepare")
	scenario := &Scenario{
		Name:     "all-at-once",
		Behavior: "prepare",
		Steps:    []*Step{{Action: ActionStart, TotalUsersCount: 4}},
	}
	require.NoError(t, scenario.PrepareScenario(0, nil))
	assert.Equal(t, 4, scenario.Steps[0].CountUsersByPeriod)
}

func TestPrepareScenarioErrors(t *testing.T) {
	registerCounting("prepare")

	err := (&Scenario{Name: "x", Behavior: "missing"}).PrepareScenario(0, nil)
	assert.ErrorContains(t, err, "unknown behavior")

	err = (&Scenario{Name: "x", Behavior: "prepare", Steps: []*Step{{Action: "jump"}}}).PrepareScenario(0, nil)
	assert.ErrorContains(t, err, "unknown step action")

	err = (&Scenario{Name: "x", Behavior: "prepare", WaitMin: 3, WaitMax: 1}).PrepareScenario(0, nil)
	assert.ErrorContains(t, err, "invalid wait time")
}

func TestBatchSize(t *testing.T) {
	assert.Equal(t, 3, batchSize(0, 10, 3))
	assert.Equal(t, 1, batchSize(9, 10, 3))
}

func TestWaitTimeWithinBounds(t *testing.T) {
	scenario := &Scenario{WaitMin: 1, WaitMax: 2}
	rnd := rand.New(rand.NewSource(3))
	for i := 0; i < 100; i++ {
		wait := scenario.waitTime(rnd)
		assert.GreaterOrEqual(t, wait, time.Second)
		assert.LessOrEqual(t, wait, 2*time.Second)
	}
}

func TestStopUsersContinually(t *testing.T) {
	c := registerCounting("stoppable")
	scenario := &Scenario{
		Name:     "stop",
		Behavior: "stoppable",
		WaitMin:  0.01,
		WaitMax:  0.02,
		Steps: []*Step{
			{Action: ActionStart, TotalUsersCount: 3, CountUsersByPeriod: 3},
			{Action: ActionDuration, Period: 0.1},
			// more than running, capped to the running users
			{Action: ActionStop, TotalUsersCount: 5, CountUsersByPeriod: 5},
		},
	}
	require.NoError(t, scenario.PrepareScenario(0, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	scenario.Run(ctx, "stop-test")

	done := make(chan struct{})
	go func() {
		scenario.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("users did not stop")
	}
	assert.Equal(t, int64(3), atomic.LoadInt64(&c.started))
	assert.Equal(t, int64(0), atomic.LoadInt64(scenario.running))
}
