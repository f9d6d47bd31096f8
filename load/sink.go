package load

import (
	"context"
	"time"
)

const (
	EventTestStarted  = "test_started"
	EventTestFinished = "test_finished"
	EventTask         = "task"
)

type Event struct {
	Type       string    `json:"type"`
	TestId     string    `json:"testId"`
	TestName   string    `json:"testName"`
	Scenario   string    `json:"scenario,omitempty"`
	User       int       `json:"user,omitempty"`
	Task       string    `json:"task,omitempty"`
	Success    bool      `json:"success"`
	DurationMs int64     `json:"durationMs,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// ResultSink receives test and task events. Publish is called from many user goroutines.
type ResultSink interface {
	Publish(ctx context.Context, event Event) error
}

type discardSink struct{}

func (discardSink) Publish(context.Context, Event) error {
	return nil
}
