package kafkah

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/ledokol-inc/moodle-load/load"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ResultPublisher sends test and task events to a kafka topic, keyed by test id.
// Writes are asynchronous, a slow broker never blocks a virtual user.
type ResultPublisher struct {
	producer     messageWriter
	publishTasks bool
}

func NewPublisher(cfg Config) *ResultPublisher {
	return &ResultPublisher{producer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.topic(),
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 100 * time.Millisecond,
		ErrorLogger:  errorLogger,
	}, publishTasks: cfg.PublishTasks}
}

func (publisher *ResultPublisher) Publish(ctx context.Context, event load.Event) error {
	if event.Type == load.EventTask && !publisher.publishTasks {
		return nil
	}
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return publisher.producer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(event.TestId),
		Value:   value,
		Headers: headers,
	})
}

func (publisher *ResultPublisher) Close() {
	if err := publisher.producer.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close kafka writer")
	}
}

var _ load.ResultSink = (*ResultPublisher)(nil)
