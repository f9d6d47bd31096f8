package kafkah

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/ledokol-inc/moodle-load/load"
)

// ResultConsumer reads the result events published by generators.
type ResultConsumer struct {
	consumer *kafka.Reader
}

func NewConsumer(cfg Config) *ResultConsumer {
	return &ResultConsumer{consumer: kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.groupId(),
		Topic:       cfg.topic(),
		ErrorLogger: errorLogger,
	})}
}

// ProcessConsume calls handle for every event until ctx is done. Malformed messages are skipped.
func (consumerWrapper *ResultConsumer) ProcessConsume(ctx context.Context, handle func(load.Event)) error {
	for {
		message, err := consumerWrapper.consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		var event load.Event
		if err := json.Unmarshal(message.Value, &event); err != nil {
			log.Warn().Err(err).Int64("offset", message.Offset).Msg("Skipping malformed event")
			continue
		}
		handle(event)
	}
}

func (consumerWrapper *ResultConsumer) Close() {
	if err := consumerWrapper.consumer.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close kafka reader")
	}
}
