package kafkah

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const (
	defaultTopic   = "moodle-load-results"
	defaultGroupId = "moodle-load-events"
)

type Config struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupId string   `mapstructure:"group-id"`
	// task events are sent only when enabled, test events always are
	PublishTasks bool `mapstructure:"publish-tasks"`
}

func (cfg Config) Enabled() bool {
	return len(cfg.Brokers) > 0
}

func (cfg Config) topic() string {
	if cfg.Topic == "" {
		return defaultTopic
	}
	return cfg.Topic
}

func (cfg Config) groupId() string {
	if cfg.GroupId == "" {
		return defaultGroupId
	}
	return cfg.GroupId
}

var headers = []kafka.Header{{Key: "producer", Value: []byte("moodle-load")}, {Key: "content-type", Value: []byte("application/json")}}

var errorLogger = kafka.LoggerFunc(func(msg string, args ...interface{}) {
	log.Error().Str("component", "kafka").Msg(fmt.Sprintf(msg, args...))
})
