package discovery

import (
	"encoding/json"
	"fmt"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/rs/zerolog/log"
)

const (
	serviceName       = "moodle-load"
	finishedKeyPrefix = "moodle-load/finished/"
)

type Config struct {
	Address  string `mapstructure:"address"`
	Hostname string `mapstructure:"hostname"`
	Port     int    `mapstructure:"port"`
}

// Service is this generator registered as a consul service with an http health check.
type Service struct {
	client    *consulapi.Client
	serviceID string
}

type FinishedTest struct {
	TestId    string `json:"testId"`
	TestName  string `json:"testName"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
	Service   string `json:"service"`
}

func RegisterInConsul(cfg Config) (*Service, error) {
	config := consulapi.DefaultConfig()
	if cfg.Address != "" {
		config.Address = cfg.Address
	}
	consul, err := consulapi.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}

	address := cfg.Hostname
	serviceID := fmt.Sprintf("%s-%s-%d", serviceName, address, cfg.Port)

	registration := &consulapi.AgentServiceRegistration{
		ID:   serviceID,
		Name: serviceName,
		Port: cfg.Port,
		Check: &consulapi.AgentServiceCheck{
			HTTP:     fmt.Sprintf("http://%s:%d/health", address, cfg.Port),
			Interval: "15s",
			Timeout:  "20s",
		},
		Tags: []string{"prometheus_monitoring_endpoint=/metrics"},
	}

	if address != "" {
		registration.Address = address
	}

	if err := consul.Agent().ServiceRegister(registration); err != nil {
		return nil, fmt.Errorf("failed to register service %s:%v: %w", address, cfg.Port, err)
	}
	log.Info().Msgf("Successfully register service: %s:%v", address, cfg.Port)
	return &Service{client: consul, serviceID: serviceID}, nil
}

func (service *Service) DeregisterInConsul() {
	if err := service.client.Agent().ServiceDeregister(service.serviceID); err != nil {
		log.Error().Err(err).Str("service", service.serviceID).Msg("Failed to deregister service")
		return
	}
	log.Info().Str("service", service.serviceID).Msg("Service deregistered")
}

// SendEndTestRequestToMain records a finished run in the consul kv store for whoever orchestrates the generators.
func (service *Service) SendEndTestRequestToMain(testId string, testName string, startTime int64, endTime int64) {
	value, err := json.Marshal(FinishedTest{
		TestId:    testId,
		TestName:  testName,
		StartTime: startTime,
		EndTime:   endTime,
		Service:   service.serviceID,
	})
	if err != nil {
		log.Error().Err(err).Str("test", testId).Msg("Failed to encode finished test")
		return
	}
	pair := &consulapi.KVPair{Key: FinishedKey(testId), Value: value}
	if _, err := service.client.KV().Put(pair, nil); err != nil {
		log.Error().Err(err).Str("test", testId).Msg("Failed to report finished test")
		return
	}
	log.Info().Str("test", testId).Time("end", time.Unix(endTime, 0)).Msg("Finished test reported")
}

func FinishedKey(testId string) string {
	return finishedKeyPrefix + testId
}
