package load

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var usersCountMetric = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "runner_users_running", Help: "Number of simulated users currently running"},
	[]string{"test_name", "scenario_name"})
var successTaskDurationMetric = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "runner_task_success_duration_seconds", Help: "Duration of successful user tasks"},
	[]string{"test_name", "scenario_name", "task_name"})
var failedTaskCountMetric = promauto.NewCounterVec(prometheus.CounterOpts{Name: "runner_task_failed_count_total", Help: "Number of failed user tasks"},
	[]string{"test_name", "scenario_name", "task_name"})
var successRequestDurationMetric = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "runner_request_success_duration_seconds", Help: "Duration of successful http requests"},
	[]string{"test_name", "scenario_name", "request_name", "method"})
var failedRequestCountMetric = promauto.NewCounterVec(prometheus.CounterOpts{Name: "runner_request_failed_count_total", Help: "Number of failed http requests"},
	[]string{"test_name", "scenario_name", "request_name", "method", "no_response"})
