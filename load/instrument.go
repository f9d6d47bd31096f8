package load

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/url"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	requestIdLength = 15
	requestIdHeader = "X-Request-Id"
	maxLoggedBody   = 2048
)

// InstrumentClient makes every request of a simulated user's client visible in metrics and logs.
// The request context is expected to carry the user's logger.
func InstrumentClient(client *resty.Client, testName string, scenarioName string) {
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		requestId, err := randomId(requestIdLength)
		if err != nil {
			log.Ctx(req.Context()).Warn().Err(err).Msg("Failed to generate request ID")
			return nil
		}
		req.SetHeader(requestIdHeader, requestId)
		log.Ctx(req.Context()).Debug().Str("request", RequestName(req)).
			Str("method", req.Method).Str("requestId", requestId).Msg("Sending request")
		return nil
	})

	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		req := res.Request
		name := RequestName(req)
		logger := log.Ctx(req.Context())
		if res.StatusCode() >= 300 {
			failedRequestCountMetric.WithLabelValues(testName, scenarioName, name, req.Method, "false").Inc()
			logger.Error().Str("request", name).Str("method", req.Method).
				Int("status", res.StatusCode()).Str("requestId", req.Header.Get(requestIdHeader)).
				Str("body", truncate(res.String(), maxLoggedBody)).Msg("Received error response")
			return nil
		}
		successRequestDurationMetric.WithLabelValues(testName, scenarioName, name, req.Method).Observe(res.Time().Seconds())
		logger.Debug().Str("request", name).Str("method", req.Method).
			Int("status", res.StatusCode()).Dur("resp_time", res.Time()).
			Str("requestId", req.Header.Get(requestIdHeader)).Msg("Received response")
		return nil
	})

	client.OnError(func(req *resty.Request, err error) {
		var responseErr *resty.ResponseError
		if errors.As(err, &responseErr) {
			return
		}
		name := RequestName(req)
		failedRequestCountMetric.WithLabelValues(testName, scenarioName, name, req.Method, "true").Inc()
		log.Ctx(req.Context()).Error().Err(err).Str("request", name).Str("method", req.Method).
			Str("requestId", req.Header.Get(requestIdHeader)).Msg("Request failed")
	})
}

// RequestName groups requests for metrics: the url path, plus the function name for web service calls.
func RequestName(req *resty.Request) string {
	name := req.URL
	if u, err := url.Parse(req.URL); err == nil {
		name = u.Path
	}
	if function := req.QueryParam.Get("wsfunction"); function != "" {
		return name + "?" + function
	}
	return name
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}

func randomId(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
