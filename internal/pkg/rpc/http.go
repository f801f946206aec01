package rpc

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NewHTTPClient returns the retrying HTTP client used for RPC and indexer
// calls. Callers wait on limiter before the first attempt; every retry takes
// its own token from the same bucket.
func NewHTTPClient(timeout time.Duration, limiter *Limiter) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.HTTPClient.Timeout = timeout
	c.Logger = zerologLeveled{}
	c.PrepareRetry = func(req *http.Request) error {
		return limiter.Wait(req.Context())
	}
	return c
}

type zerologLeveled struct{}

func (zerologLeveled) Error(msg string, keysAndValues ...interface{}) {
	withFields(log.Error(), keysAndValues).Msg(msg)
}

func (zerologLeveled) Info(msg string, keysAndValues ...interface{}) {
	withFields(log.Debug(), keysAndValues).Msg(msg)
}

func (zerologLeveled) Debug(msg string, keysAndValues ...interface{}) {
	withFields(log.Trace(), keysAndValues).Msg(msg)
}

func (zerologLeveled) Warn(msg string, keysAndValues ...interface{}) {
	withFields(log.Warn(), keysAndValues).Msg(msg)
}

func withFields(e *zerolog.Event, keysAndValues []interface{}) *zerolog.Event {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		e = e.Interface(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1])
	}
	return e
}
