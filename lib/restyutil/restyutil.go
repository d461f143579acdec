// Package restyutil builds the instrumented resty clients shared by the
// API and scraping tiers: otel spans per request, rate limiting, and
// proxy wiring.
package restyutil

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/semconv/v1.13.0/httpconv"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// NewClient builds a resty client with the defaults every outbound
// call in this codebase wants: a timeout and a per-client rate limit.
func NewClient(timeout time.Duration, rps rate.Limit) *resty.Client {
	client := resty.New()
	client.SetTimeout(timeout)

	if rps > 0 {
		limiter := rate.NewLimiter(rps, int(rps)+1)
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}
	return client
}

// Instrument attaches otel spans to every request the client makes.
func Instrument(client *resty.Client, tracerName string) {
	tracer := otel.Tracer(tracerName)

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		ctx, _ := tracer.Start(req.Context(), req.Method)
		req.SetContext(ctx)
		return nil
	})
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		span := trace.SpanFromContext(res.Request.Context())
		defer span.End()

		// request attributes are set here since RawRequest is nil
		// before the request actually runs
		span.SetName(fmt.Sprintf("http %s", res.Request.Method))
		span.SetAttributes(httpconv.ClientRequest(res.Request.RawRequest)...)
		span.SetAttributes(httpconv.ClientResponse(res.RawResponse)...)
		return nil
	})
	client.OnError(func(req *resty.Request, err error) {
		span := trace.SpanFromContext(req.Context())
		defer span.End()
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
	})
}
