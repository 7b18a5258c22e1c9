// Package listclient exposes CRUD over logical collections. It resolves
// the serving site through the router, runs every remote call under the
// retry executor, and shapes write payloads with the normalizer.
package listclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/heron/internal/domain"
	"github.com/opensource-finance/heron/internal/metrics"
	"github.com/opensource-finance/heron/internal/retry"
	"github.com/opensource-finance/heron/internal/router"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBatchSize bounds concurrent creates in SaveBatch.
const DefaultBatchSize = 100

var tracer = otel.Tracer("heron-listclient")

// Client is the generic collection client for one caller session.
type Client struct {
	cc        domain.CallerContext
	router    *router.Router
	pinned    domain.EndpointHandle
	retryOpts []retry.Option
	metrics   *metrics.Metrics
	batchSize int
	user      *userCache
}

// Option configures a Client.
type Option func(*Client)

// WithRouter uses r instead of a router with the default shared set.
func WithRouter(r *router.Router) Option {
	return func(c *Client) { c.router = r }
}

// WithRetry sets the retry policy for every remote call.
func WithRetry(opts ...retry.Option) Option {
	return func(c *Client) { c.retryOpts = append(c.retryOpts, opts...) }
}

// WithMetrics records operations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithBatchSize sets the default SaveBatch concurrency.
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// New creates a client bound to cc. The client owns its router, so handles
// are never shared with another session.
func New(cc domain.CallerContext, opts ...Option) (*Client, error) {
	if cc == nil {
		return nil, domain.ErrContextRequired
	}
	c := &Client{
		cc:        cc,
		batchSize: DefaultBatchSize,
		user:      &userCache{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.router == nil {
		c.router = router.New(nil)
	}
	return c, nil
}

// Pinned returns a view of the client that sends every operation to h
// instead of resolving the endpoint per collection.
func (c *Client) Pinned(h domain.EndpointHandle) *Client {
	cp := *c
	cp.pinned = h
	return &cp
}

// Caller returns the session's caller context.
func (c *Client) Caller() domain.CallerContext { return c.cc }

// Router returns the session's router.
func (c *Client) Router() *router.Router { return c.router }

func (c *Client) handle(ref domain.CollectionRef) (domain.EndpointHandle, error) {
	if c.pinned != nil {
		return c.pinned, nil
	}
	return c.router.Route(ref, c.cc)
}

func (c *Client) retryOptions() []retry.Option {
	opts := make([]retry.Option, 0, len(c.retryOpts)+1)
	opts = append(opts, c.retryOpts...)
	if c.metrics != nil {
		opts = append(opts, retry.WithOnRetry(func(int, time.Duration, error) {
			c.metrics.IncrementRetries()
		}))
	}
	return opts
}

func checkRef(ref domain.CollectionRef) error {
	if strings.TrimSpace(string(ref)) == "" {
		return fmt.Errorf("%w: collection ref is required", domain.ErrInvalidArgument)
	}
	return nil
}

func checkID(id int) error {
	if id <= 0 {
		return fmt.Errorf("%w: item id must be positive, got %d", domain.ErrInvalidArgument, id)
	}
	return nil
}

func checkItem(item domain.Record) error {
	if item == nil {
		return fmt.Errorf("%w: item payload is required", domain.ErrInvalidArgument)
	}
	return nil
}

func remoteError(op string, ref domain.CollectionRef, err error) error {
	if err == nil {
		return nil
	}
	var existing *domain.RemoteOperationError
	if errors.As(err, &existing) {
		return err
	}
	re := &domain.RemoteOperationError{Op: op, Collection: ref, Err: err}
	var sc retry.StatusCoder
	if errors.As(err, &sc) {
		re.StatusCode = sc.StatusCode()
	}
	return re
}

// operation carries the span and timing of one client call.
type operation struct {
	span  trace.Span
	name  string
	start time.Time
	m     *metrics.Metrics
}

func (c *Client) begin(ctx context.Context, name string, ref domain.CollectionRef, attrs ...attribute.KeyValue) (context.Context, *operation) {
	attrs = append(attrs, attribute.String("collection", string(ref)))
	ctx, span := tracer.Start(ctx, "listclient."+name, trace.WithAttributes(attrs...))
	return ctx, &operation{span: span, name: name, start: time.Now(), m: c.metrics}
}

func (o *operation) end(err error) {
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
	}
	o.m.ObserveOperation(o.name, err == nil, time.Since(o.start))
	o.span.End()
}
