package productregistry

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"txengine/internal/domain/failure"
	"txengine/internal/domain/product"
)

var (
	breakerMeter          = otel.Meter("txengine/productregistry")
	breakerTransitions, _ = breakerMeter.Int64Counter("registry.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes"))
)

// Settings tunes the circuit breaker around registry calls
type Settings struct {
	CallTimeout   time.Duration
	FailureRate   float64
	MinRequests   uint32
	OpenTimeout   time.Duration
	HalfOpenCalls uint32
	Interval      time.Duration
}

// DefaultSettings returns the production breaker settings
func DefaultSettings() Settings {
	return Settings{
		CallTimeout:   2 * time.Second,
		FailureRate:   0.5,
		MinRequests:   10,
		OpenTimeout:   30 * time.Second,
		HalfOpenCalls: 3,
		Interval:      60 * time.Second,
	}
}

// Resilient wraps a product.Gateway with a per-call timeout and a circuit
// breaker. Not-found answers count as successes.
type Resilient struct {
	next    product.Gateway
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

var _ product.Gateway = (*Resilient)(nil)

// NewResilient wraps next with the given settings
func NewResilient(next product.Gateway, s Settings) *Resilient {
	if s.CallTimeout <= 0 {
		s.CallTimeout = DefaultSettings().CallTimeout
	}
	minRequests, rate := s.MinRequests, s.FailureRate

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "product-registry",
		MaxRequests: s.HalfOpenCalls,
		Interval:    s.Interval,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= rate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
			breakerTransitions.Add(context.Background(), 1, metric.WithAttributes(
				attribute.String("from", from.String()),
				attribute.String("to", to.String()),
			))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, failure.ErrNotFound)
		},
	})

	return &Resilient{next: next, breaker: cb, timeout: s.CallTimeout}
}

// State reports the breaker state for health checks
func (r *Resilient) State() string {
	return r.breaker.State().String()
}

func (r *Resilient) Get(ctx context.Context, id string) (*product.BankProduct, error) {
	return call(ctx, r, func(ctx context.Context) (*product.BankProduct, error) {
		return r.next.Get(ctx, id)
	})
}

func (r *Resilient) ListByCustomer(ctx context.Context, customerID string) ([]*product.BankProduct, error) {
	return call(ctx, r, func(ctx context.Context) ([]*product.BankProduct, error) {
		return r.next.ListByCustomer(ctx, customerID)
	})
}

func (r *Resilient) ListAll(ctx context.Context) ([]*product.BankProduct, error) {
	return call(ctx, r, func(ctx context.Context) ([]*product.BankProduct, error) {
		return r.next.ListAll(ctx)
	})
}

func (r *Resilient) Update(ctx context.Context, p *product.BankProduct) (*product.BankProduct, error) {
	return call(ctx, r, func(ctx context.Context) (*product.BankProduct, error) {
		return r.next.Update(ctx, p)
	})
}

func (r *Resilient) GetCard(ctx context.Context, id string) (*product.Card, error) {
	return call(ctx, r, func(ctx context.Context) (*product.Card, error) {
		return r.next.GetCard(ctx, id)
	})
}

func call[T any](ctx context.Context, r *Resilient, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	res, err := r.breaker.Execute(func() (interface{}, error) {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return fn(cctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, failure.Upstream("product registry", err)
		}
		if failure.Kind(err) == nil {
			return zero, failure.Upstream("product registry", err)
		}
		return zero, err
	}
	return res.(T), nil
}
