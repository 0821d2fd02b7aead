package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	bxotel "github.com/devusermeta/nubankx-sub000/internal/adapter/otel"
	"github.com/devusermeta/nubankx-sub000/internal/domain/agent"
	"github.com/devusermeta/nubankx-sub000/internal/domain/invocation"
	"github.com/devusermeta/nubankx-sub000/internal/port/transport"
	"github.com/devusermeta/nubankx-sub000/internal/resilience"
)

// InvokerConfig bounds one resilient invocation.
type InvokerConfig struct {
	Retry          resilience.Policy
	AttemptTimeout time.Duration
}

// Invoker performs an agent call with a per-attempt timeout, bounded retry
// of transient failures and a circuit breaker per (capability, agent).
type Invoker struct {
	breakers   *resilience.BreakerSet
	transports map[string]transport.Transport
	cfg        InvokerConfig
	sleep      resilience.Sleeper
	metrics    *bxotel.Metrics
}

// NewInvoker creates an invoker. transports maps endpoint schemes
// ("http", "https", "nats") to the transport that serves them.
func NewInvoker(breakers *resilience.BreakerSet, transports map[string]transport.Transport, cfg InvokerConfig) *Invoker {
	return &Invoker{
		breakers:   breakers,
		transports: transports,
		cfg:        cfg,
		sleep:      resilience.SleepContext,
	}
}

// SetMetrics attaches metric instruments.
func (v *Invoker) SetMetrics(m *bxotel.Metrics) { v.metrics = m }

// BreakerFailure decides which attempt errors count against a breaker.
// Application rejections prove the agent is reachable and do not count.
func BreakerFailure(err error) bool {
	return err != nil && !errors.Is(err, invocation.ErrNonRetryable)
}

// Invoke sends payload to target. The breaker is consulted before every
// attempt, so a breaker that opens mid-retry stops the loop with
// resilience.ErrCircuitOpen. Result.Attempts counts only network attempts.
func (v *Invoker) Invoke(ctx context.Context, target *agent.Record, payload *invocation.Payload) invocation.Result {
	tr, err := v.transportFor(target.Endpoint)
	if err != nil {
		return invocation.Result{Err: err}
	}
	breaker := v.breakers.Get(payload.Capability, target.ID)

	var (
		resp     json.RawMessage
		networks int
	)
	retryable := func(err error) bool {
		return invocation.IsTransient(err) && !errors.Is(err, resilience.ErrCircuitOpen)
	}
	retrier := resilience.Retrier{
		Policy:    v.cfg.Retry,
		Retryable: retryable,
		Sleep:     v.sleep,
	}
	_, err = retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		execErr := breaker.Execute(func() error {
			networks++
			r, callErr := v.attempt(ctx, tr, target, payload, attempt)
			if callErr == nil {
				resp = r
			}
			return callErr
		})
		// A retryable failure that tripped the breaker ends the loop here
		// instead of backing off only to be rejected on the next attempt.
		retriesLeft := attempt+1 < max(v.cfg.Retry.MaxAttempts, 1)
		if retriesLeft && invocation.IsTransient(execErr) && !errors.Is(execErr, resilience.ErrCircuitOpen) &&
			breaker.Snapshot().State == resilience.StateOpen {
			return fmt.Errorf("%w: %w", resilience.ErrCircuitOpen, execErr)
		}
		return execErr
	})

	if errors.Is(err, resilience.ErrCircuitOpen) {
		slog.WarnContext(ctx, "circuit open", "agent_id", target.ID, "capability", payload.Capability, "attempts", networks)
	}
	return invocation.Result{Response: resp, Err: err, Attempts: networks}
}

func (v *Invoker) attempt(ctx context.Context, tr transport.Transport, target *agent.Record, payload *invocation.Payload, n int) (json.RawMessage, error) {
	ctx, span := bxotel.StartAttemptSpan(ctx, payload.Capability, target.ID, n)
	defer span.End()

	actx, cancel := context.WithTimeout(ctx, v.cfg.AttemptTimeout)
	defer cancel()

	resp, err := tr.Call(actx, target.Endpoint, payload)
	if err != nil {
		err = classify(actx, err)
		span.RecordError(err)
		v.metrics.RecordAttempt(ctx, payload.Capability, target.ID, string(invocation.KindOf(err)))
		slog.DebugContext(ctx, "invoke attempt failed", "agent_id", target.ID, "attempt", n, "error", err)
		return nil, err
	}
	v.metrics.RecordAttempt(ctx, payload.Capability, target.ID, "ok")
	return resp, nil
}

// classify maps a raw transport error onto the invocation error classes.
// Unclassified errors are treated as unavailability.
func classify(ctx context.Context, err error) error {
	var ie *invocation.Error
	if errors.As(err, &ie) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return invocation.Transient(invocation.KindTimeout, err)
	}
	return invocation.Transient(invocation.KindUnavailable, err)
}

func (v *Invoker) transportFor(endpoint string) (transport.Transport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, invocation.Rejected(invocation.KindValidation, fmt.Sprintf("bad endpoint %q: %v", endpoint, err))
	}
	tr, ok := v.transports[u.Scheme]
	if !ok {
		return nil, invocation.Rejected(invocation.KindValidation, fmt.Sprintf("no transport for scheme %q", u.Scheme))
	}
	return tr, nil
}

// NewAgentBreakers creates the breaker set shared by the invoker and the
// circuit inspection API.
func NewAgentBreakers(maxFailures int, cooldown time.Duration, opts ...resilience.BreakerOption) *resilience.BreakerSet {
	opts = append([]resilience.BreakerOption{resilience.WithFailurePredicate(BreakerFailure)}, opts...)
	return resilience.NewBreakerSet(maxFailures, cooldown, opts...)
}
