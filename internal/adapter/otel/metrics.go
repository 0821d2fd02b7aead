package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "bankx-supervisor"

// Metrics holds the supervisor's metric instruments. A nil *Metrics records nothing.
type Metrics struct {
	Dispatches         metric.Int64Counter
	Attempts           metric.Int64Counter
	DispatchDuration   metric.Float64Histogram
	CircuitTransitions metric.Int64Counter
	RecordFailures     metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.Dispatches, err = meter.Int64Counter("bankx.dispatches",
		metric.WithDescription("Dispatches by outcome"))
	if err != nil {
		return nil, err
	}

	m.Attempts, err = meter.Int64Counter("bankx.invocation.attempts",
		metric.WithDescription("Network attempts against agents"))
	if err != nil {
		return nil, err
	}

	m.DispatchDuration, err = meter.Float64Histogram("bankx.dispatch.duration_ms",
		metric.WithDescription("End-to-end dispatch latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	m.CircuitTransitions, err = meter.Int64Counter("bankx.circuit.transitions",
		metric.WithDescription("Circuit breaker state changes"))
	if err != nil {
		return nil, err
	}

	m.RecordFailures, err = meter.Int64Counter("bankx.decisions.record_failures",
		metric.WithDescription("Decision records that could not be appended"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordDispatch counts one finished dispatch.
func (m *Metrics) RecordDispatch(ctx context.Context, outcome, capability string, latencyMS int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("capability", capability),
	)
	m.Dispatches.Add(ctx, 1, attrs)
	m.DispatchDuration.Record(ctx, float64(latencyMS), attrs)
}

// RecordAttempt counts one network attempt and its result kind.
func (m *Metrics) RecordAttempt(ctx context.Context, capability, agentID, result string) {
	if m == nil {
		return
	}
	m.Attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.String("agent_id", agentID),
		attribute.String("result", result),
	))
}

// RecordTransition counts a breaker state change.
func (m *Metrics) RecordTransition(ctx context.Context, capability, agentID, to string) {
	if m == nil {
		return
	}
	m.CircuitTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.String("agent_id", agentID),
		attribute.String("state", to),
	))
}

// RecordFailure counts a decision that could not be persisted.
func (m *Metrics) RecordFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.RecordFailures.Add(ctx, 1)
}
