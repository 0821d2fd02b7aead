package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	bxotel "github.com/devusermeta/nubankx-sub000/internal/adapter/otel"
	"github.com/devusermeta/nubankx-sub000/internal/domain/agent"
	"github.com/devusermeta/nubankx-sub000/internal/domain/decision"
	"github.com/devusermeta/nubankx-sub000/internal/domain/dispatch"
	"github.com/devusermeta/nubankx-sub000/internal/domain/intent"
	"github.com/devusermeta/nubankx-sub000/internal/domain/invocation"
	"github.com/devusermeta/nubankx-sub000/internal/logger"
	"github.com/devusermeta/nubankx-sub000/internal/resilience"
)

// ErrMisconfigured is returned when a classified intent has no capability mapping.
var ErrMisconfigured = errors.New("routing misconfigured")

// Error kinds recorded for failures that never reached an agent.
const (
	kindNoAgent       = "no_agent"
	kindCircuitOpen   = "circuit_open"
	kindMisconfigured = "misconfigured"
	kindCancelled     = "cancelled"
)

// CandidateSelector picks the agent to invoke from the resolved candidates,
// which are ordered oldest registration first and never empty.
type CandidateSelector func(candidates []agent.Record) agent.Record

// FirstCandidate selects the oldest registered agent.
func FirstCandidate(candidates []agent.Record) agent.Record { return candidates[0] }

// DispatcherConfig holds dispatch tuning.
type DispatcherConfig struct {
	MaxInFlight     int64
	FallbackMessage string
}

// Dispatcher is the supervisor: it classifies a message, resolves an agent
// for the capability, invokes it and records exactly one decision.
type Dispatcher struct {
	classifier *Classifier
	dir        *Directory
	invoker    *Invoker
	log        *DecisionLog
	selectFn   CandidateSelector
	inflight   *semaphore.Weighted
	fallback   string
	metrics    *bxotel.Metrics
	now        func() time.Time
	newID      func() string
}

// NewDispatcher wires the supervisor pipeline.
func NewDispatcher(c *Classifier, dir *Directory, inv *Invoker, log *DecisionLog, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		classifier: c,
		dir:        dir,
		invoker:    inv,
		log:        log,
		selectFn:   FirstCandidate,
		inflight:   semaphore.NewWeighted(max(cfg.MaxInFlight, 1)),
		fallback:   cfg.FallbackMessage,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// SetSelector replaces the candidate selection policy.
func (d *Dispatcher) SetSelector(fn CandidateSelector) { d.selectFn = fn }

// SetMetrics attaches metric instruments.
func (d *Dispatcher) SetMetrics(m *bxotel.Metrics) { d.metrics = m }

// Classify exposes the routing decision without dispatching.
func (d *Dispatcher) Classify(text string) (intent.Label, string) {
	return d.classifier.Route(text)
}

// Dispatch routes one user message. Agent failures are reported through the
// outcome; the error is non-nil only when routing is misconfigured.
func (d *Dispatcher) Dispatch(ctx context.Context, userText, correlationID string) (dispatch.Outcome, error) {
	start := d.now()
	req := dispatch.Request{
		RequestID:     d.newID(),
		CorrelationID: correlationID,
		UserText:      userText,
	}
	if req.CorrelationID == "" {
		req.CorrelationID = d.newID()
	}
	ctx = logger.WithCorrelationID(logger.WithRequestID(ctx, req.RequestID), req.CorrelationID)
	ctx, span := bxotel.StartDispatchSpan(ctx, req.RequestID, req.CorrelationID)
	defer span.End()

	req.Intent, req.Capability = d.classifier.Route(userText)
	rec := decision.Record{
		RequestID:        req.RequestID,
		CorrelationID:    req.CorrelationID,
		Intent:           string(req.Intent),
		TargetCapability: req.Capability,
	}

	var (
		out       = dispatch.Outcome{}
		resultErr error
	)
	switch {
	case req.Intent == intent.Unknown:
		rec.Outcome = decision.OutcomeNoAgentAvailable
		rec.ErrorKind = kindNoAgent
		rec.Error = "no routing rule matched"
	case req.Capability == "":
		resultErr = fmt.Errorf("intent %q: %w", req.Intent, ErrMisconfigured)
		rec.Outcome = decision.OutcomeFailure
		rec.ErrorKind = kindMisconfigured
		rec.Error = resultErr.Error()
	default:
		d.invoke(ctx, &req, &rec, &out)
	}

	rec.Attempts = req.Attempts
	rec.Timestamp = d.now()
	rec.LatencyMS = rec.Timestamp.Sub(start).Milliseconds()

	span.SetAttributes(
		attribute.String("bankx.intent", rec.Intent),
		attribute.String("bankx.outcome", string(rec.Outcome)),
	)

	// The caller's context may already be cancelled; the audit write must still happen.
	recordCtx := context.WithoutCancel(ctx)
	if err := d.log.Record(recordCtx, &rec); err != nil {
		d.metrics.RecordFailure(recordCtx)
		slog.ErrorContext(ctx, "decision not recorded", "error", err)
	}
	d.metrics.RecordDispatch(recordCtx, string(rec.Outcome), rec.TargetCapability, rec.LatencyMS)

	slog.InfoContext(ctx, "dispatch completed",
		"intent", rec.Intent,
		"capability", rec.TargetCapability,
		"agent_id", deref(rec.AgentID),
		"outcome", rec.Outcome,
		"attempts", rec.Attempts,
		"latency_ms", rec.LatencyMS,
	)

	out.RequestID = rec.RequestID
	out.CorrelationID = rec.CorrelationID
	out.Intent = req.Intent
	out.Capability = rec.TargetCapability
	out.AgentID = rec.AgentID
	out.Outcome = rec.Outcome
	out.ErrorKind = rec.ErrorKind
	out.Error = rec.Error
	out.Attempts = rec.Attempts
	out.LatencyMS = rec.LatencyMS
	if !out.OK() {
		out.Message = d.fallback
	}
	return out, resultErr
}

func (d *Dispatcher) invoke(ctx context.Context, req *dispatch.Request, rec *decision.Record, out *dispatch.Outcome) {
	candidates := d.dir.Resolve(req.Capability)
	if len(candidates) == 0 {
		rec.Outcome = decision.OutcomeNoAgentAvailable
		rec.ErrorKind = kindNoAgent
		rec.Error = dispatch.ErrNoAgentAvailable.Error()
		return
	}
	target := d.selectFn(candidates)
	rec.AgentID = &target.ID

	if err := d.inflight.Acquire(ctx, 1); err != nil {
		rec.Outcome = decision.OutcomeFailure
		rec.ErrorKind = kindCancelled
		rec.Error = err.Error()
		return
	}
	res := d.invoker.Invoke(ctx, &target, &invocation.Payload{
		Capability:    req.Capability,
		CorrelationID: req.CorrelationID,
		RequestID:     req.RequestID,
		Arguments: map[string]any{
			"user_text": req.UserText,
			"intent":    string(req.Intent),
		},
	})
	d.inflight.Release(1)

	req.Attempts += res.Attempts
	switch {
	case res.Err == nil:
		rec.Outcome = decision.OutcomeSuccess
		out.Response = res.Response
	case errors.Is(res.Err, resilience.ErrCircuitOpen):
		rec.Outcome = decision.OutcomeCircuitOpen
		rec.ErrorKind = kindCircuitOpen
		rec.Error = res.Err.Error()
	default:
		rec.Outcome = decision.OutcomeFailure
		rec.ErrorKind = string(invocation.KindOf(res.Err))
		rec.Error = res.Err.Error()
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
