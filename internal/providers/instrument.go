package providers

import (
	"context"
	"time"

	"github.com/djun/bashclaw/internal/observability"
	"github.com/djun/bashclaw/internal/protocol"
)

// instrumented decorates an Adapter with the model-call metrics and span:
// request duration, status, and token usage labeled by provider and model.
type instrumented struct {
	inner      Adapter
	providerID string
	metrics    *observability.Metrics
	tracer     *observability.Tracer
}

// Instrument wraps adapter so every Call is measured. A nil metrics set
// returns adapter unchanged, so uninstrumented construction (tests, ad hoc
// tooling) pays nothing.
func Instrument(adapter Adapter, providerID string, metrics *observability.Metrics, tracer *observability.Tracer) Adapter {
	if metrics == nil {
		return adapter
	}
	return &instrumented{inner: adapter, providerID: providerID, metrics: metrics, tracer: tracer}
}

// Call implements Adapter.
func (a *instrumented) Call(ctx context.Context, req CallRequest) (*protocol.Response, error) {
	ctx, span := a.tracer.TraceLLMRequest(ctx, a.providerID, req.Model.ID)
	defer span.End()

	start := time.Now()
	resp, err := a.inner.Call(ctx, req)

	status := "success"
	var promptTokens, completionTokens int
	if err != nil {
		status = "error"
		a.tracer.RecordError(span, err)
		a.metrics.RecordError("agent", "provider_error")
	} else {
		promptTokens = resp.Usage.InputTokens
		completionTokens = resp.Usage.OutputTokens
	}
	a.metrics.RecordLLMRequest(a.providerID, req.Model.ID, status, time.Since(start).Seconds(), promptTokens, completionTokens)
	return resp, err
}
