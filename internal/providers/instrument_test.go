package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djun/bashclaw/internal/catalog"
	"github.com/djun/bashclaw/internal/observability"
	"github.com/djun/bashclaw/internal/protocol"
)

type staticAdapter struct {
	resp *protocol.Response
	err  error
}

func (s *staticAdapter) Call(context.Context, CallRequest) (*protocol.Response, error) {
	return s.resp, s.err
}

func TestInstrumentRecordsSuccessWithTokens(t *testing.T) {
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	inner := &staticAdapter{resp: &protocol.Response{
		StopReason: protocol.StopEndTurn,
		Content:    []protocol.Block{protocol.TextBlock("hi")},
		Usage:      protocol.Usage{InputTokens: 12, OutputTokens: 7},
	}}
	adapter := Instrument(inner, "anthropic", metrics, nil)

	resp, err := adapter.Call(context.Background(), CallRequest{Model: catalog.Model{ID: "claude-3-5-sonnet-latest"}})
	require.NoError(t, err)
	require.Equal(t, "hi", resp.Text())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LLMRequestCounter.WithLabelValues("anthropic", "claude-3-5-sonnet-latest", "success")))
	assert.Equal(t, 12.0, testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("anthropic", "claude-3-5-sonnet-latest", "prompt")))
	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.LLMTokensUsed.WithLabelValues("anthropic", "claude-3-5-sonnet-latest", "completion")))
}

func TestInstrumentRecordsErrorStatusAndComponent(t *testing.T) {
	metrics := observability.NewMetricsWith(prometheus.NewRegistry())
	inner := &staticAdapter{err: errors.New("upstream down")}
	adapter := Instrument(inner, "openai", metrics, nil)

	_, err := adapter.Call(context.Background(), CallRequest{Model: catalog.Model{ID: "gpt-4o"}})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.LLMRequestCounter.WithLabelValues("openai", "gpt-4o", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ErrorCounter.WithLabelValues("agent", "provider_error")))
}

func TestInstrumentWithoutMetricsReturnsAdapterUnchanged(t *testing.T) {
	inner := &staticAdapter{}
	assert.Same(t, Adapter(inner), Instrument(inner, "anthropic", nil, nil))
}
