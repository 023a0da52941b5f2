package server

import (
	"context"
	"time"

	"github.com/vango-go/poppy/pkg/core/types"
	"github.com/vango-go/poppy/pkg/gateway/metrics"
)

// instrumentedReplies records latency and outcome for every model call.
type instrumentedReplies struct {
	next    Replies
	metrics *metrics.Metrics
}

func (r instrumentedReplies) Reply(ctx context.Context, history []types.Message, provider types.Provider, rc types.ReferenceContext) (string, error) {
	start := time.Now()
	text, err := r.next.Reply(ctx, history, provider, rc)
	r.metrics.RecordReply(providerLabel(provider), "reply", err, time.Since(start))
	return text, err
}

// GenerateReply never fails; failures surface as the fallback text.
func (r instrumentedReplies) GenerateReply(ctx context.Context, history []types.Message, provider types.Provider, rc types.ReferenceContext) string {
	start := time.Now()
	text := r.next.GenerateReply(ctx, history, provider, rc)
	r.metrics.RecordReply(providerLabel(provider), "live_reply", nil, time.Since(start))
	return text
}

func (r instrumentedReplies) Summarize(ctx context.Context, history []types.Message, provider types.Provider) (string, error) {
	start := time.Now()
	text, err := r.next.Summarize(ctx, history, provider)
	r.metrics.RecordReply(providerLabel(provider), "summary", err, time.Since(start))
	return text, err
}

func providerLabel(p types.Provider) string {
	if p == "" {
		return string(types.DefaultProvider)
	}
	return string(p)
}
