package mailbox

import (
	"context"
	"log/slog"

	"github.com/G2mcab/Email-extractor/internal/model"
)

// Fetcher wraps Service list/get calls with the run's retry policy.
//
// ListMessages degrades to an empty result on failure: callers cannot tell
// "no messages" from "fetch failed" by the return value alone. The failure is
// logged and kept in LastErr for diagnostics.
type Fetcher struct {
	svc     Service
	opts    Options
	logger  *slog.Logger
	lastErr error
}

func NewFetcher(svc Service, opts Options) *Fetcher {
	return &Fetcher{
		svc:    svc,
		opts:   opts,
		logger: opts.logger().With("component", "fetcher"),
	}
}

// ListMessages returns the refs matching query, or nil after a permanent
// failure or exhausted retries.
func (f *Fetcher) ListMessages(ctx context.Context, query string) []model.MessageRef {
	f.lastErr = nil
	var refs []model.MessageRef
	logger := f.logger.With("op", "list", "query", query)
	err := f.opts.policy(logger).Do(ctx, func(ctx context.Context) error {
		var err error
		refs, err = f.svc.List(ctx, query)
		return err
	})
	if err != nil {
		f.lastErr = err
		logger.Error("failed to fetch emails", "status", StatusOf(err), "err", err)
		return nil
	}
	logger.Debug("listed messages", "count", len(refs))
	return refs
}

// LastErr is the failure behind the most recent empty ListMessages result, if any.
func (f *Fetcher) LastErr() error {
	return f.lastErr
}

// GetMessage makes a single attempt to fetch the full message. It returns nil
// on failure; the caller skips the id.
func (f *Fetcher) GetMessage(ctx context.Context, id string) *model.Message {
	msg, err := f.svc.Get(ctx, id)
	if err != nil {
		f.logger.Error("error getting email details", "op", "get", "id", id, "status", StatusOf(err), "err", err)
		return nil
	}
	return msg
}
