package mailbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/G2mcab/Email-extractor/internal/model"
)

// MutationResult summarizes one Apply call. Attempted always equals the
// batch size.
type MutationResult struct {
	Attempted int
	Succeeded []string
	Failed    []string
}

// Mutator applies delete or archive to a batch, retrying each message on its own.
type Mutator struct {
	svc    Service
	opts   Options
	logger *slog.Logger
}

func NewMutator(svc Service, opts Options) *Mutator {
	return &Mutator{
		svc:    svc,
		opts:   opts,
		logger: opts.logger().With("component", "mutator"),
	}
}

// Apply runs action over every ref. A failure on one message is logged and the
// batch continues. progress, when set, is called after each message.
func (m *Mutator) Apply(ctx context.Context, action model.Action, refs []model.MessageRef, progress func(done, total int)) (MutationResult, error) {
	var call func(context.Context, string) error
	switch action {
	case model.ActionDelete:
		call = m.svc.Trash
	case model.ActionArchive:
		call = m.svc.Archive
	default:
		return MutationResult{}, fmt.Errorf("%w: action %q does not mutate", model.ErrInvalidInput, action)
	}

	res := MutationResult{}
	total := len(refs)
	for i, ref := range refs {
		logger := m.logger.With("op", string(action), "id", ref.ID)
		err := m.opts.policy(logger).Do(ctx, func(ctx context.Context) error {
			return call(ctx, ref.ID)
		})
		res.Attempted++
		if err != nil {
			logger.Error("failed to mutate email", "status", StatusOf(err), "err", err)
			res.Failed = append(res.Failed, ref.ID)
		} else {
			res.Succeeded = append(res.Succeeded, ref.ID)
		}
		if progress != nil {
			progress(i+1, total)
		}
	}
	return res, nil
}
