package coordinator

import (
	"context"
	"errors"
	"sync"

	"github.com/nodecoord/coordinator/internal/domain"
)

// fakeResolver is a hand-written stand-in for resolver.Resolver: it
// returns a fixed plan or a fixed error, letting tests exercise the
// coordinator's admission pipeline without a real IPC backend.
type fakeResolver struct {
	plan domain.ExecutionPlan
	err  error
}

func newFakeResolver(plan domain.ExecutionPlan) *fakeResolver {
	return &fakeResolver{plan: plan}
}

func newFailingResolver(message string) *fakeResolver {
	return &fakeResolver{err: errors.New(message)}
}

func (f *fakeResolver) Resolve(ctx context.Context, jobID string, request domain.JobRequest, computeBinding bool) (domain.ExecutionPlan, error) {
	if f.err != nil {
		return domain.ExecutionPlan{}, f.err
	}
	return f.plan, nil
}

// fakeKiller records every Kill call it receives.
type fakeKiller struct {
	mu    sync.Mutex
	calls []killCall
}

type killCall struct {
	jobID  string
	reason string
}

func (f *fakeKiller) Kill(ctx context.Context, jobID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, killCall{jobID: jobID, reason: reason})
	return nil
}

func intPtr(v int) *int { return &v }
