// Package resolver defines the interface the coordinator core consumes
// for stage 4 of the admission pipeline: turning a job id and a request
// into an ExecutionPlan.
package resolver

import (
	"context"

	"github.com/nodecoord/coordinator/internal/domain"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

// Resolver turns a job id and a request into an ExecutionPlan, returning
// an error when no cluster/command combination satisfies the request's
// criteria. The coordinator never interprets the cause; it remaps any
// error from Resolve uniformly to cerr.KindPrecondition, keeping the
// original error as the wrapped cause.
//
//counterfeiter:generate . Resolver
type Resolver interface {
	// Resolve returns the ExecutionPlan satisfying request's selection
	// criteria. computeBinding is forwarded for collaborators that can
	// skip plan-internal bookkeeping on a dry run; the coordinator always
	// passes true.
	Resolve(ctx context.Context, jobID string, request domain.JobRequest, computeBinding bool) (domain.ExecutionPlan, error)
}
