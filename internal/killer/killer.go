// Package killer defines the interface the coordinator core consumes for
// kill(jobId, reason): terminating an admitted job. Idempotency and
// liveness are the implementation's contract, not the core's.
package killer

import "context"

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

//counterfeiter:generate . Killer
type Killer interface {
	Kill(ctx context.Context, jobID, reason string) error
}
