// Package catalog defines the Catalog Store interface the coordinator
// core depends on, and hosts two concrete backends: an in-memory one used
// by tests, and a DynamoDB-backed one for durable deployments.
package catalog

import (
	"context"

	"github.com/nodecoord/coordinator/internal/domain"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

// Store is the durable storage of applications, commands, clusters, and
// jobs that the admission pipeline reads and writes. Every method may
// fail with a generic error the coordinator classifies per the error
// handling design; only CreateJob's uniqueness conflict is distinguished
// (via errors.Is against ErrAlreadyExists) since stage 2 must map it
// specifically to Conflict rather than ServerError.
//
//counterfeiter:generate . Store
type Store interface {
	// CreateJob persists a new JobRecord. It returns ErrAlreadyExists
	// (wrapped or bare, checked with errors.Is) if record.ID already
	// exists.
	CreateJob(ctx context.Context, record domain.JobRecord) error

	GetCluster(ctx context.Context, id string) (domain.Cluster, error)
	GetCommand(ctx context.Context, id string) (domain.Command, error)
	GetApplication(ctx context.Context, id string) (domain.Application, error)

	// UpdateJobWithRuntimeEnvironment persists the RuntimeBinding for a
	// job. Write-once per job id; the coordinator never calls this twice
	// for the same id.
	UpdateJobWithRuntimeEnvironment(ctx context.Context, binding domain.RuntimeBinding) error

	GetActiveJobCountForUser(ctx context.Context, user string) (int, error)

	UpdateJobStatus(ctx context.Context, jobID string, status domain.Status, message string) error
}
