// Package ipcresolver is the Resolver backed by the reference platform's
// Unix-domain-socket IPC transport: the coordinator talks to an
// out-of-process resolution service the same way the platform's rnx
// client talks to its state service.
package ipcresolver

import (
	"context"
	"fmt"

	"github.com/nodecoord/coordinator/internal/domain"
	"github.com/nodecoord/coordinator/internal/ipc"
)

// Resolver is an ipc.Client-backed resolver.Resolver.
type Resolver struct {
	client *ipc.Client
}

// New returns a Resolver dialing socketPath lazily on first Resolve call.
func New(socketPath string) *Resolver {
	return &Resolver{client: ipc.NewClient(socketPath)}
}

func (r *Resolver) Resolve(ctx context.Context, jobID string, request domain.JobRequest, computeBinding bool) (domain.ExecutionPlan, error) {
	resp, err := r.client.Call(ctx, ipc.Message{
		Operation:      ipc.OpResolve,
		JobID:          jobID,
		Name:           request.Name,
		User:           request.User,
		Version:        request.Version,
		Tags:           request.Tags,
		Criteria:       request.Criteria,
		ComputeBinding: computeBinding,
	})
	if err != nil {
		return domain.ExecutionPlan{}, fmt.Errorf("resolve %s: %w", jobID, err)
	}
	if !resp.Success {
		return domain.ExecutionPlan{}, fmt.Errorf("%s", resp.Error)
	}

	appIDs := make([]string, len(resp.AppIDs))
	copy(appIDs, resp.AppIDs)

	return domain.ExecutionPlan{
		ClusterID:      resp.ClusterID,
		CommandID:      resp.CommandID,
		ApplicationIDs: appIDs,
	}, nil
}

// Close releases the underlying IPC connection.
func (r *Resolver) Close() error { return r.client.Close() }
