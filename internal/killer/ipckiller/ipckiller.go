// Package ipckiller is the Killer backed by the same IPC transport as
// ipcresolver: kill(jobId, reason) is a one-shot OpKill request to the
// node-local execution subsystem.
package ipckiller

import (
	"context"
	"fmt"

	"github.com/nodecoord/coordinator/internal/ipc"
)

// Killer is an ipc.Client-backed killer.Killer.
type Killer struct {
	client *ipc.Client
}

// New returns a Killer dialing socketPath lazily on first Kill call.
func New(socketPath string) *Killer {
	return &Killer{client: ipc.NewClient(socketPath)}
}

func (k *Killer) Kill(ctx context.Context, jobID, reason string) error {
	resp, err := k.client.Call(ctx, ipc.Message{Operation: ipc.OpKill, JobID: jobID, Reason: reason})
	if err != nil {
		return fmt.Errorf("kill %s: %w", jobID, err)
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	return nil
}

// Close releases the underlying IPC connection.
func (k *Killer) Close() error { return k.client.Close() }
