// Package coordinator implements the admission-and-resolution state
// machine described by the job-coordination design: the coordinateJob
// pipeline that turns a raw JobRequest into either a scheduled job on
// this node or a typed, classified rejection with durable bookkeeping.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nodecoord/coordinator/internal/catalog"
	"github.com/nodecoord/coordinator/internal/cerr"
	"github.com/nodecoord/coordinator/internal/domain"
	"github.com/nodecoord/coordinator/internal/idgen"
	"github.com/nodecoord/coordinator/internal/killer"
	"github.com/nodecoord/coordinator/internal/metrics"
	"github.com/nodecoord/coordinator/internal/nodestate"
	"github.com/nodecoord/coordinator/internal/resolver"
	"github.com/nodecoord/coordinator/pkg/config"
	"github.com/nodecoord/coordinator/pkg/logger"
)

// canonicalResolveFailureMessage is the status message stage 4 stamps on
// a JobRecord, and the message its Precondition error carries, when the
// Resolver cannot satisfy a request. Property S5 pins this string. The
// stage-6 memory-overshoot Precondition carries its own message instead.
const canonicalResolveFailureMessage = "failed to resolve"

const initStatusMessage = "Job accepted and in initialization phase."

// Coordinator is the Coordinator Core: it orchestrates the Catalog Store,
// Resolver, Node State, Killer and Metrics Sink to implement submit and
// kill. The zero value is not usable; call New.
type Coordinator struct {
	store     catalog.Store
	resolver  resolver.Resolver
	nodeState *nodestate.NodeState
	killer    killer.Killer
	metrics   metrics.Sink
	ids       *idgen.Generator
	cfg       config.Config
	log       *logger.Logger

	// admissionMu is the single process-wide mutual-exclusion region
	// guarding stage 9's read-modify-write of the NodeMemoryLedger. No
	// other state is protected by it, and it must never be held across
	// catalog or resolver I/O.
	admissionMu sync.Mutex
}

// New wires a Coordinator from its five collaborators plus configuration.
func New(
	store catalog.Store,
	res resolver.Resolver,
	nodeState *nodestate.NodeState,
	kill killer.Killer,
	sink metrics.Sink,
	ids *idgen.Generator,
	cfg config.Config,
) *Coordinator {
	return &Coordinator{
		store:     store,
		resolver:  res,
		nodeState: nodeState,
		killer:    kill,
		metrics:   sink,
		ids:       ids,
		cfg:       cfg,
		log:       logger.WithField("component", "coordinator"),
	}
}

// Submit runs the admission pipeline for one JobRequest. It returns the
// job id on success; on failure it returns a *cerr.CoordinatorError and
// guarantees the universal cleanup of §7 has already run.
func (c *Coordinator) Submit(ctx context.Context, request domain.JobRequest, metadata domain.JobMetadata) (jobID string, err error) {
	stop := c.metrics.Timer("coordination.timer")

	var id string
	pendingStatus := domain.StatusFailed

	defer func() {
		if err == nil {
			stop(metrics.Tag{Key: "outcome", Value: "success"})
			return
		}

		kind := cerr.KindOf(err)
		if id != "" && c.nodeState.JobExists(id) {
			c.nodeState.Done(id)
			message := cerr.MessageOf(err)
			// A fresh context: cleanup must complete even if the caller
			// canceled the one that drove the pipeline.
			if updErr := c.store.UpdateJobStatus(context.Background(), id, pendingStatus, message); updErr != nil {
				c.log.Error("cleanup: failed to update job status", "jobId", id, "error", updErr)
			}
		}

		c.log.Warn("submit rejected", "jobId", id, "kind", kind.String(), "error", err)
		stop(metrics.Tag{Key: "outcome", Value: "failure"}, metrics.Tag{Key: "kind", Value: kind.String()})
	}()

	// Stage 1: identity.
	id = request.ID
	if id == "" {
		id = c.ids.Next()
	}
	if id == "" {
		err = cerr.ServerErrorf("", "identity", errors.New("id allocation returned an empty id"))
		return
	}

	// Stage 2: persist INIT.
	archiveLocation := c.cfg.ArchiveRoot + id
	record := domain.JobRecord{
		ID:              id,
		Name:            request.Name,
		User:            request.User,
		Version:         request.Version,
		Tags:            request.Tags,
		CommandArgs:     request.CommandArgs,
		Description:     request.Description,
		Status:          domain.StatusInit,
		StatusMessage:   initStatusMessage,
		ArchiveLocation: archiveLocation,
		ExecutionHost:   c.cfg.Hostname,
	}
	if createErr := c.store.CreateJob(ctx, record); createErr != nil {
		if errors.Is(createErr, catalog.ErrAlreadyExists) {
			err = cerr.Conflict(id, createErr)
			return
		}
		err = cerr.ServerErrorf(id, "persist-init", createErr)
		return
	}

	// Stage 3: mark node-scheduled. From here on, any failure must call
	// Node State's done(id), which the deferred cleanup above does once
	// it observes jobExists(id).
	c.nodeState.Init(id)

	// Stage 4: resolve.
	plan, resolveErr := c.resolver.Resolve(ctx, id, request, true)
	if resolveErr != nil {
		pendingStatus = domain.StatusFailed
		err = cerr.Precondition(id, "resolve", canonicalResolveFailureMessage, resolveErr)
		return
	}

	// Stage 5: catalog fan-out. Independent lookups run concurrently and
	// cancel on first error; none of this is under the admission lock.
	var cluster domain.Cluster
	var command domain.Command
	applications := make([]domain.Application, len(plan.ApplicationIDs))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var lookupErr error
		cluster, lookupErr = c.store.GetCluster(gctx, plan.ClusterID)
		return lookupErr
	})
	group.Go(func() error {
		var lookupErr error
		command, lookupErr = c.store.GetCommand(gctx, plan.CommandID)
		return lookupErr
	})
	for i, appID := range plan.ApplicationIDs {
		i, appID := i, appID
		group.Go(func() error {
			app, lookupErr := c.store.GetApplication(gctx, appID)
			if lookupErr != nil {
				return lookupErr
			}
			applications[i] = app
			return nil
		})
	}
	if fanoutErr := group.Wait(); fanoutErr != nil {
		err = cerr.ServerErrorf(id, "catalog-fanout", fmt.Errorf("resolved plan references missing catalog entity: %w", fanoutErr))
		return
	}

	// Stage 6: effective memory.
	memory := effectiveMemory(request.MemoryMB, command.MemoryMB, c.cfg.Memory.DefaultJobMemory)
	if memory > c.cfg.Memory.MaxJobMemory {
		pendingStatus = domain.StatusInvalid
		err = cerr.Precondition(id, "memory-check",
			fmt.Sprintf("requested memory %dMB exceeds configured maximum of %dMB", memory, c.cfg.Memory.MaxJobMemory), nil)
		return
	}
	pendingStatus = domain.StatusFailed

	// Stage 7: runtime binding. The setJobEnvironment timer is recorded
	// regardless of outcome.
	stopEnv := c.metrics.Timer("submit.setJobEnvironment.timer")
	binding := domain.RuntimeBinding{
		JobID:          id,
		ClusterID:      cluster.ID,
		CommandID:      command.ID,
		ApplicationIDs: plan.ApplicationIDs,
		MemoryMB:       memory,
	}
	if bindErr := c.store.UpdateJobWithRuntimeEnvironment(ctx, binding); bindErr != nil {
		stopEnv(metrics.Tag{Key: "outcome", Value: "failure"})
		err = cerr.ServerErrorf(id, "runtime-binding", bindErr)
		return
	}
	stopEnv(metrics.Tag{Key: "outcome", Value: "success"})

	// Stage 8: user quota.
	if c.cfg.ActiveLimit.Enabled {
		limit := c.cfg.ActiveLimit.Limit(request.User)
		active, quotaErr := c.store.GetActiveJobCountForUser(ctx, request.User)
		if quotaErr != nil {
			err = cerr.ServerErrorf(id, "user-quota", quotaErr)
			return
		}
		if active >= limit {
			c.metrics.Counter("submit.rejected.jobs-limit.counter",
				metrics.Tag{Key: "user", Value: request.User},
				metrics.Tag{Key: "limit", Value: strconv.Itoa(limit)})
			err = cerr.UserLimitExceeded(id, request.User, limit)
			return
		}
	}

	// Stage 9: node memory admission, the only stage requiring exclusion.
	// No remote I/O may occur while admissionMu is held.
	c.admissionMu.Lock()
	used := c.nodeState.UsedMemory()
	if used+memory > c.cfg.Memory.MaxSystemMemory {
		c.admissionMu.Unlock()
		err = cerr.ServerUnavailable(id)
		return
	}
	c.nodeState.Schedule(id, memory)
	c.admissionMu.Unlock()

	c.log.Debug("submit admitted", "jobId", id, "clusterId", cluster.ID, "commandId", command.ID, "memoryMB", memory)
	jobID = id
	return jobID, nil
}

// Kill delegates to the Killer. Idempotency and liveness are the
// Killer's contract, not the coordinator's.
func (c *Coordinator) Kill(ctx context.Context, jobID, reason string) error {
	return c.killer.Kill(ctx, jobID, reason)
}

// effectiveMemory picks the first present of requested, commandDefault,
// configDefault, per stage 6 of the admission pipeline.
func effectiveMemory(requested, commandDefault *int, configDefault int) int {
	if requested != nil {
		return *requested
	}
	if commandDefault != nil {
		return *commandDefault
	}
	return configDefault
}
