package coordinator

import (
	"context"
	"sync"
	"testing"

	"github.com/nodecoord/coordinator/internal/catalog/memstore"
	"github.com/nodecoord/coordinator/internal/cerr"
	"github.com/nodecoord/coordinator/internal/domain"
	"github.com/nodecoord/coordinator/internal/idgen"
	"github.com/nodecoord/coordinator/internal/metrics"
	"github.com/nodecoord/coordinator/internal/nodestate"
	"github.com/nodecoord/coordinator/pkg/config"
)

func baseConfig() config.Config {
	cfg := config.DefaultConfig
	cfg.ArchiveRoot = "/var/lib/coordinator/archive/"
	cfg.Memory = config.MemoryConfig{DefaultJobMemory: 1024, MaxJobMemory: 4096, MaxSystemMemory: 8192}
	cfg.ActiveLimit = config.ActiveLimitConfig{Enabled: false, DefaultLimit: 10}
	cfg.Hostname = "node-a"
	return cfg
}

func seededStore() *memstore.Store {
	s := memstore.New()
	s.SeedCluster(domain.Cluster{ID: "C1", Name: "prod"})
	s.SeedCommand(domain.Command{ID: "K1", Name: "run", MemoryMB: intPtr(2048)})
	s.SeedApplication(domain.Application{ID: "A1", Name: "worker"})
	return s
}

func newTestCoordinator(cfg config.Config, store *memstore.Store, res *fakeResolver, kill *fakeKiller, sink *metrics.InMemorySink, ns *nodestate.NodeState) *Coordinator {
	return New(store, res, ns, kill, sink, idgen.New(), cfg)
}

// S1 — happy path.
func TestSubmitHappyPath(t *testing.T) {
	cfg := baseConfig()
	store := seededStore()
	ns := nodestate.New()
	sink := metrics.NewInMemorySink()
	res := newFakeResolver(domain.ExecutionPlan{ClusterID: "C1", CommandID: "K1", ApplicationIDs: []string{"A1"}})
	c := newTestCoordinator(cfg, store, res, &fakeKiller{}, sink, ns)

	req := domain.JobRequest{Name: "train", User: "alice"}
	jobID, err := c.Submit(context.Background(), req, domain.JobMetadata{})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if jobID == "" {
		t.Fatal("expected a minted job id")
	}

	record, ok := store.GetJob(jobID)
	if !ok {
		t.Fatalf("expected job record to exist")
	}
	if record.Status != domain.StatusInit {
		t.Fatalf("expected status INIT, got %s", record.Status)
	}
	wantArchive := cfg.ArchiveRoot + jobID
	if record.ArchiveLocation != wantArchive {
		t.Fatalf("expected archive location %q, got %q", wantArchive, record.ArchiveLocation)
	}

	binding, ok := store.GetBinding(jobID)
	if !ok {
		t.Fatalf("expected runtime binding to exist")
	}
	if binding.ClusterID != "C1" || binding.CommandID != "K1" || binding.MemoryMB != 2048 {
		t.Fatalf("unexpected binding: %+v", binding)
	}
	if len(binding.ApplicationIDs) != 1 || binding.ApplicationIDs[0] != "A1" {
		t.Fatalf("unexpected application ids: %+v", binding.ApplicationIDs)
	}

	if !ns.JobExists(jobID) {
		t.Fatal("expected node state to report the job as live")
	}
	if got := ns.UsedMemory(); got != 2048 {
		t.Fatalf("expected ledger 2048, got %d", got)
	}

	if sink.TimerCount("coordination.timer") != 1 {
		t.Fatalf("expected coordination.timer recorded once, got %d", sink.TimerCount("coordination.timer"))
	}
}

// S2 — memory overshoot.
func TestSubmitMemoryOvershoot(t *testing.T) {
	cfg := baseConfig()
	store := seededStore()
	ns := nodestate.New()
	sink := metrics.NewInMemorySink()
	res := newFakeResolver(domain.ExecutionPlan{ClusterID: "C1", CommandID: "K1", ApplicationIDs: []string{"A1"}})
	c := newTestCoordinator(cfg, store, res, &fakeKiller{}, sink, ns)

	req := domain.JobRequest{Name: "train", User: "alice", MemoryMB: intPtr(5000)}
	_, err := c.Submit(context.Background(), req, domain.JobMetadata{})
	if !cerr.Is(err, cerr.KindPrecondition) {
		t.Fatalf("expected Precondition, got %v", err)
	}

	jobID := cerr.JobIDOf(err)
	record, ok := store.GetJob(jobID)
	if !ok {
		t.Fatalf("expected job record to exist")
	}
	if record.Status != domain.StatusInvalid {
		t.Fatalf("expected status INVALID, got %s", record.Status)
	}
	if ns.UsedMemory() != 0 {
		t.Fatalf("expected ledger unchanged at 0, got %d", ns.UsedMemory())
	}
	if ns.JobExists(jobID) {
		t.Fatal("expected node state to not report the job as live")
	}
}

// S3 — node full.
func TestSubmitNodeFull(t *testing.T) {
	cfg := baseConfig()
	cfg.Memory.MaxSystemMemory = 2048
	store := seededStore()
	store.SeedCommand(domain.Command{ID: "K1", Name: "run", MemoryMB: intPtr(1024)})
	ns := nodestate.New()
	ns.Init("existing")
	ns.Schedule("existing", 1500)
	sink := metrics.NewInMemorySink()
	res := newFakeResolver(domain.ExecutionPlan{ClusterID: "C1", CommandID: "K1", ApplicationIDs: nil})
	c := newTestCoordinator(cfg, store, res, &fakeKiller{}, sink, ns)

	req := domain.JobRequest{Name: "train", User: "alice"}
	_, err := c.Submit(context.Background(), req, domain.JobMetadata{})
	if !cerr.Is(err, cerr.KindServerUnavailable) {
		t.Fatalf("expected ServerUnavailable, got %v", err)
	}

	jobID := cerr.JobIDOf(err)
	record, ok := store.GetJob(jobID)
	if !ok {
		t.Fatalf("expected job record to exist")
	}
	if record.Status != domain.StatusFailed {
		t.Fatalf("expected status FAILED, got %s", record.Status)
	}
	if got := ns.UsedMemory(); got != 1500 {
		t.Fatalf("expected ledger unchanged at 1500, got %d", got)
	}
	if sink.CounterValue("submit.rejected.jobs-limit.counter") != 0 {
		t.Fatal("expected the user-quota counter to be untouched")
	}
}

// S4 — user quota.
func TestSubmitUserLimitExceeded(t *testing.T) {
	cfg := baseConfig()
	cfg.ActiveLimit = config.ActiveLimitConfig{Enabled: true, DefaultLimit: 3, UserLimits: map[string]int{"alice": 3}}
	store := seededStore()
	for i := 0; i < 3; i++ {
		jobID := "active-" + string(rune('a'+i))
		if err := store.CreateJob(context.Background(), domain.JobRecord{ID: jobID, User: "alice", Status: domain.StatusRunning}); err != nil {
			t.Fatalf("seed active job: %v", err)
		}
	}
	ns := nodestate.New()
	sink := metrics.NewInMemorySink()
	res := newFakeResolver(domain.ExecutionPlan{ClusterID: "C1", CommandID: "K1", ApplicationIDs: []string{"A1"}})
	c := newTestCoordinator(cfg, store, res, &fakeKiller{}, sink, ns)

	req := domain.JobRequest{Name: "train", User: "alice"}
	_, err := c.Submit(context.Background(), req, domain.JobMetadata{})
	if !cerr.Is(err, cerr.KindUserLimitExceeded) {
		t.Fatalf("expected UserLimitExceeded, got %v", err)
	}

	if got := sink.CounterValue("submit.rejected.jobs-limit.counter",
		metrics.Tag{Key: "user", Value: "alice"}, metrics.Tag{Key: "limit", Value: "3"}); got != 1 {
		t.Fatalf("expected counter incremented exactly once with matching tags, got %d", got)
	}
	if ns.UsedMemory() != 0 {
		t.Fatalf("expected ledger unchanged at 0, got %d", ns.UsedMemory())
	}
}

// S5 — resolver failure.
func TestSubmitResolverFailure(t *testing.T) {
	cfg := baseConfig()
	store := seededStore()
	ns := nodestate.New()
	sink := metrics.NewInMemorySink()
	res := newFailingResolver("no cluster matches")
	c := newTestCoordinator(cfg, store, res, &fakeKiller{}, sink, ns)

	req := domain.JobRequest{Name: "train", User: "alice"}
	_, err := c.Submit(context.Background(), req, domain.JobMetadata{})
	if !cerr.Is(err, cerr.KindPrecondition) {
		t.Fatalf("expected Precondition, got %v", err)
	}

	jobID := cerr.JobIDOf(err)
	record, ok := store.GetJob(jobID)
	if !ok {
		t.Fatalf("expected job record to exist")
	}
	if record.Status != domain.StatusFailed {
		t.Fatalf("expected status FAILED, got %s", record.Status)
	}
	if record.StatusMessage != canonicalResolveFailureMessage {
		t.Fatalf("expected canonical resolve failure message, got %q", record.StatusMessage)
	}
	if ns.JobExists(jobID) {
		t.Fatal("expected node state to not report the job as live")
	}
}

// S6 — id conflict.
func TestSubmitIDConflict(t *testing.T) {
	cfg := baseConfig()
	store := seededStore()
	if err := store.CreateJob(context.Background(), domain.JobRecord{ID: "J1", Status: domain.StatusInit}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ns := nodestate.New()
	sink := metrics.NewInMemorySink()
	res := newFakeResolver(domain.ExecutionPlan{ClusterID: "C1", CommandID: "K1", ApplicationIDs: []string{"A1"}})
	c := newTestCoordinator(cfg, store, res, &fakeKiller{}, sink, ns)

	req := domain.JobRequest{ID: "J1", Name: "train", User: "alice"}
	_, err := c.Submit(context.Background(), req, domain.JobMetadata{})
	if !cerr.Is(err, cerr.KindConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
	if _, ok := store.GetBinding("J1"); ok {
		t.Fatal("expected no runtime binding to be written")
	}
	if ns.JobExists("J1") {
		t.Fatal("expected node state to not contain J1")
	}
	if ns.UsedMemory() != 0 {
		t.Fatalf("expected ledger unchanged at 0, got %d", ns.UsedMemory())
	}
}

// Invariant 4 — two concurrent submissions whose combined memory exceeds
// maxSystemMemory never both succeed.
func TestConcurrentSubmissionsExactlyOneWins(t *testing.T) {
	cfg := baseConfig()
	cfg.Memory.MaxSystemMemory = 3000
	store := seededStore()
	store.SeedCommand(domain.Command{ID: "K1", Name: "run", MemoryMB: intPtr(2000)})
	ns := nodestate.New()
	sink := metrics.NewInMemorySink()
	res := newFakeResolver(domain.ExecutionPlan{ClusterID: "C1", CommandID: "K1", ApplicationIDs: []string{"A1"}})
	c := newTestCoordinator(cfg, store, res, &fakeKiller{}, sink, ns)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			req := domain.JobRequest{Name: "train", User: "alice"}
			_, err := c.Submit(context.Background(), req, domain.JobMetadata{})
			results[idx] = err
		}(i)
	}
	wg.Wait()

	successes, unavailable := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case cerr.Is(err, cerr.KindServerUnavailable):
			unavailable++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || unavailable != 1 {
		t.Fatalf("expected exactly one success and one ServerUnavailable, got %d successes, %d unavailable", successes, unavailable)
	}
	if got := ns.UsedMemory(); got != 2000 {
		t.Fatalf("expected ledger 2000 after exactly one admission, got %d", got)
	}
}

func TestKillDelegatesToKiller(t *testing.T) {
	cfg := baseConfig()
	store := seededStore()
	ns := nodestate.New()
	sink := metrics.NewInMemorySink()
	res := newFakeResolver(domain.ExecutionPlan{})
	kill := &fakeKiller{}
	c := newTestCoordinator(cfg, store, res, kill, sink, ns)

	if err := c.Kill(context.Background(), "J1", "user requested"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(kill.calls) != 1 || kill.calls[0].jobID != "J1" || kill.calls[0].reason != "user requested" {
		t.Fatalf("unexpected kill calls: %+v", kill.calls)
	}
}
