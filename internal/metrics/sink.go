// Package metrics implements the coordinator's Metrics Sink: the two
// timers and one counter the admission pipeline emits, keyed by tag sets.
// The platform's own metrics subsystem is built around cgroup/GPU/process
// telemetry sampling, which has no analogue here, so this sink is grounded
// more narrowly on the platform's general tagged-map-guarded-by-a-mutex
// shape (as seen in its in-memory stores) rather than its telemetry domain
// model.
package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Tag is one key/value pair attached to a timer or counter observation.
type Tag struct {
	Key   string
	Value string
}

// Stop, returned by Timer, records the elapsed duration with any
// additional outcome tags merged into the timer's tag bag.
type Stop func(outcomeTags ...Tag)

// Sink is the interface the coordinator core depends on. A production
// deployment may swap this for a real metrics backend (StatsD, Prometheus
// push gateway, …); that wiring is out of scope here.
type Sink interface {
	Timer(name string, tags ...Tag) Stop
	Counter(name string, tags ...Tag)
}

type timerSample struct {
	count int
	total time.Duration
}

// InMemorySink is a mutex-guarded registry keyed by (name, sorted tag
// string). It is the Sink used by the coordinator's own tests, where
// assertions need to read back exactly what was recorded.
type InMemorySink struct {
	mu      sync.Mutex
	timers  map[string]*timerSample
	counts  map[string]int
	history []Observation
}

// Observation is one recorded timer or counter event, kept for tests that
// need to assert on tags rather than just aggregate counts.
type Observation struct {
	Name string
	Tags []Tag
	// Duration is zero for counter observations.
	Duration time.Duration
}

func NewInMemorySink() *InMemorySink {
	return &InMemorySink{
		timers: make(map[string]*timerSample),
		counts: make(map[string]int),
	}
}

func (s *InMemorySink) Timer(name string, tags ...Tag) Stop {
	start := time.Now()
	return func(outcomeTags ...Tag) {
		elapsed := time.Since(start)
		all := append(append([]Tag{}, tags...), outcomeTags...)
		key := tagKey(name, all)

		s.mu.Lock()
		defer s.mu.Unlock()

		sample, ok := s.timers[key]
		if !ok {
			sample = &timerSample{}
			s.timers[key] = sample
		}
		sample.count++
		sample.total += elapsed
		s.history = append(s.history, Observation{Name: name, Tags: all, Duration: elapsed})
	}
}

func (s *InMemorySink) Counter(name string, tags ...Tag) {
	key := tagKey(name, tags)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[key]++
	s.history = append(s.history, Observation{Name: name, Tags: append([]Tag{}, tags...)})
}

// CounterValue returns how many times Counter(name, tags...) was recorded
// with exactly this tag set.
func (s *InMemorySink) CounterValue(name string, tags ...Tag) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counts[tagKey(name, tags)]
}

// TimerCount returns how many times a Stop for name was invoked,
// regardless of tags.
func (s *InMemorySink) TimerCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	prefix := name + "|"
	for key, sample := range s.timers {
		if key == name || strings.HasPrefix(key, prefix) {
			total += sample.count
		}
	}
	return total
}

// History returns every recorded observation in emission order, for tests
// that need to assert on tag contents directly.
func (s *InMemorySink) History() []Observation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Observation, len(s.history))
	copy(out, s.history)
	return out
}

func tagKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	sorted := append([]Tag{}, tags...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('|')
	for i, t := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	return b.String()
}
