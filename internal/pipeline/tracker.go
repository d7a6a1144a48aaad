// Package pipeline turns observed requests into session accounting and
// aggregates the request history for reporting.
package pipeline

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/theirongolddev/cccost/internal/config"
	"github.com/theirongolddev/cccost/internal/model"
)

// Store loads and saves the per-session usage file.
type Store interface {
	Load(sessionID string) (*model.UsageFile, error)
	Save(sessionID string, f *model.UsageFile) error
}

// Sink receives every observation after it has been applied.
// Observe is called with the tracker lock held and must not call back into it.
type Sink interface {
	Observe(obs model.Observation)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(model.Observation)

// Observe calls f(obs).
func (f SinkFunc) Observe(obs model.Observation) { f(obs) }

// Tracker owns the process-lifetime accounting state. Record applies one
// observation at a time; concurrent callers are serialized.
type Tracker struct {
	mu sync.Mutex

	store   Store
	pricing *config.PricingTable
	sinks   []Sink
	now     func() time.Time
	logger  *slog.Logger

	requests     int64
	models       map[string]*model.ModelAccumulator
	order        []string
	baselineDone bool
	sessionID    string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithStore persists state after each observation that carries a session id.
func WithStore(s Store) Option { return func(t *Tracker) { t.store = s } }

// WithPricing replaces the built-in pricing table.
func WithPricing(p *config.PricingTable) Option { return func(t *Tracker) { t.pricing = p } }

// WithSinks adds observation sinks.
func WithSinks(s ...Sink) Option { return func(t *Tracker) { t.sinks = append(t.sinks, s...) } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(t *Tracker) { t.now = now } }

// WithLogger sets the logger used for swallowed errors.
func WithLogger(l *slog.Logger) Option { return func(t *Tracker) { t.logger = l } }

// NewTracker returns a tracker with empty state.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		pricing: config.NewPricingTable(nil),
		now:     time.Now,
		logger:  slog.Default(),
		models:  make(map[string]*model.ModelAccumulator),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LoadBaseline merges the persisted usage of sessionID into the in-memory
// totals. It runs at most once per tracker; later calls return false.
// Record calls it on the first observation that has a session id.
func (t *Tracker) LoadBaseline(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadBaselineLocked(sessionID)
}

func (t *Tracker) loadBaselineLocked(sessionID string) bool {
	if t.baselineDone || sessionID == "" {
		return false
	}
	t.baselineDone = true

	if t.store == nil {
		return false
	}
	f, err := t.store.Load(sessionID)
	if err != nil {
		t.logger.Debug("no usage baseline", "session", sessionID, "error", err)
		return false
	}
	t.mergeLocked(f)
	return true
}

func (t *Tracker) mergeLocked(f *model.UsageFile) {
	t.requests += f.Requests

	names := make([]string, 0, len(f.Models))
	for name := range f.Models {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		b := f.Models[name]
		if b == nil {
			continue
		}
		acc := t.accumulatorLocked(name)
		acc.Requests += b.Requests
		acc.UsageRecord = acc.UsageRecord.Add(b.UsageRecord)
		acc.Cost += b.Cost
		if b.Last != nil && (acc.Last == nil || b.Last.UTCTimestamp > acc.Last.UTCTimestamp) {
			last := *b.Last
			acc.Last = &last
		}
	}
}

// Record applies one completed request and returns the resulting
// observation. Persistence and sink failures never surface here.
func (t *Tracker) Record(sessionID, modelName string, u model.UsageRecord) model.Observation {
	t.mu.Lock()
	defer t.mu.Unlock()

	if sessionID != "" {
		t.loadBaselineLocked(sessionID)
		t.sessionID = sessionID
	}

	t.requests++
	acc := t.accumulatorLocked(modelName)
	acc.Requests++

	var cost float64
	if pricing, ok := t.pricing.Lookup(modelName); ok {
		cost = CalculateCost(u, &pricing)
	}

	now := t.now()
	acc.Last = &model.LastRequest{
		UTCTimestamp: now.UnixMilli(),
		UsageRecord:  u,
		Cost:         cost,
	}
	acc.UsageRecord = acc.UsageRecord.Add(u)
	acc.Cost += cost

	obs := model.Observation{
		SessionID: sessionID,
		Model:     modelName,
		Usage:     u,
		Cost:      cost,
		At:        now,
		Requests:  t.requests,
		TotalCost: t.totalCostLocked(),

		ModelRequests: acc.Requests,
		ModelUsage:    acc.UsageRecord,
		ModelCost:     acc.Cost,
	}

	if sessionID != "" && t.store != nil {
		if err := t.store.Save(sessionID, t.snapshotLocked()); err != nil {
			t.logger.Debug("usage file not saved", "session", sessionID, "error", err)
		}
	}

	for _, s := range t.sinks {
		t.notify(s, obs)
	}
	return obs
}

func (t *Tracker) notify(s Sink, obs model.Observation) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Debug("sink panicked", "panic", r)
		}
	}()
	s.Observe(obs)
}

// Persist writes the current state for sessionID without recording anything.
func (t *Tracker) Persist(sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.store == nil {
		return nil
	}
	return t.store.Save(sessionID, t.snapshotLocked())
}

func (t *Tracker) accumulatorLocked(name string) *model.ModelAccumulator {
	acc, ok := t.models[name]
	if !ok {
		acc = &model.ModelAccumulator{}
		t.models[name] = acc
		t.order = append(t.order, name)
	}
	return acc
}

func (t *Tracker) totalCostLocked() float64 {
	var total float64
	for _, name := range t.order {
		total += t.models[name].Cost
	}
	return total
}

func (t *Tracker) snapshotLocked() *model.UsageFile {
	f := &model.UsageFile{
		Requests:  t.requests,
		TotalCost: t.totalCostLocked(),
		Models:    make(map[string]*model.ModelAccumulator, len(t.models)),
	}
	for name, acc := range t.models {
		f.Models[name] = acc.Clone()
	}
	return f
}

// Snapshot returns a deep copy of the current state in usage-file form.
func (t *Tracker) Snapshot() *model.UsageFile {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Models returns copies of all accumulators in first-seen order.
func (t *Tracker) Models() []model.NamedAccumulator {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.NamedAccumulator, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, model.NamedAccumulator{Model: name, ModelAccumulator: t.models[name].Clone()})
	}
	return out
}

// SessionID returns the most recent non-empty session id seen.
func (t *Tracker) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Requests returns the session-wide request count.
func (t *Tracker) Requests() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requests
}

// TotalCost returns the sum of all per-model cumulative costs.
func (t *Tracker) TotalCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalCostLocked()
}
