// Package monitor serves live session usage over HTTP while the wrapper runs.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/theirongolddev/cccost/internal/model"
)

// Config controls the monitor runtime behavior.
type Config struct {
	Addr         string
	EventsBuffer int
	RateLimit    float64
	Burst        int
}

// Source provides the current accounting state.
type Source interface {
	Snapshot() *model.UsageFile
	SessionID() string
}

// ModelSnapshot is the per-model part of a Snapshot.
type ModelSnapshot struct {
	Requests int64 `json:"requests"`
	model.UsageRecord
	CostUSD float64 `json:"cost_usd"`
}

// Snapshot is a compact usage state for status payloads.
type Snapshot struct {
	At           time.Time                `json:"at"`
	SessionID    string                   `json:"session_id,omitempty"`
	Requests     int64                    `json:"requests"`
	Tokens       int64                    `json:"tokens"`
	TotalCostUSD float64                  `json:"total_cost_usd"`
	Models       map[string]ModelSnapshot `json:"models"`
}

// Event is emitted for every recorded request.
type Event struct {
	ID        int64             `json:"id"`
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	SessionID string            `json:"session_id,omitempty"`
	Model     string            `json:"model,omitempty"`
	Usage     model.UsageRecord `json:"usage"`
	CostUSD   float64           `json:"cost_usd"`
	Requests  int64             `json:"requests"`
	TotalUSD  float64           `json:"total_cost_usd"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	LastEventAt     time.Time `json:"last_event_at"`
	Addr            string    `json:"addr"`
	Summary         Snapshot  `json:"summary"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// Service provides the monitor HTTP API.
type Service struct {
	cfg    Config
	source Source
	logger *slog.Logger

	mu          sync.RWMutex
	startedAt   time.Time
	lastEventAt time.Time
	nextEventID int64
	events      []Event

	nextSubID int
	subs      map[int]chan Event
}

// New returns a monitor over source.
func New(cfg Config, source Source) *Service {
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8788"
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	if cfg.Burst < 1 {
		cfg.Burst = int(cfg.RateLimit) * 2
	}

	return &Service{
		cfg:       cfg,
		source:    source,
		logger:    slog.Default(),
		startedAt: time.Now(),
		subs:      make(map[int]chan Event),
	}
}

// Handler returns the monitor routes behind the per-client rate limiter.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/stream", s.handleStream)

	limiter := newClientLimiter(s.cfg.RateLimit, s.cfg.Burst)
	return limiter.Limit(mux)
}

// Run serves the monitor until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Listen binds the configured address.
func (s *Service) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("monitor listen: %w", err)
	}
	return ln, nil
}

// Serve serves the monitor on ln until ctx is canceled.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("monitor http server: %w", err)
	}
}

// Observe publishes an observation to event subscribers.
func (s *Service) Observe(obs model.Observation) {
	s.mu.Lock()
	s.nextEventID++
	ev := Event{
		ID:        s.nextEventID,
		Type:      "usage",
		Timestamp: obs.At,
		SessionID: obs.SessionID,
		Model:     obs.Model,
		Usage:     obs.Usage,
		CostUSD:   obs.Cost,
		Requests:  obs.Requests,
		TotalUSD:  obs.TotalCost,
	}
	s.lastEventAt = obs.At
	s.mu.Unlock()

	s.publishEvent(ev)
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func snapshotFromUsage(f *model.UsageFile, sessionID string, at time.Time) Snapshot {
	snap := Snapshot{
		At:        at,
		SessionID: sessionID,
		Models:    make(map[string]ModelSnapshot),
	}
	if f == nil {
		return snap
	}
	snap.Requests = f.Requests
	snap.TotalCostUSD = f.TotalCost
	for name, acc := range f.Models {
		snap.Models[name] = ModelSnapshot{
			Requests:    acc.Requests,
			UsageRecord: acc.UsageRecord,
			CostUSD:     acc.Cost,
		}
		snap.Tokens += acc.TotalTokens()
	}
	return snap
}

func (s *Service) currentSnapshot() Snapshot {
	if s.source == nil {
		return snapshotFromUsage(nil, "", time.Now())
	}
	return snapshotFromUsage(s.source.Snapshot(), s.source.SessionID(), time.Now())
}

func (s *Service) snapshotStatus() Status {
	summary := s.currentSnapshot()

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		LastEventAt:     s.lastEventAt,
		Addr:            s.cfg.Addr,
		Summary:         summary,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send the current totals immediately.
	writeSSE(w, "snapshot", s.currentSnapshot())
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev.Type, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", eventType)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// FetchStatus queries a running monitor.
func FetchStatus(ctx context.Context, client *http.Client, baseURL string) (Status, error) {
	var st Status
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/status", nil)
	if err != nil {
		return st, fmt.Errorf("building status request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return st, fmt.Errorf("querying monitor status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return st, fmt.Errorf("monitor status endpoint returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("decoding monitor status: %w", err)
	}
	return st, nil
}
