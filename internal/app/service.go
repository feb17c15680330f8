// Package service wires the score list, the drill-down and the action loop
// into the dashboard the terminal front end drives.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	actionqueue "github.com/okian/credash/internal/adapters/mq/queue"
	"github.com/okian/credash/internal/adapters/mq/worker"
	"github.com/okian/credash/internal/domain/drilldown"
	"github.com/okian/credash/internal/domain/listsync"
	"github.com/okian/credash/internal/domain/model"
	"github.com/okian/credash/internal/fetch"
	"github.com/okian/credash/internal/view"
	"github.com/okian/credash/pkg/logger"
)

const stopTimeout = 5 * time.Second

// Backend is everything the dashboard reads from the scoring backend.
type Backend interface {
	Health(ctx context.Context) (model.Health, error)
	Scores(ctx context.Context) ([]model.ScoreRecord, error)
	History(ctx context.Context, issuerID model.ID) ([]model.HistoryEntry, error)
	Explain(ctx context.Context, scoreID model.ID) ([]model.DriverExplanation, error)
}

// Service is one dashboard session.
type Service struct {
	mu sync.RWMutex

	// Core components
	backend    Backend
	fetcher    *fetch.Fetcher
	scores     *listsync.Sync
	detail     *drilldown.Controller
	actions    *actionqueue.InMemoryQueue
	dispatcher *worker.Worker

	// Configuration
	fetchCfg       fetch.Config
	dialer         listsync.Dialer
	pollInterval   time.Duration
	topDrivers     int
	queueSize      int
	reconnectSleep fetch.SleepFunc

	// State
	banner  string
	notice  string
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	changed chan struct{}
	updates chan struct{}
	quit    chan struct{}
	quitMu  sync.Once

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithFetchConfig sets the retry policy for every backend call.
func WithFetchConfig(cfg fetch.Config) Option {
	return func(s *Service) {
		s.fetchCfg = cfg
	}
}

// WithPushDialer enables live updates over the push channel.
func WithPushDialer(d listsync.Dialer) Option {
	return func(s *Service) {
		s.dialer = d
	}
}

// WithPollInterval adds periodic refreshes on top of push updates. Zero disables.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithTopDrivers sets how many drivers the detail view lists.
func WithTopDrivers(n int) Option {
	return func(s *Service) {
		s.topDrivers = n
	}
}

// WithQueueSize sets the maximum number of pending actions.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithReconnectSleep replaces the push reconnect wait, mainly for tests.
func WithReconnectSleep(sleep fetch.SleepFunc) Option {
	return func(s *Service) {
		s.reconnectSleep = sleep
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a dashboard over backend. Nothing runs until Start.
func New(backend Backend, opts ...Option) *Service {
	s := &Service{
		backend:    backend,
		fetchCfg:   fetch.DefaultConfig(),
		topDrivers: view.DefaultTopDrivers,
		queueSize:  64,
		changed:    make(chan struct{}, 1),
		updates:    make(chan struct{}, 1),
		quit:       make(chan struct{}),
		logger:     logger.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.fetcher = fetch.New(s.fetchCfg, fetch.WithLogger(s.logger.Named("fetch")))

	syncOpts := []listsync.Option{listsync.WithLogger(s.logger.Named("scores"))}
	if s.dialer != nil {
		syncOpts = append(syncOpts, listsync.WithDialer(s.dialer))
	}
	if s.reconnectSleep != nil {
		syncOpts = append(syncOpts, listsync.WithSleep(s.reconnectSleep))
	}
	s.scores = listsync.New(s.backend, s.fetcher, syncOpts...)
	s.detail = drilldown.New(s.backend, s.fetcher, drilldown.WithLogger(s.logger.Named("detail")))

	s.actions = actionqueue.NewInMemoryQueue(actionqueue.WithCapacity(s.queueSize))
	s.dispatcher = worker.New(s.actions, s,
		worker.WithLogger(s.logger),
		worker.WithErrorHandler(s.setNotice))

	return s
}

// Start launches the session: health check, initial refresh, push channel,
// optional polling and the action loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.logger.Info(ctx, "starting dashboard",
		logger.Bool("push", s.dialer != nil),
		logger.Duration("pollInterval", s.pollInterval),
		logger.Int("maxAttempts", s.fetchCfg.MaxAttempts))

	s.goRun(func() { s.checkHealth(runCtx) })
	s.goRun(func() { _ = s.scores.Refresh(runCtx) })
	if s.dialer != nil {
		s.goRun(func() {
			if err := s.scores.ConnectPush(runCtx); err != nil && runCtx.Err() == nil {
				s.logger.Error(runCtx, "push loop ended", logger.Error(err))
			}
		})
	}
	if s.pollInterval > 0 {
		s.goRun(func() { s.scores.Poll(runCtx, s.pollInterval) })
	}
	s.goRun(func() { s.forwardUpdates(runCtx) })
	s.goRun(func() { s.dispatcher.Run(runCtx) })

	s.started = true
	return nil
}

// Stop ends the session and waits for background work.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping dashboard")

	_ = s.actions.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, stopTimeout)
	defer shutdownCancel()
	if err := s.dispatcher.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, "dispatcher did not stop in time", logger.Error(err))
	}

	cancel()
	s.wg.Wait()
	s.scores.Wait()
	s.detail.Wait()
	s.logger.Info(ctx, "dashboard stopped")
}

// Enqueue submits a user action to the dispatch loop.
func (s *Service) Enqueue(ctx context.Context, a model.Action) error {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	if err := s.actions.Enqueue(ctx, a); err != nil {
		return fmt.Errorf("enqueue %s: %w", a, err)
	}
	return nil
}

// HandleAction applies one action. The dispatch loop is its only caller.
func (s *Service) HandleAction(ctx context.Context, a model.Action) error {
	s.clearNotice()

	switch a.Kind {
	case model.ActionSelect:
		rec, err := s.rowAt(a.Index)
		if err != nil {
			return err
		}
		s.detail.Select(ctx, rec)
	case model.ActionBack:
		s.detail.Deselect()
	case model.ActionRefresh:
		s.scores.RefreshAsync(ctx)
	case model.ActionReload:
		if _, err := s.detail.Reload(ctx); err != nil {
			return err
		}
	case model.ActionQuit:
		s.quitMu.Do(func() { close(s.quit) })
		return worker.ErrStop
	default:
		return fmt.Errorf("%w: %q", model.ErrUnknownAction, a.Kind)
	}
	return nil
}

// View projects the current state for rendering.
func (s *Service) View() view.Model {
	s.mu.RLock()
	banner, notice := s.banner, s.notice
	s.mu.RUnlock()

	m := view.Project(s.scores.Snapshot(), s.detail.Snapshot(), view.Options{
		TopDrivers: s.topDrivers,
		Banner:     banner,
	})
	m.Notice = notice
	return m
}

// Updates signals whenever View may have changed. Signals coalesce.
func (s *Service) Updates() <-chan struct{} { return s.updates }

// Done is closed once the user asked to quit.
func (s *Service) Done() <-chan struct{} { return s.quit }

// GetStats returns session statistics for logging on exit.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	st := s.scores.Snapshot()
	stats := map[string]interface{}{
		"started":     started,
		"status":      st.Status.String(),
		"push":        st.Push.String(),
		"records":     len(st.Records),
		"queueLength": s.actions.Len(),
	}
	if !st.LastSynced.IsZero() {
		stats["lastSynced"] = st.LastSynced
	}
	return stats
}

// rowAt resolves a 1-based row number as currently displayed.
func (s *Service) rowAt(n int) (model.ScoreRecord, error) {
	st := s.scores.Snapshot()
	rows := view.Project(st, drilldown.State{}, view.Options{}).Rows
	if n < 1 || n > len(rows) {
		return model.ScoreRecord{}, fmt.Errorf("%w: %d (have %d)", ErrNoSuchRow, n, len(rows))
	}
	id := rows[n-1].ScoreID
	for _, r := range st.Records {
		if r.ScoreID == id {
			return r, nil
		}
	}
	return model.ScoreRecord{}, fmt.Errorf("%w: %d", ErrNoSuchRow, n)
}

func (s *Service) checkHealth(ctx context.Context) {
	h, err := fetch.Do(ctx, s.fetcher, "health", s.backend.Health)
	if err != nil {
		s.logger.Warn(ctx, "health check failed", logger.Error(err))
		return
	}
	s.mu.Lock()
	s.banner = h.Message
	s.mu.Unlock()
	s.signal(s.changed)
}

// Reject shows why typed input did not become an action.
func (s *Service) Reject(input string, err error) {
	s.showNotice(fmt.Sprintf("%q: %v", input, err))
}

func (s *Service) setNotice(a model.Action, err error) {
	s.showNotice(fmt.Sprintf("%s: %v", a, err))
}

func (s *Service) showNotice(msg string) {
	s.mu.Lock()
	s.notice = msg
	s.mu.Unlock()
	s.signal(s.changed)
}

func (s *Service) clearNotice() {
	s.mu.Lock()
	had := s.notice != ""
	s.notice = ""
	s.mu.Unlock()
	if had {
		s.signal(s.changed)
	}
}

// forwardUpdates merges the component change signals into one.
func (s *Service) forwardUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.scores.Updates():
		case <-s.detail.Updates():
		case <-s.changed:
		}
		s.signal(s.updates)
	}
}

func (s *Service) goRun(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Service) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
