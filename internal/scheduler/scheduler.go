// Package scheduler drives the alert pipeline: startup warm-up, periodic
// per-garden evaluation, and the per-alert sink fan-out. Each garden is
// evaluated on its own goroutine per tick, with a per-garden lock so a slow
// round never overlaps the next tick for the same garden.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/weatheralertd/weatheralertd/internal/logging"
	"github.com/weatheralertd/weatheralertd/internal/model"
)

// Evaluator evaluates one garden and returns its alerts.
type Evaluator interface {
	EvaluateGarden(ctx context.Context, garden model.Garden) []model.Alert
}

// UserFetcher fetches a user record, used to resolve the SMS recipient.
type UserFetcher interface {
	FetchUser(ctx context.Context, userID int) (*model.User, error)
}

// SMSSink sends an alert SMS and reports success.
type SMSSink interface {
	SendAlert(ctx context.Context, alert model.Alert, user model.User) bool
}

// BroadcastSink pushes an alert to live subscribers.
type BroadcastSink interface {
	Broadcast(alert model.Alert)
}

// HistorySink persists an alert and reports success.
type HistorySink interface {
	SaveAlert(ctx context.Context, alert model.Alert) bool
}

// CacheWarmer exposes the PlantCache operations the scheduler drives at
// startup and on a recurring schedule.
type CacheWarmer interface {
	WarmUp(ctx context.Context, userIDs []int)
	StartPeriodicRefresh(userIDs []int, interval time.Duration)
	Stop()
}

// MetricsRecorder receives per-round outcome counters.
type MetricsRecorder interface {
	RecordAlert(alertType model.AlertType)
	RecordSMS(success bool)
}

// Config tunes the scheduler's timers and optional concurrency cap.
type Config struct {
	EvalInterval         time.Duration
	CacheRefreshInterval time.Duration
	// MaxConcurrentGardens caps the number of gardens evaluated in
	// parallel per tick; 0 means unbounded (one goroutine per garden).
	MaxConcurrentGardens int
}

// Scheduler drives the startup sequence and recurring evaluation ticks.
type Scheduler struct {
	cfg       Config
	gardens   []model.Garden
	evaluator Evaluator
	users     UserFetcher
	sms       SMSSink
	broadcast BroadcastSink
	history   HistorySink
	cache     CacheWarmer
	metrics   MetricsRecorder
	log       *logging.Logger

	gardenLocks sync.Map // gardenID -> *sync.Mutex

	evalStop chan struct{}
	evalDone chan struct{}
}

// New constructs a Scheduler over the given gardens and collaborators.
func New(cfg Config, gardens []model.Garden, evaluator Evaluator, users UserFetcher, sms SMSSink, bc BroadcastSink, hist HistorySink, cache CacheWarmer, metrics MetricsRecorder) *Scheduler {
	if cfg.EvalInterval <= 0 {
		cfg.EvalInterval = 5 * time.Minute
	}
	if cfg.CacheRefreshInterval <= 0 {
		cfg.CacheRefreshInterval = 24 * time.Hour
	}
	return &Scheduler{
		cfg:       cfg,
		gardens:   gardens,
		evaluator: evaluator,
		users:     users,
		sms:       sms,
		broadcast: bc,
		history:   hist,
		cache:     cache,
		metrics:   metrics,
		log:       logging.New("scheduler"),
	}
}

func (s *Scheduler) distinctUserIDs() []int {
	seen := make(map[int]struct{})
	var out []int
	for _, g := range s.gardens {
		if _, ok := seen[g.UserID]; ok {
			continue
		}
		seen[g.UserID] = struct{}{}
		out = append(out, g.UserID)
	}
	return out
}

// Start runs the startup sequence (warm-up, start periodic refresh, one
// immediate evaluation round) and then the recurring evaluation tick, until
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	userIDs := s.distinctUserIDs()
	s.cache.WarmUp(ctx, userIDs)
	s.cache.StartPeriodicRefresh(userIDs, s.cfg.CacheRefreshInterval)

	s.evalStop = make(chan struct{})
	s.evalDone = make(chan struct{})

	s.RunOnce(ctx)

	go s.tickLoop(ctx)
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer close(s.evalDone)
	ticker := time.NewTicker(s.cfg.EvalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.evalStop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the recurring evaluation tick and the cache's periodic refresh,
// waiting up to 5s for any in-flight round to finish.
func (s *Scheduler) Stop() {
	s.cache.Stop()
	if s.evalStop == nil {
		return
	}
	close(s.evalStop)
	select {
	case <-s.evalDone:
	case <-time.After(5 * time.Second):
		s.log.Printf("stop timed out waiting for in-flight round")
	}
}

// RunOnce executes exactly one evaluation round over every configured
// garden, dispatched in parallel with an optional concurrency cap.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if len(s.gardens) == 0 {
		return
	}

	var sem chan struct{}
	if s.cfg.MaxConcurrentGardens > 0 && s.cfg.MaxConcurrentGardens < len(s.gardens) {
		sem = make(chan struct{}, s.cfg.MaxConcurrentGardens)
	}

	var wg sync.WaitGroup
	var succeeded, failed int32
	var countMu sync.Mutex

	for _, g := range s.gardens {
		garden := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			ok := s.processGarden(ctx, garden)
			countMu.Lock()
			if ok {
				succeeded++
			} else {
				failed++
			}
			countMu.Unlock()
		}()
	}
	wg.Wait()
	s.log.Printf("round complete: %d gardens succeeded, %d failed", succeeded, failed)
}

// processGarden serializes back-to-back evaluations of the same garden so a
// new tick never interleaves with a previous tick's fan-out, and never lets
// an internal error propagate.
func (s *Scheduler) processGarden(ctx context.Context, garden model.Garden) (ok bool) {
	lock := s.lockFor(garden.GardenID)
	lock.Lock()
	defer lock.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.log.Printf("recovered processing garden %s: %v", garden.GardenID, r)
			ok = false
		}
	}()

	alerts := s.evaluator.EvaluateGarden(ctx, garden)
	for _, alert := range alerts {
		s.dispatchAlert(ctx, alert)
	}
	return true
}

func (s *Scheduler) lockFor(gardenID string) *sync.Mutex {
	v, _ := s.gardenLocks.LoadOrStore(gardenID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// dispatchAlert fans one alert out to SMS, broadcast, and history in
// priority order, each isolated so a failure in one sink never prevents the
// next.
func (s *Scheduler) dispatchAlert(ctx context.Context, alert model.Alert) {
	if s.metrics != nil {
		s.metrics.RecordAlert(alert.AlertType)
	}

	s.sendSMS(ctx, alert)

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Printf("broadcast sink panicked for alert %s: %v", alert.AlertID, r)
			}
		}()
		s.broadcast.Broadcast(alert)
	}()

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Printf("history sink panicked for alert %s: %v", alert.AlertID, r)
			}
		}()
		s.history.SaveAlert(ctx, alert)
	}()
}

func (s *Scheduler) sendSMS(ctx context.Context, alert model.Alert) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Printf("sms sink panicked for alert %s: %v", alert.AlertID, r)
		}
	}()

	user, err := s.users.FetchUser(ctx, alert.UserID)
	if err != nil || user == nil {
		s.log.Printf("sms skipped for alert %s: user lookup failed: %v", alert.AlertID, err)
		if s.metrics != nil {
			s.metrics.RecordSMS(false)
		}
		return
	}
	sent := s.sms.SendAlert(ctx, alert, *user)
	if s.metrics != nil {
		s.metrics.RecordSMS(sent)
	}
}
