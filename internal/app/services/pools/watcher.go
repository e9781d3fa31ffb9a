package pools

import (
	"context"
	"sync"
	"time"

	"github.com/basesafe/pool-service/internal/app/domain/pool"
	"github.com/basesafe/pool-service/internal/supabase"
	"github.com/basesafe/pool-service/pkg/logger"
)

// DefaultWatchInterval is the polling cadence for the recent-pool snapshot.
const DefaultWatchInterval = 5 * time.Second

// Watcher keeps a snapshot of recent pools warm by polling the store on a
// fixed interval. When a realtime client is supplied, change events on the
// activity table trigger an immediate refresh instead of waiting for the
// next tick. Implements system.Service; the ticker is always stopped on
// Stop so nothing keeps firing after shutdown.
type Watcher struct {
	svc      *Service
	realtime *supabase.RealtimeClient
	interval time.Duration
	log      *logger.Logger

	mu     sync.RWMutex
	recent []pool.Pool

	refreshCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewWatcher creates a watcher. realtime may be nil; interval <= 0 selects
// DefaultWatchInterval.
func NewWatcher(svc *Service, realtime *supabase.RealtimeClient, interval time.Duration, log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.NewDefault("watcher")
	}
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{
		svc:       svc,
		realtime:  realtime,
		interval:  interval,
		log:       log,
		refreshCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Name implements system.Service.
func (w *Watcher) Name() string { return "activity-watcher" }

// Start loads the initial snapshot and begins the refresh loop.
func (w *Watcher) Start(ctx context.Context) error {
	w.refresh(ctx)

	if w.realtime != nil {
		if err := w.realtime.Subscribe("pool_activity", func(event *supabase.ChangeEvent) {
			select {
			case w.refreshCh <- struct{}{}:
			default:
			}
		}); err != nil {
			w.log.WithError(err).Warn("realtime subscription failed, falling back to polling only")
		}
	}

	go w.run()
	return nil
}

// Stop halts the refresh loop and waits for it to exit.
func (w *Watcher) Stop(ctx context.Context) error {
	close(w.stopCh)
	select {
	case <-w.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-w.refreshCh:
			w.refresh(context.Background())
		case <-ticker.C:
			w.refresh(context.Background())
		}
	}
}

func (w *Watcher) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	recent, err := w.svc.ListRecent(ctx)
	if err != nil {
		w.log.WithError(err).Warn("recent pool refresh failed")
		return
	}

	w.mu.Lock()
	w.recent = recent
	w.mu.Unlock()
}

// Recent returns the last snapshot of recent pools, newest first.
func (w *Watcher) Recent() []pool.Pool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]pool.Pool, len(w.recent))
	copy(out, w.recent)
	return out
}
