package warmer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/ryanbastic/go-scorecard/internal/card"
	"github.com/ryanbastic/go-scorecard/internal/match"
	"github.com/ryanbastic/go-scorecard/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Lister pages through matches without a stored card.
type Lister interface {
	ListUncachedMatches(ctx context.Context, cursor string, limit int) (*storage.Page, error)
}

// CardGetter builds or returns a match card.
type CardGetter interface {
	Get(ctx context.Context, matchID string, forceRefresh bool) (*card.Card, error)
}

// Result summarises one warm pass.
type Result struct {
	Warmed  int
	Skipped int // matches that cannot be rendered yet
	Failed  int
}

// Warmer periodically builds cards for matches that have none. Builds go
// through the card cache, so they share in-flight builds with readers.
type Warmer struct {
	lister      Lister
	cards       CardGetter
	concurrency int
	batchSize   int
	logger      *slog.Logger

	mu    sync.Mutex
	sched gocron.Scheduler
}

// New creates a Warmer that builds up to concurrency cards at a time, listing
// batchSize matches per page.
func New(lister Lister, cards CardGetter, concurrency, batchSize int, logger *slog.Logger) *Warmer {
	if concurrency <= 0 {
		concurrency = 1
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Warmer{
		lister:      lister,
		cards:       cards,
		concurrency: concurrency,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// RunOnce warms every match that was uncached when its page was listed.
// A failed build is counted and logged; only listing errors abort the pass.
func (w *Warmer) RunOnce(ctx context.Context) (Result, error) {
	var warmed, skipped, failed atomic.Int64
	result := func() Result {
		return Result{Warmed: int(warmed.Load()), Skipped: int(skipped.Load()), Failed: int(failed.Load())}
	}

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return result(), err
		}
		page, err := w.lister.ListUncachedMatches(ctx, cursor, w.batchSize)
		if err != nil {
			return result(), fmt.Errorf("list uncached matches: %w", err)
		}

		var g errgroup.Group
		g.SetLimit(w.concurrency)
		for _, id := range page.MatchIDs {
			g.Go(func() error {
				_, err := w.cards.Get(ctx, id, false)
				switch {
				case err == nil:
					warmed.Add(1)
				case errors.Is(err, match.ErrInvalidState), errors.Is(err, match.ErrNotFound):
					skipped.Add(1)
					w.logger.Debug("warm skipped", "match_id", id, "error", err)
				default:
					failed.Add(1)
					w.logger.Warn("warm failed", "match_id", id, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()

		if !page.HasMore {
			return result(), nil
		}
		cursor = page.NextCursor
	}
}

// Start schedules RunOnce every interval, starting immediately. Runs never
// overlap; a run still going when the next is due delays it.
func (w *Warmer) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("warm interval must be positive, got %v", interval)
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			start := time.Now()
			res, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.Error("warm pass failed", "error", err)
				return
			}
			w.logger.Info("warm pass complete",
				"warmed", res.Warmed,
				"skipped", res.Skipped,
				"failed", res.Failed,
				"duration", time.Since(start),
			)
		}),
		gocron.WithName("card-warmer"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule warm job: %w", err)
	}

	w.mu.Lock()
	w.sched = sched
	w.mu.Unlock()

	sched.Start()
	w.logger.Info("card warmer started", "interval", interval, "concurrency", w.concurrency)
	return nil
}

// Stop shuts the scheduler down, waiting for a running pass to finish.
func (w *Warmer) Stop() error {
	w.mu.Lock()
	sched := w.sched
	w.sched = nil
	w.mu.Unlock()

	if sched == nil {
		return nil
	}
	return sched.Shutdown()
}
