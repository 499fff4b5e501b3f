package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Purger удаляет записи идемпотентности старше before
type Purger interface {
	PurgeIdempotency(ctx context.Context, before time.Time) (int64, error)
}

// Janitor periodically drops idempotency records that are past the validity
// window. Expired records are already ignored by create, so a missed run only
// costs table space.
type Janitor struct {
	purger Purger
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

func NewJanitor(purger Purger, logger *zap.Logger, schedule string, ttl time.Duration) (*Janitor, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	j := &Janitor{
		purger: purger,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
		cron:   cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}

	if _, err := j.cron.AddFunc(schedule, j.tick); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}
	return j, nil
}

func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}

	j.ctx, j.cancel = context.WithCancel(ctx)
	j.running = true

	j.logger.Info("Starting idempotency janitor", zap.Duration("ttl", j.ttl))
	j.cron.Start()
}

func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	j.cancel()
	j.mu.Unlock()

	j.logger.Info("Stopping idempotency janitor...")
	<-j.cron.Stop().Done() // ждём завершения текущего прогона
	j.logger.Info("Idempotency janitor stopped")
}

// RunOnce purges everything created before now-ttl and reports how many
// records went away.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	before := j.now().UTC().Add(-j.ttl)
	n, err := j.purger.PurgeIdempotency(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.logger.Info("Purged expired idempotency records",
			zap.Int64("count", n),
			zap.Time("before", before),
		)
	}
	return n, nil
}

func (j *Janitor) tick() {
	j.mu.Lock()
	ctx := j.ctx
	j.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	if _, err := j.RunOnce(ctx); err != nil {
		j.logger.Error("janitor error", zap.Error(err))
	}
}
