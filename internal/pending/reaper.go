package pending

import (
	"context"
	"time"

	"github.com/dropDatabas3/oauthlink/internal/metrics"
	"github.com/dropDatabas3/oauthlink/internal/observability/logger"
)

// DefaultSweepInterval es el período del Reaper.
const DefaultSweepInterval = 60 * time.Second

// Reaper barre periódicamente los intentos vencidos.
type Reaper struct {
	store    Store
	interval time.Duration
	now      func() time.Time
}

func NewReaper(store Store, interval time.Duration, now func() time.Time) *Reaper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if now == nil {
		now = time.Now
	}
	return &Reaper{store: store, interval: interval, now: now}
}

// Run bloquea hasta que ctx se cancele. Siempre retorna nil: un sweep
// fallido se loguea y se reintenta en el próximo tick.
func (r *Reaper) Run(ctx context.Context) error {
	log := logger.From(ctx).With(logger.Component("pending.reaper"))
	log.Info("reaper started", logger.Duration(r.interval))

	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("reaper stopped")
			return nil
		case <-t.C:
			r.SweepOnce(ctx)
		}
	}
}

// SweepOnce ejecuta un sweep y retorna cuántos intentos eliminó.
func (r *Reaper) SweepOnce(ctx context.Context) int {
	log := logger.From(ctx).With(logger.Component("pending.reaper"))

	n, err := r.store.SweepExpired(ctx, r.now())
	if err != nil {
		log.Warn("sweep failed", logger.Err(err))
		return 0
	}
	metrics.PendingReaped.Add(float64(n))
	if size, err := r.store.Len(ctx); err == nil {
		metrics.PendingAttempts.Set(float64(size))
	}
	if n > 0 {
		log.Debug("expired attempts removed", logger.Count(n))
	}
	return n
}
