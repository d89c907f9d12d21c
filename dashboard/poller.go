package dashboard

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Poller keeps the store in step with the backend: it checks health and
// looks up both vehicles on every tick, committing the pair only when it
// changed.
type Poller struct {
	backend        Backend
	store          *Store
	log            logrus.FieldLogger
	minRefresh     time.Duration
	requestTimeout time.Duration
	now            func() time.Time
}

func NewPoller(backend Backend, store *Store, log logrus.FieldLogger, minRefresh, requestTimeout time.Duration) *Poller {
	return &Poller{
		backend:        backend,
		store:          store,
		log:            log,
		minRefresh:     minRefresh,
		requestTimeout: requestTimeout,
		now:            time.Now,
	}
}

func (p *Poller) Run(ctx context.Context) {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			start := time.Now()
			p.tick(ctx)
			// back off when the backend is slow
			t.Reset(maxDuration(time.Since(start)/2, p.minRefresh))
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	p.checkHealth(ctx)
	p.refreshVehicles(ctx)
}

func (p *Poller) checkHealth(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	token := p.store.Begin(resourceHealth)
	_, err := p.backend.CheckHealth(cctx)
	if err != nil {
		p.log.WithError(err).Warn("health check failed")
	}
	p.store.CommitHealth(token, err == nil, p.now())
}

func (p *Poller) refreshVehicles(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	token := p.store.Begin(resourceVehicles)
	pair := loadVehicles(cctx, p.backend)

	if cur, ok := p.store.Vehicles(); ok && cur.sameVehicles(pair) {
		return
	}
	pair.UpdatedAt = p.now()
	if p.store.CommitVehicles(token, pair) {
		p.log.WithFields(logrus.Fields{
			"previous": pair.Previous.Plate,
			"current":  pair.Current.Plate,
		}).Info("vehicles updated")
	} else {
		p.log.Debug("discarding stale vehicle lookup")
	}
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
