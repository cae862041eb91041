package coordinator

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPollInterval is the cadence of the update cycle when the config
// does not override it.
const DefaultPollInterval = 45 * time.Second

// Poller drives a coordinator's update cycle at a fixed interval. Cycles are
// serialized by construction: the loop never starts a refresh while the
// previous one is in flight, and out-of-band refresh requests go through the
// same loop instead of calling the coordinator directly.
type Poller struct {
	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}
}

// StartPoller launches the polling loop and returns immediately. An initial
// refresh runs before the first tick so consumers see data at startup.
func StartPoller(ctx context.Context, coord *Coordinator, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Poller{
		cancel: cancel,
		done:   make(chan struct{}),
		kick:   make(chan struct{}, 1),
	}
	log := logger.With("component", "poller", "account", coord.Account())

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if _, err := coord.Refresh(ctx); err != nil && ctx.Err() == nil {
				log.Warn("status poll failed", "err", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-p.kick:
			}
		}
	}()
	return p
}

// Kick requests an immediate refresh. It never blocks; a request arriving
// while one is already pending is coalesced.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (p *Poller) Stop() {
	p.cancel()
	<-p.done
}
