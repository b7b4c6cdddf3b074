package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deadhandprotocol/deadhand-backend/interfaces"
	"github.com/deadhandprotocol/deadhand-backend/metrics"
	"github.com/deadhandprotocol/deadhand-backend/vault"
	"go.uber.org/atomic"
)

// Releaser hands a triggered vault to the release pipeline. Implemented
// by the orchestrator.
type Releaser interface {
	Release(ctx context.Context, id interfaces.VaultID) error
}

// Config tunes the scheduler.
type Config struct {
	// Interval between sweeps.
	Interval time.Duration
	// Workers bounds concurrent vault evaluations per sweep.
	Workers int
}

// DefaultConfig returns the production sweep settings.
func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
		Workers:  8,
	}
}

// Scheduler drives the escalation ladder for all vaults.
type Scheduler struct {
	store    interfaces.VaultStore
	notifier interfaces.Notifier
	releaser Releaser
	cfg      Config
	log      *slog.Logger

	// now is replaceable for tests.
	now func() time.Time

	// releases tracks in-flight release handoffs so Run can wait for
	// them on shutdown.
	releases sync.WaitGroup

	transitions atomic.Uint64
	conflicts   atomic.Uint64
}

// New creates a scheduler.
func New(store interfaces.VaultStore, notifier interfaces.Notifier, releaser Releaser, cfg Config, log *slog.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		releaser: releaser,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// SetClock replaces the scheduler's clock. Test hook.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("Scheduler starting",
		slog.Duration("interval", s.cfg.Interval),
		slog.Int("workers", s.cfg.Workers))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopping")
			s.releases.Wait()
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("Sweep failed", "err", err)
			}
		}
	}
}

// Sweep evaluates every vault once, applying all transitions that are
// due at the current instant.
func (s *Scheduler) Sweep(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.SchedulerTickDuration.Observe(time.Since(start).Seconds())
	}()

	ids, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list vaults: %w", err)
	}

	work := make(chan interfaces.VaultID)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				if err := s.evaluate(ctx, id); err != nil {
					s.log.Error("Vault evaluation failed",
						slog.String("vault_id", id.String()),
						"err", err)
				}
			}
		}()
	}

	for _, id := range ids {
		select {
		case <-ctx.Done():
			close(work)
			wg.Wait()
			return ctx.Err()
		case work <- id:
		}
	}
	close(work)
	wg.Wait()
	return nil
}

// evaluate applies every due transition for one vault. Each iteration
// re-reads the record, so a concurrent heartbeat invalidates stale
// escalation decisions through the version check.
func (s *Scheduler) evaluate(ctx context.Context, id interfaces.VaultID) error {
	for {
		rec, err := s.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, interfaces.ErrVaultNotFound) {
				return nil
			}
			return err
		}

		now := s.now()
		tr := vault.DueTransition(rec, now)
		if tr == nil {
			return nil
		}

		if err := vault.ApplyTransition(rec, tr, now); err != nil {
			return err
		}

		err = s.store.CompareAndSwap(ctx, rec)
		if errors.Is(err, interfaces.ErrVersionConflict) {
			// Lost the race against a heartbeat or another evaluator;
			// whatever won decides the vault's fate. Re-read and retry.
			s.conflicts.Inc()
			metrics.CASConflicts.WithLabelValues("escalation").Inc()
			continue
		}
		if err != nil {
			return err
		}

		s.transitions.Inc()
		metrics.Escalations.WithLabelValues(tr.To.String()).Inc()
		s.log.Info("Vault escalated",
			slog.String("vault_id", id.String()),
			slog.String("from", tr.From.String()),
			slog.String("to", tr.To.String()),
			slog.Time("deadline", tr.At))

		s.afterTransition(ctx, rec, tr)

		if tr.To == interfaces.StateTriggered {
			return nil
		}
	}
}

// afterTransition performs the side effect of an applied transition:
// owner warnings for the warning states, release handoff for the
// trigger. Side effects run after the CAS so only the winning writer
// emits them.
func (s *Scheduler) afterTransition(ctx context.Context, rec *interfaces.VaultRecord, tr *vault.Transition) {
	switch tr.To {
	case interfaces.StateSoftWarned:
		s.warnOwner(ctx, rec, interfaces.NotifySoftWarning,
			"Check-in required",
			fmt.Sprintf("No check-in received since %s. Your vault escalates toward release on %s unless you check in.",
				rec.LastHeartbeatAt.Format(time.RFC3339),
				rec.LastHeartbeatAt.Add(rec.Schedule.TriggerOffset()).Format(time.RFC3339)))
	case interfaces.StateCriticalWarned:
		s.warnOwner(ctx, rec, interfaces.NotifyCriticalWarning,
			"Final warning before release",
			fmt.Sprintf("Your vault releases its custodial share on %s. Check in now to stop the release.",
				rec.LastHeartbeatAt.Add(rec.Schedule.TriggerOffset()).Format(time.RFC3339)))
	case interfaces.StateTriggered:
		if s.releaser == nil {
			return
		}
		// Delivery retries can take minutes; hand off without holding the
		// sweep worker. The ReleaseAttempted flag persisted with the
		// trigger makes this crash-safe: a process death here is picked up
		// by the startup recovery scan.
		s.releases.Add(1)
		go func() {
			defer s.releases.Done()
			if err := s.releaser.Release(ctx, rec.ID); err != nil {
				s.log.Error("Release handoff failed",
					slog.String("vault_id", rec.ID.String()),
					"err", err)
			}
		}()
	}
}

func (s *Scheduler) warnOwner(ctx context.Context, rec *interfaces.VaultRecord, kind interfaces.NotificationKind, subject, body string) {
	n := interfaces.Notification{
		Kind:    kind,
		VaultID: rec.ID,
		Subject: subject,
		Body:    body,
	}
	if err := s.notifier.Notify(ctx, rec.OwnerContact, n); err != nil {
		// Warning delivery is best-effort; the next sweep does not resend
		// because the state already advanced. Operators watch this log line.
		s.log.Error("Owner warning delivery failed",
			slog.String("vault_id", rec.ID.String()),
			slog.String("kind", string(kind)),
			"err", err)
	}
}

// Transitions returns the number of transitions applied since start.
func (s *Scheduler) Transitions() uint64 {
	return s.transitions.Load()
}

// Conflicts returns the number of CAS conflicts lost since start.
func (s *Scheduler) Conflicts() uint64 {
	return s.conflicts.Load()
}
