package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watchroom/server/internal/domain"
)

// GuestNotifier warns a guest's live connections that their session is
// about to be reaped. Implemented by the signal adapter.
type GuestNotifier interface {
	NotifyExpiring(username string, deadline time.Time)
}

// GuestSweeper reaps expired guest identities. A guest still bound to a
// room is warned first and deleted only after the grace period; their
// rooms get a clean exit transition so membership invariants hold.
type GuestSweeper struct {
	Users     UserStore
	UserCache UserCache
	Lifecycle *Lifecycle
	Notifier  GuestNotifier

	TTL    time.Duration
	Period time.Duration
	Grace  time.Duration

	notified map[string]time.Time
}

func (s *GuestSweeper) Run(ctx context.Context) {
	s.notified = make(map[string]time.Time)
	ticker := time.NewTicker(s.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *GuestSweeper) sweep(ctx context.Context) {
	stale, err := s.Users.StaleGuests(ctx, time.Now().Add(-s.TTL))
	if err != nil {
		log.Error().Err(err).Str("module", "app.sweeper").Msg("stale guest scan failed")
		return
	}

	for i := range stale {
		s.reap(ctx, &stale[i])
	}
}

func (s *GuestSweeper) reap(ctx context.Context, guest *domain.User) {
	if len(guest.Bindings) == 0 {
		s.delete(ctx, guest.Username)
		return
	}

	warnedAt, warned := s.notified[guest.Username]
	if !warned {
		deadline := time.Now().Add(s.Grace)
		s.notified[guest.Username] = time.Now()
		if s.Notifier != nil {
			s.Notifier.NotifyExpiring(guest.Username, deadline)
		}
		log.Info().Str("module", "app.sweeper").Str("user", guest.Username).Time("deadline", deadline).Msg("guest warned of expiry")
		return
	}
	if time.Since(warnedAt) < s.Grace {
		return
	}

	// Grace elapsed with rooms still bound: exit them cleanly, then delete.
	for _, b := range guest.Bindings {
		if _, err := s.Lifecycle.Exit(ctx, b.Room, guest.Username); err != nil &&
			!errors.Is(err, domain.ErrMemberNotFound) && !errors.Is(err, domain.ErrRoomNotFound) {
			log.Error().Err(err).Str("module", "app.sweeper").Str("user", guest.Username).Str("room", b.Room).Msg("forced guest exit failed")
			return
		}
	}
	s.delete(ctx, guest.Username)
}

func (s *GuestSweeper) delete(ctx context.Context, username string) {
	if err := s.Users.Delete(ctx, username); err != nil {
		log.Error().Err(err).Str("module", "app.sweeper").Str("user", username).Msg("guest delete failed")
		return
	}
	s.UserCache.Delete(ctx, username, true)
	delete(s.notified, username)
	log.Info().Str("module", "app.sweeper").Str("user", username).Msg("guest reaped")
}
