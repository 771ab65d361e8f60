package app

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/watchroom/server/internal/domain"
)

// RoomReader is the cache-aside read path: bounded cache read first, store
// on miss or timeout. A store hit repopulates the cache before returning,
// so a following membership write cannot be overwritten by a stale fill.
type RoomReader struct {
	Store RoomStore
	Cache RoomCache
}

func (r *RoomReader) Get(ctx context.Context, mainRoomID string) (*domain.Room, error) {
	if room, err := r.Cache.Get(ctx, mainRoomID); err == nil {
		return room, nil
	} else if !errors.Is(err, domain.ErrCacheMiss) {
		log.Warn().Err(err).Str("module", "app.rooms").Str("room", mainRoomID).Msg("unexpected cache error")
	}

	room, err := r.Store.Find(ctx, mainRoomID)
	if err != nil {
		return nil, err
	}

	r.Cache.Put(ctx, room)
	return room, nil
}
