package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// AdminCache is the process-local mirror of each room's ordered admin
// list. Lazily filled on first reference; every lifecycle mutation that
// changes admins overwrites the entry in the same operation, so there is
// no invalidate-then-refetch window an attacker could exploit.
type AdminCache struct {
	mu     sync.RWMutex
	admins map[string][]string
	rooms  *RoomReader
}

func NewAdminCache(rooms *RoomReader) *AdminCache {
	return &AdminCache{
		admins: make(map[string][]string),
		rooms:  rooms,
	}
}

// IsAdmin reports whether username is the room's authority. Resolution
// failures degrade to false: authorization errs on the side of dropping.
func (a *AdminCache) IsAdmin(ctx context.Context, mainRoomID, username string) bool {
	a.mu.RLock()
	admins, ok := a.admins[mainRoomID]
	a.mu.RUnlock()

	if !ok {
		room, err := a.rooms.Get(ctx, mainRoomID)
		if err != nil {
			log.Warn().Err(err).Str("module", "app.admins").Str("room", mainRoomID).Msg("admin resolution failed")
			return false
		}
		admins = room.Admins

		a.mu.Lock()
		// A lifecycle Set that raced the fill wins.
		if current, refilled := a.admins[mainRoomID]; refilled {
			admins = current
		} else {
			a.admins[mainRoomID] = admins
		}
		a.mu.Unlock()
	}

	for _, admin := range admins {
		if admin == username {
			return true
		}
	}
	return false
}

// Set overwrites the entry; called synchronously with every store write
// that changes the admin list.
func (a *AdminCache) Set(mainRoomID string, admins []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.admins[mainRoomID] = append([]string(nil), admins...)
}

func (a *AdminCache) Forget(mainRoomID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.admins, mainRoomID)
}
