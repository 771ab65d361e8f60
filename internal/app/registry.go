package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watchroom/server/internal/core"
	"github.com/watchroom/server/internal/domain"
)

// prebindTTL bounds how long a connection may sit between handshake and
// its join announcement.
const prebindTTL = 30 * time.Second

type prebindSlot struct {
	socketID string
	expires  time.Time
}

// Binding is one (channel, username) pair a connection is bound to.
type Binding struct {
	Channel  string
	Username string
}

// Registry maps (channel, username) to the currently bound connection.
// Entries for unrelated rooms never serialize against each other beyond
// the map access itself: mutations touch one room bucket, and no lock is
// held across cache or store calls.
type Registry struct {
	mu      sync.RWMutex
	conns   map[string]core.Conn
	rooms   map[string]map[string]string // channel -> username -> socket id
	prebind map[string]prebindSlot       // username -> slot set at handshake

	Users UserStore
	Cache UserCache
}

func NewRegistry(users UserStore, cache UserCache) *Registry {
	return &Registry{
		conns:   make(map[string]core.Conn),
		rooms:   make(map[string]map[string]string),
		prebind: make(map[string]prebindSlot),
		Users:   users,
		Cache:   cache,
	}
}

// AddConn registers a live connection under its socket id.
func (r *Registry) AddConn(conn core.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID()] = conn
}

// Prebind records which connection a verified identity arrived on. The
// following join announcement must come from the same connection.
func (r *Registry) Prebind(username, socketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prebind[username] = prebindSlot{socketID: socketID, expires: time.Now().Add(prebindTTL)}
	log.Info().Str("module", "app.registry").Str("user", username).Str("sid", socketID).Msg("prebound connection")
}

// Bind consumes the pre-registration slot and binds (channel, username) to
// the connection. False means the announcement came from a connection the
// identity never authenticated on.
func (r *Registry) Bind(channel, username, socketID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.prebind[username]
	if !ok || slot.socketID != socketID || time.Now().After(slot.expires) {
		return false
	}
	delete(r.prebind, username)
	r.bindLocked(channel, username, socketID)
	log.Info().Str("module", "app.registry").Str("user", username).Str("channel", channel).Msg("bound session")
	return true
}

func (r *Registry) bindLocked(channel, username, socketID string) {
	bucket, ok := r.rooms[channel]
	if !ok {
		bucket = make(map[string]string)
		r.rooms[channel] = bucket
	}
	bucket[username] = socketID
}

// Verify is the authorization check on every protocol message: true only
// if the registry's current handle for (channel, username) is the
// presented connection.
func (r *Registry) Verify(channel, username, socketID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bucket, ok := r.rooms[channel]
	if !ok {
		return false
	}
	return bucket[username] == socketID
}

func (r *Registry) Conn(socketID string) (core.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[socketID]
	return c, ok
}

// Resolve returns the connection bound for (channel, username),
// repopulating a lost entry from the binding mirror (cache first, store on
// miss). The binding is only usable if the recorded socket id belongs to a
// connection this process holds.
func (r *Registry) Resolve(ctx context.Context, channel, mainRoomID, username string) (core.Conn, error) {
	r.mu.RLock()
	socketID, ok := r.rooms[channel][username]
	if ok {
		conn, live := r.conns[socketID]
		r.mu.RUnlock()
		if live {
			return conn, nil
		}
	} else {
		r.mu.RUnlock()
	}

	bindings, err := r.Cache.Bindings(ctx, username)
	if err != nil {
		user, err := r.Users.Find(ctx, username)
		if err != nil {
			return nil, err
		}
		bindings = user.Bindings
	}

	var recorded string
	for _, b := range bindings {
		if b.Room == mainRoomID {
			recorded = b.SocketID
			break
		}
	}
	if recorded == "" {
		return nil, domain.ErrMemberNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	conn, live := r.conns[recorded]
	if !live {
		return nil, domain.ErrMemberNotFound
	}
	r.bindLocked(channel, username, recorded)
	log.Info().Str("module", "app.registry").Str("user", username).Str("channel", channel).Msg("repopulated binding")
	return conn, nil
}

// ChannelConns snapshots every connection bound to the channel except the
// excluded sender.
func (r *Registry) ChannelConns(channel, exclude string) []core.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bucket := r.rooms[channel]
	out := make([]core.Conn, 0, len(bucket))
	for username, socketID := range bucket {
		if username == exclude {
			continue
		}
		if conn, ok := r.conns[socketID]; ok {
			out = append(out, conn)
		}
	}
	return out
}

// BoundRooms lists every (channel, username) pair held by a connection;
// used on disconnect to run the exit transition for each.
func (r *Registry) BoundRooms(socketID string) []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Binding
	for channel, bucket := range r.rooms {
		for username, sid := range bucket {
			if sid == socketID {
				out = append(out, Binding{Channel: channel, Username: username})
			}
		}
	}
	return out
}

func (r *Registry) Unbind(channel, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bucket, ok := r.rooms[channel]; ok {
		delete(bucket, username)
		if len(bucket) == 0 {
			delete(r.rooms, channel)
		}
	}
}

// DropConn forgets a closed connection and any pre-registration slot that
// pointed at it. Room bindings are removed by the exit transitions.
func (r *Registry) DropConn(socketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, socketID)
	for username, slot := range r.prebind {
		if slot.socketID == socketID {
			delete(r.prebind, username)
		}
	}
}

func (r *Registry) DropRoom(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, channel)
}
