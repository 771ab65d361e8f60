package app

import (
	"context"
	"sync"
	"time"

	"github.com/watchroom/server/internal/core"
	"github.com/watchroom/server/internal/domain"
)

// fakeRoomStore keeps rooms in a map and mimics the store's atomic
// read-modify-write operations.
type fakeRoomStore struct {
	mu    sync.Mutex
	rooms map[string]*domain.Room

	insertErr error
	findErr   error
}

func newFakeRoomStore(rooms ...*domain.Room) *fakeRoomStore {
	s := &fakeRoomStore{rooms: make(map[string]*domain.Room)}
	for _, r := range rooms {
		s.rooms[r.MainRoomID] = cloneRoom(r)
	}
	return s
}

func cloneRoom(r *domain.Room) *domain.Room {
	c := *r
	c.Members = append([]string(nil), r.Members...)
	c.Admins = append([]string(nil), r.Admins...)
	c.MicState = make(map[string]bool, len(r.MicState))
	for k, v := range r.MicState {
		c.MicState[k] = v
	}
	return &c
}

func (s *fakeRoomStore) Find(_ context.Context, mainRoomID string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	room, ok := s.rooms[mainRoomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (s *fakeRoomStore) Insert(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.rooms[room.MainRoomID] = cloneRoom(room)
	return nil
}

func (s *fakeRoomStore) AddMember(_ context.Context, mainRoomID, username string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[mainRoomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	if !room.HasMember(username) {
		room.Members = append(room.Members, username)
	}
	room.MicState[username] = false
	return cloneRoom(room), nil
}

func (s *fakeRoomStore) RemoveMember(_ context.Context, mainRoomID, username string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[mainRoomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	if !room.HasMember(username) {
		return nil, domain.ErrMemberNotFound
	}
	room.Members = remove(room.Members, username)
	room.Admins = remove(room.Admins, username)
	delete(room.MicState, username)
	return cloneRoom(room), nil
}

func remove(list []string, item string) []string {
	out := list[:0]
	for _, v := range list {
		if v != item {
			out = append(out, v)
		}
	}
	return out
}

func (s *fakeRoomStore) SetAdmins(_ context.Context, mainRoomID string, admins []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[mainRoomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.Admins = append([]string(nil), admins...)
	return nil
}

func (s *fakeRoomStore) SetMicState(_ context.Context, mainRoomID, username string, status bool) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[mainRoomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	room.MicState[username] = status
	return cloneRoom(room), nil
}

func (s *fakeRoomStore) SetVideo(_ context.Context, mainRoomID, videoURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[mainRoomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.VideoURL = videoURL
	return nil
}

func (s *fakeRoomStore) SetPlaybackRate(_ context.Context, mainRoomID string, rate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[mainRoomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	room.PlaybackRate = rate
	return nil
}

func (s *fakeRoomStore) Delete(_ context.Context, mainRoomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, mainRoomID)
	return nil
}

func (s *fakeRoomStore) get(mainRoomID string) (*domain.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[mainRoomID]
	if !ok {
		return nil, false
	}
	return cloneRoom(room), true
}

// fakeRoomCache records writes and serves Get from its own map, so tests
// can distinguish cache hits from store reads.
type fakeRoomCache struct {
	mu    sync.Mutex
	rooms map[string]*domain.Room

	puts    int
	deletes []string
	getErr  error
}

func newFakeRoomCache() *fakeRoomCache {
	return &fakeRoomCache{rooms: make(map[string]*domain.Room)}
}

func (c *fakeRoomCache) Get(_ context.Context, mainRoomID string) (*domain.Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	room, ok := c.rooms[mainRoomID]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return cloneRoom(room), nil
}

func (c *fakeRoomCache) Put(_ context.Context, room *domain.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.rooms[room.MainRoomID] = cloneRoom(room)
}

func (c *fakeRoomCache) PutMembership(_ context.Context, room *domain.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	cached, ok := c.rooms[room.MainRoomID]
	if !ok {
		c.rooms[room.MainRoomID] = cloneRoom(room)
		return
	}
	cached.Members = append([]string(nil), room.Members...)
	cached.Admins = append([]string(nil), room.Admins...)
	cached.MicState = cloneRoom(room).MicState
}

func (c *fakeRoomCache) PutMicState(_ context.Context, mainRoomID string, micState map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.rooms[mainRoomID]; ok {
		cached.MicState = micState
	}
}

func (c *fakeRoomCache) PutVideo(_ context.Context, mainRoomID, videoURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.rooms[mainRoomID]; ok {
		cached.VideoURL = videoURL
	}
}

func (c *fakeRoomCache) PutPlaybackRate(_ context.Context, mainRoomID string, rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.rooms[mainRoomID]; ok {
		cached.PlaybackRate = rate
	}
}

func (c *fakeRoomCache) Delete(_ context.Context, mainRoomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, mainRoomID)
	c.deletes = append(c.deletes, mainRoomID)
}

func (c *fakeRoomCache) Exists(_ context.Context, mainRoomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[mainRoomID]
	return ok
}

func (c *fakeRoomCache) get(mainRoomID string) (*domain.Room, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	room, ok := c.rooms[mainRoomID]
	if !ok {
		return nil, false
	}
	return cloneRoom(room), true
}

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User

	pulls []string // "username/room"
}

func newFakeUserStore(users ...*domain.User) *fakeUserStore {
	s := &fakeUserStore{users: make(map[string]*domain.User)}
	for _, u := range users {
		c := *u
		s.users[u.Username] = &c
	}
	return s
}

func (s *fakeUserStore) Find(_ context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, domain.ErrMemberNotFound
	}
	c := *u
	c.Bindings = append([]domain.SocketBinding(nil), u.Bindings...)
	return &c, nil
}

func (s *fakeUserStore) PushBinding(_ context.Context, id domain.Identity, b domain.SocketBinding) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id.Username]
	if !ok {
		u = &domain.User{Username: id.Username, Guest: id.Guest, CreatedAt: time.Now()}
		s.users[id.Username] = u
	}
	u.Bindings = append(u.Bindings, b)
	c := *u
	return &c, nil
}

func (s *fakeUserStore) PullBinding(_ context.Context, username, mainRoomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulls = append(s.pulls, username+"/"+mainRoomID)
	u, ok := s.users[username]
	if !ok {
		return domain.ErrMemberNotFound
	}
	kept := u.Bindings[:0]
	for _, b := range u.Bindings {
		if b.Room != mainRoomID {
			kept = append(kept, b)
		}
	}
	u.Bindings = kept
	return nil
}

func (s *fakeUserStore) StaleGuests(_ context.Context, cutoff time.Time) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.User
	for _, u := range s.users {
		if u.Guest && u.CreatedAt.Before(cutoff) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (s *fakeUserStore) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, username)
	return nil
}

type fakeUserCache struct {
	mu       sync.Mutex
	bindings map[string][]domain.SocketBinding
	deletes  []string
}

func newFakeUserCache() *fakeUserCache {
	return &fakeUserCache{bindings: make(map[string][]domain.SocketBinding)}
}

func (c *fakeUserCache) Bindings(_ context.Context, username string) ([]domain.SocketBinding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bindings[username]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return append([]domain.SocketBinding(nil), b...), nil
}

func (c *fakeUserCache) PutBindings(_ context.Context, username string, _ bool, bindings []domain.SocketBinding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings[username] = append([]domain.SocketBinding(nil), bindings...)
}

func (c *fakeUserCache) Delete(_ context.Context, username string, _ bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bindings, username)
	c.deletes = append(c.deletes, username)
}

type fakeRelay struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (r *fakeRelay) DeleteRouter(_ context.Context, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, channelID)
	return r.err
}

// fakeConn satisfies core.Conn and records sent frames.
type fakeConn struct {
	id string

	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}
