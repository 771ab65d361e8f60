package signal

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/watchroom/server/internal/app"
	"github.com/watchroom/server/internal/core"
	"github.com/watchroom/server/internal/domain"
)

type memRoomStore struct {
	mu    sync.Mutex
	rooms map[string]*domain.Room
}

func newMemRoomStore(rooms ...*domain.Room) *memRoomStore {
	s := &memRoomStore{rooms: make(map[string]*domain.Room)}
	for _, r := range rooms {
		s.rooms[r.MainRoomID] = copyRoom(r)
	}
	return s
}

func copyRoom(r *domain.Room) *domain.Room {
	c := *r
	c.Members = append([]string(nil), r.Members...)
	c.Admins = append([]string(nil), r.Admins...)
	c.MicState = make(map[string]bool, len(r.MicState))
	for k, v := range r.MicState {
		c.MicState[k] = v
	}
	return &c
}

func (s *memRoomStore) Find(_ context.Context, id string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return copyRoom(r), nil
}

func (s *memRoomStore) Insert(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.MainRoomID] = copyRoom(room)
	return nil
}

func (s *memRoomStore) AddMember(_ context.Context, id, username string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	if !r.HasMember(username) {
		r.Members = append(r.Members, username)
	}
	r.MicState[username] = false
	return copyRoom(r), nil
}

func (s *memRoomStore) RemoveMember(_ context.Context, id, username string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	if !r.HasMember(username) {
		return nil, domain.ErrMemberNotFound
	}
	r.Members = without(r.Members, username)
	r.Admins = without(r.Admins, username)
	delete(r.MicState, username)
	return copyRoom(r), nil
}

func without(list []string, item string) []string {
	out := list[:0]
	for _, v := range list {
		if v != item {
			out = append(out, v)
		}
	}
	return out
}

func (s *memRoomStore) SetAdmins(_ context.Context, id string, admins []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	r.Admins = append([]string(nil), admins...)
	return nil
}

func (s *memRoomStore) SetMicState(_ context.Context, id, username string, status bool) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	r.MicState[username] = status
	return copyRoom(r), nil
}

func (s *memRoomStore) SetVideo(_ context.Context, id, videoURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	r.VideoURL = videoURL
	return nil
}

func (s *memRoomStore) SetPlaybackRate(_ context.Context, id string, rate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return domain.ErrRoomNotFound
	}
	r.PlaybackRate = rate
	return nil
}

func (s *memRoomStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
	return nil
}

func (s *memRoomStore) get(id string) (*domain.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, false
	}
	return copyRoom(r), true
}

type memRoomCache struct {
	mu    sync.Mutex
	rooms map[string]*domain.Room
}

func newMemRoomCache() *memRoomCache {
	return &memRoomCache{rooms: make(map[string]*domain.Room)}
}

func (c *memRoomCache) Get(_ context.Context, id string) (*domain.Room, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rooms[id]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return copyRoom(r), nil
}

func (c *memRoomCache) Put(_ context.Context, room *domain.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[room.MainRoomID] = copyRoom(room)
}

func (c *memRoomCache) PutMembership(_ context.Context, room *domain.Room) {
	c.Put(context.Background(), room)
}

func (c *memRoomCache) PutMicState(_ context.Context, id string, micState map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.rooms[id]; ok {
		r.MicState = micState
	}
}

func (c *memRoomCache) PutVideo(_ context.Context, id, videoURL string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.rooms[id]; ok {
		r.VideoURL = videoURL
	}
}

func (c *memRoomCache) PutPlaybackRate(_ context.Context, id string, rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.rooms[id]; ok {
		r.PlaybackRate = rate
	}
}

func (c *memRoomCache) Delete(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, id)
}

func (c *memRoomCache) Exists(_ context.Context, id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[id]
	return ok
}

type memUserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*domain.User)}
}

func (s *memUserStore) Find(_ context.Context, username string) (*domain.User, error) {
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

func (s *memUserStore) PushBinding(_ context.Context, id domain.Identity, b domain.SocketBinding) (*domain.User, error) {
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

func (s *memUserStore) PullBinding(_ context.Context, username, mainRoomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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

func (s *memUserStore) StaleGuests(context.Context, time.Time) ([]domain.User, error) {
	return nil, nil
}

func (s *memUserStore) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, username)
	return nil
}

type memUserCache struct {
	mu       sync.Mutex
	bindings map[string][]domain.SocketBinding
}

func newMemUserCache() *memUserCache {
	return &memUserCache{bindings: make(map[string][]domain.SocketBinding)}
}

func (c *memUserCache) Bindings(_ context.Context, username string) ([]domain.SocketBinding, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.bindings[username]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return append([]domain.SocketBinding(nil), b...), nil
}

func (c *memUserCache) PutBindings(_ context.Context, username string, _ bool, bindings []domain.SocketBinding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings[username] = append([]domain.SocketBinding(nil), bindings...)
}

func (c *memUserCache) Delete(_ context.Context, username string, _ bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.bindings, username)
}

type noopRelay struct{}

func (noopRelay) DeleteRouter(context.Context, string) error { return nil }

// harness wires a Controller against in-memory collaborators and hands
// out one wsConn per participant; frames are read off the send chan.
type harness struct {
	t     *testing.T
	ctl   *Controller
	store *memRoomStore
	conns map[string]*wsConn
}

func newHarness(t *testing.T, rooms ...*domain.Room) *harness {
	t.Helper()
	store := newMemRoomStore(rooms...)
	cache := newMemRoomCache()
	users := newMemUserStore()
	userCache := newMemUserCache()
	reader := &app.RoomReader{Store: store, Cache: cache}
	ids, err := app.NewRoomIDGenerator(cache)
	require.NoError(t, err)

	admins := app.NewAdminCache(reader)
	ctl := &Controller{
		Registry: app.NewRegistry(users, userCache),
		Admins:   admins,
		Lifecycle: &app.Lifecycle{
			Store: store, Users: users, Cache: cache, Rooms: reader,
			Admins: admins, Relay: noopRelay{}, IDs: ids,
		},
		Rooms:      reader,
		Users:      users,
		UserCache:  userCache,
		Pending:    app.NewPending(),
		AckTimeout: 200 * time.Millisecond,
	}
	return &harness{t: t, ctl: ctl, store: store, conns: make(map[string]*wsConn)}
}

// connect mimics the handshake plus join announcement: connection added,
// prebound and bound to the channel.
func (h *harness) connect(username, channel, mainRoomID string) *wsConn {
	h.t.Helper()
	c := &wsConn{id: username + "-sid", send: make(chan core.Frame, 32)}
	_, err := h.ctl.Users.PushBinding(context.Background(), domain.Identity{Username: username}, domain.SocketBinding{
		Room: mainRoomID, SocketID: c.id,
	})
	require.NoError(h.t, err)
	u, err := h.ctl.Users.Find(context.Background(), username)
	require.NoError(h.t, err)
	h.ctl.UserCache.PutBindings(context.Background(), username, u.Guest, u.Bindings)

	h.ctl.Registry.AddConn(c)
	h.ctl.Registry.Prebind(username, c.id)
	require.True(h.t, h.ctl.Registry.Bind(channel, username, c.id))
	h.conns[username] = c
	return c
}

func (h *harness) handle(c *wsConn, raw string) {
	h.t.Helper()
	h.ctl.handleMessage(context.Background(), c, []byte(raw))
}

// recv decodes the next frame queued on the connection, failing if none
// arrives within the wait.
func (h *harness) recv(c *wsConn) map[string]any {
	h.t.Helper()
	select {
	case frame, ok := <-c.send:
		require.True(h.t, ok, "connection closed")
		var m map[string]any
		require.NoError(h.t, json.Unmarshal(frame, &m))
		return m
	case <-time.After(time.Second):
		h.t.Fatal("no frame received")
		return nil
	}
}

func (h *harness) assertSilent(c *wsConn) {
	h.t.Helper()
	select {
	case frame := <-c.send:
		h.t.Fatalf("unexpected frame: %s", frame)
	default:
	}
}
