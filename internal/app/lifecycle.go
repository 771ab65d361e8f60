package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/watchroom/server/internal/domain"
)

// Lifecycle drives every membership transition. Writes go to the store
// first (authoritative), then mirror to the cache; the admin resolution
// cache is overwritten inside the same operation as the store write.
type Lifecycle struct {
	Store  RoomStore
	Users  UserStore
	Cache  RoomCache
	Rooms  *RoomReader
	Admins *AdminCache
	Relay  Relay
	IDs    *RoomIDGenerator
}

// ExitResult reports what the exit transition did with the room.
type ExitResult struct {
	Room     *domain.Room // nil when the room was deleted
	Deleted  bool
	NewAdmin string // set when admin failover promoted a member
}

// Create brings a room from Nonexistent to Active with the caller as sole
// member and authority.
func (l *Lifecycle) Create(ctx context.Context, identity domain.Identity) (*domain.Room, error) {
	room := &domain.Room{
		MainRoomID:   l.IDs.MainRoomID(ctx),
		ChannelID:    l.IDs.ChannelID(),
		Members:      []string{identity.Username},
		Admins:       []string{identity.Username},
		MicState:     map[string]bool{identity.Username: false},
		PlaybackRate: 1,
	}
	if err := l.Store.Insert(ctx, room); err != nil {
		return nil, err
	}
	l.Cache.Put(ctx, room)
	l.Admins.Set(room.MainRoomID, room.Admins)
	log.Info().Str("module", "app.lifecycle").Str("room", room.MainRoomID).Str("user", identity.Username).Msg("room created")
	return room, nil
}

// Join appends the identity to the room. Joining a room the identity is
// already a member of is idempotent and returns the current state.
func (l *Lifecycle) Join(ctx context.Context, mainRoomID, username string) (room *domain.Room, already bool, err error) {
	room, err = l.Rooms.Get(ctx, mainRoomID)
	if err != nil {
		return nil, false, err
	}
	if room.HasMember(username) {
		return room, true, nil
	}

	room, err = l.Store.AddMember(ctx, mainRoomID, username)
	if err != nil {
		return nil, false, err
	}
	l.Cache.PutMembership(ctx, room)
	l.Admins.Set(mainRoomID, room.Admins)
	log.Info().Str("module", "app.lifecycle").Str("room", mainRoomID).Str("user", username).Msg("member joined")
	return room, false, nil
}

// Exit removes the member and cascades: admin failover when the authority
// left a non-empty room, full teardown when the last member left. A
// dropped connection funnels through here as well.
func (l *Lifecycle) Exit(ctx context.Context, mainRoomID, username string) (ExitResult, error) {
	room, err := l.Store.RemoveMember(ctx, mainRoomID, username)
	if err != nil {
		return ExitResult{}, err
	}

	if err := l.Users.PullBinding(ctx, username, mainRoomID); err != nil {
		log.Warn().Err(err).Str("module", "app.lifecycle").Str("user", username).Msg("binding cleanup failed")
	}

	if len(room.Members) == 0 {
		if err := l.Relay.DeleteRouter(ctx, room.ChannelID); err != nil {
			log.Error().Err(err).Str("module", "app.lifecycle").Str("channel", room.ChannelID).Msg("media relay teardown failed")
		}
		if err := l.Store.Delete(ctx, mainRoomID); err != nil {
			return ExitResult{}, err
		}
		l.Cache.Delete(ctx, mainRoomID)
		l.Admins.Forget(mainRoomID)
		log.Info().Str("module", "app.lifecycle").Str("room", mainRoomID).Msg("room deleted, no members left")
		return ExitResult{Deleted: true}, nil
	}

	result := ExitResult{Room: room}
	if len(room.Admins) == 0 {
		// Oldest remaining member becomes the authority.
		promoted := room.Members[0]
		room.Admins = []string{promoted}
		if err := l.Store.SetAdmins(ctx, mainRoomID, room.Admins); err != nil {
			return ExitResult{}, err
		}
		result.NewAdmin = promoted
		log.Info().Str("module", "app.lifecycle").Str("room", mainRoomID).Str("admin", promoted).Msg("admin failover")
	}

	l.Cache.PutMembership(ctx, room)
	l.Admins.Set(mainRoomID, room.Admins)
	return result, nil
}

// SetMicState persists the member's microphone flag write-through.
func (l *Lifecycle) SetMicState(ctx context.Context, mainRoomID, username string, status bool) error {
	room, err := l.Store.SetMicState(ctx, mainRoomID, username, status)
	if err != nil {
		return err
	}
	l.Cache.PutMicState(ctx, mainRoomID, room.MicState)
	return nil
}

func (l *Lifecycle) SetVideo(ctx context.Context, mainRoomID, videoURL string) error {
	if err := l.Store.SetVideo(ctx, mainRoomID, videoURL); err != nil {
		return err
	}
	l.Cache.PutVideo(ctx, mainRoomID, videoURL)
	return nil
}

func (l *Lifecycle) SetPlaybackRate(ctx context.Context, mainRoomID string, rate float64) error {
	if err := l.Store.SetPlaybackRate(ctx, mainRoomID, rate); err != nil {
		return err
	}
	l.Cache.PutPlaybackRate(ctx, mainRoomID, rate)
	return nil
}
