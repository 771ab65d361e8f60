// Package app holds the room session coordination logic: registry, admin
// resolution, membership lifecycle and their supporting services. Transport
// adapters call in; persistence is reached through the interfaces below.
package app

import (
	"context"
	"time"

	"github.com/watchroom/server/internal/domain"
)

// RoomStore is the durable, authoritative room record.
type RoomStore interface {
	Find(ctx context.Context, mainRoomID string) (*domain.Room, error)
	Insert(ctx context.Context, room *domain.Room) error
	AddMember(ctx context.Context, mainRoomID, username string) (*domain.Room, error)
	RemoveMember(ctx context.Context, mainRoomID, username string) (*domain.Room, error)
	SetAdmins(ctx context.Context, mainRoomID string, admins []string) error
	SetMicState(ctx context.Context, mainRoomID, username string, status bool) (*domain.Room, error)
	SetVideo(ctx context.Context, mainRoomID, videoURL string) error
	SetPlaybackRate(ctx context.Context, mainRoomID string, rate float64) error
	Delete(ctx context.Context, mainRoomID string) error
}

// RoomCache is the best-effort fast mirror. Writes never fail upward.
type RoomCache interface {
	Get(ctx context.Context, mainRoomID string) (*domain.Room, error)
	Put(ctx context.Context, room *domain.Room)
	PutMembership(ctx context.Context, room *domain.Room)
	PutMicState(ctx context.Context, mainRoomID string, micState map[string]bool)
	PutVideo(ctx context.Context, mainRoomID, videoURL string)
	PutPlaybackRate(ctx context.Context, mainRoomID string, rate float64)
	Delete(ctx context.Context, mainRoomID string)
	Exists(ctx context.Context, mainRoomID string) bool
}

type UserStore interface {
	Find(ctx context.Context, username string) (*domain.User, error)
	PushBinding(ctx context.Context, id domain.Identity, b domain.SocketBinding) (*domain.User, error)
	PullBinding(ctx context.Context, username, mainRoomID string) error
	StaleGuests(ctx context.Context, cutoff time.Time) ([]domain.User, error)
	Delete(ctx context.Context, username string) error
}

type UserCache interface {
	Bindings(ctx context.Context, username string) ([]domain.SocketBinding, error)
	PutBindings(ctx context.Context, username string, guest bool, bindings []domain.SocketBinding)
	Delete(ctx context.Context, username string, guest bool)
}

// Relay is the external media-relay collaborator. DeleteRouter failures are
// non-fatal to room deletion.
type Relay interface {
	DeleteRouter(ctx context.Context, channelID string) error
}

// VideoLookup validates that a video reference points at a real video.
type VideoLookup interface {
	Exists(ctx context.Context, videoID string) error
}
