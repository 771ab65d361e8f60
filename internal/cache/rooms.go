// Package cache mirrors Presence Store rows into Redis. It is a hint, not
// a source of truth: reads are bounded by a strict timeout and fall back to
// the store, writes are best-effort and self-heal on the next miss.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/watchroom/server/internal/domain"
)

const roomKeyPrefix = "room:"

type Rooms struct {
	client      *redis.Client
	readTimeout time.Duration
}

func NewRooms(client *redis.Client, readTimeout time.Duration) *Rooms {
	return &Rooms{client: client, readTimeout: readTimeout}
}

// Get reads the room mirror bounded by the configured timeout. A slow or
// absent cache is reported as ErrCacheMiss; no other error leaves here.
func (c *Rooms) Get(ctx context.Context, mainRoomID string) (*domain.Room, error) {
	readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	fields, err := c.client.HGetAll(readCtx, roomKeyPrefix+mainRoomID).Result()
	if err != nil {
		log.Warn().Err(err).Str("module", "cache").Str("room", mainRoomID).Msg("room cache read failed")
		return nil, domain.ErrCacheMiss
	}
	if len(fields) == 0 {
		return nil, domain.ErrCacheMiss
	}

	room := domain.Room{
		MainRoomID: mainRoomID,
		ChannelID:  fields["channelId"],
		VideoURL:   fields["videoUrl"],
	}
	if err := json.Unmarshal([]byte(fields["members"]), &room.Members); err != nil {
		log.Warn().Err(err).Str("module", "cache").Str("room", mainRoomID).Msg("corrupt members field")
		return nil, domain.ErrCacheMiss
	}
	if err := json.Unmarshal([]byte(fields["admins"]), &room.Admins); err != nil {
		return nil, domain.ErrCacheMiss
	}
	if err := json.Unmarshal([]byte(fields["micState"]), &room.MicState); err != nil {
		return nil, domain.ErrCacheMiss
	}
	room.PlaybackRate, _ = strconv.ParseFloat(fields["playbackRate"], 64)
	if room.PlaybackRate == 0 {
		room.PlaybackRate = 1
	}
	return &room, nil
}

// Put mirrors the whole room. Write failures are logged and swallowed; the
// store stays authoritative.
func (c *Rooms) Put(ctx context.Context, room *domain.Room) {
	c.hset(ctx, room.MainRoomID, map[string]any{
		"channelId":    room.ChannelID,
		"videoUrl":     room.VideoURL,
		"members":      marshal(room.Members),
		"admins":       marshal(room.Admins),
		"micState":     marshal(room.MicState),
		"playbackRate": strconv.FormatFloat(room.PlaybackRate, 'f', -1, 64),
	})
}

// PutMembership mirrors members, admins and micState together. Always whole
// field values: a partial update would race other writers on the same hash.
func (c *Rooms) PutMembership(ctx context.Context, room *domain.Room) {
	c.hset(ctx, room.MainRoomID, map[string]any{
		"members":  marshal(room.Members),
		"admins":   marshal(room.Admins),
		"micState": marshal(room.MicState),
	})
}

func (c *Rooms) PutMicState(ctx context.Context, mainRoomID string, micState map[string]bool) {
	c.hset(ctx, mainRoomID, map[string]any{"micState": marshal(micState)})
}

func (c *Rooms) PutVideo(ctx context.Context, mainRoomID, videoURL string) {
	c.hset(ctx, mainRoomID, map[string]any{"videoUrl": videoURL})
}

func (c *Rooms) PutPlaybackRate(ctx context.Context, mainRoomID string, rate float64) {
	c.hset(ctx, mainRoomID, map[string]any{"playbackRate": strconv.FormatFloat(rate, 'f', -1, 64)})
}

func (c *Rooms) Delete(ctx context.Context, mainRoomID string) {
	if err := c.client.Del(ctx, roomKeyPrefix+mainRoomID).Err(); err != nil {
		log.Warn().Err(err).Str("module", "cache").Str("room", mainRoomID).Msg("room cache delete failed")
	}
}

// Exists is the collision probe used while generating room ids.
func (c *Rooms) Exists(ctx context.Context, mainRoomID string) bool {
	n, err := c.client.Exists(ctx, roomKeyPrefix+mainRoomID).Result()
	if err != nil {
		log.Warn().Err(err).Str("module", "cache").Msg("room exists probe failed")
		return false
	}
	return n > 0
}

func (c *Rooms) hset(ctx context.Context, mainRoomID string, fields map[string]any) {
	if err := c.client.HSet(ctx, roomKeyPrefix+mainRoomID, fields).Err(); err != nil {
		log.Warn().Err(err).Str("module", "cache").Str("room", mainRoomID).Msg("room cache write failed")
	}
}

func marshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
