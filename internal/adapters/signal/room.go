package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/watchroom/server/internal/app"
	"github.com/watchroom/server/internal/domain"
)

type notification struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// membershipMsg is the fan-out payload for join-msg and exit-msg: the full
// post-transition room state so clients never merge deltas.
type membershipMsg struct {
	Type     string          `json:"type"`
	MsgObj   notification    `json:"msgObj"`
	Members  []string        `json:"members,omitempty"`
	Admins   []string        `json:"admins,omitempty"`
	MicState map[string]bool `json:"membersMicState,omitempty"`
	Joiner   string          `json:"joiner,omitempty"`
	Leaver   string          `json:"leaver,omitempty"`
}

// handleJoin consumes the pre-registration slot established at handshake
// and binds this connection to the room channel. The one message that is
// not gated by verify — it is what makes verify possible.
func (ctl *Controller) handleJoin(c *wsConn, data []byte) {
	var p struct {
		Type     string `json:"type"`
		Room     string `json:"room"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		return
	}
	if !ctl.Registry.Bind(p.Room, p.Username, c.id) {
		log.Warn().Str("module", "signal").Str("sid", c.id).Str("user", p.Username).Msg("join from unannounced connection, closing")
		c.Close()
		return
	}
}

func (ctl *Controller) handleJoinRoom(ctx context.Context, c *wsConn, data []byte) {
	var p struct {
		Type       string `json:"type"`
		Room       string `json:"room"`
		Username   string `json:"username"`
		MainRoomID string `json:"mainRoomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join-room payload")
		return
	}
	if !ctl.verify(c, p.Room, p.Username) {
		return
	}

	room, _, err := ctl.Lifecycle.Join(ctx, p.MainRoomID, p.Username)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", p.MainRoomID).Msg("join failed")
		return
	}

	// Timestamp handoff: a playing room answers through its authority, an
	// idle room starts the joiner at zero with no round trip.
	if room.VideoURL != "" {
		ctl.Pending.Register(app.ExchangeTimestamp, p.Room, p.Username, ctl.AckTimeout)
		admin, err := ctl.Registry.Resolve(ctx, p.Room, p.MainRoomID, room.Admin())
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("room", p.MainRoomID).Msg("admin connection unresolved")
		} else {
			ctl.sendJSON(admin, struct {
				Type      string `json:"type"`
				Requester string `json:"requester"`
			}{"get-timestamp", p.Username})
		}
	} else {
		ctl.sendJSON(c, struct {
			Type      string  `json:"type"`
			Timestamp float64 `json:"timestamp"`
		}{"timestamp", 0})
	}

	ctl.broadcast(p.Room, p.Username, membershipMsg{
		Type:     "join-msg",
		MsgObj:   notification{Type: "notification", Message: fmt.Sprintf("%s joined the room", p.Username)},
		Members:  room.Members,
		Admins:   room.Admins,
		MicState: room.MicState,
		Joiner:   p.Username,
	})
}

func (ctl *Controller) handleExitRoom(ctx context.Context, c *wsConn, data []byte) {
	var p struct {
		Type       string `json:"type"`
		Room       string `json:"room"`
		Username   string `json:"username"`
		MainRoomID string `json:"mainRoomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad exit-room payload")
		return
	}
	if !ctl.verify(c, p.Room, p.Username) {
		return
	}
	ctl.exitMember(ctx, p.Room, p.MainRoomID, p.Username)
}

// exitMember runs the exit transition and fans the result out. Shared by
// the explicit exit-room message and the disconnect path.
func (ctl *Controller) exitMember(ctx context.Context, channel, mainRoomID, username string) {
	msg := membershipMsg{
		Type:   "exit-msg",
		MsgObj: notification{Type: "notification", Message: fmt.Sprintf("%s left the room", username)},
		Leaver: username,
	}

	res, err := ctl.Lifecycle.Exit(ctx, mainRoomID, username)
	switch {
	case errors.Is(err, domain.ErrMemberNotFound), errors.Is(err, domain.ErrRoomNotFound):
		// Duplicate exit: nothing to mutate, still tell the channel.
	case err != nil:
		log.Error().Err(err).Str("module", "signal").Str("room", mainRoomID).Str("user", username).Msg("exit failed")
		return
	case res.Deleted:
		ctl.Registry.DropRoom(channel)
		return
	default:
		msg.Members = res.Room.Members
		msg.Admins = res.Room.Admins
		msg.MicState = res.Room.MicState
	}

	ctl.Registry.Unbind(channel, username)
	ctl.broadcast(channel, username, msg)
}

func (ctl *Controller) onDisconnect(c *wsConn) {
	ctx := context.Background()
	for _, b := range ctl.Registry.BoundRooms(c.id) {
		mainRoomID := ctl.mainRoomIDFor(ctx, b)
		if mainRoomID == "" {
			ctl.Registry.Unbind(b.Channel, b.Username)
			continue
		}
		ctl.exitMember(ctx, b.Channel, mainRoomID, b.Username)
	}
	ctl.Registry.DropConn(c.id)
	if ctl.Chat != nil {
		ctl.Chat.Forget(c.id)
	}
}

// mainRoomIDFor recovers the shareable room id from the user's persisted
// bindings; the registry only tracks the channel id.
func (ctl *Controller) mainRoomIDFor(ctx context.Context, b app.Binding) string {
	bindings, err := ctl.UserCache.Bindings(ctx, b.Username)
	if err != nil {
		user, err := ctl.Users.Find(ctx, b.Username)
		if err != nil {
			return ""
		}
		bindings = user.Bindings
	}
	for _, sb := range bindings {
		room, err := ctl.Rooms.Get(ctx, sb.Room)
		if err == nil && room.ChannelID == b.Channel {
			return sb.Room
		}
	}
	return ""
}

func (ctl *Controller) handleChatMessage(c *wsConn, data []byte) {
	var p struct {
		Type     string          `json:"type"`
		Room     string          `json:"room"`
		Username string          `json:"username"`
		MsgObj   json.RawMessage `json:"msgObj"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad sent-message payload")
		return
	}
	if !ctl.verify(c, p.Room, p.Username) {
		return
	}
	if ctl.Chat != nil && !ctl.Chat.Allow(c.id) {
		log.Warn().Str("module", "signal").Str("sid", c.id).Str("user", p.Username).Msg("chat rate limit exceeded, dropped")
		return
	}
	ctl.broadcast(p.Room, p.Username, struct {
		Type   string          `json:"type"`
		MsgObj json.RawMessage `json:"msgObj"`
	}{"receive-message", p.MsgObj})
}

// handleRemoveMember relays an exit directive to the target, which then
// performs its own exit transition.
func (ctl *Controller) handleRemoveMember(ctx context.Context, c *wsConn, data []byte) {
	var p struct {
		Type       string `json:"type"`
		Admin      string `json:"admin"`
		Member     string `json:"member"`
		Room       string `json:"socketRoomId"`
		MainRoomID string `json:"mainRoomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad remove-member payload")
		return
	}
	if !ctl.verify(c, p.Room, p.Admin) {
		return
	}
	if !ctl.Admins.IsAdmin(ctx, p.MainRoomID, p.Admin) {
		return
	}

	target, err := ctl.Registry.Resolve(ctx, p.Room, p.MainRoomID, p.Member)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("member", p.Member).Msg("remove-member target unresolved")
		return
	}
	ctl.sendJSON(target, struct {
		Type  string `json:"type"`
		Admin string `json:"admin"`
	}{"exit", p.Admin})
}
