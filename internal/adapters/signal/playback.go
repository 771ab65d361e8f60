package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/watchroom/server/internal/app"
)

// handleSendTimestamp is the admin's half of the timestamp handoff: the
// answer to an earlier get-timestamp, forwarded verbatim to the requester.
// An answer nobody is waiting for (expired or never requested) is dropped.
func (ctl *Controller) handleSendTimestamp(ctx context.Context, c *wsConn, data []byte) {
	var p struct {
		Type       string  `json:"type"`
		Timestamp  float64 `json:"timestamp"`
		Room       string  `json:"socketRoom"`
		Username   string  `json:"username"` // requester
		Admin      string  `json:"admin"`
		MainRoomID string  `json:"mainRoomId"`
		Execute    bool    `json:"execute"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad send-timestamp payload")
		return
	}
	if !ctl.verify(c, p.Room, p.Admin) {
		return
	}
	if !ctl.Admins.IsAdmin(ctx, p.MainRoomID, p.Admin) {
		c.Close()
		return
	}
	if !ctl.Pending.Resolve(app.ExchangeTimestamp, p.Room, p.Username, nil) {
		log.Warn().Str("module", "signal").Str("requester", p.Username).Msg("unsolicited timestamp, dropped")
		return
	}

	requester, err := ctl.Registry.Resolve(ctx, p.Room, p.MainRoomID, p.Username)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("requester", p.Username).Msg("timestamp requester unresolved")
		return
	}
	ctl.sendJSON(requester, struct {
		Type      string  `json:"type"`
		Timestamp float64 `json:"timestamp"`
		Execute   bool    `json:"execute"`
	}{"timestamp", p.Timestamp, p.Execute})

	if p.Execute {
		ctl.sendJSON(c, struct {
			Type string `json:"type"`
		}{"received-timestamp"})
	}
}

// handleReqTimestamp lets a member re-request the current position; the
// room's authority answers with send-timestamp.
func (ctl *Controller) handleReqTimestamp(ctx context.Context, c *wsConn, data []byte) {
	var p struct {
		Type       string `json:"type"`
		Room       string `json:"socketRoom"`
		Username   string `json:"username"`
		MainRoomID string `json:"mainRoomId"`
		Execute    bool   `json:"execute"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad req-timestamp payload")
		return
	}
	if !ctl.verify(c, p.Room, p.Username) {
		return
	}

	room, err := ctl.Rooms.Get(ctx, p.MainRoomID)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", p.MainRoomID).Msg("req-timestamp for unknown room")
		return
	}
	admin, err := ctl.Registry.Resolve(ctx, p.Room, p.MainRoomID, room.Admin())
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", p.MainRoomID).Msg("admin connection unresolved")
		return
	}

	ctl.Pending.Register(app.ExchangeTimestamp, p.Room, p.Username, ctl.AckTimeout)
	ctl.sendJSON(admin, struct {
		Type      string `json:"type"`
		Requester string `json:"requester"`
		Execute   bool   `json:"execute"`
	}{"get-timestamp", p.Username, p.Execute})
}

// Playback-control messages are accepted only from the room's authority;
// anything else is a deliberate silent no-op.
func (ctl *Controller) playbackAllowed(ctx context.Context, c *wsConn, channel, mainRoomID, sender string) bool {
	if !ctl.verify(c, channel, sender) {
		return false
	}
	return ctl.Admins.IsAdmin(ctx, mainRoomID, sender)
}

func (ctl *Controller) handleNewVideoURL(ctx context.Context, c *wsConn, data []byte) {
	var p struct {
		Type       string  `json:"type"`
		Room       string  `json:"socketRoomId"`
		VideoURL   string  `json:"videoUrl"`
		VideoID    string  `json:"videoId"`
		StartTime  float64 `json:"startTime"`
		MainRoomID string  `json:"mainRoomId"`
		Username   string  `json:"username"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad newVideoUrl payload")
		return
	}
	if !ctl.playbackAllowed(ctx, c, p.Room, p.MainRoomID, p.Username) {
		return
	}

	if err := ctl.Lifecycle.SetVideo(ctx, p.MainRoomID, p.VideoURL); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", p.MainRoomID).Msg("video persist failed")
		return
	}
	ctl.broadcast(p.Room, p.Username, struct {
		Type      string  `json:"type"`
		VideoURL  string  `json:"videoUrl"`
		VideoID   string  `json:"videoId"`
		StartTime float64 `json:"startTime"`
	}{"transmit-new-video-url", p.VideoURL, p.VideoID, p.StartTime})
}

func (ctl *Controller) handlePauseVideo(ctx context.Context, c *wsConn, data []byte) {
	var p struct {
		Type       string `json:"type"`
		Room       string `json:"socketRoomId"`
		Username   string `json:"username"`
		MainRoomID string `json:"mainRoomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad pause-video payload")
		return
	}
	if !ctl.playbackAllowed(ctx, c, p.Room, p.MainRoomID, p.Username) {
		return
	}
	ctl.broadcast(p.Room, p.Username, struct {
		Type string `json:"type"`
	}{"server-pause-video"})
}

func (ctl *Controller) handlePlayVideo(ctx context.Context, c *wsConn, data []byte) {
	var p struct {
		Type         string  `json:"type"`
		Room         string  `json:"socketRoomId"`
		CurTimestamp float64 `json:"curTimestamp"`
		MainRoomID   string  `json:"mainRoomId"`
		Username     string  `json:"username"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad play-video payload")
		return
	}
	if !ctl.playbackAllowed(ctx, c, p.Room, p.MainRoomID, p.Username) {
		return
	}
	ctl.broadcast(p.Room, p.Username, struct {
		Type         string  `json:"type"`
		CurTimestamp float64 `json:"curTimestamp"`
	}{"server-play-video", p.CurTimestamp})
}

func (ctl *Controller) handlePlaybackRate(ctx context.Context, c *wsConn, data []byte) {
	var p struct {
		Type       string  `json:"type"`
		Speed      float64 `json:"speed"`
		Room       string  `json:"socketRoomId"`
		MainRoomID string  `json:"mainRoomId"`
		Username   string  `json:"username"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad send-playback-rate payload")
		return
	}
	if !ctl.playbackAllowed(ctx, c, p.Room, p.MainRoomID, p.Username) {
		return
	}

	if err := ctl.Lifecycle.SetPlaybackRate(ctx, p.MainRoomID, p.Speed); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", p.MainRoomID).Msg("playback rate persist failed")
		return
	}
	ctl.broadcast(p.Room, p.Username, struct {
		Type  string  `json:"type"`
		Speed float64 `json:"speed"`
	}{"receive-playback-rate", p.Speed})
}

// handleMicToggle accepts a self-toggle from the member or a forced toggle
// from the room's authority.
func (ctl *Controller) handleMicToggle(ctx context.Context, c *wsConn, data []byte) {
	var p struct {
		Type       string `json:"type"`
		Username   string `json:"username"` // affected member
		Sender     string `json:"sender"`
		Room       string `json:"socketRoomId"`
		MainRoomID string `json:"roomId"`
		Status     bool   `json:"status"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad mic-on-off payload")
		return
	}
	if p.Sender == "" {
		p.Sender = p.Username
	}
	if !ctl.verify(c, p.Room, p.Sender) {
		return
	}
	if p.Sender != p.Username && !ctl.Admins.IsAdmin(ctx, p.MainRoomID, p.Sender) {
		return
	}

	ctl.broadcast(p.Room, p.Sender, struct {
		Type     string `json:"type"`
		Username string `json:"username"`
		Status   bool   `json:"status"`
	}{"mic-on-off-event", p.Username, p.Status})

	if err := ctl.Lifecycle.SetMicState(ctx, p.MainRoomID, p.Username, p.Status); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", p.MainRoomID).Msg("mic state persist failed")
	}
}
