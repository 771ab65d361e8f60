package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/watchroom/server/internal/core"
)

func (ctl *Controller) keepalivePeriod() time.Duration {
	if ctl.PingPeriod > 0 {
		return ctl.PingPeriod
	}
	return 54 * time.Second
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.keepalivePeriod())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", c.id).Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", c.id).Msg("writePump ping failed")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Str("sid", c.id).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", c.id).Msg("readPump closing")
		cancel()
		ctl.onDisconnect(c)
		c.Close()
	}()

	if ctl.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.ReadLimit)
	}
	pongWait := ctl.keepalivePeriod() * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", c.id).Msg("readPump read error")
				return
			}
			ctl.handleMessage(ctx, c, data)
		}
	}
}

func (ctl *Controller) handleMessage(ctx context.Context, c *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "join":
		ctl.handleJoin(c, data)
	case "join-room":
		ctl.handleJoinRoom(ctx, c, data)
	case "exit-room":
		ctl.handleExitRoom(ctx, c, data)
	case "sent-message":
		ctl.handleChatMessage(c, data)
	case "send-timestamp":
		ctl.handleSendTimestamp(ctx, c, data)
	case "req-timestamp":
		ctl.handleReqTimestamp(ctx, c, data)
	case "newVideoUrl":
		ctl.handleNewVideoURL(ctx, c, data)
	case "pause-video":
		ctl.handlePauseVideo(ctx, c, data)
	case "play-video":
		ctl.handlePlayVideo(ctx, c, data)
	case "send-playback-rate":
		ctl.handlePlaybackRate(ctx, c, data)
	case "mic-on-off":
		ctl.handleMicToggle(ctx, c, data)
	case "remove-member":
		ctl.handleRemoveMember(ctx, c, data)
	case "create-peer-conn":
		ctl.handleCreatePeerConn(ctx, c, data)
	case "conn-succ":
		ctl.handleConnSucc(ctx, c, data)
	case "dest-peer":
		ctl.handleDestPeer(ctx, c, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *Controller) sendJSON(c core.Conn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

// verify gates every message after join. A mismatch means the connection
// is speaking for an identity it never bound: force-close it.
func (ctl *Controller) verify(c *wsConn, channel, username string) bool {
	if ctl.Registry.Verify(channel, username, c.id) {
		return true
	}
	log.Warn().Str("module", "signal").Str("sid", c.id).Str("user", username).Msg("binding mismatch, closing connection")
	c.Close()
	return false
}
