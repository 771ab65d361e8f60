package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/watchroom/server/internal/app"
)

// Peer-connection establishment is relayed, never interpreted: the SDP and
// ICE payloads pass through typed but untouched. Only the room's authority
// may initiate or tear down a peer connection.

func (ctl *Controller) handleCreatePeerConn(ctx context.Context, c *wsConn, data []byte) {
	var p struct {
		Type       string                     `json:"type"`
		Room       string                     `json:"socketRoomId"`
		MainRoomID string                     `json:"mainRoomId"`
		Username   string                     `json:"username"`
		Target     string                     `json:"target,omitempty"`
		Offer      *webrtc.SessionDescription `json:"offer,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad create-peer-conn payload")
		return
	}
	if !ctl.playbackAllowed(ctx, c, p.Room, p.MainRoomID, p.Username) {
		return
	}

	invitation := struct {
		Type  string                     `json:"type"`
		From  string                     `json:"from"`
		Offer *webrtc.SessionDescription `json:"offer,omitempty"`
	}{"create-peer-conn", p.Username, p.Offer}

	if p.Target == "" {
		ctl.broadcast(p.Room, p.Username, invitation)
		return
	}
	target, err := ctl.Registry.Resolve(ctx, p.Room, p.MainRoomID, p.Target)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("target", p.Target).Msg("peer invitation target unresolved")
		return
	}
	ctl.sendJSON(target, invitation)
}

// handleConnSucc carries a participant's answer back: it completes any
// pending exchange waiting on this sender and, when addressed, relays the
// answer to the initiator.
func (ctl *Controller) handleConnSucc(ctx context.Context, c *wsConn, data []byte) {
	var p struct {
		Type       string                     `json:"type"`
		Room       string                     `json:"socketRoomId"`
		MainRoomID string                     `json:"mainRoomId"`
		Username   string                     `json:"username"`
		Target     string                     `json:"target,omitempty"`
		Answer     *webrtc.SessionDescription `json:"answer,omitempty"`
		Candidate  *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad conn-succ payload")
		return
	}
	if !ctl.verify(c, p.Room, p.Username) {
		return
	}

	ctl.Pending.Resolve(app.ExchangePeerAck, p.Room, p.Username, data)

	if p.Target == "" {
		return
	}
	target, err := ctl.Registry.Resolve(ctx, p.Room, p.MainRoomID, p.Target)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("target", p.Target).Msg("conn-succ target unresolved")
		return
	}
	ctl.sendJSON(target, struct {
		Type      string                     `json:"type"`
		From      string                     `json:"from"`
		Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
		Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	}{"conn-succ", p.Username, p.Answer, p.Candidate})
}

// handleDestPeer relays a peer teardown to the target. With awaitAck set
// the admin gets a dest-peer-ack once the target answers, or a timeout
// marker after the bounded wait, so its caller never blocks indefinitely
// on an unresponsive connection.
func (ctl *Controller) handleDestPeer(ctx context.Context, c *wsConn, data []byte) {
	var p struct {
		Type       string `json:"type"`
		Room       string `json:"socketRoomId"`
		MainRoomID string `json:"mainRoomId"`
		Username   string `json:"username"`
		Target     string `json:"target"`
		AwaitAck   bool   `json:"awaitAck"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad dest-peer payload")
		return
	}
	if !ctl.playbackAllowed(ctx, c, p.Room, p.MainRoomID, p.Username) {
		return
	}

	target, err := ctl.Registry.Resolve(ctx, p.Room, p.MainRoomID, p.Target)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("target", p.Target).Msg("dest-peer target unresolved")
		return
	}

	directive := struct {
		Type string `json:"type"`
		From string `json:"from"`
	}{"dest-peer", p.Username}

	if !p.AwaitAck {
		ctl.sendJSON(target, directive)
		return
	}

	ackCh := ctl.Pending.Register(app.ExchangePeerAck, p.Room, p.Target, ctl.AckTimeout)
	ctl.sendJSON(target, directive)

	// The wait must not stall this connection's read loop.
	go func() {
		waitCtx := context.WithoutCancel(ctx)
		_, err := ctl.Pending.Await(waitCtx, ackCh, app.ExchangePeerAck, p.Room, p.Target, ctl.AckTimeout)
		if err != nil && !errors.Is(err, app.ErrAckTimeout) {
			log.Warn().Err(err).Str("module", "signal").Str("target", p.Target).Msg("dest-peer ack wait aborted")
		}
		ctl.sendJSON(c, struct {
			Type   string `json:"type"`
			Target string `json:"target"`
			Ok     bool   `json:"ok"`
		}{"dest-peer-ack", p.Target, err == nil})
	}()
}
