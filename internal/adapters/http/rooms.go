package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/watchroom/server/internal/app"
	"github.com/watchroom/server/internal/domain"
)

// RoomHandlers is the REST surface of the membership lifecycle. The
// real-time channel work happens over the websocket; these endpoints
// mutate the durable room state.
type RoomHandlers struct {
	Lifecycle *app.Lifecycle
	Rooms     *app.RoomReader
	Video     app.VideoLookup
}

func identityFrom(c *gin.Context) domain.Identity {
	id, _ := c.Get(identityKey)
	identity, _ := id.(domain.Identity)
	return identity
}

func (h *RoomHandlers) Create(c *gin.Context) {
	identity := identityFrom(c)

	room, err := h.Lifecycle.Create(c.Request.Context(), identity)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create room failed")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"roomId":       room.MainRoomID,
		"socketRoomId": room.ChannelID,
		"members":      room.Members,
		"admins":       room.Admins,
	})
}

func (h *RoomHandlers) Join(c *gin.Context) {
	identity := identityFrom(c)
	mainRoomID := c.Param("id")

	room, _, err := h.Lifecycle.Join(c.Request.Context(), mainRoomID, identity.Username)
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"msg": "no such room exists"})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Str("room", mainRoomID).Msg("join room failed")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"roomId":       room.MainRoomID,
		"socketRoomId": room.ChannelID,
		"members":      room.Members,
		"admins":       room.Admins,
		"username":     identity.Username,
		"videoUrl":     room.VideoURL,
	})
}

func (h *RoomHandlers) Exit(c *gin.Context) {
	identity := identityFrom(c)
	mainRoomID := c.Param("id")

	res, err := h.Lifecycle.Exit(c.Request.Context(), mainRoomID, identity.Username)
	switch {
	case errors.Is(err, domain.ErrMemberNotFound):
		c.JSON(http.StatusNotFound, gin.H{"msg": "no such member exists in the room"})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Str("room", mainRoomID).Msg("exit room failed")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal server error"})
		return
	}

	msg := "user removed from room successfully"
	if res.Deleted {
		msg = "user removed from room successfully and room deleted due to no members"
	} else if res.NewAdmin != "" {
		msg = "user removed from room successfully, new admin = " + res.NewAdmin
	}
	c.JSON(http.StatusOK, gin.H{"msg": msg})
}

// SaveURL sets the room's video. Admin-only; the URL must be a
// privacy-enhanced embed link pointing at a real video.
func (h *RoomHandlers) SaveURL(c *gin.Context) {
	identity := identityFrom(c)
	mainRoomID := c.Param("id")
	videoURL := c.Query("videoUrl")

	if videoURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "no video url provided"})
		return
	}
	videoID, err := app.ParseVideoURL(videoURL)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"msg": "invalid url"})
		return
	}

	room, err := h.Rooms.Get(c.Request.Context(), mainRoomID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"msg": "no such room exists"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal server error"})
		return
	}
	if room.Admin() != identity.Username {
		c.JSON(http.StatusForbidden, gin.H{"msg": "only admins are allowed to set video url"})
		return
	}

	if err := h.Video.Exists(c.Request.Context(), videoID); err != nil {
		if errors.Is(err, app.ErrNoSuchVideo) {
			c.JSON(http.StatusNotFound, gin.H{"msg": "no such video exists"})
			return
		}
		log.Error().Err(err).Str("module", "adapters.http").Msg("video lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal server error"})
		return
	}

	if err := h.Lifecycle.SetVideo(c.Request.Context(), mainRoomID, videoURL); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("room", mainRoomID).Msg("video persist failed")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "video url saved successfully"})
}
