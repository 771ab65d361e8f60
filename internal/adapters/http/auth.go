package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/watchroom/server/internal/app"
	"github.com/watchroom/server/internal/auth"
	"github.com/watchroom/server/internal/domain"
)

// UserAccounts is the slice of the user store the account surface needs.
type UserAccounts interface {
	Insert(ctx context.Context, user *domain.User) error
	UpdateUsername(ctx context.Context, username, newUsername string) error
}

// AuthHandlers issues guest credentials and handles renames. Registered
// accounts authenticate elsewhere; this server only ever mints guests.
type AuthHandlers struct {
	Users UserAccounts
	Cache app.UserCache
	Auth  *auth.Resolver
	TTL   time.Duration
}

func (h *AuthHandlers) setCredential(c *gin.Context, identity domain.Identity) error {
	cred, err := h.Auth.Issue(identity)
	if err != nil {
		return err
	}
	c.SetCookie("accessToken", cred, int(h.TTL.Seconds()), "/", "", false, true)
	return nil
}

// GuestLogin creates a throwaway guest identity. The client may suggest a
// name; without one a random guest handle is minted.
func (h *AuthHandlers) GuestLogin(c *gin.Context) {
	var body struct {
		Username string `json:"username"`
	}
	_ = c.ShouldBindJSON(&body)

	chosen := body.Username != ""
	username := body.Username
	if !chosen {
		username = guestUsername()
	}
	if err := domain.ValidateUsername(username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
		return
	}

	for {
		err := h.Users.Insert(c.Request.Context(), &domain.User{
			Username:  username,
			Guest:     true,
			CreatedAt: time.Now(),
		})
		if errors.Is(err, domain.ErrDuplicateUsername) {
			if chosen {
				c.JSON(http.StatusConflict, gin.H{"msg": "username already taken"})
				return
			}
			username = guestUsername()
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("guest insert failed")
			c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal server error"})
			return
		}
		break
	}

	if err := h.setCredential(c, domain.Identity{Username: username, Guest: true}); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("credential issue failed")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": username, "guest": true})
}

// Rename changes the caller's username and reissues the credential. The
// old binding mirror is dropped; live sockets keep working because the
// registry keys on the connection, not the credential.
func (h *AuthHandlers) Rename(c *gin.Context) {
	identity := identityFrom(c)

	var body struct {
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "no username provided"})
		return
	}
	if err := domain.ValidateUsername(body.Username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": err.Error()})
		return
	}

	err := h.Users.UpdateUsername(c.Request.Context(), identity.Username, body.Username)
	switch {
	case errors.Is(err, domain.ErrDuplicateUsername):
		c.JSON(http.StatusConflict, gin.H{"msg": "username already taken"})
		return
	case errors.Is(err, domain.ErrMemberNotFound):
		c.JSON(http.StatusNotFound, gin.H{"msg": "no such user"})
		return
	case err != nil:
		log.Error().Err(err).Str("module", "adapters.http").Str("user", identity.Username).Msg("rename failed")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal server error"})
		return
	}

	h.Cache.Delete(c.Request.Context(), identity.Username, identity.Guest)

	if err := h.setCredential(c, domain.Identity{Username: body.Username, Guest: identity.Guest}); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("credential issue failed")
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": body.Username, "guest": identity.Guest})
}

func guestUsername() string {
	return "guest-" + strings.Split(uuid.NewString(), "-")[0]
}
