// Package domain contains entity without logic, just meta-data
package domain

import "time"

const (
	MaxUsernameLen = 36
	MinUsernameLen = 4
)

// Identity is what a verified credential resolves to.
type Identity struct {
	Username string
	Guest    bool
}

// SocketBinding records which connection a user announced for a room.
// Persisted so a binding can be re-resolved after the in-memory map loses it.
type SocketBinding struct {
	Room     string `bson:"room" json:"room"`
	SocketID string `bson:"socketId" json:"socketId"`
}

type User struct {
	Email     string          `bson:"email,omitempty" json:"email,omitempty"`
	Username  string          `bson:"username" json:"username"`
	Verified  bool            `bson:"verified" json:"verified"`
	Guest     bool            `bson:"guest" json:"guest"`
	Bindings  []SocketBinding `bson:"socketIds,omitempty" json:"socketIds,omitempty"`
	CreatedAt time.Time       `bson:"createdAt" json:"createdAt"`
}

// BindingFor returns the socket id the user announced for the given room.
func (u *User) BindingFor(mainRoomID string) (string, bool) {
	for _, b := range u.Bindings {
		if b.Room == mainRoomID {
			return b.SocketID, true
		}
	}
	return "", false
}

func ValidateUsername(username string) error {
	switch {
	case len(username) < MinUsernameLen:
		return ErrUsernameTooShort
	case len(username) > MaxUsernameLen:
		return ErrUsernameTooLong
	}
	return nil
}
