package domain

// Room is the authoritative record of one watch session.
//
// MainRoomID is the human-shareable id; ChannelID is the transport
// multiplexing key clients subscribe their connection to. Admins[0] is
// the room's single authority.
type Room struct {
	MainRoomID   string          `bson:"mainRoomId" json:"mainRoomId"`
	ChannelID    string          `bson:"channelId" json:"channelId"`
	VideoURL     string          `bson:"videoUrl,omitempty" json:"videoUrl,omitempty"`
	Members      []string        `bson:"members" json:"members"`
	Admins       []string        `bson:"admins" json:"admins"`
	MicState     map[string]bool `bson:"membersMicState" json:"membersMicState"`
	PlaybackRate float64         `bson:"playbackRate" json:"playbackRate"`
}

func (r *Room) HasMember(username string) bool {
	for _, m := range r.Members {
		if m == username {
			return true
		}
	}
	return false
}

// Admin returns the current authority, empty string for an empty room.
func (r *Room) Admin() string {
	if len(r.Admins) == 0 {
		return ""
	}
	return r.Admins[0]
}
