package app

import (
	"context"
	"fmt"
	"math/rand/v2"

	gonanoid "github.com/jaevor/go-nanoid"
)

// Shareable room ids are three hyphenated words, one from each list. The
// lists are disjoint so an id always parses back to its three positions.
var (
	roomWords1 = []string{
		"amber", "blue", "coral", "crimson", "golden", "green", "indigo",
		"ivory", "jade", "lilac", "maroon", "olive", "pearl", "pink",
		"plum", "ruby", "rust", "sand", "scarlet", "silver", "teal",
		"umber", "violet", "white",
	}
	roomWords2 = []string{
		"badger", "bear", "crane", "deer", "falcon", "ferret", "finch",
		"fox", "heron", "lark", "lynx", "marten", "mole", "otter", "owl",
		"raven", "robin", "seal", "sparrow", "stoat", "swan", "tern",
		"vole", "wren",
	}
	roomWords3 = []string{
		"brook", "cliff", "cloud", "dale", "dune", "fell", "fjord",
		"glade", "grove", "heath", "isle", "lake", "marsh", "meadow",
		"mesa", "peak", "pond", "reef", "ridge", "shore", "spring",
		"stone", "vale", "wood",
	}
)

const channelIDLen = 8

// RoomIDGenerator mints the human-shareable room id and the transport
// channel id. The cache is the collision probe: a freshly generated id is
// re-rolled while a room under it still exists.
type RoomIDGenerator struct {
	cache     RoomCache
	channelID func() string
}

func NewRoomIDGenerator(cache RoomCache) (*RoomIDGenerator, error) {
	newChannelID, err := gonanoid.Standard(channelIDLen)
	if err != nil {
		return nil, fmt.Errorf("nanoid init: %w", err)
	}
	return &RoomIDGenerator{cache: cache, channelID: newChannelID}, nil
}

func (g *RoomIDGenerator) MainRoomID(ctx context.Context) string {
	for {
		id := fmt.Sprintf("%s-%s-%s",
			roomWords1[rand.IntN(len(roomWords1))],
			roomWords2[rand.IntN(len(roomWords2))],
			roomWords3[rand.IntN(len(roomWords3))],
		)
		if !g.cache.Exists(ctx, id) {
			return id
		}
	}
}

func (g *RoomIDGenerator) ChannelID() string {
	return g.channelID()
}
