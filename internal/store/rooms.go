package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/watchroom/server/internal/domain"
)

const roomsCollection = "rooms"

type RoomStore struct {
	col *mongo.Collection
}

func NewRoomStore(db *mongo.Database) *RoomStore {
	return &RoomStore{col: db.Collection(roomsCollection)}
}

func (s *RoomStore) Find(ctx context.Context, mainRoomID string) (*domain.Room, error) {
	var room domain.Room
	err := s.col.FindOne(ctx, bson.M{"mainRoomId": mainRoomID}).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, storeErr("find room", err)
	}
	return &room, nil
}

func (s *RoomStore) Insert(ctx context.Context, room *domain.Room) error {
	if _, err := s.col.InsertOne(ctx, room); err != nil {
		return storeErr("insert room", err)
	}
	return nil
}

// AddMember appends the member and seeds its mic flag in one conditional
// update, returning the updated document. Adding an existing member is a
// no-op thanks to $addToSet.
func (s *RoomStore) AddMember(ctx context.Context, mainRoomID, username string) (*domain.Room, error) {
	update := bson.M{
		"$addToSet": bson.M{"members": username},
		"$set":      bson.M{"membersMicState." + username: false},
	}
	return s.findOneAndUpdate(ctx, bson.M{"mainRoomId": mainRoomID}, update, domain.ErrRoomNotFound)
}

// RemoveMember pulls the member out of members, admins and micState in a
// single atomic update. The filter requires current membership, so a
// duplicate exit surfaces as ErrMemberNotFound.
func (s *RoomStore) RemoveMember(ctx context.Context, mainRoomID, username string) (*domain.Room, error) {
	filter := bson.M{"mainRoomId": mainRoomID, "members": username}
	update := bson.M{
		"$pull":  bson.M{"members": username, "admins": username},
		"$unset": bson.M{"membersMicState." + username: ""},
	}
	return s.findOneAndUpdate(ctx, filter, update, domain.ErrMemberNotFound)
}

func (s *RoomStore) SetAdmins(ctx context.Context, mainRoomID string, admins []string) error {
	return s.updateOne(ctx, mainRoomID, bson.M{"$set": bson.M{"admins": admins}})
}

func (s *RoomStore) SetMicState(ctx context.Context, mainRoomID, username string, status bool) (*domain.Room, error) {
	update := bson.M{"$set": bson.M{"membersMicState." + username: status}}
	return s.findOneAndUpdate(ctx, bson.M{"mainRoomId": mainRoomID}, update, domain.ErrRoomNotFound)
}

func (s *RoomStore) SetVideo(ctx context.Context, mainRoomID, videoURL string) error {
	return s.updateOne(ctx, mainRoomID, bson.M{"$set": bson.M{"videoUrl": videoURL}})
}

func (s *RoomStore) SetPlaybackRate(ctx context.Context, mainRoomID string, rate float64) error {
	return s.updateOne(ctx, mainRoomID, bson.M{"$set": bson.M{"playbackRate": rate}})
}

func (s *RoomStore) Delete(ctx context.Context, mainRoomID string) error {
	if _, err := s.col.DeleteOne(ctx, bson.M{"mainRoomId": mainRoomID}); err != nil {
		return storeErr("delete room", err)
	}
	return nil
}

func (s *RoomStore) findOneAndUpdate(ctx context.Context, filter, update bson.M, notFound error) (*domain.Room, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var room domain.Room
	err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound
	}
	if err != nil {
		return nil, storeErr("update room", err)
	}
	return &room, nil
}

func (s *RoomStore) updateOne(ctx context.Context, mainRoomID string, update bson.M) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"mainRoomId": mainRoomID}, update)
	if err != nil {
		return storeErr("update room", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
