package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/watchroom/server/internal/domain"
)

const usersCollection = "users"

type UserStore struct {
	col *mongo.Collection
}

func NewUserStore(db *mongo.Database) *UserStore {
	return &UserStore{col: db.Collection(usersCollection)}
}

func (s *UserStore) Find(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := s.col.FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, storeErr("find user", err)
	}
	return &user, nil
}

func (s *UserStore) Insert(ctx context.Context, user *domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if _, err := s.col.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), "email") {
				return domain.ErrDuplicateEmail
			}
			return domain.ErrDuplicateUsername
		}
		return storeErr("insert user", err)
	}
	return nil
}

// PushBinding records which connection the user announced for a room,
// materializing the user row on first contact.
func (s *UserStore) PushBinding(ctx context.Context, id domain.Identity, b domain.SocketBinding) (*domain.User, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After).SetUpsert(true)
	var user domain.User
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"username": id.Username},
		bson.M{
			"$push": bson.M{"socketIds": b},
			"$setOnInsert": bson.M{
				"guest":     id.Guest,
				"verified":  false,
				"createdAt": time.Now(),
			},
		},
		opts,
	).Decode(&user)
	if err != nil {
		return nil, storeErr("push binding", err)
	}
	return &user, nil
}

func (s *UserStore) PullBinding(ctx context.Context, username, mainRoomID string) error {
	_, err := s.col.UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$pull": bson.M{"socketIds": bson.M{"room": mainRoomID}}},
	)
	if err != nil {
		return storeErr("pull binding", err)
	}
	return nil
}

func (s *UserStore) UpdateUsername(ctx context.Context, username, newUsername string) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{"$set": bson.M{"username": newUsername}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateUsername
		}
		return storeErr("update username", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

// StaleGuests lists guest identities created before the cutoff. The sweeper
// decides which of them are still bound to a room.
func (s *UserStore) StaleGuests(ctx context.Context, cutoff time.Time) ([]domain.User, error) {
	cur, err := s.col.Find(ctx, bson.M{
		"guest":     true,
		"createdAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return nil, storeErr("find stale guests", err)
	}
	defer cur.Close(ctx)

	var users []domain.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, storeErr("decode stale guests", err)
	}
	return users, nil
}

func (s *UserStore) Delete(ctx context.Context, username string) error {
	if _, err := s.col.DeleteOne(ctx, bson.M{"username": username}); err != nil {
		return storeErr("delete user", err)
	}
	return nil
}
