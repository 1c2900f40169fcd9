// internal/app/store/messages/messagestore.go
package messagestore

import (
	"context"
	"errors"
	"time"

	"github.com/oriundostartup/libreta/internal/app/system/normalize"
	"github.com/oriundostartup/libreta/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errNoParticipants = errors.New("message needs a sender and a recipient")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("messages")}
}

// Send stores a message. SentAt defaults to now.
func (s *Store) Send(ctx context.Context, m models.Message) (models.Message, error) {
	if m.SenderUID == "" || m.RecipientUID == "" {
		return models.Message{}, errNoParticipants
	}
	m.ID = primitive.NewObjectID()
	m.Subject = normalize.Text(m.Subject)
	m.Body = normalize.Text(m.Body)
	if m.SentAt.IsZero() {
		m.SentAt = time.Now().UTC()
	}
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// ListForParticipant returns every message the user sent or received, oldest first.
func (s *Store) ListForParticipant(ctx context.Context, uid string) ([]models.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_uid": uid},
		bson.M{"recipient_uid": uid},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead flags a message as read by its recipient.
func (s *Store) MarkRead(ctx context.Context, id primitive.ObjectID, recipientUID string) error {
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "recipient_uid": recipientUID},
		bson.M{"$set": bson.M{"read": true}})
	return err
}
