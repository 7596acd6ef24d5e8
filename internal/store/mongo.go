package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zhouzirui/relay-chat/backend/internal/model/chat"
)

const mongoCollection = "messages"

type mongoMessage struct {
	ID        string    `bson:"_id"`
	Username  string    `bson:"username"`
	Text      string    `bson:"message"`
	Timestamp time.Time `bson:"timestamp"`
}

// MongoStore keeps messages in the "messages" collection of one database.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	limit  int
}

// OpenMongo connects to uri and uses the given database.
func OpenMongo(ctx context.Context, uri, database string, limit int) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping mongo")
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(mongoCollection),
		limit:  normalizeLimit(limit),
	}, nil
}

func (s *MongoStore) SaveMessage(ctx context.Context, msg chat.Message) error {
	_, err := s.coll.InsertOne(ctx, mongoMessage{
		ID:        msg.ID,
		Username:  msg.Username,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	})
	return errors.Wrap(err, "insert message")
}

func (s *MongoStore) RecentMessages(ctx context.Context) ([]chat.Message, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(s.limit))
	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "find messages")
	}
	var docs []mongoMessage
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode messages")
	}
	messages := lo.Map(docs, func(doc mongoMessage, _ int) chat.Message {
		return chat.Message{
			ID:        doc.ID,
			Username:  doc.Username,
			Text:      doc.Text,
			Timestamp: doc.Timestamp.UTC(),
		}
	})
	return lo.Reverse(messages), nil
}

func (s *MongoStore) ClearMessages(ctx context.Context) error {
	_, err := s.coll.DeleteMany(ctx, bson.D{})
	return errors.Wrap(err, "delete messages")
}

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
