package store

import (
	"context"
	"fmt"
	"time"

	"github.com/weiawesome/emergency-chat-relay/internal/config"
	"github.com/weiawesome/emergency-chat-relay/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type mongoMessage struct {
	ID          string    `bson:"_id"`
	Seq         int64     `bson:"seq"`
	EmergencyID string    `bson:"emergency_id"`
	SenderID    string    `bson:"sender_id"`
	ReceiverID  string    `bson:"receiver_id"`
	SenderType  string    `bson:"sender_type"`
	Message     string    `bson:"message"`
	Timestamp   time.Time `bson:"timestamp"`
}

func (m *mongoMessage) toDomain() domain.ChatMessage {
	return domain.ChatMessage{
		ID:          m.ID,
		Seq:         m.Seq,
		EmergencyID: m.EmergencyID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		SenderType:  domain.SenderType(m.SenderType),
		Body:        m.Message,
		Timestamp:   m.Timestamp.UTC(),
	}
}

// MongoStore persists messages in a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	stamper    *Stamper
}

func NewMongoStore(ctx context.Context, cfg config.MongoConfig, stamper *Stamper) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	if err := EnsureMessageIndexes(connectCtx, coll); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: coll,
		stamper:    stamper,
	}, nil
}

func (s *MongoStore) Append(ctx context.Context, msg *domain.ChatMessage) (*domain.ChatMessage, error) {
	stamped, err := s.stamper.Stamp(msg)
	if err != nil {
		return nil, err
	}

	doc := mongoMessage{
		ID:          stamped.ID,
		Seq:         stamped.Seq,
		EmergencyID: stamped.EmergencyID,
		SenderID:    stamped.SenderID,
		ReceiverID:  stamped.ReceiverID,
		SenderType:  string(stamped.SenderType),
		Message:     stamped.Body,
		Timestamp:   stamped.Timestamp,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return nil, unavailable("insert message", err)
	}
	return stamped, nil
}

func (s *MongoStore) ListByEmergency(ctx context.Context, emergencyID string) ([]domain.ChatMessage, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "timestamp", Value: 1},
		{Key: "seq", Value: 1},
	})

	cursor, err := s.collection.Find(ctx, bson.M{"emergency_id": emergencyID}, opts)
	if err != nil {
		return nil, unavailable("find messages", err)
	}
	defer cursor.Close(ctx)

	messages := make([]domain.ChatMessage, 0)
	for cursor.Next(ctx) {
		var doc mongoMessage
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		messages = append(messages, doc.toDomain())
	}
	if err := cursor.Err(); err != nil {
		return nil, unavailable("iterate messages", err)
	}
	return messages, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// EnsureMessageIndexes creates the history lookup index.
func EnsureMessageIndexes(ctx context.Context, coll *mongo.Collection) error {
	models := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "emergency_id", Value: 1},
				{Key: "timestamp", Value: 1},
				{Key: "seq", Value: 1},
			},
			Options: options.Index().
				SetName("by_emergency_timestamp_seq"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, models)
	return err
}
