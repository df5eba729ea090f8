package mongodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/davicafu/feedbacklab/internal/notifications/domain"
)

// NotificationStoreMongoDB implementa domain.Store sobre la colección "notifications".
type NotificationStoreMongoDB struct {
	coll *mongo.Collection
}

var _ domain.Store = (*NotificationStoreMongoDB)(nil)

// NewNotificationStoreMongoDB comprueba la conexión y crea el índice por destinatario.
func NewNotificationStoreMongoDB(ctx context.Context, client *mongo.Client, dbName string) (*NotificationStoreMongoDB, error) {
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not ping mongoDB: %w", err)
	}

	coll := client.Database(dbName).Collection("notifications")
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("create notifications index: %w", err)
	}
	return &NotificationStoreMongoDB{coll: coll}, nil
}

// --- Structs de BSON para el mapeo ---
// Se definen localmente para no "contaminar" el dominio con tags de BSON.

type mongoNotification struct {
	ID        string    `bson:"_id"`
	Recipient string    `bson:"recipient"`
	Channel   string    `bson:"channel"`
	Subject   string    `bson:"subject"`
	Body      string    `bson:"body"`
	EventName string    `bson:"eventName"`
	SourceID  string    `bson:"sourceId"`
	CreatedAt time.Time `bson:"createdAt"`
}

func toMongoNotification(n *domain.Notification) mongoNotification {
	return mongoNotification{
		ID:        n.ID.String(),
		Recipient: n.Recipient,
		Channel:   n.Channel,
		Subject:   n.Subject,
		Body:      n.Body,
		EventName: n.EventName,
		SourceID:  n.SourceID,
		CreatedAt: n.CreatedAt,
	}
}

func fromMongoNotification(m *mongoNotification) (*domain.Notification, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid notification id %q: %w", m.ID, err)
	}
	return &domain.Notification{
		ID:        id,
		Recipient: m.Recipient,
		Channel:   m.Channel,
		Subject:   m.Subject,
		Body:      m.Body,
		EventName: m.EventName,
		SourceID:  m.SourceID,
		CreatedAt: m.CreatedAt.UTC(),
	}, nil
}

// Save hace upsert por _id: reentregar el mismo evento no duplica documentos.
func (s *NotificationStoreMongoDB) Save(ctx context.Context, n *domain.Notification) error {
	doc := toMongoNotification(n)
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *NotificationStoreMongoDB) ListByRecipient(ctx context.Context, recipient string, limit int) ([]*domain.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.coll.Find(ctx, bson.M{"recipient": strings.ToLower(recipient)}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []*domain.Notification
	for cursor.Next(ctx) {
		var m mongoNotification
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		n, err := fromMongoNotification(&m)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, cursor.Err()
}
