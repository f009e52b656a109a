package ranking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"chainarena/internal/core"
)

// MongoDBStore implements Store for MongoDB. UpdatePair needs a replica set.
type MongoDBStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoDBStore creates the participants collection index if it doesn't exist.
func NewMongoDBStore(database *mongo.Database) (*MongoDBStore, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}

	collection := database.Collection("participants")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "kind", Value: 1}, {Key: "rating", Value: -1}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create participants indexes: %w", err)
	}

	return &MongoDBStore{client: database.Client(), collection: collection}, nil
}

func (s *MongoDBStore) Count(ctx context.Context, kind core.Kind) (int, error) {
	n, err := s.collection.CountDocuments(ctx, bson.D{{Key: "kind", Value: kind}})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s participants: %w", kind, err)
	}
	return int(n), nil
}

func (s *MongoDBStore) InsertMissing(ctx context.Context, participants []core.Participant) error {
	if len(participants) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(participants))
	for _, p := range participants {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "kind", Value: p.Kind}, {Key: "name", Value: p.Name}}).
			SetUpdate(bson.D{{Key: "$setOnInsert", Value: p}}).
			SetUpsert(true))
	}

	if _, err := s.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to insert participants: %w", err)
	}
	return nil
}

func (s *MongoDBStore) Get(ctx context.Context, kind core.Kind, name string) (*core.Participant, error) {
	var p core.Participant
	err := s.collection.FindOne(ctx, bson.D{{Key: "kind", Value: kind}, {Key: "name", Value: name}}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, core.NewParticipantNotFoundError(kind, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", kind, name, err)
	}
	return &p, nil
}

func (s *MongoDBStore) List(ctx context.Context, kind core.Kind) ([]core.Participant, error) {
	cursor, err := s.collection.Find(ctx, bson.D{{Key: "kind", Value: kind}})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s participants: %w", kind, err)
	}
	defer cursor.Close(ctx)

	var out []core.Participant
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode participants: %w", err)
	}
	return out, nil
}

// UpdatePair writes both documents in one transaction. Concurrent votes on the
// same participant surface as write conflicts, which WithTransaction retries.
func (s *MongoDBStore) UpdatePair(ctx context.Context, kind core.Kind, left, right string, fn RatingFunc) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		rl, err := s.rating(ctx, kind, left)
		if err != nil {
			return nil, err
		}
		rr, err := s.rating(ctx, kind, right)
		if err != nil {
			return nil, err
		}

		nl, nr := fn(rl, rr)
		for _, u := range []struct {
			name   string
			rating float64
		}{{left, nl}, {right, nr}} {
			_, err := s.collection.UpdateOne(ctx,
				bson.D{{Key: "kind", Value: kind}, {Key: "name", Value: u.name}},
				bson.D{{Key: "$set", Value: bson.D{{Key: "rating", Value: u.rating}}}})
			if err != nil {
				return nil, fmt.Errorf("failed to update rating for %s: %w", u.name, err)
			}
		}
		return nil, nil
	})
	return err
}

func (s *MongoDBStore) rating(ctx context.Context, kind core.Kind, name string) (float64, error) {
	var doc struct {
		Rating float64 `bson:"rating"`
	}
	err := s.collection.FindOne(ctx, bson.D{{Key: "kind", Value: kind}, {Key: "name", Value: name}},
		options.FindOne().SetProjection(bson.D{{Key: "rating", Value: 1}})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, core.NewParticipantNotFoundError(kind, name)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rating for %s: %w", name, err)
	}
	return doc.Rating, nil
}
