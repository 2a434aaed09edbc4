package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/dvloznov/pillguide/internal/domain"
)

const (
	prescriptionsCollection = "prescriptions"
	medicationsCollection   = "medications"
)

// Connect opens a MongoDB client and verifies it with a ping.
func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("Connect: connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("Connect: pinging MongoDB: %w", err)
	}

	return client, nil
}

// MongoStore implements PrescriptionRepository and MedicationRepository.
// Documents are keyed by their own "id" field; Mongo's _id is never
// returned.
type MongoStore struct {
	db            *mongo.Database
	prescriptions *mongo.Collection
	medications   *mongo.Collection
	log           zerolog.Logger
}

// NewMongoStore creates a store over db.
func NewMongoStore(db *mongo.Database, log zerolog.Logger) *MongoStore {
	return &MongoStore{
		db:            db,
		prescriptions: db.Collection(prescriptionsCollection),
		medications:   db.Collection(medicationsCollection),
		log:           log,
	}
}

// Ping checks the database connection.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

// EnsureIndexes creates the lookup indexes used by the queries below.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.prescriptions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "patient_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("EnsureIndexes: %s: %w", prescriptionsCollection, err)
	}

	_, err = s.medications.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("EnsureIndexes: %s: %w", medicationsCollection, err)
	}
	return nil
}

func (s *MongoStore) InsertPrescription(ctx context.Context, p *domain.Prescription) error {
	if _, err := s.prescriptions.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("InsertPrescription: %w", err)
	}
	return nil
}

func (s *MongoStore) ListPrescriptions(ctx context.Context, patientID string) ([]domain.Prescription, error) {
	filter := bson.M{}
	if patientID != "" {
		filter["patient_id"] = patientID
	}

	out := []domain.Prescription{}
	if err := s.findAll(ctx, s.prescriptions, filter, &out); err != nil {
		return nil, fmt.Errorf("ListPrescriptions: %w", err)
	}
	return out, nil
}

func (s *MongoStore) GetPrescription(ctx context.Context, id string) (*domain.Prescription, error) {
	var p domain.Prescription
	err := s.prescriptions.FindOne(ctx, bson.M{"id": id}, options.FindOne().SetProjection(bson.M{"_id": 0})).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetPrescription: %w", err)
	}
	return &p, nil
}

func (s *MongoStore) InsertMedication(ctx context.Context, m *domain.Medication) error {
	if _, err := s.medications.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("InsertMedication: %w", err)
	}
	return nil
}

func (s *MongoStore) ListMedications(ctx context.Context) ([]domain.Medication, error) {
	out := []domain.Medication{}
	if err := s.findAll(ctx, s.medications, bson.M{}, &out); err != nil {
		return nil, fmt.Errorf("ListMedications: %w", err)
	}
	return out, nil
}

func (s *MongoStore) DeleteMedication(ctx context.Context, id string) error {
	res, err := s.medications.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return fmt.Errorf("DeleteMedication: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// findAll decodes up to ListLimit documents, newest first, into out.
func (s *MongoStore) findAll(ctx context.Context, coll *mongo.Collection, filter bson.M, out any) error {
	opts := options.Find().
		SetProjection(bson.M{"_id": 0}).
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(ListLimit)

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	return cursor.All(ctx, out)
}
