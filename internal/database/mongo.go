package database

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

	"github.com/PrashantPatil10178/IOTPulse-sub000/internal/models"
)

const (
	usersCollection      = "users"
	devicesCollection    = "devices"
	sensorDataCollection = "sensor_data"
)

// MongoStore keeps users, devices and readings as documents
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger zerolog.Logger
}

// NewMongoStore connects to MongoDB and verifies the connection with a ping
func NewMongoStore(ctx context.Context, uri, database string, logger zerolog.Logger) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &MongoStore{
		client: client,
		db:     client.Database(database),
		logger: logger.With().Str("component", "mongo").Logger(),
	}
	s.logger.Info().Str("database", database).Msg("connected to MongoDB")
	return s, nil
}

func (s *MongoStore) FindUser(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.findOne(ctx, usersCollection, bson.M{"username": username}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.findOne(ctx, usersCollection, bson.M{"_id": id}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *MongoStore) FindDevice(ctx context.Context, id string) (*models.Device, error) {
	var d models.Device
	if err := s.findOne(ctx, devicesCollection, bson.M{"_id": id}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *MongoStore) findOne(ctx context.Context, collection string, filter bson.M, out interface{}) error {
	err := s.db.Collection(collection).FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", collection, err)
	}
	return nil
}

func (s *MongoStore) CreateReading(ctx context.Context, deviceID string, data models.StructuredReading, timestamp time.Time) (*models.SensorDataRecord, error) {
	rec := newRecord(deviceID, data, timestamp)
	if _, err := s.db.Collection(sensorDataCollection).InsertOne(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to insert sensor data: %w", err)
	}
	return rec, nil
}

// UpdateDevice sets the patched fields and returns the device after the update
func (s *MongoStore) UpdateDevice(ctx context.Context, id string, patch models.DevicePatch) (*models.Device, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if patch.Status != nil {
		set["status"] = *patch.Status
	}
	if patch.LastSeen != nil {
		set["last_seen"] = *patch.LastSeen
	}
	if patch.IPAddress != nil {
		set["ip_address"] = *patch.IPAddress
	}
	if patch.Location != nil {
		set["location"] = *patch.Location
	}
	if patch.LastKnownLocation != nil {
		set["last_known_location"] = *patch.LastKnownLocation
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d models.Device
	err := s.db.Collection(devicesCollection).
		FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).
		Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update device: %w", err)
	}
	return &d, nil
}

// UpsertUser inserts or replaces a user document
func (s *MongoStore) UpsertUser(ctx context.Context, u *models.User) error {
	_, err := s.db.Collection(usersCollection).
		ReplaceOne(ctx, bson.M{"_id": u.ID}, u, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// UpsertDevice inserts or replaces a device document
func (s *MongoStore) UpsertDevice(ctx context.Context, d *models.Device) error {
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.Collection(devicesCollection).
		ReplaceOne(ctx, bson.M{"_id": d.ID}, d, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	s.logger.Info().Msg("MongoDB connection closed")
	return nil
}
