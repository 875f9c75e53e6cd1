// server/internal/database/mongo.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/sentinel"
)

// Connect opens a client and pings it.
func Connect(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, client.Database(dbName), nil
}

// NewMongoStore wires every repository to db and makes sure the indexes exist.
func NewMongoStore(ctx context.Context, db *mongo.Database) (*Store, error) {
	shipments := &MongoShipments{coll: db.Collection(ShipmentCollection)}
	anomalies := &MongoAnomalies{coll: db.Collection(AnomalyCollection)}
	users := &MongoUsers{coll: db.Collection(UserCollection)}

	indexes := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{shipments.coll, mongo.IndexModel{Keys: bson.D{{Key: "shipmentId", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{anomalies.coll, mongo.IndexModel{Keys: bson.D{{Key: "shipmentId", Value: 1}, {Key: "createdAt", Value: -1}}}},
		{anomalies.coll, mongo.IndexModel{Keys: bson.D{{Key: "anomalyId", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{users.coll, mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)}},
		{users.coll, mongo.IndexModel{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)}},
	}
	for _, ix := range indexes {
		if _, err := ix.coll.Indexes().CreateOne(ctx, ix.model); err != nil {
			return nil, fmt.Errorf("create index on %s: %w", ix.coll.Name(), err)
		}
	}
	return &Store{Shipments: shipments, Anomalies: anomalies, Users: users}, nil
}

type MongoShipments struct {
	coll *mongo.Collection
}

func (r *MongoShipments) Create(ctx context.Context, s *models.Shipment) error {
	if _, err := r.coll.InsertOne(ctx, s); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("shipment %s: %w", s.ShipmentID, sentinel.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *MongoShipments) Get(ctx context.Context, shipmentID string) (*models.Shipment, error) {
	var s models.Shipment
	err := r.coll.FindOne(ctx, bson.M{"shipmentId": shipmentID}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("shipment %s: %w", shipmentID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *MongoShipments) Save(ctx context.Context, s *models.Shipment) error {
	next := s.Clone()
	next.Version = s.Version + 1
	next.UpdatedAt = time.Now().UTC()

	res, err := r.coll.ReplaceOne(ctx, bson.M{"shipmentId": s.ShipmentID, "version": s.Version}, next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.M{"shipmentId": s.ShipmentID})
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("shipment %s: %w", s.ShipmentID, sentinel.ErrNotFound)
		}
		return fmt.Errorf("shipment %s version %d: %w", s.ShipmentID, s.Version, sentinel.ErrConflict)
	}
	s.Version = next.Version
	s.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *MongoShipments) List(ctx context.Context, filter ShipmentFilter) ([]*models.Shipment, error) {
	q := bson.M{}
	if filter.ManufacturerID != "" {
		q["manufacturerId"] = filter.ManufacturerID
	}
	if filter.ReceiverID != "" {
		q["receiverId"] = filter.ReceiverID
	}
	if filter.Status != "" {
		q["currentStatus"] = filter.Status
	}
	return r.find(ctx, q, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

func (r *MongoShipments) ListActive(ctx context.Context) ([]*models.Shipment, error) {
	q := bson.M{"currentStatus": bson.M{"$ne": models.StatusDelivered}}
	return r.find(ctx, q, options.Find().SetSort(bson.D{{Key: "shipmentId", Value: 1}}))
}

func (r *MongoShipments) find(ctx context.Context, q bson.M, opts *options.FindOptions) ([]*models.Shipment, error) {
	cursor, err := r.coll.Find(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var shipments []*models.Shipment
	if err = cursor.All(ctx, &shipments); err != nil {
		return nil, err
	}
	if shipments == nil {
		shipments = []*models.Shipment{}
	}
	return shipments, nil
}

type MongoAnomalies struct {
	coll *mongo.Collection
}

func (r *MongoAnomalies) AppendMany(ctx context.Context, anomalies []models.Anomaly) error {
	if len(anomalies) == 0 {
		return nil
	}
	docs := make([]interface{}, len(anomalies))
	for i := range anomalies {
		docs[i] = anomalies[i]
	}
	_, err := r.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if onlyDuplicates(err) {
		return nil
	}
	return err
}

// onlyDuplicates reports whether every failed write in err hit the unique
// anomalyId index, i.e. the anomalies were already stored.
func onlyDuplicates(err error) bool {
	var bulk mongo.BulkWriteException
	if !errors.As(err, &bulk) || bulk.WriteConcernError != nil || len(bulk.WriteErrors) == 0 {
		return false
	}
	for _, we := range bulk.WriteErrors {
		if we.Code != 11000 && we.Code != 11001 {
			return false
		}
	}
	return true
}

func (r *MongoAnomalies) List(ctx context.Context, filter models.AnomalyFilter) ([]models.Anomaly, error) {
	q := bson.M{}
	if filter.ShipmentIDs != nil {
		q["shipmentId"] = bson.M{"$in": filter.ShipmentIDs}
	}
	if filter.Resolved != nil {
		q["resolved"] = *filter.Resolved
	}
	cursor, err := r.coll.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	anomalies := []models.Anomaly{}
	if err = cursor.All(ctx, &anomalies); err != nil {
		return nil, err
	}
	return anomalies, nil
}

func (r *MongoAnomalies) SetNarrative(ctx context.Context, anomalyID, narrative string) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"anomalyId": anomalyID}, bson.M{"$set": bson.M{"narrative": narrative}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("anomaly %s: %w", anomalyID, sentinel.ErrNotFound)
	}
	return nil
}

type MongoUsers struct {
	coll *mongo.Collection
}

func (r *MongoUsers) Create(ctx context.Context, u *models.User) error {
	if _, err := r.coll.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("user %s: %w", u.Email, sentinel.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *MongoUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email}, email)
}

func (r *MongoUsers) FindByID(ctx context.Context, userID string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"userId": userID}, userID)
}

func (r *MongoUsers) findOne(ctx context.Context, q bson.M, key string) (*models.User, error) {
	var u models.User
	err := r.coll.FindOne(ctx, q).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("user %s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *MongoUsers) ListByRole(ctx context.Context, role models.Role) ([]*models.User, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"role": role}, options.Find().SetSort(bson.D{{Key: "username", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	users := []*models.User{}
	if err = cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}
