package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/sentinel"
)

const (
	CheckpointCollection = "checkpoints"
	maxAppendAttempts    = 5
)

// Mongo stores the chain in the checkpoints collection. The unique
// (shipmentId, index) index is what keeps concurrent appenders in different
// processes from writing the same position; the loser retries.
type Mongo struct {
	coll  *mongo.Collection
	locks sync.Map // shipmentID -> *sync.Mutex
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{coll: db.Collection(CheckpointCollection)}
}

// EnsureIndexes creates the unique position index. Safe to call on every start.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "shipmentId", Value: 1}, {Key: "index", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("shipment_index_unique"),
	})
	return err
}

func (m *Mongo) lock(shipmentID string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(shipmentID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (m *Mongo) Append(ctx context.Context, cp models.Checkpoint) (Receipt, error) {
	if err := validate(cp); err != nil {
		return Receipt{}, err
	}
	mu := m.lock(cp.ShipmentID)
	mu.Lock()
	defer mu.Unlock()

	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		index, prev, err := m.tail(ctx, cp.ShipmentID)
		if err != nil {
			return Receipt{}, err
		}
		sealed := Seal(cp, index, prev)
		if _, err := m.coll.InsertOne(ctx, sealed); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			return Receipt{}, fmt.Errorf("insert checkpoint: %w", err)
		}
		return Receipt{Index: sealed.Index, AnchorRef: sealed.AnchorRef}, nil
	}
	return Receipt{}, fmt.Errorf("append %s: gave up after %d contended attempts: %w", cp.ShipmentID, maxAppendAttempts, sentinel.ErrConflict)
}

// tail returns the next index and the hash of the last entry.
func (m *Mongo) tail(ctx context.Context, shipmentID string) (int, string, error) {
	var last models.Checkpoint
	opts := options.FindOne().SetSort(bson.D{{Key: "index", Value: -1}})
	err := m.coll.FindOne(ctx, bson.M{"shipmentId": shipmentID}, opts).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("read ledger tail: %w", err)
	}
	return last.Index + 1, last.EntryHash, nil
}

func (m *Mongo) Get(ctx context.Context, shipmentID string, index int) (models.Checkpoint, error) {
	var cp models.Checkpoint
	err := m.coll.FindOne(ctx, bson.M{"shipmentId": shipmentID, "index": index}).Decode(&cp)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Checkpoint{}, fmt.Errorf("ledger entry %s/%d: %w", shipmentID, index, sentinel.ErrNotFound)
	}
	if err != nil {
		return models.Checkpoint{}, err
	}
	return cp, nil
}

func (m *Mongo) Count(ctx context.Context, shipmentID string) (int, error) {
	n, err := m.coll.CountDocuments(ctx, bson.M{"shipmentId": shipmentID})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (m *Mongo) Range(ctx context.Context, shipmentID string, from, to int) ([]models.Checkpoint, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	filter := bson.M{"shipmentId": shipmentID, "index": bson.M{"$gte": from, "$lt": to}}
	cursor, err := m.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "index", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	entries := []models.Checkpoint{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
