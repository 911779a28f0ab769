// Package history persists alerts to a document database, degrading to a
// no-op whenever it is unreachable or unconfigured.
package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/weatheralertd/weatheralertd/internal/logging"
	"github.com/weatheralertd/weatheralertd/internal/model"
)

const (
	databaseName   = "weather_alerts_db"
	collectionName = "weather_alerts"
)

// Filters narrows GetAlertHistory's result set. Zero-value fields are
// ignored.
type Filters struct {
	GardenID  string
	UserID    int
	AlertType model.AlertType
	StartDate time.Time
	EndDate   time.Time
}

// Store persists alerts to MongoDB and serves filtered history reads.
type Store struct {
	uri string
	log *logging.Logger

	mu      sync.RWMutex
	ready   bool
	client  *mongo.Client
	coll    *mongo.Collection
}

// New constructs a Store for the given connection URI. Call Initialize to
// attempt the connection; Store is safe to use before Initialize succeeds,
// it simply behaves as degraded.
func New(uri string) *Store {
	return &Store{uri: uri, log: logging.New("history-store")}
}

// Initialize best-effort connects and ensures indexes. Failure is logged and
// never returned as an error — the store simply stays degraded.
func (s *Store) Initialize(ctx context.Context) {
	if s.uri == "" {
		s.log.Printf("no MONGO_URL configured, history store degraded")
		return
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(s.uri))
	if err != nil {
		s.log.Printf("connect failed, degraded: %v", err)
		return
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		s.log.Printf("ping failed, degraded: %v", err)
		return
	}

	coll := client.Database(databaseName).Collection(collectionName)
	s.ensureIndexes(connectCtx, coll)

	s.mu.Lock()
	s.client = client
	s.coll = coll
	s.ready = true
	s.mu.Unlock()
	s.log.Printf("connected")
}

func (s *Store) ensureIndexes(ctx context.Context, coll *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "gardenId", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		s.log.Printf("index creation failed (non-fatal): %v", err)
	}
}

func (s *Store) isReady() (*mongo.Collection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coll, s.ready
}

// Ready reports whether the store successfully connected.
func (s *Store) Ready() bool {
	_, ready := s.isReady()
	return ready
}

// SaveAlert appends alert with a server-assigned CreatedAt. Returns false
// without raising when the store is degraded or the write fails.
func (s *Store) SaveAlert(ctx context.Context, alert model.Alert) bool {
	coll, ready := s.isReady()
	if !ready {
		s.log.Printf("save skipped, store not ready")
		return false
	}
	alert.CreatedAt = time.Now().UTC()
	if _, err := coll.InsertOne(ctx, alert); err != nil {
		s.log.Printf("save failed: %v", err)
		return false
	}
	return true
}

// GetAlertHistory returns up to limit alerts matching filters, newest first.
// Returns an empty slice on error or when the store is degraded.
func (s *Store) GetAlertHistory(ctx context.Context, filters Filters, limit int64) []model.Alert {
	coll, ready := s.isReady()
	if !ready {
		return nil
	}
	if limit <= 0 {
		limit = 100
	}

	query := bson.M{}
	if filters.GardenID != "" {
		query["gardenId"] = filters.GardenID
	}
	if filters.UserID != 0 {
		query["userId"] = filters.UserID
	}
	if filters.AlertType != "" {
		query["alertType"] = filters.AlertType
	}
	if !filters.StartDate.IsZero() || !filters.EndDate.IsZero() {
		ts := bson.M{}
		if !filters.StartDate.IsZero() {
			ts["$gte"] = filters.StartDate
		}
		if !filters.EndDate.IsZero() {
			ts["$lte"] = filters.EndDate
		}
		query["timestamp"] = ts
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}).SetLimit(limit)
	cur, err := coll.Find(ctx, query, opts)
	if err != nil {
		s.log.Printf("query failed: %v", err)
		return nil
	}
	defer cur.Close(ctx)

	var out []model.Alert
	if err := cur.All(ctx, &out); err != nil {
		s.log.Printf("decode failed: %v", err)
		return nil
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Close disconnects the underlying client, if connected.
func (s *Store) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		_ = s.client.Disconnect(ctx)
		s.ready = false
	}
}
