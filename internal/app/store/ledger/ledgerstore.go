// internal/app/store/ledger/ledgerstore.go
package ledgerstore

import (
	"context"
	"errors"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/store/storeutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotFound is returned when no entry has the requested ID.
var ErrNotFound = errors.New("ledger entry not found")

// Entry records one payment gateway call: what arrived, how it was
// answered, and which order it concerned.
type Entry struct {
	ID primitive.ObjectID `bson:"_id" json:"id"`

	RequestID       string `bson:"request_id" json:"requestId"`
	ClientRequestID string `bson:"client_request_id,omitempty" json:"clientRequestId,omitempty"`
	OrderRef        string `bson:"order_ref,omitempty" json:"orderRef,omitempty"`

	Method   string            `bson:"method" json:"method"`
	Path     string            `bson:"path" json:"path"`
	Headers  map[string]string `bson:"headers,omitempty" json:"headers,omitempty"` // Authorization is redacted
	RemoteIP string            `bson:"remote_ip" json:"remoteIp"`

	BodySize    int64  `bson:"body_size" json:"bodySize"`
	BodyHash    string `bson:"body_hash,omitempty" json:"bodyHash,omitempty"` // SHA-256 prefix
	BodyPreview string `bson:"body_preview,omitempty" json:"bodyPreview,omitempty"`

	StatusCode   int    `bson:"status_code" json:"statusCode"`
	ResponseSize int64  `bson:"response_size" json:"responseSize"`
	ErrorClass   string `bson:"error_class,omitempty" json:"errorClass,omitempty"`

	DurationMs  float64   `bson:"duration_ms" json:"durationMs"`
	StartedAt   time.Time `bson:"started_at" json:"startedAt"`
	CompletedAt time.Time `bson:"completed_at" json:"completedAt"`
}

// Failed reports whether the call was answered with an error status.
func (e Entry) Failed() bool { return e.StatusCode >= 400 }

// Query narrows Find. Zero fields do not filter.
type Query struct {
	Path       string
	OrderRef   string
	OnlyErrors bool
	Since      time.Time
	Limit      int64
	Page       int64
}

func (q Query) filter() bson.M {
	f := bson.M{}
	if q.Path != "" {
		f["path"] = q.Path
	}
	if q.OrderRef != "" {
		f["order_ref"] = q.OrderRef
	}
	if q.OnlyErrors {
		f["status_code"] = bson.M{"$gte": 400}
	}
	if !q.Since.IsZero() {
		f["started_at"] = bson.M{"$gte": q.Since}
	}
	return f
}

// Summary counts calls since a point in time.
type Summary struct {
	Since   time.Time        `json:"since"`
	Total   int64            `json:"total"`
	Failed  int64            `json:"failed"`
	ByClass map[string]int64 `json:"byClass"`
}

// Store persists ledger entries in "ledger_entries".
type Store struct {
	c *mongo.Collection
}

// New creates a ledger store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("ledger_entries")}
}

// Create inserts entry, assigning an ID when it has none.
func (s *Store) Create(ctx context.Context, entry Entry) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	_, err := s.c.InsertOne(ctx, entry)
	return err
}

// GetByRequestID loads the entry for the ID echoed in X-Request-ID.
func (s *Store) GetByRequestID(ctx context.Context, requestID string) (*Entry, error) {
	var entry Entry
	err := s.c.FindOne(ctx, bson.M{"request_id": requestID}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Find returns matching entries, newest first, one page at a time.
func (s *Store) Find(ctx context.Context, q Query) ([]Entry, error) {
	opts := storeutil.Paginate(q.Limit, q.Page).SetSort(bson.D{{Key: "started_at", Value: -1}})
	cur, err := s.c.Find(ctx, q.filter(), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	entries := []Entry{}
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Summarize groups calls started at or after since by error class.
func (s *Store) Summarize(ctx context.Context, since time.Time) (Summary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"started_at": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{
			"_id":   bson.M{"$ifNull": bson.A{"$error_class", ""}},
			"count": bson.M{"$sum": 1},
		}}},
	}
	cur, err := s.c.Aggregate(ctx, pipeline)
	if err != nil {
		return Summary{}, err
	}
	defer cur.Close(ctx)

	var rows []struct {
		Class string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return Summary{}, err
	}

	sum := Summary{Since: since, ByClass: map[string]int64{}}
	for _, r := range rows {
		sum.Total += r.Count
		if r.Class != "" {
			sum.Failed += r.Count
			sum.ByClass[r.Class] = r.Count
		}
	}
	return sum, nil
}

// DeleteOlderThan removes entries started before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"started_at": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
