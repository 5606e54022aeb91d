// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// collectionIndexes is the desired index set for one collection.
type collectionIndexes struct {
	collection string
	models     []mongo.IndexModel
}

func named(name string) *options.IndexOptions { return options.Index().SetName(name) }

func keys(fields ...string) bson.D {
	d := make(bson.D, 0, len(fields))
	for _, f := range fields {
		dir := 1
		if strings.HasPrefix(f, "-") {
			f, dir = f[1:], -1
		}
		d = append(d, bson.E{Key: f, Value: dir})
	}
	return d
}

// catalog lists every index the application relies on.
func catalog() []collectionIndexes {
	return []collectionIndexes{
		{"users", []mongo.IndexModel{
			{Keys: keys("email_ci"), Options: named("uniq_users_email_ci").SetUnique(true)},
		}},
		{"habits", []mongo.IndexModel{
			{Keys: keys("user_id", "is_active", "sort_order", "_id"), Options: named("idx_habits_user_active_order")},
		}},
		{"habit_logs", []mongo.IndexModel{
			// Toggle upserts against this; one log per habit per day.
			{Keys: keys("habit_id", "date"), Options: named("uniq_habit_logs_habit_date").SetUnique(true)},
			{Keys: keys("user_id", "date"), Options: named("idx_habit_logs_user_date")},
		}},
		{"goals", []mongo.IndexModel{
			{Keys: keys("user_id", "status", "-created_at"), Options: named("idx_goals_user_status_created")},
		}},
		{"milestones", []mongo.IndexModel{
			{Keys: keys("user_id", "date"), Options: named("idx_milestones_user_date")},
		}},
		{"reminders", []mongo.IndexModel{
			{Keys: keys("user_id", "time"), Options: named("idx_reminders_user_time")},
		}},
		{"wallpaper_settings", []mongo.IndexModel{
			{Keys: keys("user_id"), Options: named("uniq_wallpaper_user").SetUnique(true)},
		}},
		{"payment_transactions", []mongo.IndexModel{
			{Keys: keys("order_ref"), Options: named("uniq_payments_order_ref").SetUnique(true)},
			{Keys: keys("status", "created_at"), Options: named("idx_payments_status_created")},
		}},
		{"login_attempts", []mongo.IndexModel{
			{Keys: keys("email"), Options: named("uniq_login_attempts_email").SetUnique(true)},
			{Keys: keys("last_attempt"), Options: named("idx_login_attempts_ttl").SetExpireAfterSeconds(86400)},
		}},
		{"sessions", []mongo.IndexModel{
			{Keys: keys("token"), Options: named("uniq_sessions_token").SetUnique(true)},
			{Keys: keys("user_id", "logout_at"), Options: named("idx_sessions_user_open")},
			{Keys: keys("expires_at"), Options: named("idx_sessions_ttl").SetExpireAfterSeconds(0)},
		}},
		{"ledger_entries", []mongo.IndexModel{
			{Keys: keys("request_id"), Options: named("uniq_ledger_request_id").SetUnique(true)},
			{Keys: keys("path", "-started_at"), Options: named("idx_ledger_path_started")},
			{Keys: keys("order_ref", "-started_at"), Options: named("idx_ledger_order_started")},
			{Keys: keys("started_at"), Options: named("idx_ledger_started")},
		}},
	}
}

/*
EnsureAll runs at startup and is idempotent. Problems from every collection
are joined into one error so startup can fail with the full picture.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string
	for _, ci := range catalog() {
		if err := reconcile(ctx, db.Collection(ci.collection), ci.models); err != nil {
			problems = append(problems, ci.collection+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

type existingIndex struct {
	Name      string `bson:"name"`
	Key       bson.D `bson:"key"`
	Unique    *bool  `bson:"unique,omitempty"`
	ExpireSec *int32 `bson:"expireAfterSeconds,omitempty"`
}

type action int

const (
	actionCreate action = iota
	actionKeep
	actionReplace
)

// decide compares a desired index with whatever already covers the same
// key pattern. Only uniqueness and TTL count as a mismatch; names do not.
func decide(want mongo.IndexModel, have *existingIndex) action {
	if have == nil {
		return actionCreate
	}
	var wantUnique bool
	var wantTTL *int32
	if o := want.Options; o != nil {
		wantUnique = o.Unique != nil && *o.Unique
		wantTTL = o.ExpireAfterSeconds
	}
	haveUnique := have.Unique != nil && *have.Unique
	if wantUnique != haveUnique || !sameTTL(wantTTL, have.ExpireSec) {
		return actionReplace
	}
	return actionKeep
}

func sameTTL(a, b *int32) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func keySig(k bson.D) string {
	parts := make([]string, 0, len(k))
	for _, kv := range k {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func listExisting(ctx context.Context, coll *mongo.Collection) (map[string]existingIndex, error) {
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := map[string]existingIndex{}
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("skipping undecodable index", zap.String("collection", coll.Name()), zap.Error(err))
			continue
		}
		out[keySig(idx.Key)] = idx
	}
	return out, cur.Err()
}

func reconcile(ctx context.Context, coll *mongo.Collection, want []mongo.IndexModel) error {
	existing, err := listExisting(ctx, coll)
	if err != nil {
		// A missing collection has no indexes yet; anything else is logged
		// and we try to create everything.
		zap.L().Debug("list indexes failed", zap.String("collection", coll.Name()), zap.Error(err))
		existing = map[string]existingIndex{}
	}

	var errs []string
	for _, m := range want {
		name := ""
		if m.Options != nil && m.Options.Name != nil {
			name = *m.Options.Name
		}
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()
		log := zap.L().With(zap.String("collection", coll.Name()), zap.String("name", name), zap.String("keys", sig))

		var have *existingIndex
		if ex, ok := existing[sig]; ok {
			have = &ex
		}

		switch decide(m, have) {
		case actionKeep:
			log.Debug("index present", zap.String("existing_name", have.Name))
			continue
		case actionReplace:
			if _, err := coll.Indexes().DropOne(ctx, have.Name); err != nil {
				log.Warn("drop for replace failed", zap.Error(err))
				errs = append(errs, fmt.Sprintf("%s: drop failed: %v", name, err))
				continue
			}
		}

		if _, err := coll.Indexes().CreateOne(ctx, m); err != nil {
			log.Warn("index create failed", zap.Error(err))
			errs = append(errs, describeCreateErr(name, m, err))
			continue
		}
		log.Info("index ensured", zap.Duration("took", time.Since(start)))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func describeCreateErr(name string, m mongo.IndexModel, err error) string {
	unique := m.Options != nil && m.Options.Unique != nil && *m.Options.Unique
	if unique && mongo.IsDuplicateKeyError(err) {
		return name + ": cannot build unique index, duplicates present"
	}
	return fmt.Sprintf("%s: %v", name, err)
}
