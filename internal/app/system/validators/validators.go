// internal/app/system/validators/validators.go
package validators

import (
	"context"
	"errors"
	"strings"

	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	ymdPattern  = `^[0-9]{4}-[0-9]{2}-[0-9]{2}$`
	hhmmPattern = `^([01][0-9]|2[0-3]):[0-5][0-9]$`
)

// collections lists every collection the app uses. A nil schema means the
// collection is created without a validator.
var collections = []struct {
	name   string
	schema bson.M
}{
	{"users", object([]string{"email", "email_ci", "role", "plan", "status", "timezone"}, bson.M{
		"email":    str(3),
		"email_ci": str(3),
		"role":     enum(models.RoleMember, models.RoleAdmin),
		"plan":     enum(models.PlanFree, models.PlanPro),
		"status":   enum(models.StatusActive, models.StatusDisabled),
		"timezone": str(1),
	})},
	{"habits", object([]string{"user_id", "title", "is_active"}, bson.M{
		"user_id":   oid(),
		"title":     str(1),
		"is_active": bson.M{"bsonType": "bool"},
	})},
	// Toggle upserts through a pipeline, so nothing is required here.
	{"habit_logs", object(nil, bson.M{
		"habit_id": oid(),
		"user_id":  oid(),
		"date":     pattern(ymdPattern),
		"done":     bson.M{"bsonType": "bool"},
	})},
	{"goals", object([]string{"user_id", "title", "status"}, bson.M{
		"user_id":  oid(),
		"title":    str(1),
		"status":   enum(models.GoalActive, models.GoalCompleted, models.GoalArchived),
		"progress": bson.M{"minimum": 0, "maximum": 100},
	})},
	{"milestones", object([]string{"user_id", "title", "date"}, bson.M{
		"user_id": oid(),
		"goal_id": oid(),
		"date":    pattern(ymdPattern),
	})},
	{"reminders", object([]string{"user_id", "title", "time"}, bson.M{
		"user_id": oid(),
		"time":    pattern(hhmmPattern),
	})},
	{"wallpaper_settings", object([]string{"user_id"}, bson.M{
		"theme":      enum(models.ThemeLight, models.ThemeDark, models.ThemeMinimal),
		"grid_style": enum(models.GridDots, models.GridSquares),
	})},
	{"payment_transactions", object([]string{"user_id", "order_ref", "plan", "status"}, bson.M{
		"order_ref": str(1),
		"status":    enum(models.PaymentPending, models.PaymentPaid, models.PaymentFailed, models.PaymentExpired),
	})},
	{"login_attempts", nil},
	{"sessions", nil},
	{"ledger_entries", nil},
}

func object(required []string, props bson.M) bson.M {
	s := bson.M{"bsonType": "object", "properties": props}
	if len(required) > 0 {
		req := make(bson.A, len(required))
		for i, r := range required {
			req[i] = r
		}
		s["required"] = req
	}
	return bson.M{"$jsonSchema": s}
}

func str(minLen int) bson.M { return bson.M{"bsonType": "string", "minLength": minLen} }

func pattern(re string) bson.M { return bson.M{"bsonType": "string", "pattern": re} }

func oid() bson.M { return bson.M{"bsonType": "objectId"} }

func enum(values ...string) bson.M {
	a := make(bson.A, len(values))
	for i, v := range values {
		a[i] = v
	}
	return bson.M{"enum": a}
}

// EnsureAll creates missing collections and attaches their validators.
// Servers without collMod validator support (some DocumentDB versions) are
// logged and skipped.
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	existing, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		zap.L().Warn("list collections failed; creating blindly", zap.Error(err))
	}
	have := make(map[string]bool, len(existing))
	for _, n := range existing {
		have[n] = true
	}

	var problems []string
	for _, c := range collections {
		if !have[c.name] {
			if _, err := ensureCollection(ctx, db, c.name); err != nil {
				problems = append(problems, c.name+": "+err.Error())
				continue
			}
		}
		if c.schema == nil {
			continue
		}
		if err := setValidator(ctx, db, c.name, c.schema); err != nil {
			if unsupported(err) {
				zap.L().Info("validator skipped (unsupported)", zap.String("collection", c.name))
				continue
			}
			problems = append(problems, c.name+": "+err.Error())
		}
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func collectionExists(ctx context.Context, db *mongo.Database, name string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// ensureCollection reports created=true only when this call made it.
func ensureCollection(ctx context.Context, db *mongo.Database, name string) (created bool, err error) {
	if ok, err := collectionExists(ctx, db, name); err == nil && ok {
		return false, nil
	}
	if err := db.CreateCollection(ctx, name); err != nil {
		if namespaceExists(err) {
			return false, nil
		}
		zap.L().Warn("createCollection failed", zap.String("collection", name), zap.Error(err))
		return false, err
	}
	zap.L().Info("created collection", zap.String("collection", name))
	return true, nil
}

func setValidator(ctx context.Context, db *mongo.Database, name string, schema bson.M) error {
	cmd := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: schema},
		{Key: "validationLevel", Value: "moderate"},
		{Key: "validationAction", Value: "error"},
	}
	if err := db.RunCommand(ctx, cmd).Err(); err != nil {
		return err
	}
	zap.L().Debug("validator ensured", zap.String("collection", name))
	return nil
}

// commandErr matches err by server code or, failing that, by any phrase
// in its message (case-insensitive).
func commandErr(err error, codes []int32, phrases ...string) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		for _, c := range codes {
			if ce.Code == c {
				return true
			}
		}
	}
	msg := strings.ToLower(err.Error())
	for _, p := range phrases {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func namespaceExists(err error) bool {
	return commandErr(err, []int32{48}, "already exists", "namespace exists")
}

func unsupported(err error) bool {
	return commandErr(err, []int32{59, 115}, "no such command", "not implemented", "not supported")
}
