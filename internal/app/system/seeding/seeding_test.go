package seeding

import (
	"testing"

	userstore "github.com/consistencygrid/consistencygrid/internal/app/store/users"
	"github.com/consistencygrid/consistencygrid/internal/app/system/authutil"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"github.com/consistencygrid/consistencygrid/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func TestSeedAdmin_Creates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	err := SeedAdmin(ctx, db, Admin{Email: "root@example.com", Password: "tangerine-42"}, zap.NewNop())
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}

	u, err := userstore.New(db).GetByEmail(ctx, "root@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if u.Role != models.RoleAdmin || u.Name != "Admin" {
		t.Errorf("seeded user = role %q name %q", u.Role, u.Name)
	}
	if !authutil.CheckPassword("tangerine-42", u.PasswordHash) {
		t.Error("seeded password does not verify")
	}

	// Second run is a no-op.
	if err := SeedAdmin(ctx, db, Admin{Email: "root@example.com"}, zap.NewNop()); err != nil {
		t.Errorf("second SeedAdmin() error = %v", err)
	}
}

func TestSeedAdmin_Promotes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	users := userstore.New(db)
	member, err := users.Create(ctx, models.User{Name: "Member", Email: "member@example.com"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := SeedAdmin(ctx, db, Admin{Email: "MEMBER@example.com"}, zap.NewNop()); err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	got, _ := users.GetByID(ctx, member.ID)
	if got.Role != models.RoleAdmin {
		t.Errorf("Role = %q, want admin", got.Role)
	}
}

func TestSeedAdmin_BlankEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := SeedAdmin(ctx, db, Admin{}, zap.NewNop()); err != nil {
		t.Errorf("SeedAdmin() error = %v", err)
	}
	n, _ := db.Collection("users").CountDocuments(ctx, bson.M{})
	if n != 0 {
		t.Errorf("users = %d, want 0", n)
	}
}
