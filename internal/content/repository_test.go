package content

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/newsdesk/internal/auth"
	"github.com/nerrad567/newsdesk/internal/infrastructure/database"
	_ "github.com/nerrad567/newsdesk/migrations" // registers the schema
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	repo  *SQLiteRepository
	alice auth.UserContext
	bob   auth.UserContext
	vera  auth.UserContext
	admin auth.UserContext
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "content-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if _, err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db.DB
}

// newFixture creates real accounts and logs each of them in, so the
// contexts used below come from session validation.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := testDB(t)
	svc := auth.NewService(db, auth.Config{BcryptCost: bcrypt.MinCost})

	if _, _, err := auth.SeedAdmin(ctx, auth.NewUserRepository(db), bcrypt.MinCost, nil); err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}
	login := func(username, password string) auth.UserContext {
		res, err := svc.Login(ctx, username, password)
		if err != nil {
			t.Fatalf("Login(%s) error = %v", username, err)
		}
		uc, err := svc.ValidateSession(ctx, res.Token)
		if err != nil {
			t.Fatalf("ValidateSession(%s) error = %v", username, err)
		}
		return uc
	}

	admin := login(auth.DefaultAdminUsername, auth.DefaultAdminPassword)
	for _, nu := range []auth.NewUser{
		{Username: "alice", Password: "longenough1", Role: auth.RoleUser},
		{Username: "bob", Password: "longenough2", Role: auth.RoleUser},
		{Username: "vera", Password: "longenough3", Role: auth.RoleViewer},
	} {
		if _, err := svc.CreateUser(ctx, admin, nu); err != nil {
			t.Fatalf("CreateUser(%s) error = %v", nu.Username, err)
		}
	}

	return &fixture{
		repo:  NewSQLiteRepository(db),
		alice: login("alice", "longenough1"),
		bob:   login("bob", "longenough2"),
		vera:  login("vera", "longenough3"),
		admin: admin,
	}
}

func ids(items []Item) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func contains(items []Item, id int64) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}

func TestSharingScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	profile := &Item{Kind: auth.KindProfile, Title: "alice-feeds", Body: `{"feeds":["a"]}`}
	if err := f.repo.Create(ctx, f.alice, profile); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if profile.OwnerID != f.alice.UserID || profile.IsShared {
		t.Fatalf("created item = %+v", profile)
	}

	bobs, err := f.repo.List(ctx, f.bob, auth.KindProfile)
	if err != nil {
		t.Fatalf("List(bob) error = %v", err)
	}
	if contains(bobs, profile.ID) {
		t.Fatal("bob can see alice's private profile")
	}
	if _, err := f.repo.Get(ctx, f.bob, auth.KindProfile, profile.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(bob) error = %v, want ErrNotFound", err)
	}

	if err := f.repo.SetShared(ctx, f.admin, auth.KindProfile, profile.ID, true); err != nil {
		t.Fatalf("SetShared(admin) error = %v", err)
	}

	bobs, err = f.repo.List(ctx, f.bob, auth.KindProfile)
	if err != nil {
		t.Fatalf("List(bob) error = %v", err)
	}
	if !contains(bobs, profile.ID) {
		t.Errorf("bob cannot see shared profile; got ids %v", ids(bobs))
	}

	got, err := f.repo.Get(ctx, f.bob, auth.KindProfile, profile.ID)
	if err != nil {
		t.Fatalf("Get(bob) after share error = %v", err)
	}
	if got.OwnerID != f.alice.UserID {
		t.Errorf("OwnerID = %q, want alice", got.OwnerID)
	}

	// Seeing a shared item does not grant edit or delete.
	if err := f.repo.Delete(ctx, f.bob, auth.KindProfile, profile.ID); !errors.Is(err, auth.ErrPermissionDenied) {
		t.Errorf("Delete(bob) error = %v, want ErrPermissionDenied", err)
	}
	if err := f.repo.SetShared(ctx, f.bob, auth.KindProfile, profile.ID, false); !errors.Is(err, auth.ErrPermissionDenied) {
		t.Errorf("SetShared(bob) error = %v, want ErrPermissionDenied", err)
	}
}

func TestPrivateKindNeverShared(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	article := &Item{Kind: auth.KindArticle, Title: "Draft", Body: "text", IsShared: true}
	if err := f.repo.Create(ctx, f.alice, article); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if article.IsShared {
		t.Error("articles cannot be created shared")
	}

	if err := f.repo.SetShared(ctx, f.admin, auth.KindArticle, article.ID, true); !errors.Is(err, ErrNotShareable) {
		t.Errorf("SetShared(article) error = %v, want ErrNotShareable", err)
	}

	bobs, _ := f.repo.List(ctx, f.bob, auth.KindArticle) //nolint:errcheck // checked via value
	if contains(bobs, article.ID) {
		t.Error("bob can see alice's article")
	}
	admins, _ := f.repo.List(ctx, f.admin, auth.KindArticle) //nolint:errcheck // checked via value
	if !contains(admins, article.ID) {
		t.Error("admin cannot see alice's article")
	}
	alices, _ := f.repo.List(ctx, f.alice, auth.KindArticle) //nolint:errcheck // checked via value
	if len(alices) != 1 || alices[0].Title != "Draft" {
		t.Errorf("alice's articles = %+v", alices)
	}
}

func TestViewerCannotCreate(t *testing.T) {
	f := newFixture(t)
	err := f.repo.Create(context.Background(), f.vera, &Item{Kind: auth.KindArticle, Title: "nope"})
	if !errors.Is(err, auth.ErrPermissionDenied) {
		t.Errorf("Create(viewer) error = %v, want ErrPermissionDenied", err)
	}
}

func TestViewerSeesSharedProfiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	shared := &Item{Kind: auth.KindProfile, Title: "public", IsShared: true}
	private := &Item{Kind: auth.KindProfile, Title: "private"}
	for _, it := range []*Item{shared, private} {
		if err := f.repo.Create(ctx, f.alice, it); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := f.repo.List(ctx, f.vera, auth.KindProfile)
	if err != nil {
		t.Fatalf("List(viewer) error = %v", err)
	}
	if len(got) != 1 || got[0].ID != shared.ID {
		t.Errorf("List(viewer) = %v, want only the shared profile", ids(got))
	}
	if got[0].Body != "{}" {
		t.Errorf("empty profile body = %q, want {}", got[0].Body)
	}
}

func TestUpdateAndDeleteOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	article := &Item{Kind: auth.KindArticle, Title: "Original", Body: "v1"}
	if err := f.repo.Create(ctx, f.alice, article); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Bob cannot see it, so it does not exist for him.
	bobEdit := &Item{ID: article.ID, Kind: auth.KindArticle, Title: "Hijacked"}
	if err := f.repo.Update(ctx, f.bob, bobEdit); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(bob) error = %v, want ErrNotFound", err)
	}

	edit := &Item{ID: article.ID, Kind: auth.KindArticle, Title: "Revised", Body: "v2", OwnerID: f.bob.UserID}
	if err := f.repo.Update(ctx, f.alice, edit); err != nil {
		t.Fatalf("Update(alice) error = %v", err)
	}
	if edit.OwnerID != f.alice.UserID {
		t.Errorf("Update() changed owner to %q", edit.OwnerID)
	}

	adminEdit := &Item{ID: article.ID, Kind: auth.KindArticle, Title: "Edited by admin", Body: "v3"}
	if err := f.repo.Update(ctx, f.admin, adminEdit); err != nil {
		t.Fatalf("Update(admin) error = %v", err)
	}

	got, err := f.repo.Get(ctx, f.alice, auth.KindArticle, article.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "Edited by admin" || got.OwnerID != f.alice.UserID {
		t.Errorf("Get() = %+v", got)
	}

	if err := f.repo.Delete(ctx, f.bob, auth.KindArticle, article.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(bob) error = %v, want ErrNotFound", err)
	}
	if err := f.repo.Delete(ctx, f.alice, auth.KindArticle, article.ID); err != nil {
		t.Fatalf("Delete(alice) error = %v", err)
	}
	if _, err := f.repo.Get(ctx, f.admin, auth.KindArticle, article.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.repo.Create(ctx, f.alice, &Item{Kind: "draft", Title: "x"}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Create(unknown kind) error = %v, want ErrUnknownKind", err)
	}
	if err := f.repo.Create(ctx, f.alice, &Item{Kind: auth.KindArticle, Title: "  "}); !errors.Is(err, ErrTitleRequired) {
		t.Errorf("Create(blank title) error = %v, want ErrTitleRequired", err)
	}
	if _, err := f.repo.List(ctx, f.alice, "draft"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("List(unknown kind) error = %v, want ErrUnknownKind", err)
	}
	if err := f.repo.SetShared(ctx, f.admin, "draft", 1, true); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("SetShared(unknown kind) error = %v, want ErrUnknownKind", err)
	}
}
