package notify

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/printlink/print-platform/internal/models"
)

var testDBSeq atomic.Int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:notify_test_%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.DeviceToken{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestTokenStore_RegisterAndRebind(t *testing.T) {
	store := NewTokenStore(openTestDB(t))
	ctx := context.Background()

	dt, err := store.Register(ctx, 1, "customer", "ExponentPushToken[aaa]", "ios")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if dt.UserID != 1 || dt.Platform != "ios" || !dt.IsActive {
		t.Fatalf("token = %+v", dt)
	}

	// the same device logging into another account rebinds the token
	rebound, err := store.Register(ctx, 2, "agent", "ExponentPushToken[aaa]", "")
	if err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if rebound.ID != dt.ID {
		t.Fatalf("rebind created a new row: %d != %d", rebound.ID, dt.ID)
	}
	if rebound.UserID != 2 || rebound.UserKind != "agent" || rebound.Platform != "mobile" {
		t.Fatalf("rebound = %+v", rebound)
	}

	tokens, err := store.ActiveTokens(ctx, 1, "customer")
	if err != nil {
		t.Fatalf("active tokens: %v", err)
	}
	if len(tokens) != 0 {
		t.Fatalf("old account still owns %d tokens", len(tokens))
	}
}

func TestTokenStore_UnregisterAndDeactivate(t *testing.T) {
	store := NewTokenStore(openTestDB(t))
	ctx := context.Background()

	if _, err := store.Register(ctx, 1, "customer", "ExponentPushToken[bbb]", "android"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := store.Unregister(ctx, "ExponentPushToken[bbb]"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	tokens, err := store.ActiveTokens(ctx, 1, "customer")
	if err != nil {
		t.Fatalf("active tokens: %v", err)
	}
	if len(tokens) != 0 {
		t.Fatalf("unregistered token still active")
	}

	if err := store.Unregister(ctx, "ExponentPushToken[missing]"); err != ErrTokenNotFound {
		t.Fatalf("unknown token err = %v, want ErrTokenNotFound", err)
	}

	// deactivation of an unknown token is a silent no-op; the push provider
	// may report tokens we already dropped
	if err := store.Deactivate(ctx, "ExponentPushToken[missing]"); err != nil {
		t.Fatalf("deactivate unknown: %v", err)
	}
}
