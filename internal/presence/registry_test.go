package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
)

func TestRegistry_MultipleConnections(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()
	key := Key("customer", 7)

	if r.IsOnline(key) {
		t.Fatal("online before any connection")
	}

	r.Add(ctx, key, "conn-a")
	r.Add(ctx, key, "conn-b")
	if !r.IsOnline(key) {
		t.Fatal("offline with two connections")
	}

	r.Remove(ctx, key, "conn-a")
	if !r.IsOnline(key) {
		t.Fatal("offline while one connection remains")
	}

	r.Remove(ctx, key, "conn-b")
	if r.IsOnline(key) {
		t.Fatal("online after last connection left")
	}
}

func TestRegistry_RemoveUnknownIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()

	r.Remove(ctx, Key("agent", 1), "ghost")
	if r.IsOnline(Key("agent", 1)) {
		t.Fatal("removal of unknown connection flipped user online")
	}
}

func TestRegistry_OnlineSnapshot(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()

	r.Add(ctx, Key("customer", 1), "c1")
	r.Add(ctx, Key("agent", 2), "a1")

	keys := r.Online()
	sort.Strings(keys)
	want := []string{"agent:2", "customer:1"}
	if len(keys) != 2 || keys[0] != want[0] || keys[1] != want[1] {
		t.Fatalf("online = %v, want %v", keys, want)
	}
}

func TestRegistry_ConcurrentChurn(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()
	key := Key("customer", 42)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("conn-%d", i)
			r.Add(ctx, key, conn)
			r.Remove(ctx, key, conn)
		}(i)
	}
	wg.Wait()

	if r.IsOnline(key) {
		t.Fatal("user still online after every connection closed")
	}
}
