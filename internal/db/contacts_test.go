package db

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-test/deep"

	"github.com/lure-project/lure/internal/events"
	"github.com/lure-project/lure/internal/ping"
)

func openStore(t *testing.T) *ContactStore {
	t.Helper()
	store, err := NewContactStore(filepath.Join(t.TempDir(), "data", "contacts.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestContactFromRequest(t *testing.T) {
	addr := &net.TCPAddr{IP: net.ParseIP("192.0.2.1"), Port: 5000}
	at := time.Unix(1700000000, 0)

	tests := []struct {
		name string
		kind ping.Kind
		want Contact
	}{
		{
			"join",
			ping.JoinAttempt{PlayerName: "Duckulus", PlayerID: "4566e69f-c907-48ee-8d71-d7ba5aa00d20"},
			Contact{Kind: ping.KindJoin, RemoteAddr: "192.0.2.1:5000", PlayerName: "Duckulus",
				PlayerID: "4566e69f-c907-48ee-8d71-d7ba5aa00d20", CreatedAt: at},
		},
		{
			"legacy",
			ping.LegacyPing{ServerListPing: ping.ServerListPing{ProtocolVersion: 74, ServerAddress: "host", ServerPort: 25565}},
			Contact{Kind: ping.KindLegacy, RemoteAddr: "192.0.2.1:5000", ProtocolVersion: 74,
				ServerAddress: "host", ServerPort: 25565, CreatedAt: at},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ContactFromRequest(ping.Request{RemoteAddr: addr, ReceivedAt: at, Kind: tt.kind})
			if diff := deep.Equal(got, tt.want); diff != nil {
				t.Fatal(diff)
			}
		})
	}
}

func TestInsertAndRecent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	for i, kind := range []string{ping.KindModern, ping.KindLegacy, ping.KindJoin} {
		c := Contact{Kind: kind, RemoteAddr: "192.0.2.1:5000", ServerPort: 25565, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if _, err := store.Insert(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d contacts, want 2", len(recent))
	}
	if recent[0].Kind != ping.KindJoin || recent[1].Kind != ping.KindLegacy {
		t.Fatalf("order %s, %s", recent[0].Kind, recent[1].Kind)
	}
	if !recent[0].CreatedAt.Equal(base.Add(2*time.Minute)) || recent[1].ServerPort != 25565 {
		t.Fatalf("row %+v", recent[0])
	}

	counts, err := store.CountByKind(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int64{ping.KindModern: 1, ping.KindLegacy: 1, ping.KindJoin: 1}
	if diff := deep.Equal(counts, want); diff != nil {
		t.Fatal(diff)
	}
}

func TestPrune(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now()

	old := Contact{Kind: ping.KindModern, RemoteAddr: "a", CreatedAt: now.Add(-48 * time.Hour)}
	fresh := Contact{Kind: ping.KindModern, RemoteAddr: "b", CreatedAt: now}
	store.Insert(ctx, old)
	store.Insert(ctx, old)
	store.Insert(ctx, fresh)

	removed, err := store.Prune(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 2 {
		t.Fatalf("removed %d, want 2", removed)
	}
	left, _ := store.Recent(ctx, 10)
	if len(left) != 1 || left[0].RemoteAddr != "b" {
		t.Fatalf("left %+v", left)
	}
}

func TestHandleContact(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	req := ping.NewRequest(&net.TCPAddr{IP: net.ParseIP("192.0.2.9"), Port: 1}, ping.JoinAttempt{PlayerName: "Duckulus"})
	if err := store.HandleContact(ctx, events.NewContactEvent("test", req)); err != nil {
		t.Fatal(err)
	}
	if err := store.HandleContact(ctx, events.Event{Type: events.EventShutdown}); err != nil {
		t.Fatal(err)
	}

	recent, _ := store.Recent(ctx, 10)
	if len(recent) != 1 || recent[0].PlayerName != "Duckulus" {
		t.Fatalf("stored %+v", recent)
	}
}
