package storage

import (
	"context"
	"path/filepath"
	"testing"

	logx "fisherbot/pkg/logx"
)

func logxNop() logx.Logger { return logx.Nop() }

func openSQLiteStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "fisherbot.db")
	s, err := Open(Config{Driver: "sqlite", Path: path}, logxNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteSchemaIsIdempotent(t *testing.T) {
	s := openSQLiteStore(t)
	for i := 0; i < 2; i++ {
		if err := s.Connect(context.Background()); err != nil {
			t.Fatalf("Connect #%d: %v", i+2, err)
		}
	}
}

func TestSQLiteActorLazyCreate(t *testing.T) {
	s := openSQLiteStore(t)
	ctx := context.Background()

	st, err := s.LoadActor(ctx, "42")
	if err != nil {
		t.Fatalf("LoadActor: %v", err)
	}
	if st != (ActorState{ActorID: "42"}) {
		t.Fatalf("LoadActor = %+v, want default row", st)
	}
}

func TestSQLiteSaveActorIsIdempotent(t *testing.T) {
	s := openSQLiteStore(t)
	ctx := context.Background()

	want := ActorState{
		ActorID: "42", Trips: 10, Balance: 1234567,
		Clan: "Sharks", Biome: "Ocean", GoldFish: 3, EmeraldFish: 8,
	}
	for i := 0; i < 2; i++ {
		if err := s.SaveActor(ctx, want); err != nil {
			t.Fatalf("SaveActor #%d: %v", i+1, err)
		}
	}
	got, err := s.LoadActor(ctx, "42")
	if err != nil {
		t.Fatalf("LoadActor: %v", err)
	}
	if got != want {
		t.Fatalf("LoadActor = %+v, want %+v", got, want)
	}
	rows, err := s.FetchAll(ctx, "SELECT actor_id FROM actor_state")
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
}

func TestSQLiteUserAndSettings(t *testing.T) {
	s := openSQLiteStore(t)
	ctx := context.Background()

	if err := s.UpsertUser(ctx, User{UserID: "42", DisplayName: "old"}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if err := s.UpsertUser(ctx, User{UserID: "42", DisplayName: "fisher"}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	u, ok, err := s.LoadUser(ctx, "42")
	if err != nil || !ok || u.DisplayName != "fisher" {
		t.Fatalf("LoadUser = (%+v, %v, %v)", u, ok, err)
	}

	want := Settings{UserID: "42", OwnerID: "7", Prefix: "%", ServerID: "99"}
	if err := s.UpsertSettings(ctx, want); err != nil {
		t.Fatalf("UpsertSettings: %v", err)
	}
	got, ok, err := s.LoadSettings(ctx, "42")
	if err != nil || !ok {
		t.Fatalf("LoadSettings = (%+v, %v, %v)", got, ok, err)
	}
	if got != want {
		t.Fatalf("LoadSettings = %+v, want %+v", got, want)
	}

	if _, ok, err := s.LoadSettings(ctx, "missing"); err != nil || ok {
		t.Fatalf("LoadSettings(missing) = (%v, %v)", ok, err)
	}
}

func TestSaveActorRejectsEmptyID(t *testing.T) {
	s := openSQLiteStore(t)
	if err := s.SaveActor(context.Background(), ActorState{}); err == nil {
		t.Fatal("expected error for empty actor id")
	}
}
