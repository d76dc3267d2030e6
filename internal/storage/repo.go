package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	logx "fisherbot/pkg/logx"
)

const (
	selectActor = `SELECT actor_id, trips, balance, clan, biome, gold_fish, emerald_fish
		FROM actor_state WHERE actor_id = ?`
	selectSettings = `SELECT user_id, owner_id, prefix, server_id FROM settings WHERE user_id = ?`
)

// LoadActor returns the persisted state of id, creating a default row first
// when none exists.
func (s *Store) LoadActor(ctx context.Context, id string) (ActorState, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return ActorState{}, fmt.Errorf("storage: load actor: %w: empty actor id", ErrInvalid)
	}
	row, ok, err := s.FetchOne(ctx, selectActor, id)
	if err != nil {
		return ActorState{}, err
	}
	if !ok {
		if err := s.Execute(ctx, s.d.insertActorDefault, id); err != nil {
			return ActorState{}, err
		}
		s.log.Info("actor created", logx.String("actor", id))
		row, ok, err = s.FetchOne(ctx, selectActor, id)
		if err != nil {
			return ActorState{}, err
		}
		if !ok {
			return ActorState{}, fmt.Errorf("storage: load actor %q: %w: row missing after insert", id, ErrInvalid)
		}
	}
	return decodeActor(row)
}

// SaveActor writes the whole row. Repeating it is harmless.
func (s *Store) SaveActor(ctx context.Context, st ActorState) error {
	if strings.TrimSpace(st.ActorID) == "" {
		return fmt.Errorf("storage: save actor: %w: empty actor id", ErrInvalid)
	}
	return s.Execute(ctx, s.d.upsertActor,
		st.ActorID, int64(st.Trips), st.Balance, st.Clan, st.Biome, int64(st.GoldFish), int64(st.EmeraldFish),
	)
}

// UpsertUser writes the whole user row.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	if strings.TrimSpace(u.UserID) == "" {
		return fmt.Errorf("storage: upsert user: %w: empty user id", ErrInvalid)
	}
	return s.Execute(ctx, s.d.upsertUser, u.UserID, u.DisplayName)
}

// LoadUser returns the user row of id.
func (s *Store) LoadUser(ctx context.Context, id string) (User, bool, error) {
	row, ok, err := s.FetchOne(ctx, s.d.selectUser, id)
	if err != nil || !ok {
		return User{}, ok, err
	}
	return User{UserID: asString(row["user_id"]), DisplayName: asString(row["display_name"])}, true, nil
}

// UpsertSettings writes the whole settings row.
func (s *Store) UpsertSettings(ctx context.Context, st Settings) error {
	if strings.TrimSpace(st.UserID) == "" {
		return fmt.Errorf("storage: upsert settings: %w: empty user id", ErrInvalid)
	}
	return s.Execute(ctx, s.d.upsertSettings, st.UserID, st.OwnerID, st.Prefix, st.ServerID)
}

// LoadSettings returns the settings row of id.
func (s *Store) LoadSettings(ctx context.Context, id string) (Settings, bool, error) {
	row, ok, err := s.FetchOne(ctx, selectSettings, id)
	if err != nil || !ok {
		return Settings{}, ok, err
	}
	return Settings{
		UserID:   asString(row["user_id"]),
		OwnerID:  asString(row["owner_id"]),
		Prefix:   asString(row["prefix"]),
		ServerID: asString(row["server_id"]),
	}, true, nil
}

func decodeActor(r Row) (ActorState, error) {
	var (
		st   ActorState
		errs []error
	)
	st.ActorID = asString(r["actor_id"])
	st.Clan = asString(r["clan"])
	st.Biome = asString(r["biome"])

	u := func(col string) uint64 {
		n, err := asInt64(r[col])
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", col, err))
			return 0
		}
		if n < 0 {
			errs = append(errs, fmt.Errorf("%s: negative value %d", col, n))
			return 0
		}
		return uint64(n)
	}
	st.Trips = u("trips")
	st.GoldFish = u("gold_fish")
	st.EmeraldFish = u("emerald_fish")
	bal, err := asInt64(r["balance"])
	if err != nil {
		errs = append(errs, fmt.Errorf("balance: %w", err))
	}
	st.Balance = bal

	if len(errs) > 0 {
		return ActorState{}, fmt.Errorf("storage: decode actor: %w: %w", ErrInvalid, errors.Join(errs...))
	}
	return st, nil
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported column type %T", v)
	}
}
