package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// dialect holds the backend-specific SQL. Queries shared by both backends
// live in repo.go.
type dialect struct {
	name   string
	driver string
	schema string

	insertActorDefault string
	upsertActor        string
	upsertUser         string
	upsertSettings     string
	selectUser         string

	// transient reports backend-specific connection-class errors.
	transient func(error) bool
	// init runs once per freshly opened pool.
	init func(ctx context.Context, db *sql.DB, cfg Config) error
}

var mysqlDialect = dialect{
	name:   "mysql",
	driver: "mysql",
	schema: "schema/mysql.sql",

	insertActorDefault: `INSERT IGNORE INTO actor_state (actor_id) VALUES (?)`,
	upsertActor: `INSERT INTO actor_state (actor_id, trips, balance, clan, biome, gold_fish, emerald_fish)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE trips = VALUES(trips), balance = VALUES(balance), clan = VALUES(clan),
		biome = VALUES(biome), gold_fish = VALUES(gold_fish), emerald_fish = VALUES(emerald_fish)`,
	upsertUser: "INSERT INTO `user` (user_id, display_name) VALUES (?, ?)" +
		" ON DUPLICATE KEY UPDATE display_name = VALUES(display_name)",
	upsertSettings: `INSERT INTO settings (user_id, owner_id, prefix, server_id) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE owner_id = VALUES(owner_id), prefix = VALUES(prefix), server_id = VALUES(server_id)`,
	selectUser: "SELECT user_id, display_name FROM `user` WHERE user_id = ?",

	transient: isMySQLTransient,
	init:      func(context.Context, *sql.DB, Config) error { return nil },
}

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	schema: "schema/sqlite.sql",

	insertActorDefault: `INSERT OR IGNORE INTO actor_state (actor_id) VALUES (?)`,
	upsertActor: `INSERT INTO actor_state (actor_id, trips, balance, clan, biome, gold_fish, emerald_fish)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(actor_id) DO UPDATE SET trips = excluded.trips, balance = excluded.balance,
		clan = excluded.clan, biome = excluded.biome, gold_fish = excluded.gold_fish,
		emerald_fish = excluded.emerald_fish`,
	upsertUser: `INSERT INTO "user" (user_id, display_name) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET display_name = excluded.display_name`,
	upsertSettings: `INSERT INTO settings (user_id, owner_id, prefix, server_id) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET owner_id = excluded.owner_id, prefix = excluded.prefix,
		server_id = excluded.server_id`,
	selectUser: `SELECT user_id, display_name FROM "user" WHERE user_id = ?`,

	transient: isSQLiteBusy,
	init:      initSQLite,
}

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql", "mariadb":
		return mysqlDialect, nil
	case "", "sqlite", "sqlite3":
		return sqliteDialect, nil
	default:
		return dialect{}, errors.New("unknown storage driver: " + driver)
	}
}

func (d dialect) statements() ([]string, error) {
	b, err := schemaFS.ReadFile(d.schema)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, stmt := range strings.Split(string(b), ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func (d dialect) dsn(cfg Config) (string, error) {
	switch d.name {
	case "mysql":
		if strings.TrimSpace(cfg.Host) == "" || strings.TrimSpace(cfg.Name) == "" {
			return "", errors.New("database.host and database.name are required for mysql")
		}
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		mc.DBName = cfg.Name
		mc.Timeout = cfg.OpTimeout
		mc.ReadTimeout = cfg.OpTimeout
		mc.WriteTimeout = cfg.OpTimeout
		return mc.FormatDSN(), nil
	default:
		if strings.TrimSpace(cfg.Path) == "" {
			return "", errors.New("sqlite path is required")
		}
		return cfg.Path, nil
	}
}

func initSQLite(ctx context.Context, db *sql.DB, cfg Config) error {
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if cfg.BusyTimeout > 0 {
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")
	return nil
}

func ensureSQLiteDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// MySQL error numbers treated as connection-class.
const (
	erConCount       = 1040 // too many connections
	erServerShutdown = 1053
	crServerGone     = 2006
	crServerLost     = 2013
)

func isMySQLTransient(err error) bool {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case erConCount, erServerShutdown, crServerGone, crServerLost:
			return true
		}
	}
	return false
}

// isSQLiteBusy matches SQLITE_BUSY (5) and SQLITE_LOCKED (6) by message so the
// check does not depend on the driver's error type.
func isSQLiteBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED")
}
