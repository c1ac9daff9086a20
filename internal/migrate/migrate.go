// Package migrate applies the embedded SQL schema migrations: versioned
// up/down file pairs tracked in a schema_migrations table, each applied
// inside its own transaction.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dwdopendata/brightsky/internal/log"
)

//go:embed sql/*.sql
var migrationFS embed.FS

// Migration is one versioned schema change with its forward and reverse
// SQL.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

var migrationFilePattern = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

const createMigrationTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)
`

// Open connects to Postgres at dsn with the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("migrate: opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: pinging database: %w", err)
	}
	return db, nil
}

// Up applies every pending migration in version order.
func Up(db *sql.DB) error {
	if _, err := db.Exec(createMigrationTableSQL); err != nil {
		return fmt.Errorf("migrate: creating schema_migrations: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return err
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(db, m); err != nil {
			return err
		}
		applied++
	}
	if applied == 0 {
		log.Infof("migrate: schema up to date at version %d", current)
	}
	return nil
}

func apply(db *sql.DB, m Migration) error {
	log.Infof("migrate: applying %d (%s)", m.Version, m.Name)
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.Up); err != nil {
		return fmt.Errorf("migrate: applying %d: %w", m.Version, err)
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
		return fmt.Errorf("migrate: recording %d: %w", m.Version, err)
	}
	return tx.Commit()
}

func currentVersion(db *sql.DB) (int, error) {
	var version sql.NullInt64
	err := db.QueryRow(`SELECT max(version) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("migrate: reading current version: %w", err)
	}
	return int(version.Int64), nil
}

// loadMigrations pairs the embedded up/down files by version.
func loadMigrations() ([]Migration, error) {
	entries, err := migrationFS.ReadDir("sql")
	if err != nil {
		return nil, fmt.Errorf("migrate: reading embedded migrations: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		m := migrationFilePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("migrate: bad version in %s: %w", entry.Name(), err)
		}
		content, err := migrationFS.ReadFile("sql/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("migrate: reading %s: %w", entry.Name(), err)
		}

		migration, ok := byVersion[version]
		if !ok {
			migration = &Migration{Version: version, Name: m[2]}
			byVersion[version] = migration
		}
		if m[3] == "up" {
			migration.Up = string(content)
		} else {
			migration.Down = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" {
			return nil, fmt.Errorf("migrate: migration %d has no up SQL", m.Version)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}
