// Package liststore is an embedded list store backed by SQLite or
// PostgreSQL. Each Site it hands out satisfies domain.EndpointHandle, so
// the collection client runs unchanged against a local database.
package liststore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/opensource-finance/heron/internal/domain"
)

// Store owns the database and the compiled filter programs shared by
// every site.
type Store struct {
	db     *sql.DB
	driver string
	env    *cel.Env
	now    func() time.Time

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// New opens the store selected by cfg.Driver and runs migrations.
func New(cfg domain.StoreConfig) (*Store, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	env, err := cel.NewEnv(
		cel.Variable("item", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	s := &Store{
		db:       db,
		driver:   cfg.Driver,
		env:      env,
		now:      time.Now,
		programs: make(map[string]cel.Program),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Site returns the handle for one site URL. Writes made through it are
// attributed to actor when actor carries an email or id. No I/O happens
// until the handle is used.
func (s *Store) Site(url string, actor domain.PersonRef) *Site {
	return &Site{
		store: s,
		url:   strings.TrimRight(strings.TrimSpace(url), "/"),
		key:   siteKey(url),
		actor: actor,
	}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func siteKey(url string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(url), "/"))
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// nextID allocates the next row id of a list. Ids are never reused, even
// after a delete.
func (s *Store) nextID(ctx context.Context, tx *sql.Tx, site string, list domain.CollectionRef) (int, error) {
	var last int
	err := tx.QueryRowContext(ctx, s.rebind(`SELECT last_id FROM list_sequences WHERE site = ? AND list = ?`), site, string(list)).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO list_sequences (site, list, last_id) VALUES (?, ?, 1)`), site, string(list))
		return 1, err
	case err != nil:
		return 0, err
	}

	_, err = tx.ExecContext(ctx, s.rebind(`UPDATE list_sequences SET last_id = ? WHERE site = ? AND list = ?`), last+1, site, string(list))
	return last + 1, err
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
