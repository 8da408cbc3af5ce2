package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/songbook/internal/models"
	"github.com/desertthunder/songbook/internal/shared"
)

// SQLiteRepository implements [Repository] with one SQLite table per collection.
//
// Each row stores a record as JSON under its key field. Writes run in a single transaction per call.
// The database is opened and migrated lazily, on [SQLiteRepository.Init] or the first read or write.
type SQLiteRepository struct {
	path         string
	maxOpenConns int
	maxIdleConns int

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewSQLiteRepository creates a new SQLiteRepository for the database at path
func NewSQLiteRepository(path string, maxOpenConns, maxIdleConns int) *SQLiteRepository {
	return &SQLiteRepository{
		path:         path,
		maxOpenConns: maxOpenConns,
		maxIdleConns: maxIdleConns,
	}
}

// Kind returns [KindSQLite].
func (r *SQLiteRepository) Kind() Kind { return KindSQLite }

// Init opens the database and ensures every collection table exists.
func (r *SQLiteRepository) Init(ctx context.Context) error {
	_, err := r.conn(ctx)
	return err
}

// conn returns the open database, opening and migrating it on first use.
func (r *SQLiteRepository) conn(ctx context.Context) (*sql.DB, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, shared.ErrStorageClosed
	}
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.NewDatabaseContext(ctx, r.path)
	if err != nil {
		return nil, &shared.StorageInitError{Backend: string(KindSQLite), Err: err}
	}

	if r.path != shared.MemoryDatabase {
		shared.ConfigureDatabase(db, r.maxOpenConns, r.maxIdleConns)
	}

	if err := shared.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, &shared.StorageInitError{Backend: string(KindSQLite), Err: err}
	}

	r.db = db
	return db, nil
}

// Save upserts every record of data into collection c in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, c models.Collection, data models.Payload) error {
	return r.write(ctx, c, data.Records, false)
}

// Replace deletes every record of collection c and inserts records, in one transaction.
func (r *SQLiteRepository) Replace(ctx context.Context, c models.Collection, records []models.Record) error {
	return r.write(ctx, c, records, true)
}

type row struct {
	key  string
	data []byte
}

func (r *SQLiteRepository) write(ctx context.Context, c models.Collection, records []models.Record, truncate bool) error {
	if err := checkCollection(c); err != nil {
		return err
	}

	rows := make([]row, 0, len(records))
	for i, rec := range records {
		key, ok := rec.Key(c)
		if !ok {
			err := fmt.Errorf("%w: record %d has no %s", shared.ErrMissingKey, i, c.KeyField())
			if _, isString := rec[c.KeyField()].(string); rec.HasKeyField(c) && !isString {
				err = fmt.Errorf("%w: record %d %s must be a non-empty string, got %T", shared.ErrInvalidPayload, i, c.KeyField(), rec[c.KeyField()])
			}
			return &shared.StorageWriteError{Collection: c.String(), Err: err}
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return &shared.StorageWriteError{Collection: c.String(), Err: fmt.Errorf("failed to encode record %s: %w", key, err)}
		}
		rows = append(rows, row{key: key, data: data})
	}

	db, err := r.conn(ctx)
	if err != nil {
		return err
	}

	if err := r.commit(ctx, db, c, rows, truncate); err != nil {
		return &shared.StorageWriteError{Collection: c.String(), Err: err}
	}

	return nil
}

func (r *SQLiteRepository) commit(ctx context.Context, db *sql.DB, c models.Collection, rows []row, truncate bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Table names come from the validated collection set, never from input.
	if truncate {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", c)); err != nil {
			return fmt.Errorf("failed to clear collection: %w", err)
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (key, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, c)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rw := range rows {
		if _, err := stmt.ExecContext(ctx, rw.key, string(rw.data), now); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", rw.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Load returns the record stored under key, or every record of c when key is empty.
func (r *SQLiteRepository) Load(ctx context.Context, c models.Collection, key string) (models.Payload, error) {
	if err := checkCollection(c); err != nil {
		return models.Payload{}, err
	}

	db, err := r.conn(ctx)
	if err != nil {
		return models.Payload{}, err
	}

	if key != "" {
		var data string
		err := db.QueryRowContext(ctx, fmt.Sprintf("SELECT data FROM %s WHERE key = ?", c), key).Scan(&data)
		if errors.Is(err, sql.ErrNoRows) {
			return models.Payload{}, fmt.Errorf("%w: %s/%s", shared.ErrNotFound, c, key)
		}
		if err != nil {
			return models.Payload{}, fmt.Errorf("failed to query %s: %w", c, err)
		}

		rec, err := decodeRecord(data)
		if err != nil {
			return models.Payload{}, err
		}
		return models.One(rec), nil
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT data FROM %s ORDER BY key ASC", c))
	if err != nil {
		return models.Payload{}, fmt.Errorf("failed to query %s: %w", c, err)
	}
	defer rows.Close()

	records := []models.Record{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return models.Payload{}, fmt.Errorf("failed to scan %s: %w", c, err)
		}

		rec, err := decodeRecord(data)
		if err != nil {
			return models.Payload{}, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return models.Payload{}, fmt.Errorf("row iteration error: %w", err)
	}

	return models.Many(records), nil
}

// LastWrite returns when collection c was last written, or false when it holds no records.
func (r *SQLiteRepository) LastWrite(ctx context.Context, c models.Collection) (time.Time, bool, error) {
	if err := checkCollection(c); err != nil {
		return time.Time{}, false, err
	}

	db, err := r.conn(ctx)
	if err != nil {
		return time.Time{}, false, err
	}

	var at time.Time
	err = db.QueryRowContext(ctx, fmt.Sprintf("SELECT updated_at FROM %s ORDER BY updated_at DESC LIMIT 1", c)).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query last write of %s: %w", c, err)
	}

	return at.UTC(), true, nil
}

// Close closes the database. Later calls fail with [shared.ErrStorageClosed].
func (r *SQLiteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.db == nil {
		return nil
	}

	err := r.db.Close()
	r.db = nil
	return err
}

func decodeRecord(data string) (models.Record, error) {
	var rec models.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}
