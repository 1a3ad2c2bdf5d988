package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"diary/internal/models"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// DBType represents the type of database
type DBType string

const (
	SQLite   DBType = "sqlite3"
	Postgres DBType = "postgres"
)

// SQLStore implements the Store interface for SQL databases
type SQLStore struct {
	db     *sql.DB
	dbType DBType
}

// New opens the database, applies pending migrations and returns a ready store.
func New(driver, connStr string) (*SQLStore, error) {
	db, dbType, err := Open(driver, connStr)
	if err != nil {
		return nil, err
	}
	if _, err := Migrate(db, dbType); err != nil {
		db.Close()
		return nil, err
	}
	return NewFromDB(db, dbType), nil
}

// Open connects to the database without touching the schema.
func Open(driver, connStr string) (*sql.DB, DBType, error) {
	dbType := DBType(driver)
	switch dbType {
	case SQLite:
		connStr = sqliteDSN(connStr)
	case Postgres:
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, "", err
	}
	if dbType == SQLite {
		// One writer at a time; also keeps ":memory:" databases on a single connection.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, "", err
	}
	return db, dbType, nil
}

// NewFromDB wraps an existing, already migrated connection.
func NewFromDB(db *sql.DB, dbType DBType) *SQLStore {
	return &SQLStore{
		db:     db,
		dbType: dbType,
	}
}

// sqliteDSN turns on foreign keys and a busy timeout for every pooled connection.
func sqliteDSN(connStr string) string {
	params := []string{}
	if !strings.Contains(connStr, "_foreign_keys") && !strings.Contains(connStr, "_fk") {
		params = append(params, "_foreign_keys=on")
	}
	if !strings.Contains(connStr, "_busy_timeout") {
		params = append(params, "_busy_timeout=5000")
	}
	if len(params) == 0 {
		return connStr
	}
	sep := "?"
	if strings.Contains(connStr, "?") {
		sep = "&"
	}
	return connStr + sep + strings.Join(params, "&")
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if s.dbType == SQLite {
		return query
	}
	var result strings.Builder
	argNum := 1
	for _, c := range query {
		if c == '?' {
			result.WriteString(fmt.Sprintf("$%d", argNum))
			argNum++
		} else {
			result.WriteRune(c)
		}
	}
	return result.String()
}

// insertID runs an INSERT and returns the new row id in a dialect-appropriate way.
func (s *SQLStore) insertID(ctx context.Context, query string, args ...any) (int64, error) {
	if s.dbType == Postgres {
		var id int64
		err := s.db.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	result, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// User functions
func (s *SQLStore) CreateUser(ctx context.Context, username, passwordHash string, now time.Time) (int64, error) {
	id, err := s.insertID(ctx, "INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)", username, passwordHash, now.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, models.ErrDuplicateUsername
		}
		return 0, fmt.Errorf("creating user: %w", err)
	}
	return id, nil
}

func (s *SQLStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id, username, password_hash, created_at FROM users WHERE username = ?"), username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, models.ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("finding user: %w", err)
	}
	return u, nil
}

// Entry functions

// UpsertEntry relies on the (user_id, entry_date) unique constraint, so two
// concurrent saves for one date resolve to a single row.
func (s *SQLStore) UpsertEntry(ctx context.Context, userID int64, date, title, content string, now time.Time) (int64, error) {
	query := `INSERT INTO entries (user_id, entry_date, title, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, entry_date) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			updated_at = excluded.updated_at
		RETURNING id`
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(query), userID, date, title, content, now.UTC(), now.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting entry: %w", err)
	}
	return id, nil
}

func (s *SQLStore) EnsureEntry(ctx context.Context, userID int64, date string, now time.Time) (int64, error) {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO entries (user_id, entry_date, title, content, created_at, updated_at)
		VALUES (?, ?, '', '', ?, ?)
		ON CONFLICT (user_id, entry_date) DO NOTHING`), userID, date, now.UTC(), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("creating placeholder entry: %w", err)
	}
	var id int64
	err = s.db.QueryRowContext(ctx, s.rebind("SELECT id FROM entries WHERE user_id = ? AND entry_date = ?"), userID, date).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("finding entry: %w", err)
	}
	return id, nil
}

func (s *SQLStore) GetEntryByDate(ctx context.Context, userID int64, date string) (models.Entry, error) {
	e := models.Entry{UserID: userID}
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT id, entry_date, title, content, created_at, updated_at FROM entries WHERE user_id = ? AND entry_date = ?"), userID, date).
		Scan(&e.ID, &e.Date, &e.Title, &e.Content, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entry{}, models.ErrNotFound
	}
	if err != nil {
		return models.Entry{}, fmt.Errorf("finding entry: %w", err)
	}
	return e, nil
}

func (s *SQLStore) GetEntriesBetween(ctx context.Context, userID int64, start, end string) ([]models.Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT id, entry_date, title, content, created_at, updated_at FROM entries WHERE user_id = ? AND entry_date >= ? AND entry_date <= ? ORDER BY entry_date ASC"), userID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.Entry
	for rows.Next() {
		e := models.Entry{UserID: userID}
		if err := rows.Scan(&e.ID, &e.Date, &e.Title, &e.Content, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EntryDays streams a user's entries ordered by date. The rows stay open while
// the caller iterates, so the loop body must not issue further queries on a
// single-connection SQLite store.
func (s *SQLStore) EntryDays(ctx context.Context, userID int64) iter.Seq2[models.Entry, error] {
	return func(yield func(models.Entry, error) bool) {
		rows, err := s.db.QueryContext(ctx, s.rebind("SELECT id, entry_date, title, content FROM entries WHERE user_id = ? ORDER BY entry_date ASC"), userID)
		if err != nil {
			yield(models.Entry{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			e := models.Entry{UserID: userID}
			if err := rows.Scan(&e.ID, &e.Date, &e.Title, &e.Content); err != nil {
				yield(models.Entry{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Entry{}, err)
		}
	}
}

// DeleteEntry removes the entry and its image rows in one transaction.
func (s *SQLStore) DeleteEntry(ctx context.Context, entryID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM images WHERE entry_id = ?"), entryID); err != nil {
		return fmt.Errorf("deleting images: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM entries WHERE id = ?"), entryID); err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	return tx.Commit()
}

// Image functions
func (s *SQLStore) CreateImage(ctx context.Context, img models.Image) (int64, error) {
	return s.insertID(ctx, "INSERT INTO images (entry_id, filename, original_name, width, height, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		img.EntryID, img.Path, img.OriginalName, img.Width, img.Height, img.CreatedAt.UTC())
}

// GetImages returns the entry's images, newest first.
func (s *SQLStore) GetImages(ctx context.Context, entryID int64) ([]models.Image, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind("SELECT id, filename, original_name, width, height, created_at FROM images WHERE entry_id = ? ORDER BY id DESC"), entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		img := models.Image{EntryID: entryID}
		if err := rows.Scan(&img.ID, &img.Path, &img.OriginalName, &img.Width, &img.Height, &img.CreatedAt); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *SQLStore) GetImageWithOwner(ctx context.Context, imageID, userID int64) (models.Image, error) {
	var img models.Image
	query := `SELECT i.id, i.entry_id, i.filename, i.original_name, i.width, i.height, i.created_at
	          FROM images i
	          JOIN entries e ON i.entry_id = e.id
	          WHERE i.id = ? AND e.user_id = ?`
	err := s.db.QueryRowContext(ctx, s.rebind(query), imageID, userID).
		Scan(&img.ID, &img.EntryID, &img.Path, &img.OriginalName, &img.Width, &img.Height, &img.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Image{}, models.ErrNotFound
	}
	if err != nil {
		return models.Image{}, fmt.Errorf("finding image: %w", err)
	}
	return img, nil
}

func (s *SQLStore) DeleteImage(ctx context.Context, imageID int64) error {
	_, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM images WHERE id = ?"), imageID)
	return err
}
