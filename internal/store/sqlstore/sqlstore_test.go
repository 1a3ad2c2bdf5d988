package sqlstore

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"diary/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := New("sqlite3", filepath.Join(t.TempDir(), "diary.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *SQLStore, name string) int64 {
	t.Helper()
	id, err := s.CreateUser(context.Background(), name, "hash", time.Now())
	require.NoError(t, err)
	return id
}

func TestCreateUserDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := createUser(t, s, "alice")
	assert.Positive(t, id)

	_, err := s.CreateUser(ctx, "alice", "other", time.Now())
	assert.ErrorIs(t, err, models.ErrDuplicateUsername)

	// usernames are case-sensitive
	_, err = s.CreateUser(ctx, "Alice", "other", time.Now())
	assert.NoError(t, err)

	u, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "hash", u.PasswordHash)

	_, err = s.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpsertEntryKeepsOneRowPerDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uid := createUser(t, s, "alice")

	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	id1, err := s.UpsertEntry(ctx, uid, "2025-03-01", "First", "one", t0)
	require.NoError(t, err)

	id2, err := s.UpsertEntry(ctx, uid, "2025-03-01", "Second", "two", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	e, err := s.GetEntryByDate(ctx, uid, "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, "Second", e.Title)
	assert.Equal(t, "two", e.Content)
	assert.True(t, e.UpdatedAt.After(e.CreatedAt))

	var n int
	for _, err := range s.EntryDays(ctx, uid) {
		require.NoError(t, err)
		n++
	}
	assert.Equal(t, 1, n)
}

func TestEnsureEntryReusesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uid := createUser(t, s, "alice")

	placeholder, err := s.EnsureEntry(ctx, uid, "2025-03-02", time.Now())
	require.NoError(t, err)

	again, err := s.EnsureEntry(ctx, uid, "2025-03-02", time.Now())
	require.NoError(t, err)
	assert.Equal(t, placeholder, again)

	e, err := s.GetEntryByDate(ctx, uid, "2025-03-02")
	require.NoError(t, err)
	assert.True(t, e.Empty())

	saved, err := s.UpsertEntry(ctx, uid, "2025-03-02", "Now filled", "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, placeholder, saved)
}

func TestImageOwnershipAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	entryID, err := s.EnsureEntry(ctx, alice, "2025-03-01", time.Now())
	require.NoError(t, err)

	imgID, err := s.CreateImage(ctx, models.Image{EntryID: entryID, Path: "1/2025-03-01/a_beach.jpg", OriginalName: "beach.jpg", CreatedAt: time.Now()})
	require.NoError(t, err)

	img, err := s.GetImageWithOwner(ctx, imgID, alice)
	require.NoError(t, err)
	assert.Equal(t, "beach.jpg", img.OriginalName)

	_, err = s.GetImageWithOwner(ctx, imgID, bob)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, s.DeleteEntry(ctx, entryID))

	images, err := s.GetImages(ctx, entryID)
	require.NoError(t, err)
	assert.Empty(t, images)

	_, err = s.GetEntryByDate(ctx, alice, "2025-03-01")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetEntriesBetween(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uid := createUser(t, s, "alice")
	other := createUser(t, s, "bob")

	for _, d := range []string{"2025-01-31", "2025-02-01", "2025-02-15", "2025-03-01"} {
		_, err := s.UpsertEntry(ctx, uid, d, d, "", time.Now())
		require.NoError(t, err)
	}
	_, err := s.UpsertEntry(ctx, other, "2025-02-10", "not mine", "", time.Now())
	require.NoError(t, err)

	entries, err := s.GetEntriesBetween(ctx, uid, "2025-02-01", "2025-02-28")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2025-02-01", entries[0].Date)
	assert.Equal(t, "2025-02-15", entries[1].Date)
}

func TestEntryDaysStopsEarly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uid := createUser(t, s, "alice")
	for _, d := range []string{"2025-01-01", "2025-01-02", "2025-01-03"} {
		_, err := s.UpsertEntry(ctx, uid, d, "", "", time.Now())
		require.NoError(t, err)
	}

	var seen []string
	for e, err := range s.EntryDays(ctx, uid) {
		require.NoError(t, err)
		seen = append(seen, e.Date)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"2025-01-01", "2025-01-02"}, seen)

	// the connection was released by the early break
	_, err := s.GetEntryByDate(ctx, uid, "2025-01-03")
	assert.NoError(t, err)
}

func TestRebindPostgres(t *testing.T) {
	s := NewFromDB(nil, Postgres)
	assert.Equal(t, "SELECT id FROM entries WHERE user_id = $1 AND entry_date = $2",
		s.rebind("SELECT id FROM entries WHERE user_id = ? AND entry_date = ?"))

	lite := NewFromDB(nil, SQLite)
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "diary.db?_foreign_keys=on&_busy_timeout=5000", sqliteDSN("diary.db"))
	assert.Equal(t, "file:x.db?mode=rwc&_foreign_keys=on&_busy_timeout=5000", sqliteDSN("file:x.db?mode=rwc"))
	assert.Equal(t, "x.db?_fk=1&_busy_timeout=10", sqliteDSN("x.db?_fk=1&_busy_timeout=10"))
}

func TestCreateUserPostgresUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	s := NewFromDB(db, Postgres)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users (username, password_hash, created_at) VALUES ($1, $2, $3) RETURNING id")).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err = s.CreateUser(context.Background(), "alice", "hash", time.Now())
	assert.ErrorIs(t, err, models.ErrDuplicateUsername)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertEntryPostgresQuery(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	s := NewFromDB(db, Postgres)

	mock.ExpectQuery(`INSERT INTO entries .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6\)\s+ON CONFLICT \(user_id, entry_date\) DO UPDATE SET .* RETURNING id`).
		WithArgs(int64(7), "2025-03-01", "Trip", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := s.UpsertEntry(context.Background(), 7, "2025-03-01", "Trip", "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteEntryRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	s := NewFromDB(db, Postgres)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM images WHERE entry_id = \$1`).WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM entries WHERE id = \$1`).WithArgs(int64(3)).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = s.DeleteEntry(context.Background(), 3)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
