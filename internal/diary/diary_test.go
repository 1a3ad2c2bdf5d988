package diary

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"diary/internal/blob"
	"diary/internal/logging"
	"diary/internal/models"
	"diary/internal/store/sqlstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc     *Service
	store   *sqlstore.SQLStore
	uploads string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := sqlstore.New("sqlite3", filepath.Join(dir, "diary.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	uploads := filepath.Join(dir, "uploads")
	fs, err := blob.NewFileSystem(uploads)
	require.NoError(t, err)

	return fixture{svc: New(st, fs, logging.Discard()), store: st, uploads: uploads}
}

func (f fixture) user(t *testing.T, name string) int64 {
	t.Helper()
	id, err := f.svc.Register(context.Background(), name, "secret123")
	require.NoError(t, err)
	return id
}

func (f fixture) exists(key string) bool {
	_, err := os.Stat(filepath.Join(f.uploads, filepath.FromSlash(key)))
	return err == nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func upload(name string, data []byte) Upload {
	return Upload{Filename: name, Body: bytes.NewReader(data)}
}

func TestRegisterAndVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.user(t, "alice")

	u, err := f.svc.Verify(ctx, "alice", "secret123")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)

	_, err = f.svc.Verify(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	_, err = f.svc.Verify(ctx, "nobody", "secret123")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = f.svc.Register(ctx, "alice", "another")
	assert.ErrorIs(t, err, models.ErrDuplicateUsername)

	_, err = f.svc.Register(ctx, "  ", "secret")
	assert.ErrorIs(t, err, models.ErrMissingField)
	_, err = f.svc.Register(ctx, "bob", "")
	assert.ErrorIs(t, err, models.ErrMissingField)

	_, err = f.svc.Register(ctx, "carol", strings.Repeat("x", 73))
	assert.ErrorIs(t, err, models.ErrPasswordTooLong)
}

func TestSaveEntryTwiceKeepsOneEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "alice")

	id1, err := f.svc.SaveEntry(ctx, uid, "2025-03-01", "Trip", "first draft")
	require.NoError(t, err)
	id2, err := f.svc.SaveEntry(ctx, uid, "2025-03-01", "  Trip home ", "second draft")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	e, err := f.svc.Entry(ctx, uid, "2025-03-01")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "Trip home", e.Title)
	assert.Equal(t, "second draft", e.Content)

	events, err := f.svc.Events(ctx, uid)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSaveEntryRejectsBadDate(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "alice")

	for _, d := range []string{"", "2025-3-1", "2025-02-30", "01-03-2025", "2025-03-01T00:00:00Z"} {
		_, err := f.svc.SaveEntry(context.Background(), uid, d, "t", "c")
		assert.ErrorIs(t, err, models.ErrInvalidDate, d)
	}
}

func TestEntryMissing(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "alice")

	e, err := f.svc.Entry(context.Background(), uid, "2025-03-01")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Trip", Label(models.Entry{Title: "Trip", Content: "ignored"}))
	assert.Equal(t, "short note", Label(models.Entry{Content: "  short note \n"}))
	assert.Equal(t, "Entry", Label(models.Entry{Content: "   "}))
	assert.Equal(t, strings.Repeat("é", 24), Label(models.Entry{Content: strings.Repeat("é", 30)}))
}

func TestEventsEmptyIsNotNil(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "alice")

	events, err := f.svc.Events(context.Background(), uid)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestCalendarIsFreshPerCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "alice")

	_, err := f.svc.SaveEntry(ctx, uid, "2025-03-02", "", "walked by the river")
	require.NoError(t, err)

	days := f.svc.Calendar(ctx, uid)
	var first []models.CalendarDay
	for d, err := range days {
		require.NoError(t, err)
		first = append(first, d)
	}
	require.Len(t, first, 1)

	_, err = f.svc.SaveEntry(ctx, uid, "2025-03-01", "", "")
	require.NoError(t, err)

	var second []models.CalendarDay
	for d, err := range f.svc.Calendar(ctx, uid) {
		require.NoError(t, err)
		second = append(second, d)
	}
	assert.Equal(t, []models.CalendarDay{
		{Date: "2025-03-01", Label: "Entry"},
		{Date: "2025-03-02", Label: "walked by the river"},
	}, second)
}

func TestDeleteMissingEntryIsNoop(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "alice")

	deleted, err := f.svc.DeleteEntry(context.Background(), uid, "2025-03-01")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestUploadCreatesPlaceholderEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "alice")

	res, err := f.svc.Upload(ctx, uid, "2025-03-01", []Upload{upload("beach.jpg", pngBytes(t, 4, 3))})
	require.NoError(t, err)
	require.Len(t, res.Saved, 1)
	assert.Empty(t, res.Rejected)

	img := res.Saved[0]
	assert.Equal(t, "beach.jpg", img.OriginalName)
	assert.Equal(t, 4, img.Width)
	assert.Equal(t, 3, img.Height)
	assert.True(t, strings.HasPrefix(img.Path, "1/2025-03-01/"), img.Path)
	assert.True(t, strings.HasSuffix(img.Path, "_beach.jpg"), img.Path)
	assert.True(t, f.exists(img.Path))

	e, err := f.svc.Entry(ctx, uid, "2025-03-01")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.True(t, e.Empty())

	events, err := f.svc.Events(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, []models.Event{{Title: "Entry", Start: "2025-03-01", AllDay: true}}, events)
}

func TestUploadSameNameTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "alice")
	data := pngBytes(t, 1, 1)

	res, err := f.svc.Upload(ctx, uid, "2025-03-01", []Upload{upload("beach.jpg", data), upload("beach.jpg", data)})
	require.NoError(t, err)
	require.Len(t, res.Saved, 2)
	assert.NotEqual(t, res.Saved[0].ID, res.Saved[1].ID)
	assert.NotEqual(t, res.Saved[0].Path, res.Saved[1].Path)
	assert.True(t, f.exists(res.Saved[0].Path))
	assert.True(t, f.exists(res.Saved[1].Path))
}

func TestUploadRejectsDisallowedExtensions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "alice")

	res, err := f.svc.Upload(ctx, uid, "2025-03-01", []Upload{
		upload("payload.exe", []byte("MZ")),
		upload("noextension", []byte("x")),
		upload("photo.PNG", pngBytes(t, 2, 2)),
	})
	require.NoError(t, err)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, "payload.exe", res.Rejected[0].Filename)
	assert.Equal(t, "missing file extension", res.Rejected[1].Reason)
	require.Len(t, res.Saved, 1)
	assert.Equal(t, "photo.PNG", res.Saved[0].OriginalName)

	day, err := f.svc.Day(ctx, uid, "2025-03-01")
	require.NoError(t, err)
	assert.Len(t, day.Images, 1)

	var files int
	require.NoError(t, filepath.WalkDir(f.uploads, func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files++
		}
		return err
	}))
	assert.Equal(t, 1, files)
}

func TestUndecodableImageIsStillStored(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "alice")

	res, err := f.svc.Upload(context.Background(), uid, "2025-03-01", []Upload{upload("scan.webp", []byte("not really webp"))})
	require.NoError(t, err)
	require.Len(t, res.Saved, 1)
	assert.Zero(t, res.Saved[0].Width)
}

func TestDeleteEntryRemovesImages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "alice")

	_, err := f.svc.SaveEntry(ctx, uid, "2025-03-01", "Trip", "")
	require.NoError(t, err)
	res, err := f.svc.Upload(ctx, uid, "2025-03-01", []Upload{upload("a.png", pngBytes(t, 1, 1)), upload("b.gif", []byte("GIF89a"))})
	require.NoError(t, err)
	require.Len(t, res.Saved, 2)

	// a file that vanished already must not block the delete
	require.NoError(t, os.Remove(filepath.Join(f.uploads, filepath.FromSlash(res.Saved[1].Path))))

	deleted, err := f.svc.DeleteEntry(ctx, uid, "2025-03-01")
	require.NoError(t, err)
	assert.True(t, deleted)

	for _, img := range res.Saved {
		assert.False(t, f.exists(img.Path))
	}
	images, err := f.store.GetImages(ctx, res.Saved[0].EntryID)
	require.NoError(t, err)
	assert.Empty(t, images)

	e, err := f.svc.Entry(ctx, uid, "2025-03-01")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestCrossUserAccessBehavesAsMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	res, err := f.svc.Upload(ctx, alice, "2025-03-01", []Upload{upload("beach.jpg", pngBytes(t, 1, 1))})
	require.NoError(t, err)
	img := res.Saved[0]

	deleted, err := f.svc.DeleteImage(ctx, img.ID, bob)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, f.exists(img.Path))

	_, err = f.svc.OpenUpload(ctx, bob, img.Path)
	assert.ErrorIs(t, err, models.ErrNotFound)

	deleted, err = f.svc.DeleteEntry(ctx, bob, "2025-03-01")
	require.NoError(t, err)
	assert.False(t, deleted)

	day, err := f.svc.Day(ctx, bob, "2025-03-01")
	require.NoError(t, err)
	assert.Nil(t, day.Entry)

	rc, err := f.svc.OpenUpload(ctx, alice, img.Path)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	deleted, err = f.svc.DeleteImage(ctx, img.ID, alice)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, f.exists(img.Path))

	deleted, err = f.svc.DeleteImage(ctx, 9999, alice)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestOpenUploadRejectsTraversal(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "alice")

	for _, key := range []string{"1/../2/x.png", "../diary.db", "/etc/passwd", "1\\x.png", ""} {
		_, err := f.svc.OpenUpload(context.Background(), uid, key)
		assert.ErrorIs(t, err, models.ErrNotFound, key)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"beach.jpg":            "beach.jpg",
		"my holiday pic.png":   "my_holiday_pic.png",
		"../../etc/passwd.png": "passwd.png",
		`C:\Users\a\café.gif`:  "cafe.gif",
		"фото.jpg":             "jpg",
		"..hidden.webp":        "hidden.webp",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}

func TestStorageKeyFallsBackWhenNameIsLost(t *testing.T) {
	key := storageKey(3, "2025-03-01", "фото.jpg", "jpg")
	assert.True(t, strings.HasPrefix(key, "3/2025-03-01/"))
	assert.True(t, strings.HasSuffix(key, "_image.jpg"), key)
}
