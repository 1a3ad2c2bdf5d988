package diary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path"
	"strings"
	"unicode"

	"diary/internal/blob"
	"diary/internal/models"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
	"golang.org/x/text/unicode/norm"
)

var allowedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"webp": true,
}

// Upload is one file from a multipart upload.
type Upload struct {
	Filename string
	Body     io.Reader
}

// UploadResult lists what happened to each file of a batch.
type UploadResult struct {
	Saved    []models.Image
	Rejected []*models.RejectedFileError
}

// EnsureEntry returns the entry id for date, creating an empty placeholder if needed.
func (s *Service) EnsureEntry(ctx context.Context, userID int64, date string) (int64, error) {
	date, err := models.ParseDate(date)
	if err != nil {
		return 0, err
	}
	return s.store.EnsureEntry(ctx, userID, date, s.now())
}

// Upload attaches files to the entry for date. The entry is created first so
// uploads work before any text is saved. Rejected files do not stop the batch.
func (s *Service) Upload(ctx context.Context, userID int64, date string, files []Upload) (UploadResult, error) {
	var res UploadResult
	entryID, err := s.EnsureEntry(ctx, userID, date)
	if err != nil {
		return res, err
	}
	for _, f := range files {
		if f.Filename == "" {
			continue
		}
		img, err := s.AcceptImage(ctx, userID, date, entryID, f)
		var rejected *models.RejectedFileError
		if errors.As(err, &rejected) {
			res.Rejected = append(res.Rejected, rejected)
			continue
		}
		if err != nil {
			return res, err
		}
		res.Saved = append(res.Saved, *img)
	}
	return res, nil
}

// AcceptImage stores one uploaded file and records it against entryID.
// Disallowed files return a *models.RejectedFileError and write nothing.
func (s *Service) AcceptImage(ctx context.Context, userID int64, date string, entryID int64, up Upload) (*models.Image, error) {
	date, err := models.ParseDate(date)
	if err != nil {
		return nil, err
	}
	original := baseName(up.Filename)
	ext := extension(original)
	if !allowedExtensions[ext] {
		reason := "unsupported file type"
		if ext == "" {
			reason = "missing file extension"
		}
		imagesRejected.WithLabelValues("extension").Inc()
		return nil, &models.RejectedFileError{Filename: original, Reason: reason}
	}

	data, err := io.ReadAll(up.Body)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}

	img := models.Image{
		EntryID:      entryID,
		Path:         storageKey(userID, date, original, ext),
		OriginalName: original,
		CreatedAt:    s.now(),
	}
	// dimensions are informational; undecodable files are still stored
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		img.Width, img.Height = cfg.Width, cfg.Height
	}

	if err := s.blobs.Put(ctx, img.Path, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("storing image: %w", err)
	}
	img.ID, err = s.store.CreateImage(ctx, img)
	if err != nil {
		s.removeBlob(ctx, img.Path)
		return nil, fmt.Errorf("recording image: %w", err)
	}

	imagesAccepted.Inc()
	s.logger.DebugContext(ctx, "image stored", "image_id", img.ID, "key", img.Path, "bytes", len(data))
	return &img, nil
}

// DeleteImage removes an image the user owns. Unknown images and images of
// other users are ignored; the result reports whether anything was deleted.
func (s *Service) DeleteImage(ctx context.Context, imageID, userID int64) (bool, error) {
	img, err := s.store.GetImageWithOwner(ctx, imageID, userID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.removeBlob(ctx, img.Path)
	if err := s.store.DeleteImage(ctx, img.ID); err != nil {
		return false, err
	}
	return true, nil
}

// OpenUpload opens a stored file for the user that uploaded it. Keys outside
// the user's namespace behave like missing files.
func (s *Service) OpenUpload(ctx context.Context, userID int64, key string) (io.ReadCloser, error) {
	if !blob.ValidKey(key) || !strings.HasPrefix(key, fmt.Sprintf("%d/", userID)) {
		return nil, models.ErrNotFound
	}
	rc, err := s.blobs.Open(ctx, key)
	if errors.Is(err, blob.ErrNotExist) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// storageKey is <userID>/<date>/<random hex>_<sanitized name>.
func storageKey(userID int64, date, original, ext string) string {
	name := SanitizeFilename(original)
	if extension(name) != ext {
		name = "image." + ext
	}
	prefix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%d/%s/%s_%s", userID, date, prefix, name)
}

func baseName(filename string) string {
	return path.Base(strings.ReplaceAll(filename, "\\", "/"))
}

func extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// SanitizeFilename folds name to ASCII letters, digits, '_', '.' and '-'.
// Whitespace becomes '_'; leading and trailing dots and underscores are dropped.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(baseName(name)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '_' || r == '.' || r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}
