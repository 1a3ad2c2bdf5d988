package diary

import (
	"context"
	"errors"
	"iter"
	"strings"

	"diary/internal/models"
)

const (
	labelRunes   = 24
	defaultLabel = "Entry"
)

// Day is everything the entry page shows for one date.
type Day struct {
	Date   string
	Entry  *models.Entry
	Images []models.Image
}

// SaveEntry creates or replaces the entry for date. Title and content are
// replaced wholesale.
func (s *Service) SaveEntry(ctx context.Context, userID int64, date, title, content string) (int64, error) {
	date, err := models.ParseDate(date)
	if err != nil {
		return 0, err
	}
	return s.store.UpsertEntry(ctx, userID, date, strings.TrimSpace(title), strings.TrimSpace(content), s.now())
}

// Entry returns the entry for date, or nil when there is none.
func (s *Service) Entry(ctx context.Context, userID int64, date string) (*models.Entry, error) {
	date, err := models.ParseDate(date)
	if err != nil {
		return nil, err
	}
	e, err := s.store.GetEntryByDate(ctx, userID, date)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Day loads the entry for date with its images, newest first.
func (s *Service) Day(ctx context.Context, userID int64, date string) (Day, error) {
	e, err := s.Entry(ctx, userID, date)
	if err != nil {
		return Day{}, err
	}
	day := Day{Date: date, Entry: e}
	if e == nil {
		return day, nil
	}
	day.Images, err = s.store.GetImages(ctx, e.ID)
	if err != nil {
		return Day{}, err
	}
	return day, nil
}

// Label is the calendar caption of an entry.
func Label(e models.Entry) string {
	if e.Title != "" {
		return e.Title
	}
	content := []rune(strings.TrimSpace(e.Content))
	if len(content) > labelRunes {
		content = content[:labelRunes]
	}
	if len(content) > 0 {
		return string(content)
	}
	return defaultLabel
}

// Calendar yields one day per entry in date order. Each call runs a fresh query
// and rows are read as the caller iterates.
func (s *Service) Calendar(ctx context.Context, userID int64) iter.Seq2[models.CalendarDay, error] {
	return func(yield func(models.CalendarDay, error) bool) {
		for e, err := range s.store.EntryDays(ctx, userID) {
			if err != nil {
				yield(models.CalendarDay{}, err)
				return
			}
			if !yield(models.CalendarDay{Date: e.Date, Label: Label(e)}, nil) {
				return
			}
		}
	}
}

// Events is the calendar feed. It is never nil so it encodes as [].
func (s *Service) Events(ctx context.Context, userID int64) ([]models.Event, error) {
	events := []models.Event{}
	for day, err := range s.Calendar(ctx, userID) {
		if err != nil {
			return nil, err
		}
		events = append(events, models.Event{Title: day.Label, Start: day.Date, AllDay: true})
	}
	return events, nil
}

// EntriesBetween returns entries with start <= date <= end.
func (s *Service) EntriesBetween(ctx context.Context, userID int64, start, end string) ([]models.Entry, error) {
	start, err := models.ParseDate(start)
	if err != nil {
		return nil, err
	}
	end, err = models.ParseDate(end)
	if err != nil {
		return nil, err
	}
	return s.store.GetEntriesBetween(ctx, userID, start, end)
}

// DeleteEntry removes the entry for date together with its images. It reports
// whether an entry existed; a missing entry is not an error.
func (s *Service) DeleteEntry(ctx context.Context, userID int64, date string) (bool, error) {
	date, err := models.ParseDate(date)
	if err != nil {
		return false, err
	}
	e, err := s.store.GetEntryByDate(ctx, userID, date)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	images, err := s.store.GetImages(ctx, e.ID)
	if err != nil {
		return false, err
	}
	// files first so no row is left pointing at a removed file
	for _, img := range images {
		s.removeBlob(ctx, img.Path)
	}
	if err := s.store.DeleteEntry(ctx, e.ID); err != nil {
		return false, err
	}
	s.logger.InfoContext(ctx, "entry deleted", "date", date, "images", len(images))
	return true, nil
}
