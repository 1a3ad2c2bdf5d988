package models

import "time"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Entry is a user's diary record for exactly one calendar date.
type Entry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Date      string    `json:"date"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Empty reports whether the entry is a placeholder created by an upload.
func (e Entry) Empty() bool {
	return e.Title == "" && e.Content == ""
}

type Image struct {
	ID           int64     `json:"id"`
	EntryID      int64     `json:"entry_id"`
	Path         string    `json:"path"`
	OriginalName string    `json:"original_name"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	CreatedAt    time.Time `json:"created_at"`
}

// CalendarDay is one dated entry as shown on the calendar.
type CalendarDay struct {
	Date  string
	Label string
}

// Event is the calendar feed representation of a CalendarDay.
type Event struct {
	Title  string `json:"title"`
	Start  string `json:"start"`
	AllDay bool   `json:"allDay"`
}
