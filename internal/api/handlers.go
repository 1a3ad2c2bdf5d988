package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"diary/internal/auth"
	"diary/internal/diary"
	"diary/internal/middleware"
	"diary/internal/models"

	"github.com/gorilla/mux"
)

type Handlers struct {
	svc    *diary.Service
	logger *slog.Logger
	views  map[string]*template.Template
	now    func() time.Time
}

func NewHandlers(svc *diary.Service, logger *slog.Logger) *Handlers {
	return &Handlers{
		svc:    svc,
		logger: logger,
		views:  parseViews(),
		now:    time.Now,
	}
}

type credentialsForm struct {
	Username string
	Next     string
}

func (h *Handlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.render(w, r, http.StatusOK, "register.html", "Register", credentialsForm{})
		return
	}

	username := strings.TrimSpace(r.PostFormValue("username"))
	id, err := h.svc.Register(r.Context(), username, r.PostFormValue("password"))
	switch {
	case errors.Is(err, models.ErrMissingField):
		h.flash(r, "danger", "Username and password are required.")
	case errors.Is(err, models.ErrDuplicateUsername):
		h.flash(r, "danger", "Username already exists.")
	case errors.Is(err, models.ErrPasswordTooLong):
		h.flash(r, "danger", "Password must be at most 72 bytes.")
	case err != nil:
		h.serverError(w, r, err)
		return
	default:
		// Auto-login
		auth.SessionFromContext(r.Context()).SetUser(id, username)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "register.html", "Register", credentialsForm{Username: username})
}

func (h *Handlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.render(w, r, http.StatusOK, "login.html", "Log in", credentialsForm{Next: r.URL.Query().Get("next")})
		return
	}

	username := strings.TrimSpace(r.PostFormValue("username"))
	next := r.PostFormValue("next")
	u, err := h.svc.Verify(r.Context(), username, r.PostFormValue("password"))
	if errors.Is(err, models.ErrInvalidCredentials) {
		h.flash(r, "danger", "Invalid credentials.")
		h.render(w, r, http.StatusOK, "login.html", "Log in", credentialsForm{Username: username, Next: next})
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	auth.SessionFromContext(r.Context()).SetUser(u.ID, u.Username)
	http.Redirect(w, r, middleware.SafeNext(next), http.StatusSeeOther)
}

func (h *Handlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if s := auth.SessionFromContext(r.Context()); s != nil {
		s.Destroy()
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

type dashboardData struct {
	Today string
	Days  []models.CalendarDay
}

func (h *Handlers) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())
	data := dashboardData{Today: h.now().Format(models.DateLayout)}
	for day, err := range h.svc.Calendar(r.Context(), userID) {
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		data.Days = append(data.Days, day)
	}
	h.render(w, r, http.StatusOK, "dashboard.html", "Calendar", data)
}

func (h *Handlers) EntryHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())
	date, err := models.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.flash(r, "danger", "Invalid date.")
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	day, err := h.svc.Day(r.Context(), userID, date)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "entry.html", date, day)
}

func (h *Handlers) EventsHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())
	events, err := h.svc.Events(r.Context(), userID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

func (h *Handlers) SaveEntryHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())
	date := r.PostFormValue("date")
	_, err := h.svc.SaveEntry(r.Context(), userID, date, r.PostFormValue("title"), r.PostFormValue("content"))
	if errors.Is(err, models.ErrInvalidDate) {
		http.Error(w, "Invalid date", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	h.flash(r, "success", "Entry saved.")
	http.Redirect(w, r, entryURL(date), http.StatusSeeOther)
}

func (h *Handlers) DeleteEntryHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())
	deleted, err := h.svc.DeleteEntry(r.Context(), userID, r.PostFormValue("date"))
	if errors.Is(err, models.ErrInvalidDate) {
		http.Error(w, "Invalid date", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if deleted {
		h.flash(r, "info", "Entry deleted.")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) UploadHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())
	date, err := models.ParseDate(r.PostFormValue("date"))
	if err != nil {
		http.Error(w, "Invalid date", http.StatusBadRequest)
		return
	}

	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["images"]
	}
	uploads := make([]diary.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		defer f.Close()
		uploads = append(uploads, diary.Upload{Filename: fh.Filename, Body: f})
	}

	res, err := h.svc.Upload(r.Context(), userID, date, uploads)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	for _, rej := range res.Rejected {
		h.flash(r, "warning", "Skipped unsupported file: "+rej.Filename)
	}
	if n := len(res.Saved); n > 0 {
		h.flash(r, "success", fmt.Sprintf("Uploaded %d image(s).", n))
	}
	http.Redirect(w, r, entryURL(date), http.StatusSeeOther)
}

func (h *Handlers) DeleteImageHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())

	// an unparsable id matches no image, same as a foreign one
	if imageID, err := strconv.ParseInt(r.PostFormValue("image_id"), 10, 64); err == nil {
		deleted, err := h.svc.DeleteImage(r.Context(), imageID, userID)
		if err != nil {
			h.serverError(w, r, err)
			return
		}
		if deleted {
			h.flash(r, "info", "Image deleted.")
		}
	}

	date, err := models.ParseDate(r.PostFormValue("date"))
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, entryURL(date), http.StatusSeeOther)
}

// ServeImageHandler streams an uploaded image back to its owner.
func (h *Handlers) ServeImageHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.GetUserIDFromContext(r.Context())
	key := mux.Vars(r)["key"]

	rc, err := h.svc.OpenUpload(r.Context(), userID, key)
	if errors.Is(err, models.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, path.Base(key), time.Time{}, rs)
		return
	}
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	io.Copy(w, rc)
}

func entryURL(date string) string {
	return "/entry?date=" + url.QueryEscape(date)
}
