// Package artai holds the client-side core for the Artai image API: the data
// model, the session manager, the cache coordinator and the view models that
// sit on top of the resource client.
package artai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// User is the authenticated account. It is replaced as a whole on profile
// update, never patched field by field.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
}

// Image is a server-owned image record.
type Image struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	FilePath    string  `json:"file_path"`
	Status      *string `json:"status,omitempty"`
	IsPublic    Flag    `json:"is_public"`
	CategoryID  *int64  `json:"category_id,omitempty"`
	CreatedAt   *Time   `json:"created_at,omitempty"`
	UpdatedAt   *Time   `json:"updated_at,omitempty"`
}

// ImageHistory is one recorded action on an image.
type ImageHistory struct {
	ID        int64   `json:"id"`
	ImageID   int64   `json:"image_id"`
	UserID    int64   `json:"user_id"`
	Action    string  `json:"action"`
	FilePath  *string `json:"file_path"`
	CreatedAt *Time   `json:"created_at,omitempty"`
}

type Category struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// LikeUser is an entry in LikeInfo.Users. Either field may be null when the
// liking account was deleted.
type LikeUser struct {
	ID       *int64  `json:"id"`
	Username *string `json:"username"`
}

type LikeInfo struct {
	Count int        `json:"count"`
	Users []LikeUser `json:"users"`
}

type ReferenceImage struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	FilePath    string  `json:"file_path"`
	Description *string `json:"description,omitempty"`
	CreatedAt   *Time   `json:"created_at,omitempty"`
}

// SessionRecord is a server-side work session, unrelated to the local
// authentication Session.
type SessionRecord struct {
	ID        int64 `json:"id"`
	UserID    int64 `json:"user_id"`
	StartedAt *Time `json:"started_at,omitempty"`
	EndedAt   *Time `json:"ended_at,omitempty"`
	CreatedAt *Time `json:"created_at,omitempty"`
}

// ImageCategories is the category set currently assigned to an image.
type ImageCategories struct {
	ImageID    int64      `json:"image_id"`
	Categories []Category `json:"categories"`
	Count      *int       `json:"count,omitempty"`
}

// IDs returns the ids of the assigned categories in server order.
func (ic *ImageCategories) IDs() []int64 {
	if ic == nil {
		return nil
	}
	ids := make([]int64, 0, len(ic.Categories))
	for _, c := range ic.Categories {
		ids = append(ids, c.ID)
	}
	return ids
}

// Paginated is the server's page envelope.
type Paginated[T any] struct {
	Data        []T `json:"data"`
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
}

// Clamp enforces 1 <= CurrentPage <= LastPage. Envelopes from the server are
// not trusted to respect it.
func (p *Paginated[T]) Clamp() {
	if p.LastPage < 1 {
		p.LastPage = 1
	}
	if p.CurrentPage < 1 {
		p.CurrentPage = 1
	}
	if p.CurrentPage > p.LastPage {
		p.CurrentPage = p.LastPage
	}
}

// Upload is a file to send in a multipart body.
type Upload struct {
	Filename    string
	ContentType string // sniffed from the content when empty
	Content     io.Reader
}

// NewImage is the input of CreateImage.
type NewImage struct {
	File        Upload
	Title       string
	Description string
	Status      string
	IsPublic    *bool
	CategoryID  *int64
}

// ImagePatch is a partial image update. Nil fields are not sent.
// CategoryID set to a pointer to nil clears the category in JSON updates.
type ImagePatch struct {
	File        *Upload
	Title       *string
	Description *string
	Status      *string
	IsPublic    *bool
	CategoryID  **int64
}

// ProfilePatch is a partial update of the current user.
type ProfilePatch struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
}

// Empty reports whether the patch carries no field.
func (p ProfilePatch) Empty() bool {
	return p.Username == nil && p.Email == nil && p.Password == nil && p.Role == nil
}

// ImageQuery filters the image listing. Zero values are omitted.
type ImageQuery struct {
	Public     *bool
	UserID     *int64
	CategoryID *int64
	Page       int
}

// PageQuery filters the reference-image and session listings.
type PageQuery struct {
	UserID *int64
	Page   int
}

// HistoryEntry is the input of AddImageHistory.
type HistoryEntry struct {
	Action string
	File   *Upload
}

// GenerateRequest is the input of Generate.
type GenerateRequest struct {
	Prompt     string
	Reference  *Upload
	Image      *Upload
	Title      string
	IsPublic   *bool
	CategoryID *int64
}

// AuthResult is what login and register return.
type AuthResult struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    User   `json:"user"`
}

// ImageResult is what image mutations return.
type ImageResult struct {
	Message string `json:"message"`
	Image   Image  `json:"image"`
	URL     string `json:"url,omitempty"`
}

// Message is the plain acknowledgement returned by most side-effect calls.
type Message struct {
	Message string `json:"message"`
}

// Flag decodes the booleans the API sends as true/false, 0/1 or "0"/"1".
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "null", `""`:
		*f = false
		return nil
	case "true", "1", `"1"`, `"true"`:
		*f = true
		return nil
	case "false", "0", `"0"`, `"false"`:
		*f = false
		return nil
	}
	return fmt.Errorf("invalid boolean %s", b)
}

func (f Flag) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(f))
}

// Time decodes the timestamp layouts the API is known to emit.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *Time) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", b, err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}
