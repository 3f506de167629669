package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Avatar       *string   `json:"avatar,omitempty"`
	GoogleID     *string   `json:"-"`
	PasswordHash *string   `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Board struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Color     string    `json:"color"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Membership struct {
	BoardID   string    `json:"board_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is a membership row joined with the member's profile.
type Member struct {
	Membership
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Avatar *string `json:"avatar,omitempty"`
}

type List struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"board_id"`
	Title     string    `json:"title"`
	Position  float64   `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Card struct {
	ID          string     `json:"id"`
	ListID      string     `json:"list_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Position    float64    `json:"position"`
	Color       *string    `json:"color"`
	DueDate     *time.Time `json:"due_date"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Comment struct {
	ID           string    `json:"id"`
	CardID       string    `json:"card_id"`
	UserID       string    `json:"user_id"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	AuthorName   string    `json:"user_name"`
	AuthorAvatar *string   `json:"user_avatar,omitempty"`
}

type Attachment struct {
	ID           string    `json:"id"`
	CardID       string    `json:"card_id"`
	UploadedBy   string    `json:"uploaded_by"`
	FileName     string    `json:"file_name"`
	FileURL      string    `json:"file_url"`
	FileType     string    `json:"file_type"`
	StorageKey   string    `json:"storage_key"`
	Size         int64     `json:"file_size"`
	UploadedAt   time.Time `json:"uploaded_at"`
	UploaderName string    `json:"uploaded_by_name"`
}

// ActivityLogEntry is append-only; the table rejects UPDATE and DELETE.
type ActivityLogEntry struct {
	ID        string          `json:"id"`
	UserID    *string         `json:"user_id"`
	BoardID   *string         `json:"board_id,omitempty"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details"`
	IPAddress *string         `json:"ip_address,omitempty"`
	UserAgent *string         `json:"user_agent,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// BoardAccess is the owning board of a board-scoped resource together with
// the caller's standing on it. MemberRole is empty when the caller has no
// membership row.
type BoardAccess struct {
	BoardID    string
	OwnerID    string
	MemberRole string
}
