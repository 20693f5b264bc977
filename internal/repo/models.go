package repo

import (
	"time"

	"github.com/keithlinneman/invitegate/internal/tier"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Tier         tier.Tier `json:"membershipTier"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Invitation struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"ownerId"`
	Slug      string         `json:"slug"`
	Title     string         `json:"title"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

type RSVP struct {
	ID           string    `json:"id"`
	InvitationID string    `json:"invitationId"`
	GuestName    string    `json:"guestName"`
	Attending    bool      `json:"attending"`
	Guests       int       `json:"guests"`
	Message      string    `json:"message,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Wish struct {
	ID           string    `json:"id"`
	InvitationID string    `json:"invitationId"`
	GuestName    string    `json:"guestName"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Photo struct {
	ID           string    `json:"id"`
	InvitationID string    `json:"invitationId"`
	Key          string    `json:"key"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"createdAt"`
}
