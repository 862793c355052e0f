package core

import (
	"context"
	"time"
)

type (
	// User mirrors an identity issued by the external auth provider.
	User struct {
		Subject   string    `json:"subject"`
		Login     string    `json:"login"`
		Email     string    `json:"email,omitempty"`
		AvatarURL string    `json:"avatarUrl"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	UserStore interface {
		UpsertUser(ctx context.Context, user *User) error
		GetUser(ctx context.Context, subject string) (*User, error)
	}
)
