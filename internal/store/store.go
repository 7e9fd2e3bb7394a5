package store

import (
	"context"
	"errors"
	"time"

	"github.com/voyagen/primecast/internal/models"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already registered")
)

// Store defines persistence for registered users.
type Store interface {
	// CreateUser inserts u, filling in ID and CreatedAt. Emails are unique
	// ignoring case; a duplicate returns ErrEmailTaken.
	CreateUser(ctx context.Context, u *models.User) error
	// GetUserByID returns a user or ErrNotFound.
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	// GetUserByEmail looks a user up ignoring case, or returns ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// ListUsers returns every user, newest first.
	ListUsers(ctx context.Context) ([]models.User, error)
	// UpdateUser applies fields and returns the updated user.
	UpdateUser(ctx context.Context, id string, fields UserUpdate) (*models.User, error)
	// DeleteUser removes a user or returns ErrNotFound.
	DeleteUser(ctx context.Context, id string) error
}

// UserUpdate holds mutable account fields.
// Pointer fields: nil = don't change, non-nil = set. The Clear flags set the
// matching nullable column to NULL.
type UserUpdate struct {
	IsSuspended          *bool
	SuspendReason        *string
	ClearSuspendReason   bool
	IsSubscribed         *bool
	SubscriptionEnd      *time.Time
	ClearSubscriptionEnd bool
	TrialStartDate       *time.Time
	TrialDays            *int
}

// Apply copies the update onto u.
func (f UserUpdate) Apply(u *models.User) {
	if f.IsSuspended != nil {
		u.IsSuspended = *f.IsSuspended
	}
	if f.SuspendReason != nil {
		r := *f.SuspendReason
		u.SuspendReason = &r
	}
	if f.ClearSuspendReason {
		u.SuspendReason = nil
	}
	if f.IsSubscribed != nil {
		u.IsSubscribed = *f.IsSubscribed
	}
	if f.SubscriptionEnd != nil {
		e := *f.SubscriptionEnd
		u.SubscriptionEnd = &e
	}
	if f.ClearSubscriptionEnd {
		u.SubscriptionEnd = nil
	}
	if f.TrialStartDate != nil {
		u.TrialStartDate = *f.TrialStartDate
	}
	if f.TrialDays != nil {
		u.TrialDays = *f.TrialDays
	}
}
