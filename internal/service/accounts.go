// Package service holds account and back-office use cases on top of the store.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voyagen/primecast/internal/auth"
	"github.com/voyagen/primecast/internal/log"
	"github.com/voyagen/primecast/internal/models"
	"github.com/voyagen/primecast/internal/store"
)

// DefaultSuspendReason is recorded when an admin suspends without a reason.
const DefaultSuspendReason = "Violation of terms"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUserNotFound    = errors.New("no user found with this email")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidAction   = errors.New("invalid action")
	ErrAccountDisabled = errors.New("account suspended")
)

// SuspendedError is returned by Login for suspended accounts.
type SuspendedError struct {
	Reason string
}

func (e *SuspendedError) Error() string {
	if e.Reason == "" {
		return "account suspended"
	}
	return "account suspended: " + e.Reason
}

// Message is the text shown on the login form.
func (e *SuspendedError) Message() string {
	if e.Reason == "" {
		return "Account suspended"
	}
	return "Account suspended: " + e.Reason
}

func (e *SuspendedError) Unwrap() error { return ErrAccountDisabled }

// Accounts implements registration, login and admin actions.
type Accounts struct {
	store  store.Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewAccounts returns an Accounts service backed by s.
func NewAccounts(s store.Store) *Accounts {
	return &Accounts{store: s, now: time.Now, logger: log.WithComponent("accounts")}
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Country  string `json:"country"`
	WhatsApp string `json:"whatsapp"`
}

// Register creates an account with a fresh one-day trial.
func (a *Accounts) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Country = strings.TrimSpace(in.Country)
	if in.Name == "" || in.Email == "" || in.Password == "" || in.Country == "" {
		return nil, fmt.Errorf("%w: name, email, password and country are required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	hash, err := auth.HashPassword(in.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err != nil {
		return nil, err
	}

	u := &models.User{
		Name:           in.Name,
		Email:          in.Email,
		PasswordHash:   hash,
		Country:        in.Country,
		TrialStartDate: a.now(),
		TrialDays:      models.DefaultTrialDays,
	}
	if w := strings.TrimSpace(in.WhatsApp); w != "" {
		u.WhatsApp = &w
	}
	if err := a.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	a.logger.Info().Str("user_id", u.ID).Str("country", u.Country).Msg("user registered")
	return u, nil
}

// Login checks credentials. Unknown email, wrong password and suspension are
// reported as distinct errors.
func (a *Accounts) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: please enter your email and password", ErrInvalidInput)
	}
	u, err := a.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidPassword
	}
	if u.IsSuspended {
		return nil, suspended(u)
	}
	return u, nil
}

// User reloads an account by id so that admin changes apply immediately.
func (a *Accounts) User(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	return a.store.GetUserByID(ctx, id)
}

// UserList is the back-office dashboard payload.
type UserList struct {
	Users []models.User    `json:"users"`
	Stats models.UserStats `json:"stats"`
}

// ListUsers returns all users, newest first, with aggregate stats.
func (a *Accounts) ListUsers(ctx context.Context) (*UserList, error) {
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []models.User{}
	}
	return &UserList{Users: users, Stats: models.ComputeUserStats(users, a.now())}, nil
}

// ActionData carries the optional arguments of an admin action.
type ActionData struct {
	Reason  string     `json:"reason,omitempty"`
	EndDate *time.Time `json:"endDate,omitempty"`
	Days    int        `json:"days,omitempty"`
}

// Admin actions.
const (
	ActionSuspend     = "suspend"
	ActionUnsuspend   = "unsuspend"
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionExtendTrial = "extendTrial"
	ActionResetTrial  = "resetTrial"
)

// ApplyAction runs one back-office action against a user.
func (a *Accounts) ApplyAction(ctx context.Context, userID, action string, data ActionData) (*models.User, error) {
	if userID == "" || action == "" {
		return nil, fmt.Errorf("%w: missing required fields", ErrInvalidInput)
	}
	fields, err := a.actionUpdate(action, data)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, store.ErrNotFound
	}
	u, err := a.store.UpdateUser(ctx, userID, fields)
	if err != nil {
		return nil, err
	}
	a.logger.Info().Str("user_id", userID).Str("action", action).Msg("admin action applied")
	return u, nil
}

func (a *Accounts) actionUpdate(action string, data ActionData) (store.UserUpdate, error) {
	yes, no := true, false
	days := data.Days
	if days <= 0 {
		days = models.DefaultTrialDays
	}
	switch action {
	case ActionSuspend:
		reason := strings.TrimSpace(data.Reason)
		if reason == "" {
			reason = DefaultSuspendReason
		}
		return store.UserUpdate{IsSuspended: &yes, SuspendReason: &reason}, nil
	case ActionUnsuspend:
		return store.UserUpdate{IsSuspended: &no, ClearSuspendReason: true}, nil
	case ActionSubscribe:
		f := store.UserUpdate{IsSubscribed: &yes, SubscriptionEnd: data.EndDate}
		f.ClearSubscriptionEnd = data.EndDate == nil
		return f, nil
	case ActionUnsubscribe:
		return store.UserUpdate{IsSubscribed: &no, ClearSubscriptionEnd: true}, nil
	case ActionExtendTrial:
		return store.UserUpdate{TrialDays: &days}, nil
	case ActionResetTrial:
		now := a.now()
		return store.UserUpdate{TrialStartDate: &now, TrialDays: &days}, nil
	}
	return store.UserUpdate{}, ErrInvalidAction
}

// DeleteUser removes an account.
func (a *Accounts) DeleteUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id required", ErrInvalidInput)
	}
	if _, err := uuid.Parse(userID); err != nil {
		return store.ErrNotFound
	}
	if err := a.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	a.logger.Info().Str("user_id", userID).Msg("user deleted")
	return nil
}

func suspended(u *models.User) error {
	e := &SuspendedError{}
	if u.SuspendReason != nil {
		e.Reason = *u.SuspendReason
	}
	return e
}
