package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/primecast/internal/store"
)

func newAccounts(t *testing.T) (*Accounts, *store.Memory) {
	t.Helper()
	m := store.NewMemory()
	return NewAccounts(m), m
}

func register(t *testing.T, a *Accounts, email string) string {
	t.Helper()
	u, err := a.Register(context.Background(), RegisterInput{
		Name: "Ann", Email: email, Password: "secret1", Country: "US",
	})
	require.NoError(t, err)
	return u.ID
}

func TestRegister(t *testing.T) {
	a, _ := newAccounts(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	u, err := a.Register(context.Background(), RegisterInput{
		Name: " Ann ", Email: "ann@example.com", Password: "secret1", Country: "US", WhatsApp: "+1555",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.Name)
	assert.Equal(t, now, u.TrialStartDate)
	assert.Equal(t, 1, u.TrialDays)
	assert.Equal(t, "+1555", *u.WhatsApp)
	assert.NotEqual(t, "secret1", u.PasswordHash)

	_, err = a.Register(context.Background(), RegisterInput{
		Name: "Other", Email: "ANN@example.com", Password: "secret1", Country: "FR",
	})
	assert.ErrorIs(t, err, store.ErrEmailTaken)
}

func TestRegister_Validation(t *testing.T) {
	a, _ := newAccounts(t)
	cases := map[string]RegisterInput{
		"missing country": {Name: "A", Email: "a@x.io", Password: "secret1"},
		"short password":  {Name: "A", Email: "a@x.io", Password: "12345", Country: "US"},
		"bad email":       {Name: "A", Email: "not-an-email", Password: "secret1", Country: "US"},
		"missing name":    {Email: "a@x.io", Password: "secret1", Country: "US"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := a.Register(context.Background(), in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	a, _ := newAccounts(t)
	id := register(t, a, "ann@example.com")

	u, err := a.Login(ctx, "Ann@Example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)

	_, err = a.Login(ctx, "bob@example.com", "secret1")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = a.Login(ctx, "ann@example.com", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	_, err = a.Login(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = a.ApplyAction(ctx, id, ActionSuspend, ActionData{Reason: "chargeback"})
	require.NoError(t, err)
	_, err = a.Login(ctx, "ann@example.com", "secret1")
	require.ErrorIs(t, err, ErrAccountDisabled)
	var se *SuspendedError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Account suspended: chargeback", se.Message())
}

func TestUser_ReloadsLatestState(t *testing.T) {
	ctx := context.Background()
	a, _ := newAccounts(t)
	id := register(t, a, "ann@example.com")

	_, err := a.ApplyAction(ctx, id, ActionSubscribe, ActionData{})
	require.NoError(t, err)
	u, err := a.User(ctx, id)
	require.NoError(t, err)
	assert.True(t, u.IsSubscribed)

	_, err = a.User(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApplyAction(t *testing.T) {
	ctx := context.Background()
	a, _ := newAccounts(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	id := register(t, a, "ann@example.com")

	u, err := a.ApplyAction(ctx, id, ActionSuspend, ActionData{})
	require.NoError(t, err)
	assert.True(t, u.IsSuspended)
	assert.Equal(t, DefaultSuspendReason, *u.SuspendReason)

	u, err = a.ApplyAction(ctx, id, ActionUnsuspend, ActionData{})
	require.NoError(t, err)
	assert.False(t, u.IsSuspended)
	assert.Nil(t, u.SuspendReason)

	end := now.Add(30 * 24 * time.Hour)
	u, err = a.ApplyAction(ctx, id, ActionSubscribe, ActionData{EndDate: &end})
	require.NoError(t, err)
	assert.True(t, u.IsSubscribed)
	assert.Equal(t, end, *u.SubscriptionEnd)

	u, err = a.ApplyAction(ctx, id, ActionSubscribe, ActionData{})
	require.NoError(t, err)
	assert.Nil(t, u.SubscriptionEnd, "open-ended subscription")

	u, err = a.ApplyAction(ctx, id, ActionUnsubscribe, ActionData{})
	require.NoError(t, err)
	assert.False(t, u.IsSubscribed)

	u, err = a.ApplyAction(ctx, id, ActionExtendTrial, ActionData{Days: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, u.TrialDays)

	later := now.Add(48 * time.Hour)
	a.now = func() time.Time { return later }
	u, err = a.ApplyAction(ctx, id, ActionResetTrial, ActionData{})
	require.NoError(t, err)
	assert.Equal(t, later, u.TrialStartDate)
	assert.Equal(t, 1, u.TrialDays)

	_, err = a.ApplyAction(ctx, id, "promote", ActionData{})
	assert.ErrorIs(t, err, ErrInvalidAction)
	_, err = a.ApplyAction(ctx, "", ActionSuspend, ActionData{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = a.ApplyAction(ctx, "6f1c1b7e-9a59-4a55-9a55-111111111111", ActionSuspend, ActionData{})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListUsersAndDelete(t *testing.T) {
	ctx := context.Background()
	a, _ := newAccounts(t)

	list, err := a.ListUsers(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list.Users)
	assert.Zero(t, list.Stats.TotalUsers)

	id := register(t, a, "ann@example.com")
	register(t, a, "bob@example.com")
	_, err = a.ApplyAction(ctx, id, ActionSubscribe, ActionData{})
	require.NoError(t, err)

	list, err = a.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Stats.TotalUsers)
	assert.Equal(t, 1, list.Stats.SubscribedUsers)
	assert.Equal(t, 1, list.Stats.TrialUsers)

	require.NoError(t, a.DeleteUser(ctx, id))
	assert.ErrorIs(t, a.DeleteUser(ctx, id), store.ErrNotFound)
	assert.ErrorIs(t, a.DeleteUser(ctx, ""), ErrInvalidInput)
}
