package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswords(t *testing.T) {
	_, err := HashPassword("12345")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hash)
	assert.NoError(t, CheckPassword(hash, "hunter22"))
	assert.ErrorIs(t, CheckPassword(hash, "hunter23"), ErrPasswordMismatch)
	assert.ErrorIs(t, CheckPassword("not-a-hash", "hunter22"), ErrPasswordMismatch)
}

func TestAdminCredentials(t *testing.T) {
	a := AdminCredentials{Email: "admin@example.com", Password: "pw"}
	assert.True(t, a.Match("admin@example.com", "pw"))
	assert.False(t, a.Match("admin@example.com", "PW"))
	assert.False(t, a.Match("other@example.com", "pw"))
	assert.False(t, AdminCredentials{}.Match("", ""))
}

func TestIssuer_RoundTrip(t *testing.T) {
	i := NewIssuer("secret", 0)
	assert.Equal(t, DefaultSessionTTL, i.TTL())

	tok, exp, err := i.Issue("user-1", RoleUser)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), exp, time.Minute)

	c, err := i.Verify(tok, RoleUser)
	require.NoError(t, err)
	assert.Equal(t, "user-1", c.Subject)
	assert.Equal(t, RoleUser, c.Role)
}

func TestIssuer_Rejects(t *testing.T) {
	i := NewIssuer("secret", time.Hour)
	tok, _, err := i.Issue("admin@example.com", RoleAdmin)
	require.NoError(t, err)

	_, err = i.Verify(tok, RoleUser)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong role")

	_, err = NewIssuer("other", time.Hour).Verify(tok, RoleAdmin)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong key")

	_, err = i.Verify("garbage", RoleAdmin)
	assert.ErrorIs(t, err, ErrInvalidToken)

	i.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = i.Verify(tok, RoleAdmin)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")
}
