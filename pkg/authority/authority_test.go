package authority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	a := New("test-secret")
	require.True(t, a.Enabled())

	token, err := a.Issue("s-1", "agent", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := a.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "s-1", claims.SessionID)
	assert.Equal(t, "agent", claims.Role)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := New("secret-a").Issue("s-1", "mobile", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = New("secret-b").Verify(token)
	require.Error(t, err)
	assert.True(t, IsVerifyError(err))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	a := New("test-secret")

	token, err := a.Issue("s-1", "agent", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = a.Verify(token)
	require.Error(t, err)
	assert.True(t, IsVerifyError(err))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := New("test-secret").Verify("not.a.token")
	require.Error(t, err)
	assert.True(t, IsVerifyError(err))
}

func TestDisabledWithoutSecret(t *testing.T) {
	assert.False(t, New("").Enabled())
}
