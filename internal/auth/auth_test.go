package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-service-secret"))
	require.NoError(t, err)
	return token
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)

	tok, ok = BearerToken("bearer xyz")
	assert.True(t, ok)
	assert.Equal(t, "xyz", tok)

	for _, h := range []string{"", "Bearer ", "Basic abc", "abc"} {
		_, ok := BearerToken(h)
		assert.False(t, ok, h)
	}
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(30 * time.Second).Truncate(time.Second)
	token := signed(t, jwt.MapClaims{"sub": "u1", "exp": exp.Unix()})

	got, err := TokenExpiry(token)
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))

	_, err = TokenExpiry(signed(t, jwt.MapClaims{"sub": "u1"}))
	assert.Error(t, err)

	_, err = TokenExpiry("not-a-jwt")
	assert.Error(t, err)
}

func TestCacheTTL(t *testing.T) {
	now := time.Now()
	short := signed(t, jwt.MapClaims{"exp": now.Add(10 * time.Second).Unix()})
	long := signed(t, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()})
	expired := signed(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()})

	assert.InDelta(t, float64(10*time.Second), float64(CacheTTL(short, time.Minute, now)), float64(time.Second))
	assert.Equal(t, time.Minute, CacheTTL(long, time.Minute, now))
	assert.Equal(t, time.Duration(0), CacheTTL(expired, time.Minute, now))
	assert.Equal(t, time.Minute, CacheTTL("opaque", time.Minute, now))
}

func TestCheckPermission(t *testing.T) {
	team := &Identity{Role: RoleCATeam}
	admin := &Identity{Role: RoleAgencyAdmin}
	client := &Identity{Role: RoleClientUser}

	assert.True(t, CheckPermission(team, ActionView))
	assert.False(t, CheckPermission(team, ActionCreate))
	assert.True(t, CheckPermission(admin, ActionDelete))
	assert.True(t, CheckPermission(admin, ActionReveal))
	assert.False(t, CheckPermission(client, ActionView))
	assert.False(t, CheckPermission(nil, ActionView))
}
