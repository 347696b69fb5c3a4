package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/empire/config"
)

func TestMain(m *testing.M) {
	config.Override(config.AppConfig{JWTSecret: "utils-test-secret"})
	m.Run()
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(12, 3456, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token)
	require.NoError(t, err)
	assert.EqualValues(t, 12, claims.UserID)
	assert.EqualValues(t, 3456, claims.TelegramID)
	assert.NotEmpty(t, claims.ID)

	other, err := GenerateToken(12, 3456, time.Hour)
	require.NoError(t, err)
	otherClaims, err := ParseToken(other)
	require.NoError(t, err)
	assert.NotEqual(t, claims.ID, otherClaims.ID)
}

func TestParseTokenRejects(t *testing.T) {
	expired, err := GenerateToken(1, 1, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired)
	assert.Error(t, err)

	_, err = ParseToken("not-a-token")
	assert.Error(t, err)

	token, err := GenerateToken(1, 1, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken(token[:len(token)-2] + "xx")
	assert.Error(t, err)
}

func TestSanitizeText(t *testing.T) {
	cases := map[string]string{
		"  plain  ":                         "plain",
		"<b>bold</b> move":                  "bold move",
		"<script>alert(1)</script>Likes Go": "Likes Go",
		"Tom &amp; Jerry":                   "Tom & Jerry",
		`<a href="javascript:x()">link</a>`: "link",
		"":                                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeText(in), "input %q", in)
	}
}

func TestAdminKey(t *testing.T) {
	hash, err := HashAdminKey("s3cret")
	require.NoError(t, err)

	assert.True(t, CheckAdminKey(hash, "s3cret"))
	assert.False(t, CheckAdminKey(hash, "wrong"))
	assert.False(t, CheckAdminKey(hash, ""))
	assert.False(t, CheckAdminKey("", "s3cret"))
}

func TestTokenBlacklistMemory(t *testing.T) {
	BlacklistToken("jti-active", time.Now().Add(time.Hour))
	BlacklistToken("jti-past", time.Now().Add(-time.Minute))

	assert.True(t, IsTokenBlacklisted("jti-active"))
	assert.False(t, IsTokenBlacklisted("jti-past"))
	assert.False(t, IsTokenBlacklisted("jti-unknown"))
}

func TestClaimLoginHash(t *testing.T) {
	assert.True(t, ClaimLoginHash("hash-a", time.Minute))
	assert.False(t, ClaimLoginHash("hash-a", time.Minute))
	assert.True(t, ClaimLoginHash("hash-b", time.Minute))
}

func TestPruneMemoryStores(t *testing.T) {
	BlacklistToken("jti-prune", time.Now().Add(time.Minute))
	require.True(t, ClaimLoginHash("hash-prune", time.Minute))

	assert.Zero(t, PruneMemoryStores(time.Now().Add(-time.Hour)), "nothing is expired yet")

	removed := PruneMemoryStores(time.Now().Add(2 * time.Minute))
	assert.GreaterOrEqual(t, removed, 2)
	assert.False(t, IsTokenBlacklisted("jti-prune"))
	assert.True(t, ClaimLoginHash("hash-prune", time.Minute))
}

func TestCacheWithoutRedis(t *testing.T) {
	// no redis configured: reads miss and writes are dropped
	CacheSetJSON(UserStatsKey(1, "checkin"), map[string]int{"a": 1}, time.Minute)
	var out map[string]int
	assert.False(t, CacheGetJSON(UserStatsKey(1, "checkin"), &out))
	assert.True(t, RegistrationAllowed("192.0.2.1"))
	InvalidateUserStats(1)
}

func TestStatsKeys(t *testing.T) {
	assert.Equal(t, "cache:stats:user:7:", UserStatsPrefix(7))
	assert.Equal(t, "cache:stats:user:7:reputation", UserStatsKey(7, "reputation"))
}
