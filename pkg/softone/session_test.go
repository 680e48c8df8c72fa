package softone

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetClientID_ReusesUnexpiredToken(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "cached-id", 10*time.Minute, h.fast, h.durable)

	for i := 0; i < 3; i++ {
		clientID, err := h.sessions.GetClientID(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, "cached-id", clientID)
	}

	assert.Zero(t, h.erp.count("login"))
	assert.Zero(t, h.erp.count("authenticate"))
}

func TestGetClientID_RefreshesExpiredToken(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "old-id", 2*time.Minute, h.fast, h.durable)
	h.clock.Advance(3 * time.Minute)

	clientID, err := h.sessions.GetClientID(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "session-1", clientID)
	assert.Equal(t, 1, h.erp.count("login"))
	assert.Equal(t, 1, h.erp.count("authenticate"))

	fast := h.cached(t, h.fast)
	assert.Equal(t, "session-1", fast.ClientID)
	assert.GreaterOrEqual(t, fast.TTL, int64(60))
	assert.Equal(t, fast.CachedAt+fast.TTL, fast.ExpiresAt)
	assert.GreaterOrEqual(t, h.fast.TTL(SessionKey), MinSessionTTL)
	assert.Equal(t, "session-1", h.cached(t, h.durable).ClientID)
}

func TestGetClientID_ForceRefreshIgnoresCache(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "cached-id", 10*time.Minute, h.fast, h.durable)

	clientID, err := h.sessions.GetClientID(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "session-1", clientID)
	assert.Equal(t, 1, h.erp.count("authenticate"))
}

func TestGetClientID_ReseedsFastStoreWithRemainingTTL(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "durable-id", 10*time.Minute, h.durable)
	h.clock.Advance(4 * time.Minute)

	clientID, err := h.sessions.GetClientID(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "durable-id", clientID)
	assert.Zero(t, h.erp.count("login"))

	assert.Equal(t, "durable-id", h.cached(t, h.fast).ClientID)
	assert.Equal(t, 6*time.Minute, h.fast.TTL(SessionKey))
}

func TestBootstrap_TTLResolution(t *testing.T) {
	tests := []struct {
		name      string
		loginHint map[string]any
		authHint  map[string]any
		want      time.Duration
	}{
		{
			name:      "login hint wins",
			loginHint: map[string]any{"EXPIRES": "900"},
			authHint:  map[string]any{"expires_in": 600},
			want:      900 * time.Second,
		},
		{
			name:     "authenticate hint",
			authHint: map[string]any{"expires_in": 600},
			want:     600 * time.Second,
		},
		{
			name: "configured default",
			want: 45 * time.Minute,
		},
		{
			name:      "clamped to the minimum",
			loginHint: map[string]any{"ttl": 10},
			want:      MinSessionTTL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(c *Config) { c.DefaultTTL = 45 * time.Minute })

			obj := map[string]any{"COMPANY": "1000", "BRANCH": "1000", "MODULE": "0", "REFID": "999"}
			for k, v := range tt.loginHint {
				obj[k] = v
			}
			h.erp.loginResponse = map[string]any{"success": true, "clientID": "login-token", "objs": []any{obj}}
			h.erp.authResponse = func(n int) map[string]any {
				resp := map[string]any{"success": true, "clientID": "session"}
				for k, v := range tt.authHint {
					resp[k] = v
				}
				return resp
			}

			_, err := h.sessions.Bootstrap(context.Background())
			require.NoError(t, err)

			token := h.cached(t, h.fast)
			assert.Equal(t, int64(tt.want/time.Second), token.TTL)
			assert.Equal(t, tt.want, h.fast.TTL(SessionKey))
		})
	}
}

func TestBootstrap_AuthenticateUsesLoginObjects(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Branch = "2000" })

	_, err := h.sessions.Bootstrap(context.Background())
	require.NoError(t, err)

	login := h.erp.lastRequest("login")
	assert.Equal(t, "ws-user", login["username"])
	assert.Equal(t, "1001", login["appId"])

	auth := h.erp.lastRequest("authenticate")
	assert.Equal(t, "login-token", auth["clientID"])
	assert.Equal(t, "1000", auth["company"])
	assert.Equal(t, "2000", auth["branch"])
	assert.Equal(t, "0", auth["module"])
	assert.Equal(t, "999", auth["refid"])
}

func TestBootstrap_MissingClientIDCachesNothing(t *testing.T) {
	h := newHarness(t)
	h.erp.authResponse = func(int) map[string]any { return map[string]any{"success": true} }

	_, err := h.sessions.Bootstrap(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "authenticate", authErr.Stage)
	assert.Zero(t, h.fast.Len())
	assert.Zero(t, h.durable.Len())
}

func TestBootstrap_LoginRejected(t *testing.T) {
	h := newHarness(t)
	h.erp.handlers["login"] = func(int, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"success": false, "error": "Login failed. Wrong credentials"}
	}

	_, err := h.sessions.Bootstrap(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "login", authErr.Stage)
	assert.Contains(t, authErr.Error(), "Wrong credentials")
	assert.Zero(t, h.erp.count("authenticate"))
}

func TestBootstrap_MissingCredentials(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Password = "" })

	_, err := h.sessions.Bootstrap(context.Background())

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Zero(t, h.erp.count("login"))
}

func TestClearCachedClientID(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "cached-id", 10*time.Minute, h.fast, h.durable)

	require.NoError(t, h.sessions.ClearCachedClientID(context.Background()))
	assert.Zero(t, h.fast.Len())
	assert.Zero(t, h.durable.Len())
}
