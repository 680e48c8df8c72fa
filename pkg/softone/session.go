package softone

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// SessionKey is the key of the cached client id in both store tiers.
const SessionKey = "softone_client_id"

// SessionToken is a cached client id. ExpiresAt is always CachedAt + TTL.
type SessionToken struct {
	ClientID  string `json:"client_id"`
	CachedAt  int64  `json:"cached_at"`
	TTL       int64  `json:"ttl"`
	ExpiresAt int64  `json:"expires_at"`
}

func newSessionToken(clientID string, now time.Time, ttl time.Duration) SessionToken {
	seconds := int64(ttl / time.Second)
	return SessionToken{
		ClientID:  clientID,
		CachedAt:  now.Unix(),
		TTL:       seconds,
		ExpiresAt: now.Unix() + seconds,
	}
}

// Remaining returns how long the token stays valid after now.
func (t SessionToken) Remaining(now time.Time) time.Duration {
	return time.Unix(t.ExpiresAt, 0).Sub(now)
}

// SessionManager owns the ERP client id. The fast store answers most lookups; the
// durable store survives fast store evictions and restarts.
type SessionManager struct {
	cfg       Config
	transport poster
	fast      store.TTLStore
	durable   store.DurableStore
	evaluator *expressions.Evaluator
	logger    ectologger.Logger
	now       func() time.Time
}

func NewSessionManager(cfg Config, transport poster, fast store.TTLStore, durable store.DurableStore, logger ectologger.Logger) *SessionManager {
	return &SessionManager{
		cfg:       cfg.withDefaults(),
		transport: transport,
		fast:      fast,
		durable:   durable,
		evaluator: expressions.NewEvaluator(),
		logger:    logger,
		now:       time.Now,
	}
}

// GetClientID returns a valid client id, bootstrapping a new session when no cached
// one is usable or forceRefresh is set.
func (m *SessionManager) GetClientID(ctx context.Context, forceRefresh bool) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "SessionManager.GetClientID")
	defer span.End()

	if !forceRefresh {
		if token, ok := m.read(ctx, "fast", m.fast.Get); ok {
			metrics.SessionLookups.WithLabelValues("fast").Inc()
			return token.ClientID, nil
		}

		if token, ok := m.read(ctx, "durable", m.durable.Get); ok {
			metrics.SessionLookups.WithLabelValues("durable").Inc()
			if err := m.writeFast(ctx, token, token.Remaining(m.now())); err != nil {
				m.logger.WithContext(ctx).WithError(err).Warn("failed to re-seed fast session store")
			}
			return token.ClientID, nil
		}
	}

	metrics.SessionLookups.WithLabelValues("bootstrap").Inc()
	clientID, err := m.Bootstrap(ctx)
	if err != nil {
		tracing.Fail(span, err)
		return "", err
	}
	return clientID, nil
}

// Bootstrap runs login then authenticate and caches the resulting client id in both
// tiers.
func (m *SessionManager) Bootstrap(ctx context.Context) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "SessionManager.Bootstrap")
	defer span.End()

	if m.cfg.Username == "" || m.cfg.Password == "" {
		return "", &ConfigError{Field: "credentials", Message: "SoftOne username and password are required"}
	}

	loginBody := map[string]any{
		"username": m.cfg.Username,
		"password": m.cfg.Password,
	}
	if m.cfg.AppID != "" {
		loginBody["appId"] = m.cfg.AppID
	}

	loginResp, err := m.authStep(ctx, "login", loginBody)
	if err != nil {
		return "", err
	}
	login := loginResp.Login()

	authResp, err := m.authStep(ctx, "authenticate", m.authenticateBody(login))
	if err != nil {
		return "", err
	}
	auth := authResp.Authenticate()

	ttl := m.resolveTTL(login, auth)
	token := newSessionToken(auth.ClientID, m.now(), ttl)
	if err := m.write(ctx, token, ttl); err != nil {
		m.logger.WithContext(ctx).WithError(err).Warn("failed to cache softone client id")
	}

	m.logger.WithContext(ctx).WithField("ttl_seconds", token.TTL).Info("Authenticated with SoftOne")
	return auth.ClientID, nil
}

// ClearCachedClientID forgets the cached client id in both tiers.
func (m *SessionManager) ClearCachedClientID(ctx context.Context) error {
	fastErr := m.fast.Delete(ctx, SessionKey)
	durableErr := m.durable.Delete(ctx, SessionKey)
	return errors.Join(fastErr, durableErr)
}

// Remember caches a client id the ERP rotated during a regular call.
func (m *SessionManager) Remember(ctx context.Context, clientID string) error {
	ttl := clampTTL(m.cfg.DefaultTTL)
	return m.write(ctx, newSessionToken(clientID, m.now(), ttl), ttl)
}

func (m *SessionManager) authStep(ctx context.Context, stage string, body map[string]any) (*Response, error) {
	resp, err := m.transport.Post(ctx, stage, body)
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		return nil, &AuthError{Stage: stage, Message: "request failed", Err: err}
	}
	if !resp.Success {
		message := resp.Message
		if message == "" {
			message = "unsuccessful response"
		}
		return nil, &AuthError{Stage: stage, Message: message}
	}
	if resp.ClientID == "" {
		return nil, &AuthError{Stage: stage, Message: "response carried no client id"}
	}
	return resp, nil
}

func (m *SessionManager) authenticateBody(login LoginResponse) map[string]any {
	var first map[string]any
	if len(login.Objects) > 0 {
		first = login.Objects[0]
	}
	pick := func(configured, key string) string {
		if configured != "" {
			return configured
		}
		return Text(lookup(first, key))
	}

	return map[string]any{
		"clientID": login.ClientID,
		"company":  pick(m.cfg.Company, "company"),
		"branch":   pick(m.cfg.Branch, "branch"),
		"module":   pick(m.cfg.Module, "module"),
		"refid":    pick(m.cfg.RefID, "refid"),
	}
}

// resolveTTL prefers the login expiry hint, then the authenticate hint, then the
// configured default.
func (m *SessionManager) resolveTTL(login LoginResponse, auth AuthenticateResponse) time.Duration {
	if seconds, ok := m.evaluator.FirstPositive(m.cfg.LoginExpiryPaths, login.Extra); ok {
		return clampTTL(time.Duration(seconds * float64(time.Second)))
	}
	if seconds, ok := m.evaluator.FirstPositive(m.cfg.AuthExpiryPaths, auth.Extra); ok {
		return clampTTL(time.Duration(seconds * float64(time.Second)))
	}
	return clampTTL(m.cfg.DefaultTTL)
}

func clampTTL(ttl time.Duration) time.Duration {
	if ttl < MinSessionTTL {
		return MinSessionTTL
	}
	return ttl
}

func (m *SessionManager) read(ctx context.Context, tier string, get func(context.Context, string) ([]byte, error)) (SessionToken, bool) {
	raw, err := get(ctx, SessionKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.WithContext(ctx).WithError(err).WithField("tier", tier).Warn("failed to read cached softone session")
		}
		return SessionToken{}, false
	}

	var token SessionToken
	if err := json.Unmarshal(raw, &token); err != nil {
		m.logger.WithContext(ctx).WithError(err).WithField("tier", tier).Warn("discarding malformed softone session")
		return SessionToken{}, false
	}
	if token.ClientID == "" || token.Remaining(m.now()) <= 0 {
		return SessionToken{}, false
	}
	return token, true
}

func (m *SessionManager) write(ctx context.Context, token SessionToken, ttl time.Duration) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	fastErr := m.fast.SetWithTTL(ctx, SessionKey, raw, ttl)
	durableErr := m.durable.Set(ctx, SessionKey, raw)
	return errors.Join(fastErr, durableErr)
}

func (m *SessionManager) writeFast(ctx context.Context, token SessionToken, ttl time.Duration) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return m.fast.SetWithTTL(ctx, SessionKey, raw, ttl)
}
