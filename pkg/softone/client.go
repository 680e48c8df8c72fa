package softone

import (
	"context"
	"errors"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type callOptions struct {
	requiresClientID bool
	retryOnAuth      bool
}

// CallOption adjusts a single CallService invocation.
type CallOption func(*callOptions)

// WithoutClientID sends the request without a session.
func WithoutClientID() CallOption {
	return func(o *callOptions) { o.requiresClientID = false }
}

// WithoutAuthRetry returns session failures to the caller instead of re-authenticating.
func WithoutAuthRetry() CallOption {
	return func(o *callOptions) { o.retryOnAuth = false }
}

// Client dispatches SoftOne service calls, repairing an expired session at most once
// per call.
type Client struct {
	cfg       Config
	transport poster
	sessions  *SessionManager
	logger    ectologger.Logger
}

func NewClient(cfg Config, transport poster, sessions *SessionManager, logger ectologger.Logger) *Client {
	return &Client{
		cfg:       cfg.withDefaults(),
		transport: transport,
		sessions:  sessions,
		logger:    logger,
	}
}

// Sessions exposes the session manager backing the client.
func (c *Client) Sessions() *SessionManager {
	return c.sessions
}

// CallService sends service with data and returns the successful response. A
// success=false response that looks like a session failure clears the cached client
// id and retries exactly once with a fresh one.
func (c *Client) CallService(ctx context.Context, service string, data map[string]any, opts ...CallOption) (*Response, error) {
	ctx, span := tracing.StartSpan(ctx, "softone.Client.CallService")
	defer span.End()

	if service == "" {
		return nil, &ConfigError{Field: "service", Message: "service name is required"}
	}

	o := callOptions{requiresClientID: true, retryOnAuth: true}
	for _, opt := range opts {
		opt(&o)
	}

	for attempt := 1; ; attempt++ {
		body := cleanBody(data)

		var clientID string
		if o.requiresClientID {
			var err error
			clientID, err = c.sessions.GetClientID(ctx, attempt > 1)
			if err != nil {
				tracing.Fail(span, err)
				return nil, err
			}
			body["clientID"] = clientID
			body["clientid"] = clientID
		}
		if c.cfg.AppID != "" {
			body["appId"] = c.cfg.AppID
			body["appID"] = c.cfg.AppID
		}

		resp, err := c.transport.Post(ctx, service, body)
		if err != nil {
			tracing.Fail(span, err)
			return nil, err
		}

		if resp.Success {
			metrics.RecordERPCall(service, "success")
			if o.requiresClientID && resp.ClientID != "" && resp.ClientID != clientID {
				if err := c.sessions.Remember(ctx, resp.ClientID); err != nil {
					c.logger.WithContext(ctx).WithError(err).Warn("failed to cache rotated softone client id")
				}
			}
			return resp, nil
		}

		if o.requiresClientID && o.retryOnAuth && attempt == 1 && IsSessionFailure(resp) {
			metrics.ERPAuthRetries.WithLabelValues(service).Inc()
			c.logger.WithContext(ctx).WithFields(map[string]any{
				"service": service,
				"code":    resp.Code,
			}).Warn("softone session rejected, re-authenticating")
			if err := c.sessions.ClearCachedClientID(ctx); err != nil {
				c.logger.WithContext(ctx).WithError(err).Warn("failed to clear cached softone client id")
			}
			continue
		}

		metrics.RecordERPCall(service, string(KindBusiness))
		apiErr := &APIError{
			Kind:    KindBusiness,
			Service: service,
			Code:    resp.Code,
			Message: resp.Message,
		}
		if apiErr.Message == "" {
			apiErr.Message = "unsuccessful response"
		}
		tracing.Fail(span, apiErr)
		return nil, apiErr
	}
}

// SqlData runs a named SQL query defined in the ERP.
func (c *Client) SqlData(ctx context.Context, sqlName string, params map[string]any) (*SqlDataResponse, error) {
	data := make(map[string]any, len(params)+1)
	for k, v := range params {
		data[k] = v
	}
	data["SqlName"] = sqlName

	resp, err := c.CallService(ctx, "SqlData", data)
	if err != nil {
		return nil, err
	}
	return resp.SqlData(), nil
}

// SetData stores a record of the given business object. An empty key creates one.
func (c *Client) SetData(ctx context.Context, object, key string, data map[string]any) (*SetDataResponse, error) {
	resp, err := c.CallService(ctx, "setData", map[string]any{
		"OBJECT": object,
		"KEY":    key,
		"data":   data,
	})
	if err != nil {
		return nil, err
	}
	return resp.SetData(), nil
}

// TestConnection authenticates from scratch and returns the new client id.
func (c *Client) TestConnection(ctx context.Context) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "softone.Client.TestConnection")
	defer span.End()

	clientID, err := c.sessions.GetClientID(ctx, true)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			c.logger.WithContext(ctx).WithError(err).Warn("softone connection test failed")
		}
		tracing.Fail(span, err)
		return "", err
	}
	return clientID, nil
}

// cleanBody copies data dropping nil values at every depth.
func cleanBody(data map[string]any) map[string]any {
	body := make(map[string]any, len(data)+4)
	for k, v := range data {
		if v == nil {
			continue
		}
		body[k] = cleanValue(v)
	}
	return body
}

func cleanValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cleanBody(t)
	case []map[string]any:
		out := make([]any, 0, len(t))
		for _, m := range t {
			out = append(out, cleanBody(m))
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if item == nil {
				continue
			}
			out = append(out, cleanValue(item))
		}
		return out
	default:
		return v
	}
}
