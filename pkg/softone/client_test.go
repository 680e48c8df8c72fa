package softone

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallService_RepairsExpiredSessionOnce(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "stale-id", 10*time.Minute, h.fast, h.durable)
	h.erp.handlers["SqlData"] = func(call int, body map[string]any) (int, any) {
		if call == 1 {
			return http.StatusOK, map[string]any{"success": false, "errorcode": 401, "error": "Invalid request. Please login first"}
		}
		return http.StatusOK, map[string]any{
			"success":    true,
			"totalcount": 1,
			"rows":       []any{map[string]any{"MTRL": "1001", "CODE": "A-1"}},
		}
	}

	resp, err := h.client.SqlData(context.Background(), "getItems", map[string]any{"pMins": 30})
	require.NoError(t, err)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "1001", resp.Rows[0]["MTRL"])
	assert.Equal(t, 1, resp.TotalCount)

	assert.Equal(t, 2, h.erp.count("SqlData"))
	assert.Equal(t, 1, h.erp.count("login"))
	assert.Equal(t, 1, h.erp.count("authenticate"))

	calls := h.erp.requestsFor("SqlData")
	assert.Equal(t, "stale-id", calls[0]["clientID"])
	assert.Equal(t, "session-1", calls[1]["clientID"])
	assert.Equal(t, "session-1", h.cached(t, h.fast).ClientID)
	assert.Equal(t, "session-1", h.cached(t, h.durable).ClientID)
}

func TestCallService_SecondSessionFailureIsReturned(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "stale-id", 10*time.Minute, h.fast)
	h.erp.handlers["SqlData"] = func(int, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"success": false, "error": "Session expired"}
	}

	_, err := h.client.SqlData(context.Background(), "getItems", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindBusiness, apiErr.Kind)
	assert.Equal(t, "Session expired", apiErr.Message)
	assert.Equal(t, 2, h.erp.count("SqlData"))
	assert.Equal(t, 1, h.erp.count("authenticate"))
}

func TestCallService_BusinessErrorIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "cached-id", 10*time.Minute, h.fast)
	h.erp.handlers["setData"] = func(int, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"success": false, "error": "Customer code already exists", "errorcode": -12}
	}

	_, err := h.client.SetData(context.Background(), "CUSTOMER", "", map[string]any{"CUSTOMER": []any{map[string]any{"NAME": "A"}}})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindBusiness, apiErr.Kind)
	assert.Equal(t, -12, apiErr.Code)
	assert.Equal(t, 1, h.erp.count("setData"))
	assert.Zero(t, h.erp.count("login"))
}

func TestCallService_WithoutAuthRetry(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "cached-id", 10*time.Minute, h.fast)
	h.erp.handlers["getBrowserInfo"] = func(int, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"success": false, "error": "ClientID is not valid"}
	}

	_, err := h.client.CallService(context.Background(), "getBrowserInfo", nil, WithoutAuthRetry())
	require.Error(t, err)
	assert.Equal(t, 1, h.erp.count("getBrowserInfo"))
	assert.Zero(t, h.erp.count("login"))
}

func TestCallService_WithoutClientID(t *testing.T) {
	h := newHarness(t)

	_, err := h.client.CallService(context.Background(), "ping", map[string]any{"x": 1}, WithoutClientID())
	require.NoError(t, err)

	req := h.erp.lastRequest("ping")
	assert.NotContains(t, req, "clientID")
	assert.Zero(t, h.erp.count("login"))
}

func TestCallService_RequestBody(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "cached-id", 10*time.Minute, h.fast)

	_, err := h.client.CallService(context.Background(), "SqlData", map[string]any{
		"SqlName": "getItems",
		"pMins":   nil,
		"filters": map[string]any{"code": "A", "brand": nil},
	})
	require.NoError(t, err)

	req := h.erp.lastRequest("SqlData")
	assert.Equal(t, "cached-id", req["clientID"])
	assert.Equal(t, "cached-id", req["clientid"])
	assert.Equal(t, "1001", req["appId"])
	assert.Equal(t, "1001", req["appID"])
	assert.NotContains(t, req, "pMins")
	assert.Equal(t, map[string]any{"code": "A"}, req["filters"])
}

func TestCallService_CachesRotatedClientID(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "cached-id", 10*time.Minute, h.fast, h.durable)
	h.erp.handlers["SqlData"] = func(int, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"success": true, "clientID": "rotated-id", "rows": []any{}}
	}

	_, err := h.client.SqlData(context.Background(), "getItems", nil)
	require.NoError(t, err)
	assert.Equal(t, "rotated-id", h.cached(t, h.fast).ClientID)
	assert.Equal(t, "rotated-id", h.cached(t, h.durable).ClientID)
}

func TestCallService_HTTPStatusErrorIsRedacted(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "cached-id", 10*time.Minute, h.fast)
	h.erp.handlers["SqlData"] = func(int, map[string]any) (int, any) {
		return http.StatusInternalServerError, map[string]any{"clientID": "cached-id", "password": "s3cret", "error": "boom"}
	}

	_, err := h.client.SqlData(context.Background(), "getItems", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindHTTPStatus, apiErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.NotContains(t, apiErr.Body, "s3cret")
	assert.NotContains(t, apiErr.Body, "cached-id")
	assert.Contains(t, apiErr.Body, "boom")
}

func TestCallService_DecodeError(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "cached-id", 10*time.Minute, h.fast)
	h.erp.handlers["SqlData"] = func(int, map[string]any) (int, any) {
		return http.StatusOK, []byte("<html>maintenance</html>")
	}

	_, err := h.client.SqlData(context.Background(), "getItems", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindDecode, apiErr.Kind)
}

func TestCallService_TransportError(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "cached-id", 10*time.Minute, h.fast)
	h.erp.server.Close()

	_, err := h.client.SqlData(context.Background(), "getItems", nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, KindTransport, apiErr.Kind)
}

func TestCallService_ConfigErrors(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Endpoint = "" })
	h.seed(t, "cached-id", 10*time.Minute, h.fast)

	var cfgErr *ConfigError
	_, err := h.client.CallService(context.Background(), "", nil)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "service", cfgErr.Field)

	_, err = h.client.CallService(context.Background(), "SqlData", nil)
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "endpoint", cfgErr.Field)
}

func TestTestConnection(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "cached-id", 10*time.Minute, h.fast)

	clientID, err := h.client.TestConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session-1", clientID)
	assert.Equal(t, 1, h.erp.count("login"))
}
