// Package woocommerce implements the store collaborators over the WooCommerce REST API.
package woocommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/platform"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	DefaultVersion = "wc/v3"
	// MetaPrefix marks the meta keys this service writes.
	MetaPrefix = "_softone_"
)

type Config struct {
	StoreURL       string
	ConsumerKey    string
	ConsumerSecret string
	Version        string
	Timeout        time.Duration
}

// APIError is a non-2xx answer from the store.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("woocommerce %s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

// Unwrap maps 404 answers to platform.ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return platform.ErrNotFound
	}
	return nil
}

// Client calls the WooCommerce REST API authenticated with consumer key and secret.
type Client struct {
	cfg    Config
	http   *httpclient.Client
	logger ectologger.Logger
}

func NewClient(cfg Config, logger ectologger.Logger) *Client {
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	cfg.StoreURL = strings.TrimRight(cfg.StoreURL, "/")

	httpCfg := httpclient.DefaultConfig()
	if cfg.Timeout > 0 {
		httpCfg.Timeout = cfg.Timeout
	}

	return &Client{
		cfg:    cfg,
		http:   httpclient.NewClient(httpCfg, logger),
		logger: logger,
	}
}

func (c *Client) endpoint(path string, query url.Values) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("consumer_key", c.cfg.ConsumerKey)
	q.Set("consumer_secret", c.cfg.ConsumerSecret)
	return fmt.Sprintf("%s/wp-json/%s%s?%s", c.cfg.StoreURL, c.cfg.Version, path, q.Encode())
}

// do sends body as JSON and decodes the answer into out when out is not nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ctx, span := tracing.StartSpan(ctx, "woocommerce.Client.do")
	defer span.End()

	if c.cfg.StoreURL == "" {
		return errors.New("woocommerce store url is not configured")
	}

	resp, err := c.http.DoJSON(ctx, method, c.endpoint(path, query), body, nil)
	if err != nil {
		tracing.Fail(span, err)
		return err
	}

	if !resp.IsSuccess() {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(resp.Body, &payload) == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Message
		}
		tracing.Fail(span, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		tracing.Fail(span, err)
		return fmt.Errorf("decode woocommerce %s %s: %w", method, path, err)
	}
	return nil
}

// metaData is a WooCommerce meta_data entry. Values written by this service are strings.
type metaData struct {
	ID    int64  `json:"id,omitempty"`
	Key   string `json:"key"`
	Value any    `json:"value"`
}

func metaMap(entries []metaData) map[string]string {
	out := make(map[string]string, len(entries))
	for _, m := range entries {
		switch v := m.Value.(type) {
		case string:
			out[m.Key] = v
		case nil:
			out[m.Key] = ""
		case float64:
			out[m.Key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[m.Key] = strconv.FormatBool(v)
		}
	}
	return out
}

// metaList renders the meta entries owned by this service, sorted by key.
func metaList(meta map[string]string) []metaData {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		if strings.HasPrefix(k, MetaPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]metaData, 0, len(keys))
	for _, k := range keys {
		out = append(out, metaData{Key: k, Value: meta[k]})
	}
	return out
}
