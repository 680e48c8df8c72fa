package woocommerce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/Gobusters/ectologger"
)

type term struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Taxonomy resolves product categories and global attribute terms by name, creating
// them on first use. Lookups are cached until Reset.
type Taxonomy struct {
	client     *Client
	mu         sync.Mutex
	categories map[string]int64
	attributes map[string]int64
	terms      map[string]int64
	logger     ectologger.Logger
}

func NewTaxonomy(client *Client, logger ectologger.Logger) *Taxonomy {
	t := &Taxonomy{client: client, logger: logger}
	t.Reset()
	return t
}

func (t *Taxonomy) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.categories = map[string]int64{}
	t.attributes = map[string]int64{}
	t.terms = map[string]int64{}
}

func cacheKey(parts ...string) string {
	return strings.ToLower(strings.TrimSpace(strings.Join(parts, "\x00")))
}

func (t *Taxonomy) EnsureCategory(ctx context.Context, name string) (int64, error) {
	key := cacheKey(name)
	t.mu.Lock()
	id, ok := t.categories[key]
	t.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := t.ensureTerm(ctx, "/products/categories", name)
	if err != nil {
		return 0, fmt.Errorf("ensure category %q: %w", name, err)
	}

	t.mu.Lock()
	t.categories[key] = id
	t.mu.Unlock()
	return id, nil
}

func (t *Taxonomy) EnsureAttributeTerm(ctx context.Context, attribute, value string) (int64, error) {
	key := cacheKey(attribute, value)
	t.mu.Lock()
	id, ok := t.terms[key]
	t.mu.Unlock()
	if ok {
		return id, nil
	}

	attrID, err := t.ensureAttribute(ctx, attribute)
	if err != nil {
		return 0, err
	}

	id, err = t.ensureTerm(ctx, fmt.Sprintf("/products/attributes/%d/terms", attrID), value)
	if err != nil {
		return 0, fmt.Errorf("ensure %s term %q: %w", attribute, value, err)
	}

	t.mu.Lock()
	t.terms[key] = id
	t.mu.Unlock()
	return id, nil
}

func (t *Taxonomy) ensureAttribute(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("attribute name is required")
	}
	key := cacheKey(name)
	t.mu.Lock()
	id, ok := t.attributes[key]
	t.mu.Unlock()
	if ok {
		return id, nil
	}

	var existing []term
	if err := t.client.do(ctx, http.MethodGet, "/products/attributes", nil, nil, &existing); err != nil {
		return 0, fmt.Errorf("list attributes: %w", err)
	}

	slug := "pa_" + strings.ToLower(name)
	for _, a := range existing {
		if strings.EqualFold(a.Name, name) || a.Slug == slug {
			t.mu.Lock()
			t.attributes[key] = a.ID
			t.mu.Unlock()
			return a.ID, nil
		}
	}

	var created term
	body := map[string]any{"name": strings.ToUpper(name[:1]) + name[1:], "slug": strings.ToLower(name)}
	if err := t.client.do(ctx, http.MethodPost, "/products/attributes", nil, body, &created); err != nil {
		return 0, fmt.Errorf("create attribute %q: %w", name, err)
	}
	t.logger.WithContext(ctx).WithField("attribute", name).Info("Created product attribute")

	t.mu.Lock()
	t.attributes[key] = created.ID
	t.mu.Unlock()
	return created.ID, nil
}

// ensureTerm finds a term by exact name under path or creates it.
func (t *Taxonomy) ensureTerm(ctx context.Context, path, name string) (int64, error) {
	var found []term
	query := url.Values{"search": {name}, "per_page": {"100"}}
	if err := t.client.do(ctx, http.MethodGet, path, query, nil, &found); err != nil {
		return 0, err
	}
	for _, f := range found {
		if strings.EqualFold(f.Name, name) {
			return f.ID, nil
		}
	}

	var created term
	if err := t.client.do(ctx, http.MethodPost, path, nil, map[string]any{"name": name}, &created); err != nil {
		return 0, err
	}
	return created.ID, nil
}
