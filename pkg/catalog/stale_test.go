package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/platform"
)

func staleProduct(id int64, mtrl, stamp string) *platform.Product {
	meta := map[string]string{}
	if mtrl != "" {
		meta[platform.MetaMaterialID] = mtrl
	}
	if stamp != "" {
		meta[platform.MetaLastSynced] = stamp
	}
	qty := 5
	return &platform.Product{
		ID:            id,
		Name:          fmt.Sprintf("Product %d", id),
		Status:        platform.StatusPublish,
		ManageStock:   true,
		StockQuantity: &qty,
		StockStatus:   platform.StockInStock,
		Meta:          meta,
	}
}

func TestStaleHandler_DraftPolicy(t *testing.T) {
	run := "1792404000"
	products := newFakeProducts(
		staleProduct(1, "a", "1000"),
		staleProduct(2, "b", ""),
		staleProduct(3, "c", run),
		staleProduct(4, "", ""),
	)
	h := NewStaleHandler(products, StalePolicyDraft, 10, silentLogger())
	ctx := context.Background()

	count, err := h.Handle(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, id := range []int64{1, 2} {
		p, _ := products.Get(ctx, id)
		assert.Equal(t, platform.StatusDraft, p.Status)
		assert.Equal(t, "1", p.MetaValue(platform.MetaWithdrawn))
		assert.Equal(t, run, p.MetaValue(platform.MetaLastSynced))
	}
	for _, id := range []int64{3, 4} {
		p, _ := products.Get(ctx, id)
		assert.Equal(t, platform.StatusPublish, p.Status)
		assert.Empty(t, p.MetaValue(platform.MetaWithdrawn))
	}
}

func TestStaleHandler_OutOfStockPolicy(t *testing.T) {
	products := newFakeProducts(staleProduct(1, "a", "1000"))
	h := NewStaleHandler(products, StalePolicyOutOfStock, 10, silentLogger())
	ctx := context.Background()

	count, err := h.Handle(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	p, _ := products.Get(ctx, 1)
	assert.Equal(t, platform.StatusPublish, p.Status)
	assert.Equal(t, platform.StockOutOfStock, p.StockStatus)
	require.NotNil(t, p.StockQuantity)
	assert.Equal(t, 0, *p.StockQuantity)
}

func TestStaleHandler_PagesThroughEverything(t *testing.T) {
	var seed []*platform.Product
	for i := int64(1); i <= 7; i++ {
		seed = append(seed, staleProduct(i, fmt.Sprint(i), ""))
	}
	products := newFakeProducts(seed...)
	h := NewStaleHandler(products, StalePolicyDraft, 3, silentLogger())

	count, err := h.Handle(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	rest, err := products.ListStale(context.Background(), testNow, 10)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestStaleHandler_SaveFailureDoesNotLoop(t *testing.T) {
	var seed []*platform.Product
	for i := int64(1); i <= 5; i++ {
		seed = append(seed, staleProduct(i, fmt.Sprint(i), ""))
	}
	products := newFakeProducts(seed...)
	products.saveErrs[1] = errors.New("store rejected update")
	h := NewStaleHandler(products, StalePolicyDraft, 3, silentLogger())

	count, err := h.Handle(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestStaleHandler_FailedFirstPageDoesNotHideTheRest(t *testing.T) {
	var seed []*platform.Product
	for i := int64(1); i <= 6; i++ {
		seed = append(seed, staleProduct(i, fmt.Sprint(i), ""))
	}
	products := newFakeProducts(seed...)
	for _, id := range []int64{1, 2, 3} {
		products.saveErrs[id] = errors.New("store rejected update")
	}
	h := NewStaleHandler(products, StalePolicyDraft, 3, silentLogger())

	count, err := h.Handle(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	for _, id := range []int64{4, 5, 6} {
		p, _ := products.Get(context.Background(), id)
		assert.Equal(t, platform.StatusDraft, p.Status, "product %d", id)
	}
}

func TestStaleHandler_ConcurrentSweepIsRejected(t *testing.T) {
	h := NewStaleHandler(newFakeProducts(), StalePolicyDraft, 10, silentLogger())

	h.mu.Lock()
	_, err := h.Handle(context.Background(), testNow)
	h.mu.Unlock()
	assert.ErrorIs(t, err, ErrSweepInProgress)

	_, err = h.Handle(context.Background(), testNow)
	assert.NoError(t, err)
}

func TestParseStalePolicy(t *testing.T) {
	p, err := ParseStalePolicy("")
	require.NoError(t, err)
	assert.Equal(t, StalePolicyDraft, p)

	p, err = ParseStalePolicy("outofstock")
	require.NoError(t, err)
	assert.Equal(t, StalePolicyOutOfStock, p)

	_, err = ParseStalePolicy("delete")
	assert.Error(t, err)
}
