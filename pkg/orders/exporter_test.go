package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/platform"
	"github.com/Ramsey-B/fern/pkg/softone"
)

var exportNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type setDataCall struct {
	Object string
	Data   map[string]any
}

type fakeERP struct {
	sqlCalls     []map[string]any
	sqlRows      []map[string]any
	setDataCalls []setDataCall
	setData      func(call int, object string) (*softone.SetDataResponse, error)
}

func (f *fakeERP) SqlData(_ context.Context, sqlName string, params map[string]any) (*softone.SqlDataResponse, error) {
	call := map[string]any{"SqlName": sqlName}
	for k, v := range params {
		call[k] = v
	}
	f.sqlCalls = append(f.sqlCalls, call)
	return &softone.SqlDataResponse{Rows: f.sqlRows}, nil
}

func (f *fakeERP) SetData(_ context.Context, object, _ string, data map[string]any) (*softone.SetDataResponse, error) {
	f.setDataCalls = append(f.setDataCalls, setDataCall{Object: object, Data: data})
	if f.setData == nil {
		return &softone.SetDataResponse{ID: "DOC-1"}, nil
	}
	return f.setData(len(f.setDataCalls), object)
}

func (f *fakeERP) calls(object string) int {
	n := 0
	for _, c := range f.setDataCalls {
		if c.Object == object {
			n++
		}
	}
	return n
}

type fakeOrders struct {
	orders map[int64]*platform.Order
	notes  map[int64][]string
}

func (f *fakeOrders) Get(_ context.Context, id int64) (*platform.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, platform.ErrNotFound
	}
	c := *o
	c.Meta = map[string]string{}
	for k, v := range o.Meta {
		c.Meta[k] = v
	}
	return &c, nil
}

func (f *fakeOrders) SetMeta(_ context.Context, id int64, meta map[string]string) error {
	o := f.orders[id]
	if o.Meta == nil {
		o.Meta = map[string]string{}
	}
	for k, v := range meta {
		o.Meta[k] = v
	}
	return nil
}

func (f *fakeOrders) AddNote(_ context.Context, id int64, note string) error {
	f.notes[id] = append(f.notes[id], note)
	return nil
}

type fakeProducts struct {
	platform.ProductRepository
	items map[int64]*platform.Product
}

func (f *fakeProducts) Get(_ context.Context, id int64) (*platform.Product, error) {
	p, ok := f.items[id]
	if !ok {
		return nil, platform.ErrNotFound
	}
	return p, nil
}

type fakeCustomers struct {
	trdr  string
	err   error
	calls []int64
}

func (f *fakeCustomers) EnsureCustomer(_ context.Context, id int64) (string, error) {
	f.calls = append(f.calls, id)
	return f.trdr, f.err
}

type exportHarness struct {
	erp       *fakeERP
	orders    *fakeOrders
	customers *fakeCustomers
	events    *events.Recorder
	sleeps    []time.Duration
	exporter  *Exporter
}

func newExportHarness(order *platform.Order) *exportHarness {
	h := &exportHarness{
		erp:       &fakeERP{},
		orders:    &fakeOrders{orders: map[int64]*platform.Order{order.ID: order}, notes: map[int64][]string{}},
		customers: &fakeCustomers{},
		events:    &events.Recorder{},
	}
	products := &fakeProducts{items: map[int64]*platform.Product{
		10: {ID: 10, Meta: map[string]string{platform.MetaMaterialID: "5001"}},
		11: {ID: 11},
		12: {ID: 12, Meta: map[string]string{platform.MetaMaterialID: "5012"}},
	}}
	h.exporter = NewExporter(Config{
		Series:            "7021",
		CustomerLookupSQL: "CustomerByEmail",
		CountryCodes:      map[string]string{"GR": "1"},
		PaymentCodes:      map[string]string{"Cash on delivery": "1003"},
	}, h.erp, h.orders, products, h.customers, h.events, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	h.exporter.now = func() time.Time { return exportNow }
	h.exporter.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

func testOrder() *platform.Order {
	return &platform.Order{
		ID:                 42,
		Number:             "42",
		Status:             "processing",
		CustomerNote:       "Leave at the door",
		PaymentMethodTitle: "Cash on delivery",
		DateCreated:        time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
		Billing: platform.Address{
			FirstName: "Eleni",
			LastName:  "Papadopoulou",
			Address1:  "Ermou 1",
			City:      "Athens",
			Postcode:  "10563",
			Country:   "GR",
			Email:     "eleni@example.com",
		},
		LineItems: []platform.LineItem{
			{ID: 1, ProductID: 10, Name: "Cup", Quantity: 2},
			{ID: 2, ProductID: 11, Name: "Unmapped", Quantity: 1},
			{ID: 3, ProductID: 12, Name: "Free gift", Quantity: 0},
		},
		Meta: map[string]string{platform.MetaCustomerID: "T-9"},
	}
}

func TestExport_Success(t *testing.T) {
	h := newExportHarness(testOrder())

	outcome, err := h.exporter.Export(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, StatusExported, outcome.Status)
	assert.Equal(t, "DOC-1", outcome.DocumentID)
	assert.Equal(t, 1, outcome.Attempts)

	meta := h.orders.orders[42].Meta
	assert.Equal(t, "DOC-1", meta[platform.MetaDocumentID])
	assert.Equal(t, "2026-10-19T12:00:00Z", meta[platform.MetaExportedAt])

	require.Len(t, h.erp.setDataCalls, 1)
	data := h.erp.setDataCalls[0].Data
	header := data["SALDOC"].([]any)[0].(map[string]any)
	assert.Equal(t, "7021", header["SERIES"])
	assert.Equal(t, "T-9", header["TRDR"])
	assert.Equal(t, "2026-10-18 09:30:00", header["TRNDATE"])
	assert.Equal(t, "1003", header["PAYMENT"])
	assert.Equal(t, "Order #42 | Leave at the door | Payment: Cash on delivery", header["COMMENTS"])
	assert.Equal(t, []any{map[string]any{"MTRL": "5001", "QTY1": 2.0, "COMMENTS1": "Cup"}}, data["ITELINES"])

	assert.Equal(t, []string{events.OrderExported}, h.events.Types())
	assert.Empty(t, h.sleeps)
}

func TestExport_AlreadyExportedMakesNoCall(t *testing.T) {
	order := testOrder()
	order.Meta[platform.MetaDocumentID] = "DOC-OLD"
	h := newExportHarness(order)

	outcome, err := h.exporter.Export(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyExported, outcome.Status)
	assert.Equal(t, "DOC-OLD", outcome.DocumentID)
	assert.Empty(t, h.erp.setDataCalls)
	assert.Empty(t, h.erp.sqlCalls)
}

func TestExport_ThreeFailedAttempts(t *testing.T) {
	h := newExportHarness(testOrder())
	h.erp.setData = func(call int, _ string) (*softone.SetDataResponse, error) {
		return nil, &softone.APIError{Kind: softone.KindBusiness, Service: "setData", Message: "Series is locked"}
	}

	outcome, err := h.exporter.Export(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Contains(t, outcome.Error, "after 3 attempts")

	assert.Equal(t, 3, h.erp.calls(DocumentObject))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.sleeps)
	assert.Empty(t, h.orders.orders[42].Meta[platform.MetaDocumentID])

	notes := h.orders.notes[42]
	require.Len(t, notes, 3)
	assert.Contains(t, notes[0], "attempt 1/3")
	assert.Contains(t, notes[1], "attempt 2/3")
	assert.Contains(t, notes[2], "attempt 3/3")
	assert.Equal(t, []string{events.OrderExportFailed}, h.events.Types())
}

func TestExport_RecoversOnSecondAttempt(t *testing.T) {
	h := newExportHarness(testOrder())
	h.erp.setData = func(call int, _ string) (*softone.SetDataResponse, error) {
		if call == 1 {
			return nil, &softone.APIError{Kind: softone.KindTransport, Service: "setData", Err: errors.New("connection reset")}
		}
		return &softone.SetDataResponse{ID: "DOC-2"}, nil
	}

	outcome, err := h.exporter.Export(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, StatusExported, outcome.Status)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, []time.Duration{time.Second}, h.sleeps)
	assert.Equal(t, "DOC-2", h.orders.orders[42].Meta[platform.MetaDocumentID])
}

func TestExport_ConfigErrorIsNotRetried(t *testing.T) {
	h := newExportHarness(testOrder())
	h.erp.setData = func(int, string) (*softone.SetDataResponse, error) {
		return nil, &softone.ConfigError{Field: "endpoint", Message: "SoftOne endpoint is not configured"}
	}

	_, err := h.exporter.Export(context.Background(), 42)
	var cfgErr *softone.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, 1, h.erp.calls(DocumentObject))
	assert.Empty(t, h.sleeps)
}

func TestExport_EmptyPayloadIsNeverSent(t *testing.T) {
	order := testOrder()
	order.LineItems = []platform.LineItem{{ID: 2, ProductID: 11, Quantity: 3}}
	h := newExportHarness(order)

	outcome, err := h.exporter.Export(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Error, ErrEmptyPayload.Error())
	assert.Empty(t, h.erp.setDataCalls)
	assert.Len(t, h.orders.notes[42], 1)
}

func TestExport_MissingSeriesIsAConfigError(t *testing.T) {
	h := newExportHarness(testOrder())
	h.exporter.cfg.Series = " "

	outcome, err := h.exporter.Export(context.Background(), 42)
	assert.Nil(t, outcome)
	var cfgErr *softone.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "series", cfgErr.Field)
	assert.NotErrorIs(t, err, ErrEmptyPayload)
	assert.Empty(t, h.erp.setDataCalls)
	assert.Empty(t, h.orders.notes[42])
}

func TestTransmitWithRetry_RejectsEmptyPayload(t *testing.T) {
	h := newExportHarness(testOrder())

	_, err := h.exporter.TransmitWithRetry(context.Background(), testOrder(), &DocumentPayload{Header: DocumentHeader{Series: "7021"}}, 3)
	assert.ErrorIs(t, err, ErrEmptyPayload)
	assert.Empty(t, h.erp.setDataCalls)
}

func TestExport_CustomerResolution(t *testing.T) {
	t.Run("email lookup", func(t *testing.T) {
		order := testOrder()
		delete(order.Meta, platform.MetaCustomerID)
		h := newExportHarness(order)
		h.erp.sqlRows = []map[string]any{{"TRDR": "T-EMAIL"}}

		outcome, err := h.exporter.Export(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, "T-EMAIL", outcome.CustomerID)
		assert.Equal(t, "eleni@example.com", h.erp.sqlCalls[0]["pEmail"])
		assert.Equal(t, "T-EMAIL", h.orders.orders[42].Meta[platform.MetaCustomerID])
		assert.Empty(t, h.customers.calls)
	})

	t.Run("customer sync for registered customers", func(t *testing.T) {
		order := testOrder()
		delete(order.Meta, platform.MetaCustomerID)
		order.CustomerID = 77
		h := newExportHarness(order)
		h.customers.trdr = "T-SYNC"

		outcome, err := h.exporter.Export(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, "T-SYNC", outcome.CustomerID)
		assert.Equal(t, []int64{77}, h.customers.calls)
		assert.Equal(t, 0, h.erp.calls("CUSTOMER"))
	})

	t.Run("guest customer", func(t *testing.T) {
		order := testOrder()
		delete(order.Meta, platform.MetaCustomerID)
		h := newExportHarness(order)
		h.erp.setData = func(_ int, object string) (*softone.SetDataResponse, error) {
			if object == "CUSTOMER" {
				return &softone.SetDataResponse{ID: "T-GUEST"}, nil
			}
			return &softone.SetDataResponse{ID: "DOC-3"}, nil
		}

		outcome, err := h.exporter.Export(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, StatusExported, outcome.Status)
		assert.Equal(t, "T-GUEST", outcome.CustomerID)

		customer := h.erp.setDataCalls[0].Data["CUSTOMER"].([]any)[0].(map[string]any)
		assert.Equal(t, "Eleni Papadopoulou", customer["NAME"])
		assert.Equal(t, "1", customer["COUNTRY"])
		assert.Equal(t, "T-GUEST", h.orders.orders[42].Meta[platform.MetaCustomerID])
	})

	t.Run("unmapped country aborts", func(t *testing.T) {
		order := testOrder()
		delete(order.Meta, platform.MetaCustomerID)
		order.Billing.Country = "FR"
		h := newExportHarness(order)

		outcome, err := h.exporter.Export(context.Background(), 42)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, outcome.Status)
		assert.Contains(t, outcome.Error, ErrUnmappedCountry.Error())
		assert.Empty(t, h.erp.setDataCalls)
		assert.Empty(t, h.orders.orders[42].Meta[platform.MetaCustomerID])
	})
}

func TestHandleStatusTransition(t *testing.T) {
	h := newExportHarness(testOrder())
	ctx := context.Background()

	outcome, err := h.exporter.HandleStatusTransition(ctx, 42, "pending", "on-hold")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, outcome.Status)

	outcome, err = h.exporter.HandleStatusTransition(ctx, 42, "processing", "wc-processing")
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, outcome.Status)
	assert.Empty(t, h.erp.setDataCalls)

	outcome, err = h.exporter.HandleStatusTransition(ctx, 42, "wc-pending", "wc-processing")
	require.NoError(t, err)
	assert.Equal(t, StatusExported, outcome.Status)
}

func TestExport_UnknownOrder(t *testing.T) {
	h := newExportHarness(testOrder())
	_, err := h.exporter.Export(context.Background(), 999)
	assert.ErrorIs(t, err, platform.ErrNotFound)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, time.Second, RetryDelay(1))
	assert.Equal(t, 2*time.Second, RetryDelay(2))
	assert.Equal(t, 16*time.Second, RetryDelay(5))
	assert.Equal(t, MaxRetryDelay, RetryDelay(6))
	assert.Equal(t, MaxRetryDelay, RetryDelay(64))
}
