package woocommerce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/platform"
	"github.com/Ramsey-B/fern/pkg/softone"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// CustomerWriter stores ERP customer records.
type CustomerWriter interface {
	SetData(ctx context.Context, object, key string, data map[string]any) (*softone.SetDataResponse, error)
}

type wcCustomer struct {
	ID        int64            `json:"id"`
	Email     string           `json:"email"`
	FirstName string           `json:"first_name"`
	LastName  string           `json:"last_name"`
	Billing   platform.Address `json:"billing"`
	MetaData  []metaData       `json:"meta_data"`
}

// CustomerSync implements platform.CustomerSync. Registered customers keep their ERP
// id in customer meta so every order of theirs resolves to the same record.
type CustomerSync struct {
	client       *Client
	erp          CustomerWriter
	countryCodes map[string]string
	logger       ectologger.Logger
}

func NewCustomerSync(client *Client, erp CustomerWriter, countryCodes map[string]string, logger ectologger.Logger) *CustomerSync {
	return &CustomerSync{client: client, erp: erp, countryCodes: countryCodes, logger: logger}
}

func (s *CustomerSync) EnsureCustomer(ctx context.Context, customerID int64) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "CustomerSync.EnsureCustomer")
	defer span.End()

	path := fmt.Sprintf("/customers/%d", customerID)
	var c wcCustomer
	if err := s.client.do(ctx, http.MethodGet, path, nil, nil, &c); err != nil {
		tracing.Fail(span, err)
		return "", err
	}

	if trdr := metaMap(c.MetaData)[platform.MetaCustomerID]; trdr != "" {
		return trdr, nil
	}

	country, ok := s.countryCodes[strings.ToUpper(strings.TrimSpace(c.Billing.Country))]
	if !ok {
		return "", fmt.Errorf("customer %d: billing country %q has no SoftOne mapping", customerID, c.Billing.Country)
	}

	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if c.Billing.Company != "" {
		name = c.Billing.Company
	}
	email := c.Email
	if email == "" {
		email = c.Billing.Email
	}

	resp, err := s.erp.SetData(ctx, "CUSTOMER", "", map[string]any{
		"CUSTOMER": []any{map[string]any{
			"NAME":     name,
			"EMAIL":    email,
			"PHONE01":  c.Billing.Phone,
			"ADDRESS":  strings.TrimSpace(c.Billing.Address1 + " " + c.Billing.Address2),
			"CITY":     c.Billing.City,
			"ZIP":      c.Billing.Postcode,
			"DISTRICT": c.Billing.State,
			"COUNTRY":  country,
		}},
	})
	if err != nil {
		tracing.Fail(span, err)
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("SoftOne did not return a customer id")
	}

	body := map[string]any{"meta_data": metaList(map[string]string{platform.MetaCustomerID: resp.ID})}
	if err := s.client.do(ctx, http.MethodPut, path, nil, body, nil); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("customer_id", customerID).Warn("Failed to store SoftOne id on customer")
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"customer_id": customerID,
		"trdr":        resp.ID,
	}).Info("Created SoftOne customer")
	return resp.ID, nil
}
