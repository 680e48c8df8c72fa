package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/Ramsey-B/fern/pkg/platform"
	"github.com/Ramsey-B/fern/pkg/softone"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// resolveCustomer returns the ERP customer id for the order and stores it on the
// order. Lookup order: cached id, ERP lookup by billing email, customer sync for
// registered customers, then a new guest record.
func (e *Exporter) resolveCustomer(ctx context.Context, order *platform.Order) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "Exporter.resolveCustomer")
	defer span.End()

	if trdr := order.MetaValue(platform.MetaCustomerID); trdr != "" {
		return trdr, nil
	}

	log := e.logger.WithContext(ctx).WithField("order_id", order.ID)

	trdr, err := e.lookupByEmail(ctx, order.Billing.Email)
	if err != nil {
		if !isRecoverable(err) {
			tracing.Fail(span, err)
			return "", err
		}
		log.WithError(err).Warn("SoftOne customer lookup by email failed")
	}

	if trdr == "" && order.CustomerID > 0 && e.customers != nil {
		trdr, err = e.customers.EnsureCustomer(ctx, order.CustomerID)
		if err != nil {
			if !isRecoverable(err) {
				tracing.Fail(span, err)
				return "", err
			}
			log.WithError(err).Warn("Customer sync failed")
			trdr = ""
		}
	}

	if trdr == "" {
		trdr, err = e.createGuest(ctx, order)
		if err != nil {
			tracing.Fail(span, err)
			return "", err
		}
	}

	if err := e.orders.SetMeta(ctx, order.ID, map[string]string{platform.MetaCustomerID: trdr}); err != nil {
		log.WithError(err).Warn("Failed to store SoftOne customer id on order")
	}
	return trdr, nil
}

func (e *Exporter) lookupByEmail(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || e.cfg.CustomerLookupSQL == "" {
		return "", nil
	}

	resp, err := e.erp.SqlData(ctx, e.cfg.CustomerLookupSQL, map[string]any{"pEmail": email})
	if err != nil {
		return "", err
	}
	for _, row := range resp.Rows {
		for k, v := range row {
			if strings.EqualFold(k, "trdr") {
				if trdr := softone.Text(v); trdr != "" {
					return trdr, nil
				}
			}
		}
	}
	return "", nil
}

func (e *Exporter) createGuest(ctx context.Context, order *platform.Order) (string, error) {
	b := order.Billing
	country, ok := e.cfg.CountryCodes[strings.ToUpper(strings.TrimSpace(b.Country))]
	if !ok {
		return "", ErrUnmappedCountry
	}

	name := strings.TrimSpace(b.FirstName + " " + b.LastName)
	if b.Company != "" {
		name = b.Company
	}

	customer := map[string]any{
		"NAME":     name,
		"EMAIL":    b.Email,
		"PHONE01":  b.Phone,
		"ADDRESS":  strings.TrimSpace(b.Address1 + " " + b.Address2),
		"CITY":     b.City,
		"ZIP":      b.Postcode,
		"DISTRICT": b.State,
		"COUNTRY":  country,
	}
	if e.cfg.GuestCustomerCode != "" {
		customer["CODE"] = e.cfg.GuestCustomerCode
	}

	resp, err := e.erp.SetData(ctx, "CUSTOMER", "", map[string]any{"CUSTOMER": []any{customer}})
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("SoftOne did not return a customer id")
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"order_id": order.ID,
		"trdr":     resp.ID,
	}).Info("Created SoftOne guest customer")
	return resp.ID, nil
}

// isRecoverable reports whether a failure in one resolution step lets the next step run.
func isRecoverable(err error) bool {
	var cfgErr *softone.ConfigError
	var authErr *softone.AuthError
	return !errors.As(err, &cfgErr) && !errors.As(err, &authErr)
}
