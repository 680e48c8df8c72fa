package softone

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// poster sends one service request and decodes the envelope. It does not interpret
// success=false.
type poster interface {
	Post(ctx context.Context, service string, body map[string]any) (*Response, error)
}

// Transport posts JSON requests to the single SoftOne endpoint.
type Transport struct {
	endpoint string
	http     *httpclient.Client
	logger   ectologger.Logger
}

func NewTransport(cfg Config, logger ectologger.Logger) *Transport {
	cfg = cfg.withDefaults()

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.Timeout

	return &Transport{
		endpoint: cfg.Endpoint,
		http:     httpclient.NewClient(httpCfg, logger),
		logger:   logger,
	}
}

func (t *Transport) Post(ctx context.Context, service string, body map[string]any) (*Response, error) {
	ctx, span := tracing.StartSpan(ctx, "softone.Transport.Post")
	defer span.End()

	if t.endpoint == "" {
		return nil, &ConfigError{Field: "endpoint", Message: "SoftOne endpoint is not configured"}
	}
	body["service"] = service

	httpResp, err := t.http.DoJSON(ctx, http.MethodPost, t.endpoint, body, nil)
	if err != nil {
		metrics.RecordERPCall(service, string(KindTransport))
		tracing.Fail(span, err)
		return nil, &APIError{Kind: KindTransport, Service: service, Err: err}
	}

	if !httpResp.IsSuccess() {
		metrics.RecordERPCall(service, string(KindHTTPStatus))
		apiErr := &APIError{
			Kind:       KindHTTPStatus,
			Service:    service,
			StatusCode: httpResp.StatusCode,
			Body:       redact(httpResp.Body),
		}
		t.logger.WithContext(ctx).WithFields(map[string]any{
			"service": service,
			"status":  httpResp.StatusCode,
		}).Warn("softone returned a non-success status")
		tracing.Fail(span, apiErr)
		return nil, apiErr
	}

	resp, err := decodeResponse(httpResp.Body, httpResp.ContentType)
	if err != nil {
		metrics.RecordERPCall(service, string(KindDecode))
		apiErr := &APIError{
			Kind:       KindDecode,
			Service:    service,
			StatusCode: httpResp.StatusCode,
			Body:       redact(httpResp.Body),
			Err:        err,
		}
		t.logger.WithContext(ctx).WithError(err).WithField("service", service).Warn("softone returned an undecodable body")
		tracing.Fail(span, apiErr)
		return nil, apiErr
	}

	return resp, nil
}
