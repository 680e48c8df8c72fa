package softone

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Response is the envelope every SoftOne service answers with. Well known fields are
// lifted out case-insensitively; Extra keeps the full decoded body.
type Response struct {
	Success    bool
	ClientID   string
	Message    string
	Code       int
	ID         string
	Rows       []map[string]any
	TotalCount int
	Extra      map[string]any
}

// LoginResponse is the result of the login service.
type LoginResponse struct {
	ClientID string
	// Objects lists the company/branch/module combinations the user may authenticate to.
	Objects []map[string]any
	Extra   map[string]any
}

// AuthenticateResponse is the result of the authenticate service.
type AuthenticateResponse struct {
	ClientID string
	Extra    map[string]any
}

// SqlDataResponse is the result of a named SQL query.
type SqlDataResponse struct {
	Rows       []map[string]any
	TotalCount int
	Extra      map[string]any
}

// SetDataResponse is the result of a setData call; ID is the key of the stored record.
type SetDataResponse struct {
	ID    string
	Extra map[string]any
}

func (r *Response) Login() LoginResponse {
	login := LoginResponse{ClientID: r.ClientID, Extra: r.Extra}
	if objs, ok := lookup(r.Extra, "objs").([]any); ok {
		for _, obj := range objs {
			if m, ok := obj.(map[string]any); ok {
				login.Objects = append(login.Objects, m)
			}
		}
	}
	return login
}

func (r *Response) Authenticate() AuthenticateResponse {
	return AuthenticateResponse{ClientID: r.ClientID, Extra: r.Extra}
}

func (r *Response) SqlData() *SqlDataResponse {
	return &SqlDataResponse{Rows: r.Rows, TotalCount: r.TotalCount, Extra: r.Extra}
}

func (r *Response) SetData() *SetDataResponse {
	return &SetDataResponse{ID: r.ID, Extra: r.Extra}
}

// decodeResponse transcodes body to UTF-8 when the ERP declares a Greek charset and
// decodes the envelope.
func decodeResponse(body []byte, contentType string) (*Response, error) {
	if dec := charsetDecoder(contentType); dec != nil {
		utf8Body, err := dec.Bytes(body)
		if err != nil {
			return nil, fmt.Errorf("transcode response: %w", err)
		}
		body = utf8Body
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("empty response body")
	}

	resp := &Response{
		Success:  truthy(lookup(raw, "success")),
		ClientID: Text(lookup(raw, "clientid")),
		Message:  firstText(raw, "error", "message", "errormessage"),
		ID:       Text(lookup(raw, "id")),
		Extra:    raw,
	}
	if code, ok := Number(lookup(raw, "errorcode")); ok {
		resp.Code = int(code)
	} else if code, ok := Number(lookup(raw, "code")); ok {
		resp.Code = int(code)
	}
	if total, ok := Number(lookup(raw, "totalcount")); ok {
		resp.TotalCount = int(total)
	}
	if rows, ok := lookup(raw, "rows").([]any); ok {
		for _, row := range rows {
			if m, ok := row.(map[string]any); ok {
				resp.Rows = append(resp.Rows, m)
			}
		}
	}
	return resp, nil
}

func charsetDecoder(contentType string) *encoding.Decoder {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "1253"):
		return charmap.Windows1253.NewDecoder()
	case strings.Contains(ct, "iso-8859-7"):
		return charmap.ISO8859_7.NewDecoder()
	default:
		return nil
	}
}

// lookup finds key in m ignoring case.
func lookup(m map[string]any, key string) any {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func firstText(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := Text(lookup(m, key)); s != "" {
			return s
		}
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	case json.Number:
		n, err := t.Int64()
		return err == nil && n != 0
	default:
		return false
	}
}

// Text renders an ERP scalar as a trimmed string. Numbers keep their literal form.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Number parses an ERP scalar as a float. Comma decimals ("12,50") are accepted.
func Number(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		if strings.Contains(s, ",") && !strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ",", ".")
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
