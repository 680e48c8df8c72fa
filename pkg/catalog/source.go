package catalog

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/softone"
)

// DefaultDeltaParam is the SqlData parameter carrying the delta window in minutes.
const DefaultDeltaParam = "pMins"

// ERPItemSource reads catalogue rows from a named ERP query.
type ERPItemSource struct {
	client     *softone.Client
	sqlName    string
	deltaParam string
}

func NewERPItemSource(client *softone.Client, sqlName, deltaParam string) *ERPItemSource {
	if deltaParam == "" {
		deltaParam = DefaultDeltaParam
	}
	return &ERPItemSource{client: client, sqlName: sqlName, deltaParam: deltaParam}
}

func (s *ERPItemSource) FetchItems(ctx context.Context, deltaMinutes int) ([]RawRow, error) {
	params := map[string]any{}
	if deltaMinutes > 0 {
		params[s.deltaParam] = deltaMinutes
	}

	resp, err := s.client.SqlData(ctx, s.sqlName, params)
	if err != nil {
		return nil, err
	}

	rows := make([]RawRow, 0, len(resp.Rows))
	for _, r := range resp.Rows {
		rows = append(rows, RawRow(r))
	}
	return rows, nil
}
