package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lllypuk/creatordash/internal/gateway"
)

const (
	restPrefix = "/rest/v1/"
	rpcPrefix  = "/rest/v1/rpc/"

	headerPrefer = "Prefer"
)

// Select implements gateway.Records with a PostgREST GET.
func (c *Client) Select(ctx context.Context, q gateway.Query) ([]gateway.Record, error) {
	query, err := filterQuery(q.Filters)
	if err != nil {
		return nil, err
	}

	columns := "*"
	if len(q.Columns) > 0 {
		columns = strings.Join(q.Columns, ",")
	}
	query.Set("select", columns)

	if q.Order != nil {
		direction := "asc"
		if q.Order.Descending {
			direction = "desc"
		}
		query.Set("order", q.Order.Column+"."+direction)
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}

	var rows []gateway.Record
	if err := c.do(ctx, request{method: http.MethodGet, path: restPrefix + q.Table, query: query}, &rows); err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Table, err)
	}
	if rows == nil {
		rows = []gateway.Record{}
	}
	return rows, nil
}

// Update implements gateway.Records with a PostgREST PATCH.
func (c *Client) Update(ctx context.Context, table string, filters []gateway.Filter, values gateway.Record) error {
	query, err := filterQuery(filters)
	if err != nil {
		return err
	}

	req, err := c.jsonRequest(http.MethodPatch, restPrefix+table, query, values)
	if err != nil {
		return err
	}
	req.headers = map[string]string{headerPrefer: "return=minimal"}

	if err := c.do(ctx, req, nil); err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

// Insert implements gateway.Records with a PostgREST POST and returns the stored row.
func (c *Client) Insert(ctx context.Context, table string, values gateway.Record) (gateway.Record, error) {
	req, err := c.jsonRequest(http.MethodPost, restPrefix+table, nil, values)
	if err != nil {
		return nil, err
	}
	req.headers = map[string]string{headerPrefer: "return=representation"}

	var rows []gateway.Record
	if err := c.do(ctx, req, &rows); err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	if len(rows) == 0 {
		return values, nil
	}
	return rows[0], nil
}

// Call implements gateway.Procedures with a PostgREST RPC.
func (c *Client) Call(ctx context.Context, name string, args map[string]any, out any) error {
	if args == nil {
		args = map[string]any{}
	}
	req, err := c.jsonRequest(http.MethodPost, rpcPrefix+name, nil, args)
	if err != nil {
		return err
	}

	if err := c.do(ctx, req, out); err != nil {
		return fmt.Errorf("rpc %s: %w", name, err)
	}
	return nil
}

// filterQuery renders filters in PostgREST operator syntax ("user_id=eq.42", "read_at=is.null").
func filterQuery(filters []gateway.Filter) (url.Values, error) {
	query := url.Values{}
	for _, f := range filters {
		expr, err := filterExpr(f)
		if err != nil {
			return nil, err
		}
		query.Add(f.Column, expr)
	}
	return query, nil
}

func filterExpr(f gateway.Filter) (string, error) {
	switch f.Op {
	case gateway.OpEq:
		return "eq." + fmt.Sprint(f.Value), nil
	case gateway.OpIsNull:
		return "is.null", nil
	default:
		return "", fmt.Errorf("unsupported filter operator %q", f.Op)
	}
}

var (
	_ gateway.Records    = (*Client)(nil)
	_ gateway.Procedures = (*Client)(nil)
)
