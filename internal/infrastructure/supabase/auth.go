package supabase

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/gateway"
)

// UpdateUserMetadata implements gateway.Identity with GoTrue's PUT /auth/v1/user, acting as the
// user that owns accessToken.
func (c *Client) UpdateUserMetadata(ctx context.Context, accessToken string, data map[string]any) error {
	if accessToken == "" {
		return errs.ErrUnauthorized
	}

	req, err := c.jsonRequest(http.MethodPut, "/auth/v1/user", nil, map[string]any{"data": data})
	if err != nil {
		return err
	}
	req.bearer = accessToken

	if err := c.do(ctx, req, nil); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

var _ gateway.Identity = (*Client)(nil)
