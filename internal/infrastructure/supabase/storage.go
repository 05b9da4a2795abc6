package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/lllypuk/creatordash/internal/gateway"
)

// Upload implements gateway.Storage.
func (c *Client) Upload(ctx context.Context, obj gateway.Object) error {
	req := request{
		method:      http.MethodPost,
		path:        "/storage/v1/object/" + obj.Bucket + "/" + escapePath(obj.Path),
		body:        obj.Body,
		contentType: obj.ContentType,
		headers:     map[string]string{"x-upsert": "false", "Cache-Control": "max-age=3600"},
	}
	if err := c.do(ctx, req, nil); err != nil {
		return fmt.Errorf("upload %s/%s: %w", obj.Bucket, obj.Path, err)
	}
	return nil
}

// PublicURL implements gateway.Storage.
func (c *Client) PublicURL(bucket, path string) string {
	return c.baseURL + "/storage/v1/object/public/" + bucket + "/" + escapePath(path)
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

var _ gateway.Storage = (*Client)(nil)
