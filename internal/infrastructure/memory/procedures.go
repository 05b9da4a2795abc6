package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/gateway"
)

// Column names of the channel_views table.
const (
	columnDay   = "day"
	columnViews = "views"
)

// monthlyViews sums channel_views rows of p_user_id whose day falls in the month of p_month (YYYY-MM-DD).
func monthlyViews(_ context.Context, b *Backend, args map[string]any) (any, error) {
	userID, _ := args["p_user_id"].(string)
	month, _ := args["p_month"].(string)
	if userID == "" || len(month) < len("2006-01") {
		return nil, fmt.Errorf("%w: p_user_id and p_month are required", errs.ErrInvalidInput)
	}
	prefix := month[:len("2006-01")]

	var total int64
	for _, row := range b.Rows(gateway.TableChannelViews) {
		if row.String(gateway.ColumnUserID) != userID {
			continue
		}
		if !strings.HasPrefix(row.String(columnDay), prefix) {
			continue
		}
		if v, ok := asFloat(row[columnViews]); ok {
			total += int64(v)
		}
	}
	return total, nil
}
