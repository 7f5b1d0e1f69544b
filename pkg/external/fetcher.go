package external

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/fern/internal/platform/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// PageError reports a failed page fetch with enough context for the caller
// to resume from the last known cursor.
type PageError struct {
	PageIndex  int
	StatusCode int
	Cursor     string
	Err        error
}

func (e *PageError) Error() string {
	return fmt.Sprintf("fetch page %d failed (status %d): %v", e.PageIndex, e.StatusCode, e.Err)
}

func (e *PageError) Unwrap() error {
	return e.Err
}

// PageFunc receives one fetched page. pageIndex is zero-based; cursor is the
// link that produced the page ("" for the first). Returning an error stops
// pagination.
type PageFunc func(pageIndex int, items []models.ExternalRecord, cursor string) error

// FetchPages retrieves every record of a collection filtered by workspace,
// invoking fn once per page. Pagination follows the nextLink pointer until
// the service omits it or returns an empty page, whichever comes first. A
// non-2xx response fails immediately with the page index attached; there is
// no page-level retry here beyond the client's bounded transport retry.
func (c *Client) FetchPages(ctx context.Context, collection, workspaceID string, startCursor string, fn PageFunc) error {
	ctx, span := tracing.StartSpan(ctx, "external.Client.FetchPages")
	defer span.End()

	cursor := startCursor
	for pageIndex := 0; ; pageIndex++ {
		var page models.ExternalPage

		req := c.http.R().
			SetContext(ctx).
			SetResult(&page)

		var err error
		var status int
		if cursor == "" {
			resp, reqErr := req.
				SetQueryParam("limit", fmt.Sprintf("%d", c.pageLimit)).
				SetQueryParam("filter[groups][in][id]", workspaceID).
				Get(fmt.Sprintf("/v1/%s", collection))
			err = reqErr
			if resp != nil {
				status = resp.StatusCode()
				if reqErr == nil && resp.IsError() {
					err = fmt.Errorf("unexpected status %s", resp.Status())
				}
			}
		} else {
			resp, reqErr := req.Get(cursor)
			err = reqErr
			if resp != nil {
				status = resp.StatusCode()
				if reqErr == nil && resp.IsError() {
					err = fmt.Errorf("unexpected status %s", resp.Status())
				}
			}
		}

		if err != nil {
			c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"collection":   collection,
				"workspace_id": workspaceID,
				"page_index":   pageIndex,
			}).Error("Failed to fetch external page")
			return &PageError{PageIndex: pageIndex, StatusCode: status, Cursor: cursor, Err: err}
		}

		items := page.Data.Items
		if len(items) == 0 {
			return nil
		}

		if err := fn(pageIndex, items, cursor); err != nil {
			return err
		}

		next := page.Data.Pagination.NextLink
		if next == "" {
			return nil
		}
		cursor = next
	}
}

// FetchAll retrieves the complete ordered record sequence for a workspace
func (c *Client) FetchAll(ctx context.Context, collection, workspaceID string) ([]models.ExternalRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "external.Client.FetchAll")
	defer span.End()

	var all []models.ExternalRecord
	err := c.FetchPages(ctx, collection, workspaceID, "", func(_ int, items []models.ExternalRecord, _ string) error {
		all = append(all, items...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}
