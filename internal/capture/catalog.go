package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Catalog answers questions about the markers currently rendered on a page.
// It holds no element handles between calls.
type Catalog struct {
	page     Page
	selector string
	timeout  time.Duration
}

// NewCatalog binds a catalog to page.
func NewCatalog(page Page, selector string, timeout time.Duration) *Catalog {
	if selector == "" {
		selector = DefaultMarkerSelector
	}
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	return &Catalog{page: page, selector: selector, timeout: timeout}
}

// Discover waits for the first marker to render and returns how many markers
// the page currently shows.
func (c *Catalog) Discover(ctx context.Context) (int, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.page.WaitPresent(waitCtx, c.selector); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCatalogTimeout, err)
	}
	markers, err := c.page.QueryAll(waitCtx, c.selector)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCatalogTimeout, err)
	}
	if len(markers) == 0 {
		return 0, ErrCatalogTimeout
	}
	return len(markers), nil
}

// Resolve re-queries the page and returns the marker at ordinal.
func (c *Catalog) Resolve(ctx context.Context, ordinal int) (Element, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	markers, err := c.page.QueryAll(waitCtx, c.selector)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: ordinal %d: %w", ErrMarkerNotFound, ordinal, err)
		}
		return nil, fmt.Errorf("query markers: %w", err)
	}
	if ordinal < 0 || ordinal >= len(markers) {
		return nil, fmt.Errorf("%w: ordinal %d outside %d rendered markers", ErrMarkerNotFound, ordinal, len(markers))
	}
	return markers[ordinal], nil
}

// Await blocks until the catalog renders again, typically after a reload.
func (c *Catalog) Await(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.page.QueryAll(waitCtx, c.selector); err != nil {
		return fmt.Errorf("%w: %w", ErrCatalogTimeout, err)
	}
	return nil
}
