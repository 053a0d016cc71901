package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCatalog_DiscoverCountsRenderedMarkers(t *testing.T) {
	t.Parallel()

	page := newFakePage(fakeMarker{}, fakeMarker{}, fakeMarker{})
	catalog := NewCatalog(page, "", time.Second)

	n, err := catalog.Discover(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestCatalog_DiscoverTimesOutOnEmptyMap(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	catalog := NewCatalog(page, DefaultMarkerSelector, time.Second)

	_, err := catalog.Discover(context.Background())
	require.ErrorIs(t, err, ErrCatalogTimeout)
}

func TestCatalog_ResolveOutOfRange(t *testing.T) {
	t.Parallel()

	page := newFakePage(fakeMarker{}, fakeMarker{}, fakeMarker{})
	page.shrinkTo = 1
	page.reloads = 1
	catalog := NewCatalog(page, DefaultMarkerSelector, time.Second)

	el, err := catalog.Resolve(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, el)

	_, err = catalog.Resolve(context.Background(), 2)
	require.ErrorIs(t, err, ErrMarkerNotFound)

	_, err = catalog.Resolve(context.Background(), -1)
	require.ErrorIs(t, err, ErrMarkerNotFound)
}

func TestCatalog_ResolveReturnsFreshHandles(t *testing.T) {
	t.Parallel()

	page := newFakePage(fakeMarker{}, fakeMarker{})
	catalog := NewCatalog(page, DefaultMarkerSelector, time.Second)

	first, err := catalog.Resolve(context.Background(), 1)
	require.NoError(t, err)
	second, err := catalog.Resolve(context.Background(), 1)
	require.NoError(t, err)
	require.NotSame(t, first, second)
}

func TestCatalog_ResolveTimeoutIsNotFound(t *testing.T) {
	t.Parallel()

	page := newFakePage()
	catalog := NewCatalog(page, DefaultMarkerSelector, time.Second)

	_, err := catalog.Resolve(context.Background(), 0)
	require.ErrorIs(t, err, ErrMarkerNotFound)
}
