package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/campusdelivery/internal/geo"
	"github.com/example/campusdelivery/internal/models"
	"github.com/example/campusdelivery/internal/testutil"
)

// memoryCache stores JSON like the redis cache does.
type memoryCache struct {
	data map[string][]byte
	gets int
}

func (c *memoryCache) Get(ctx context.Context, key string, value interface{}) error {
	c.gets++
	raw, ok := c.data[key]
	if !ok {
		return errors.New("key not found in cache")
	}
	return json.Unmarshal(raw, value)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.data, key)
	}
	return nil
}

func TestCircleResolver(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	wide := testutil.CreateCircleZone(t, db, "Greater Campus", campus, 3000, 800)
	inner := testutil.CreateCircleZone(t, db, "Library Quad", campus, 500, 300)
	testutil.CreateCircleZone(t, db, "Town", farAway, 1000, 1200)

	closed := testutil.CreateCircleZone(t, db, "Closed", geo.Point{Lat: -15.40, Lng: 35.35}, 5000, 100)
	require.NoError(t, db.Model(closed).Update("is_active", false).Error)

	resolver := NewCircleResolver(db, nil, time.Minute)
	assert.Equal(t, models.ZoneKindCircle, resolver.Kind())

	t.Run("smallest containing zone wins", func(t *testing.T) {
		match, err := resolver.Resolve(ctx, campus)
		require.NoError(t, err)
		assert.True(t, match.Matched)
		assert.Equal(t, inner.ID, match.ZoneID)
		assert.Equal(t, "300", match.Fee.String())
	})

	t.Run("outer ring matches the wider zone", func(t *testing.T) {
		// About 1.1km north of the campus centre.
		match, err := resolver.Resolve(ctx, geo.Point{Lat: campus.Lat + 0.01, Lng: campus.Lng})
		require.NoError(t, err)
		assert.True(t, match.Matched)
		assert.Equal(t, wide.ID, match.ZoneID)
	})

	t.Run("outside every zone reports the nearest", func(t *testing.T) {
		match, err := resolver.Resolve(ctx, geo.Point{Lat: campus.Lat + 0.05, Lng: campus.Lng})
		require.NoError(t, err)
		assert.False(t, match.Matched)
		assert.Equal(t, "Library Quad", match.NearestName)
		assert.Greater(t, match.Distance, 3000.0)
	})

	t.Run("lookup by id ignores inactive zones", func(t *testing.T) {
		match, err := resolver.Lookup(ctx, wide.ID)
		require.NoError(t, err)
		assert.True(t, match.Matched)
		assert.Equal(t, "Greater Campus", match.ZoneName)

		match, err = resolver.Lookup(ctx, closed.ID)
		require.NoError(t, err)
		assert.False(t, match.Matched)
	})
}

func TestPolygonResolver(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	square := []geo.Point{
		{Lat: -15.395, Lng: 35.330},
		{Lat: -15.395, Lng: 35.345},
		{Lat: -15.385, Lng: 35.345},
		{Lat: -15.385, Lng: 35.330},
	}
	hostels := testutil.CreatePolygonLocation(t, db, "Hostels", square, 400)
	testutil.CreatePolygonLocation(t, db, "Market", []geo.Point{
		{Lat: -15.80, Lng: 35.00},
		{Lat: -15.80, Lng: 35.01},
		{Lat: -15.79, Lng: 35.01},
	}, 900)

	resolver, err := NewZoneResolver(models.ZoneKindPolygon, db, nil, time.Minute)
	require.NoError(t, err)

	match, err := resolver.Resolve(ctx, campus)
	require.NoError(t, err)
	assert.True(t, match.Matched)
	assert.Equal(t, hostels.ID, match.ZoneID)
	assert.Equal(t, models.ZoneKindPolygon, match.Kind)
	assert.Equal(t, "400", match.Fee.String())

	match, err = resolver.Resolve(ctx, geo.Point{Lat: -15.70, Lng: 35.05})
	require.NoError(t, err)
	assert.False(t, match.Matched)
	assert.Equal(t, "Market", match.NearestName)
}

func TestResolverUsesCache(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	testutil.CreateCircleZone(t, db, "Main Campus", campus, 1500, 500)

	cache := &memoryCache{data: map[string][]byte{}}
	resolver := NewCircleResolver(db, cache, time.Minute)

	_, err := resolver.Resolve(ctx, campus)
	require.NoError(t, err)
	require.Contains(t, cache.data, "zones:circle")

	// Deactivating in the database does not show until the entry expires.
	require.NoError(t, db.Model(&models.DeliveryZone{}).Where("1 = 1").Update("is_active", false).Error)
	match, err := resolver.Resolve(ctx, campus)
	require.NoError(t, err)
	assert.True(t, match.Matched)
	assert.Equal(t, "500", match.Fee.String())
	assert.Equal(t, 2, cache.gets)

	require.NoError(t, InvalidateZones(ctx, cache))
	assert.NotContains(t, cache.data, "zones:circle")
	match, err = resolver.Resolve(ctx, campus)
	require.NoError(t, err)
	assert.False(t, match.Matched, "rewritten zones are read once the cache is dropped")
}

func TestNewZoneResolverRejectsUnknownKind(t *testing.T) {
	_, err := NewZoneResolver("hexagon", nil, nil, time.Minute)
	assert.Error(t, err)
}
