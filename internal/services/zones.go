package services

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/example/campusdelivery/internal/cache"
	"github.com/example/campusdelivery/internal/geo"
	"github.com/example/campusdelivery/internal/models"
)

// ZoneMatch is the outcome of resolving a coordinate or a zone selection.
// NearestName is only a hint when nothing matched.
type ZoneMatch struct {
	Matched     bool            `json:"matched"`
	Kind        string          `json:"kind"`
	ZoneID      uuid.UUID       `json:"zone_id"`
	ZoneName    string          `json:"zone_name"`
	Fee         decimal.Decimal `json:"fee"`
	NearestName string          `json:"nearest_name,omitempty"`
	Distance    float64         `json:"distance_meters,omitempty"`
}

// ZoneResolver decides whether a point is deliverable and which fee applies.
// Implementations never fail on "outside"; the error is reserved for storage
// problems.
type ZoneResolver interface {
	Kind() string
	Resolve(ctx context.Context, p geo.Point) (ZoneMatch, error)
	Lookup(ctx context.Context, id uuid.UUID) (ZoneMatch, error)
}

// Cache is the subset of a key/value cache the resolver needs.
type Cache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// InvalidateZones drops the cached areas of both kinds. Call it after
// delivery zones are written so resolvers reload them.
func InvalidateZones(ctx context.Context, c Cache) error {
	return c.Delete(ctx, cache.ZonesKey(models.ZoneKindCircle), cache.ZonesKey(models.ZoneKindPolygon))
}

// Area is a deliverable region in either representation.
type Area struct {
	Kind         string          `json:"kind"`
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Fee          decimal.Decimal `json:"fee"`
	Center       geo.Point       `json:"center"`
	RadiusMeters float64         `json:"radius_meters"`
	Ring         []geo.Point     `json:"ring,omitempty"`
}

// Contains reports whether p falls inside the area. The circle boundary is
// inclusive.
func (a Area) Contains(p geo.Point) bool {
	switch a.Kind {
	case models.ZoneKindCircle:
		return geo.Haversine(p, a.Center) <= a.RadiusMeters
	case models.ZoneKindPolygon:
		return geo.InPolygon(p, a.Ring)
	default:
		return false
	}
}

// Anchor is the point used to rank areas by proximity.
func (a Area) Anchor() (geo.Point, bool) {
	if a.Kind == models.ZoneKindPolygon {
		return geo.Centroid(a.Ring)
	}
	return a.Center, true
}

func (a Area) match() ZoneMatch {
	return ZoneMatch{
		Matched:  true,
		Kind:     a.Kind,
		ZoneID:   a.ID,
		ZoneName: a.Name,
		Fee:      a.Fee,
	}
}

type areaLoader func(ctx context.Context, db *gorm.DB) ([]Area, error)

// AreaResolver resolves points against one representation of delivery areas.
type AreaResolver struct {
	kind  string
	db    *gorm.DB
	load  areaLoader
	cache Cache
	ttl   time.Duration
}

// NewCircleResolver resolves against active circular DeliveryZones.
func NewCircleResolver(db *gorm.DB, cache Cache, ttl time.Duration) *AreaResolver {
	return &AreaResolver{kind: models.ZoneKindCircle, db: db, load: loadCircleAreas, cache: cache, ttl: ttl}
}

// NewPolygonResolver resolves against active polygon DeliveryLocations.
func NewPolygonResolver(db *gorm.DB, cache Cache, ttl time.Duration) *AreaResolver {
	return &AreaResolver{kind: models.ZoneKindPolygon, db: db, load: loadPolygonAreas, cache: cache, ttl: ttl}
}

// NewZoneResolver picks the strategy named by kind.
func NewZoneResolver(kind string, db *gorm.DB, cache Cache, ttl time.Duration) (ZoneResolver, error) {
	switch kind {
	case models.ZoneKindCircle:
		return NewCircleResolver(db, cache, ttl), nil
	case models.ZoneKindPolygon:
		return NewPolygonResolver(db, cache, ttl), nil
	default:
		return nil, errors.Errorf("unknown zone strategy %q", kind)
	}
}

func (r *AreaResolver) Kind() string {
	return r.kind
}

// Resolve returns the first active area containing p. When none does, the
// name of the area whose anchor is closest is returned as a hint.
func (r *AreaResolver) Resolve(ctx context.Context, p geo.Point) (ZoneMatch, error) {
	areas, err := r.Areas(ctx)
	if err != nil {
		return ZoneMatch{Kind: r.kind}, err
	}
	return resolveAmong(r.kind, areas, p), nil
}

// Lookup returns the active area with the given id.
func (r *AreaResolver) Lookup(ctx context.Context, id uuid.UUID) (ZoneMatch, error) {
	areas, err := r.Areas(ctx)
	if err != nil {
		return ZoneMatch{Kind: r.kind}, err
	}
	for _, area := range areas {
		if area.ID == id {
			return area.match(), nil
		}
	}
	return ZoneMatch{Kind: r.kind}, nil
}

// Areas returns the active areas, from cache when possible.
func (r *AreaResolver) Areas(ctx context.Context) ([]Area, error) {
	key := cache.ZonesKey(r.kind)

	if r.cache != nil {
		var cached []Area
		if err := r.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	areas, err := r.load(ctx, r.db)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, areas, r.ttl); err != nil {
			log.Debug().Err(err).Str("key", key).Msg("zone cache write skipped")
		}
	}
	return areas, nil
}

func resolveAmong(kind string, areas []Area, p geo.Point) ZoneMatch {
	nearest := ZoneMatch{Kind: kind, Distance: math.Inf(1)}

	for _, area := range areas {
		if area.Contains(p) {
			return area.match()
		}

		anchor, ok := area.Anchor()
		if !ok {
			continue
		}
		if d := geo.Haversine(p, anchor); d < nearest.Distance {
			nearest.Distance = d
			nearest.NearestName = area.Name
		}
	}

	if math.IsInf(nearest.Distance, 1) {
		nearest.Distance = 0
	}
	return nearest
}

// Circles are tried smallest first so overlapping zones resolve to the most
// specific one; name breaks remaining ties.
func loadCircleAreas(ctx context.Context, db *gorm.DB) ([]Area, error) {
	var zones []models.DeliveryZone
	if err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("radius_meters asc").Order("name asc").
		Find(&zones).Error; err != nil {
		return nil, errors.Wrap(err, "load delivery zones")
	}

	areas := make([]Area, 0, len(zones))
	for _, z := range zones {
		areas = append(areas, Area{
			Kind:         models.ZoneKindCircle,
			ID:           z.ID,
			Name:         z.Name,
			Fee:          z.DeliveryFee,
			Center:       geo.Point{Lat: z.CenterLatitude, Lng: z.CenterLongitude},
			RadiusMeters: z.RadiusMeters,
		})
	}
	return areas, nil
}

func loadPolygonAreas(ctx context.Context, db *gorm.DB) ([]Area, error) {
	var locations []models.DeliveryLocation
	if err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Preload("Points", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position asc")
		}).
		Order("name asc").
		Find(&locations).Error; err != nil {
		return nil, errors.Wrap(err, "load delivery locations")
	}

	areas := make([]Area, 0, len(locations))
	for _, l := range locations {
		ring := make([]geo.Point, 0, len(l.Points))
		for _, pt := range l.Points {
			ring = append(ring, geo.Point{Lat: pt.Latitude, Lng: pt.Longitude})
		}
		center, _ := geo.Centroid(ring)
		areas = append(areas, Area{
			Kind:   models.ZoneKindPolygon,
			ID:     l.ID,
			Name:   l.Name,
			Fee:    l.DeliveryFee,
			Center: center,
			Ring:   ring,
		})
	}
	return areas, nil
}
