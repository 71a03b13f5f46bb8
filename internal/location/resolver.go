package location

import (
	"context"

	"github.com/rewired-gh/buybackd/internal/logger"
	"github.com/rewired-gh/buybackd/internal/metrics"
	"github.com/rewired-gh/buybackd/internal/models"
)

// Kind classifies a location id.
type Kind int

const (
	KindStructure Kind = iota // player-owned, needs an access token
	KindSpace                 // solar system id
	KindStation               // NPC station
	KindOffice                // corporation office inside a station
)

func (k Kind) String() string {
	switch k {
	case KindSpace:
		return "space"
	case KindStation:
		return "station"
	case KindOffice:
		return "office"
	default:
		return "structure"
	}
}

// Range is an inclusive id range.
type Range struct {
	Min, Max int64
}

func (r Range) Contains(id int64) bool {
	return id >= r.Min && id <= r.Max
}

// Ranges is the id classification table.
type Ranges struct {
	Space   Range
	Station Range
	Office  Range
	// Office ids below OfficeSplit are normalized by OfficeLowOffset,
	// the rest by OfficeHighOffset.
	OfficeSplit      int64
	OfficeLowOffset  int64
	OfficeHighOffset int64
}

// DefaultRanges returns the game's documented id ranges.
func DefaultRanges() Ranges {
	return Ranges{
		Space:            Range{Min: 30000000, Max: 32000000},
		Station:          Range{Min: 60000000, Max: 65999999},
		Office:           Range{Min: 66000000, Max: 68000000},
		OfficeSplit:      67000000,
		OfficeLowOffset:  6000001,
		OfficeHighOffset: 6000000,
	}
}

// Classify returns the kind of id and its normalized form. Only office ids
// are changed by normalization.
func (r Ranges) Classify(id int64) (Kind, int64) {
	switch {
	case r.Space.Contains(id):
		return KindSpace, id
	case r.Station.Contains(id):
		return KindStation, id
	case r.Office.Contains(id):
		if id < r.OfficeSplit {
			return KindOffice, id - r.OfficeLowOffset
		}
		return KindOffice, id - r.OfficeHighOffset
	default:
		return KindStructure, id
	}
}

// Lookup names stations and structures. An empty name or an error means the
// location could not be named.
type Lookup interface {
	StationName(ctx context.Context, stationID int64) (string, error)
	StructureName(ctx context.Context, structureID int64, accessToken string) (string, error)
}

// TokenSource provides access tokens for authenticated lookups.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type cacheEntry struct {
	name    string
	station bool
}

// Resolver names location ids and memoizes every answer, including failures.
// A Resolver belongs to a single refresh cycle and is not safe for concurrent use.
type Resolver struct {
	lookup  Lookup
	tokens  TokenSource
	ranges  Ranges
	metrics *metrics.Registry
	cache   map[int64]cacheEntry
}

func NewResolver(lookup Lookup, tokens TokenSource, ranges Ranges, m *metrics.Registry) *Resolver {
	return &Resolver{
		lookup:  lookup,
		tokens:  tokens,
		ranges:  ranges,
		metrics: m,
		cache:   make(map[int64]cacheEntry),
	}
}

// Resolve returns the name of the location, models.SpaceLocation for solar
// systems, or models.Unresolved.
func (r *Resolver) Resolve(ctx context.Context, locationID int64) string {
	kind, id := r.ranges.Classify(locationID)
	switch kind {
	case KindSpace:
		r.metrics.LocationLookup(kind.String())
		logger.Debug("Location %d is in space", locationID)
		return models.SpaceLocation
	case KindOffice:
		r.metrics.LocationLookup(kind.String())
		logger.Debug("Location %d is station office %d and is ignored", locationID, id)
		return models.Unresolved
	}

	if e, ok := r.cache[id]; ok {
		r.metrics.LocationLookup("cached")
		return e.name
	}

	r.metrics.LocationLookup(kind.String())
	name := r.fetch(ctx, id, kind)
	r.cache[id] = cacheEntry{name: name, station: kind == KindStation}
	logger.Debug("Cached location %d as %q, now holding %d locations", id, name, len(r.cache))
	return name
}

func (r *Resolver) fetch(ctx context.Context, id int64, kind Kind) string {
	var (
		name string
		err  error
	)
	if kind == KindStation {
		name, err = r.lookup.StationName(ctx, id)
	} else {
		token, tokenErr := r.tokens.AccessToken(ctx)
		if tokenErr != nil {
			logger.Error("Failed to get access token for structure %d: %v", id, tokenErr)
			return models.Unresolved
		}
		name, err = r.lookup.StructureName(ctx, id, token)
	}
	if err != nil {
		logger.Warn("Failed to get location info for %s %d: %v", kind, id, err)
		return models.Unresolved
	}
	if name == "" {
		logger.Warn("No name returned for %s %d", kind, id)
		return models.Unresolved
	}
	return name
}

// CacheStats summarizes the resolver cache.
type CacheStats struct {
	Cached     int
	Stations   int
	Unresolved int
}

// Stats reports the size of the cache and how many entries are unresolved.
func (r *Resolver) Stats() CacheStats {
	st := CacheStats{Cached: len(r.cache)}
	for _, e := range r.cache {
		if e.station {
			st.Stations++
		}
		if e.name == models.Unresolved {
			st.Unresolved++
		}
	}
	return st
}
