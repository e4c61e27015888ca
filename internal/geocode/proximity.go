package geocode

import (
	"context"
	"math"

	apperrors "receipt-agent/internal/common/errors"
	"receipt-agent/internal/common/logger"
)

const earthRadiusKM = 6371.0

// Office is the reference point for travel claims.
type Office struct {
	Address  string
	Lat      float64
	Lng      float64
	RadiusKm float64
}

// Proximity is the result of checking one trip.
type Proximity struct {
	WithinRadius   bool    `json:"within_radius"`
	SrcDistanceKm  float64 `json:"src_distance_km"`
	DestDistanceKm float64 `json:"dest_distance_km"`
	DistanceKm     float64 `json:"distance_km"`
	RadiusKm       float64 `json:"radius_km"`
}

// HaversineKM is the great-circle distance between two points.
func HaversineKM(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// ProximityChecker reports whether a trip starts or ends near the office.
type ProximityChecker struct {
	geocoder Geocoder
	office   Office
	logger   logger.Logger
}

func NewProximityChecker(g Geocoder, office Office, log logger.Logger) *ProximityChecker {
	return &ProximityChecker{geocoder: g, office: office, logger: log}
}

// ResolveOffice geocodes the office address when coordinates are not configured.
// The configured coordinates are kept if geocoding fails.
func ResolveOffice(ctx context.Context, g Geocoder, office Office, log logger.Logger) Office {
	if office.Lat != 0 || office.Lng != 0 || office.Address == "" {
		return office
	}
	loc, err := g.Geocode(ctx, office.Address)
	if err != nil {
		log.Warn("could not geocode office address", map[string]interface{}{"address": office.Address, "error": err})
		return office
	}
	office.Lat, office.Lng = loc.Lat, loc.Lng
	return office
}

// Check is true when either endpoint is within the office radius.
func (p *ProximityChecker) Check(ctx context.Context, src, dest string) (*Proximity, error) {
	srcLoc, err := p.geocoder.Geocode(ctx, src)
	if err != nil {
		return nil, apperrors.NewGeocodingFailedError(src, err)
	}
	destLoc, err := p.geocoder.Geocode(ctx, dest)
	if err != nil {
		return nil, apperrors.NewGeocodingFailedError(dest, err)
	}

	res := &Proximity{
		SrcDistanceKm:  round3(HaversineKM(srcLoc.Lat, srcLoc.Lng, p.office.Lat, p.office.Lng)),
		DestDistanceKm: round3(HaversineKM(destLoc.Lat, destLoc.Lng, p.office.Lat, p.office.Lng)),
		DistanceKm:     round3(HaversineKM(srcLoc.Lat, srcLoc.Lng, destLoc.Lat, destLoc.Lng)),
		RadiusKm:       p.office.RadiusKm,
	}
	res.WithinRadius = res.SrcDistanceKm <= p.office.RadiusKm || res.DestDistanceKm <= p.office.RadiusKm

	p.logger.Debug("proximity checked", map[string]interface{}{
		"src":          src,
		"dest":         dest,
		"srcKm":        res.SrcDistanceKm,
		"destKm":       res.DestDistanceKm,
		"withinRadius": res.WithinRadius,
	})
	return res, nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
