// Package spatial derives point geometry from the coordinate representations
// found in harvested records.
package spatial

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/paulmach/orb"
)

const (
	CoordinatesField = "coordinates"
	LatitudeField    = "latitude"
	LongitudeField   = "longitude"
	GeopointField    = "ndc_geopoint"

	// PlaceholderCoordinates marks "no location" in upstream metadata.
	PlaceholderCoordinates = "0,0"
)

var (
	ErrMalformedPair = errors.New("coordinate string is not a lon,lat pair")
	ErrInvalidPoint  = errors.New("coordinates are not finite numbers")
)

// Notice texts attached when no geometry could be derived.
var (
	NullCoordinatesNotice = models.Notice{
		Error: "Null Coordinates",
		Info:  "Could not determine location from data",
	}
)

// FormatPair renders a lon,lat pair the way the coordinates field stores it.
func FormatPair(lon, lat string) string {
	return lon + "," + lat
}

// SynthesizeCoordinates sets coordinates to "lon,lat" from latitude and
// longitude fields when coordinates is absent. It reports whether it did.
func SynthesizeCoordinates(f *models.Fields) bool {
	if f.Has(CoordinatesField) {
		return false
	}
	lat, okLat := f.Get(LatitudeField)
	lon, okLon := f.Get(LongitudeField)
	if !okLat || !okLon {
		return false
	}
	if lat.IsNull() || lon.IsNull() {
		f.Set(CoordinatesField, models.Null())
		return true
	}
	f.SetString(CoordinatesField, FormatPair(lon.Text(), lat.Text()))
	return true
}

// Introspect returns a copy of rec with a point geometry derived from its
// coordinates, or with a null geometry and one explaining notice. It never
// fails. Records that already carry geometry are returned unchanged.
func Introspect(rec *models.Record) *models.Record {
	if rec.HasGeometry() {
		return rec
	}
	out := rec.Clone()
	SynthesizeCoordinates(out.Fields)

	v, ok := out.Fields.Get(CoordinatesField)
	if !ok || v.IsNull() {
		out.AddNotice(NullCoordinatesNotice)
		return out
	}

	raw := strings.TrimSpace(v.Text())
	if !strings.Contains(raw, ",") {
		out.AddNotice(models.Notice{
			Error: "Unrecognized Coordinates",
			Info:  fmt.Sprintf("%s; kept empty geometry", raw),
		})
		return out
	}

	p, err := ParsePair(raw)
	if err != nil {
		out.AddNotice(models.Notice{
			Error: err.Error(),
			Info:  fmt.Sprintf("%s; kept empty geometry", raw),
		})
		return out
	}

	out.Geometry = &p
	out.Fields.Set(GeopointField, geopoint(p))
	return out
}

// ParsePair parses "lon,lat" in that order with no reordering. Parts after
// the first two, such as an elevation, are ignored.
func ParsePair(raw string) (orb.Point, error) {
	parts := strings.Split(raw, ",")
	if len(parts) < 2 {
		return orb.Point{}, fmt.Errorf("%w: %q", ErrMalformedPair, raw)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("parse longitude: %w", err)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("parse latitude: %w", err)
	}
	if !finite(lon) || !finite(lat) {
		return orb.Point{}, fmt.Errorf("%w: %q", ErrInvalidPoint, raw)
	}
	return orb.Point{lon, lat}, nil
}

// BuildPointGeometry builds a point from a raw pair for metadata documents.
// "0,0" yields no geometry. The pair is read as lon,lat unless the second
// value falls outside the latitude band while the first falls inside it, in
// which case the pair is read as lat,lon. Both values are truncated toward
// zero before the band test and the band is [-90, 89], so exactly 90 counts
// as outside.
func BuildPointGeometry(raw string) (*orb.Point, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == PlaceholderCoordinates {
		return nil, nil
	}
	p, err := ParsePair(raw)
	if err != nil {
		return nil, err
	}
	first, second := p[0], p[1]
	if !inLatitudeBand(second) && inLatitudeBand(first) {
		first, second = second, first
	}
	return &orb.Point{first, second}, nil
}

func inLatitudeBand(v float64) bool {
	t := math.Trunc(v)
	return t >= -90 && t <= 89
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func geopoint(p orb.Point) models.Value {
	f := models.NewFields()
	f.Set("lon", models.Number(p.Lon()))
	f.Set("lat", models.Number(p.Lat()))
	return models.Map(f)
}
