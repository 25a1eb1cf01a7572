package spatial

import (
	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// NoticesProperty holds a feature's processing notices.
const NoticesProperty = "processing_notices"

// Feature is a GeoJSON feature whose geometry is a point or null.
type Feature struct {
	Type       string            `json:"type"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties *models.Fields    `json:"properties"`
}

// FeatureCollection is the index-ready output of one batch.
type FeatureCollection struct {
	Type                   string    `json:"type"`
	Features               []Feature `json:"features"`
	ProcessingErrorsNumber int       `json:"processing_errors_number"`
}

// ToFeature converts a record into a feature. Notices become a property.
func ToFeature(rec *models.Record) Feature {
	props := rec.Fields.Clone()
	notices := make([]models.Value, len(rec.Notices))
	for i, n := range rec.Notices {
		nf := models.NewFields()
		nf.SetString("error", n.Error)
		nf.SetString("info", n.Info)
		notices[i] = models.Map(nf)
	}
	props.Set(NoticesProperty, models.List(notices...))

	f := Feature{Type: "Feature", Properties: props}
	if rec.Geometry != nil {
		f.Geometry = geojson.NewGeometry(*rec.Geometry)
	}
	return f
}

// ToFeatureCollection runs the spatial introspector over every record and
// packages the results. ProcessingErrorsNumber counts features left without
// geometry.
func ToFeatureCollection(records []*models.Record) *FeatureCollection {
	fc := &FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(records))}
	for _, rec := range records {
		out := Introspect(rec)
		if !out.HasGeometry() {
			fc.ProcessingErrorsNumber++
		}
		fc.Features = append(fc.Features, ToFeature(out))
	}
	return fc
}

// ToMap flattens a feature for encoders that need plain values.
func (f Feature) ToMap() map[string]interface{} {
	var geom interface{}
	if f.Geometry != nil {
		if pt, ok := f.Geometry.Coordinates.(orb.Point); ok {
			geom = map[string]interface{}{
				"type":        f.Geometry.Type,
				"coordinates": []float64{pt.Lon(), pt.Lat()},
			}
		}
	}
	return map[string]interface{}{
		"type":       f.Type,
		"geometry":   geom,
		"properties": f.Properties.ToMap(),
	}
}
