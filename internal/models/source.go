package models

import "time"

// HarvestOrigin says where a source file was discovered.
type HarvestOrigin string

const (
	OriginWAF              HarvestOrigin = "waf"
	OriginCatalogFile      HarvestOrigin = "catalog-file"
	OriginMetadataDocument HarvestOrigin = "metadata-document"
)

// SourceDescriptor is one harvestable unit. It is not modified after listing.
type SourceDescriptor struct {
	URL         string        `json:"url"`
	Name        string        `json:"name"`
	UploadDate  time.Time     `json:"upload_date"`
	Size        int64         `json:"size"`
	ContentType string        `json:"content_type,omitempty"`
	Origin      HarvestOrigin `json:"harvest_origin"`
}

// InjectedFields returns the ndc_ namespaced fields copied into every record
// produced from this source.
func (d SourceDescriptor) InjectedFields() *Fields {
	f := NewFields()
	f.SetString("ndc_harvest_source", string(d.Origin))
	f.SetString("ndc_file_name", d.Name)
	f.SetString("ndc_file_url", d.URL)
	if d.UploadDate.IsZero() {
		f.Set("ndc_file_date", Null())
	} else {
		f.Set("ndc_file_date", Time(d.UploadDate))
	}
	if d.Size > 0 {
		f.Set("ndc_file_size", Number(float64(d.Size)))
	} else {
		f.Set("ndc_file_size", Null())
	}
	if d.ContentType != "" {
		f.SetString("ndc_file_content_type", d.ContentType)
	} else {
		f.Set("ndc_file_content_type", Null())
	}
	return f
}
