package models

import "time"

// CollectionMeta summarizes the catalog collection a batch belongs to. One
// value is shared read-only by every record of a batch.
type CollectionMeta struct {
	ID                 string     `json:"ndc_collection_id" bson:"ndc_collection_id"`
	Title              string     `json:"ndc_collection_title" bson:"ndc_collection_title"`
	Link               string     `json:"ndc_collection_link" bson:"ndc_collection_link"`
	Owner              string     `json:"ndc_collection_owner,omitempty" bson:"ndc_collection_owner,omitempty"`
	OwnerLink          string     `json:"ndc_collection_owner_link,omitempty" bson:"ndc_collection_owner_link,omitempty"`
	OwnerLocation      string     `json:"ndc_collection_owner_location,omitempty" bson:"ndc_collection_owner_location,omitempty"`
	Abstract           string     `json:"ndc_collection_abstract,omitempty" bson:"ndc_collection_abstract,omitempty"`
	Created            *time.Time `json:"ndc_collection_created,omitempty" bson:"ndc_collection_created,omitempty"`
	LastUpdated        *time.Time `json:"ndc_collection_last_updated,omitempty" bson:"ndc_collection_last_updated,omitempty"`
	Cached             time.Time  `json:"ndc_collection_cached" bson:"ndc_collection_cached"`
	ImprovementsNeeded []string   `json:"ndc_collection_improvements_needed,omitempty" bson:"ndc_collection_improvements_needed,omitempty"`
}

// InjectedFields returns the collection-level fields merged into each record.
func (c *CollectionMeta) InjectedFields() *Fields {
	f := NewFields()
	if c == nil {
		return f
	}
	f.SetString("ndc_collection_id", c.ID)
	f.SetString("ndc_collection_title", c.Title)
	f.SetString("ndc_collection_link", c.Link)
	if c.Owner != "" {
		f.SetString("ndc_collection_owner", c.Owner)
	}
	return f
}
