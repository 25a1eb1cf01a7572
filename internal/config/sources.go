package config

import (
	"fmt"
	"os"
	"time"

	"github.com/nggdpp/ndc-harvester/internal/jobs"
	"github.com/nggdpp/ndc-harvester/internal/models"
	"gopkg.in/yaml.v3"
)

// Sources lists the collections harvested on a schedule.
type Sources struct {
	Collections []SourceCollection `yaml:"collections"`
}

// SourceCollection is one scheduled collection. With Catalog set, the id is
// a catalog item id and files and WAF links come from the catalog.
type SourceCollection struct {
	ID      string       `yaml:"id"`
	Title   string       `yaml:"title"`
	Link    string       `yaml:"link"`
	Owner   string       `yaml:"owner"`
	WAFURLs []string     `yaml:"waf_urls"`
	Files   []SourceFile `yaml:"files"`
	Catalog bool         `yaml:"catalog"`
}

// SourceFile is a directly listed source file.
type SourceFile struct {
	URL         string    `yaml:"url"`
	Name        string    `yaml:"name"`
	ContentType string    `yaml:"content_type"`
	UploadDate  time.Time `yaml:"upload_date"`
	Size        int64     `yaml:"size"`
}

// LoadSources reads a YAML sources file.
func LoadSources(path string) (*Sources, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}
	var s Sources
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}
	for i, c := range s.Collections {
		if c.ID == "" {
			return nil, fmt.Errorf("sources file entry %d has no id", i)
		}
		if !c.Catalog && len(c.WAFURLs) == 0 && len(c.Files) == 0 {
			return nil, fmt.Errorf("collection %s lists no WAF urls or files", c.ID)
		}
	}
	return &s, nil
}

// Requests turns the collection into harvest job requests. Every WAF gets
// its own request so one slow folder does not hold the others.
func (c SourceCollection) Requests() []jobs.Request {
	if c.Catalog {
		return []jobs.Request{{CatalogItemID: c.ID}}
	}
	base := jobs.Request{CollectionID: c.ID, Title: c.Title, Link: c.Link, Owner: c.Owner}
	var out []jobs.Request
	for _, u := range c.WAFURLs {
		r := base
		r.WAFURL = u
		out = append(out, r)
	}
	if len(c.Files) > 0 {
		r := base
		for _, f := range c.Files {
			r.Files = append(r.Files, f.Descriptor())
		}
		out = append(out, r)
	}
	return out
}

// Descriptor converts the entry into a source descriptor.
func (f SourceFile) Descriptor() models.SourceDescriptor {
	d := jobs.DescriptorForURL(f.URL)
	if f.Name != "" {
		d.Name = f.Name
	}
	d.ContentType = f.ContentType
	d.UploadDate = f.UploadDate
	d.Size = f.Size
	return d
}
