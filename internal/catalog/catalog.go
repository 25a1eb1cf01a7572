// Package catalog reads collection items from a ScienceBase style catalog
// API and turns them into collection metadata and harvestable descriptors.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/nggdpp/ndc-harvester/internal/fetch"
	"github.com/nggdpp/ndc-harvester/internal/logging"
	"github.com/nggdpp/ndc-harvester/internal/models"
)

const (
	DefaultBaseURL = "https://www.sciencebase.gov/catalog/items"
	DefaultFields  = "title,body,contacts,spatial,files,webLinks,facets,dates,parentId"
	// metadataFileName is the catalog's own rendering of an item and is never harvested.
	metadataFileName = "metadata.xml"
	dataOwnerType    = "Data Owner"
)

// ErrItemNotFound is returned when the catalog has no item with an id.
var ErrItemNotFound = errors.New("catalog item not found")

// DefaultAcceptableContentTypes are the file types a harvest will fetch.
var DefaultAcceptableContentTypes = []string{
	"text/plain",
	"text/plain; charset=ISO-8859-1",
	"application/xml",
	"text/csv",
	"text/plain; charset=windows-1252",
}

type Link struct {
	URL string `json:"url"`
}

type Date struct {
	Type       string `json:"type"`
	DateString string `json:"dateString"`
	Label      string `json:"label,omitempty"`
}

type MailAddress struct {
	City  string `json:"city"`
	State string `json:"state"`
}

type Location struct {
	MailAddress MailAddress `json:"mailAddress"`
}

type Contact struct {
	Name            string    `json:"name"`
	Type            string    `json:"type"`
	OnlineResource  string    `json:"onlineResource,omitempty"`
	PrimaryLocation *Location `json:"primaryLocation,omitempty"`
}

type File struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	DateUploaded string `json:"dateUploaded"`
	Processed    *bool  `json:"processed,omitempty"`
}

type WebLink struct {
	Type      string `json:"type"`
	TypeLabel string `json:"typeLabel,omitempty"`
	URI       string `json:"uri"`
	Title     string `json:"title,omitempty"`
}

// Item is the subset of a catalog item the harvester reads.
type Item struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Body     string    `json:"body,omitempty"`
	Link     Link      `json:"link"`
	Dates    []Date    `json:"dates,omitempty"`
	Contacts []Contact `json:"contacts,omitempty"`
	Files    []File    `json:"files,omitempty"`
	WebLinks []WebLink `json:"webLinks,omitempty"`
}

type page struct {
	Items    []Item `json:"items"`
	NextLink *Link  `json:"nextlink,omitempty"`
}

// Query selects items from the catalog.
type Query struct {
	FolderID string
	Filter   string
	Q        string
	Max      int
}

// Client talks to the catalog API through a Fetcher.
type Client struct {
	fetcher fetch.Fetcher
	baseURL string
	log     *logging.Logger
}

func NewClient(f fetch.Fetcher, baseURL string, log *logging.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{fetcher: f, baseURL: baseURL, log: logging.OrNop(log).Component("catalog")}
}

// Items returns every item matching q, following nextlink pointers until the
// catalog stops supplying one or points back at a page already read. Items
// repeated across pages are kept once.
func (c *Client) Items(ctx context.Context, q Query) ([]Item, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("fields", DefaultFields)
	limit := q.Max
	if limit <= 0 {
		limit = 100
	}
	params.Set("max", strconv.Itoa(limit))
	if q.FolderID != "" {
		params.Set("folderId", q.FolderID)
	}
	if q.Filter != "" {
		params.Set("filter", q.Filter)
	}
	if q.Q != "" {
		params.Set("q", q.Q)
	}

	var items []Item
	seen := make(map[string]bool)
	visited := make(map[string]bool)
	next := c.baseURL + "?" + params.Encode()
	for pages := 0; next != ""; pages++ {
		if visited[next] {
			c.log.Warn("catalog nextlink repeats a page, stopping", "url", next, "pages", pages)
			break
		}
		visited[next] = true
		p, err := c.page(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, it := range p.Items {
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			items = append(items, it)
		}
		next = ""
		if p.NextLink != nil {
			next = p.NextLink.URL
		}
		c.log.Debug("catalog page read", "page", pages+1, "items", len(p.Items))
	}
	return items, nil
}

// Item fetches one item by id.
func (c *Client) Item(ctx context.Context, id string) (*Item, error) {
	params := url.Values{}
	params.Set("id", id)
	params.Set("format", "json")
	params.Set("fields", DefaultFields)
	p, err := c.page(ctx, c.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	if len(p.Items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return &p.Items[0], nil
}

func (c *Client) page(ctx context.Context, rawURL string) (*page, error) {
	resp, err := c.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog page: %w", err)
	}
	var p page
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode catalog page %s: %w", rawURL, err)
	}
	return &p, nil
}

// CollectionMetaFromItem summarizes a collection item. Missing contacts or a
// missing data owner are listed as improvements the collection needs.
func CollectionMetaFromItem(item *Item, now time.Time) *models.CollectionMeta {
	cm := &models.CollectionMeta{
		ID:       item.ID,
		Title:    item.Title,
		Link:     item.Link.URL,
		Abstract: item.Body,
		Cached:   now,
	}
	for _, d := range item.Dates {
		t, err := dateparse.ParseIn(d.DateString, time.UTC)
		if err != nil {
			continue
		}
		switch d.Type {
		case "lastUpdated":
			if cm.LastUpdated == nil {
				cm.LastUpdated = &t
			}
		case "dateCreated":
			if cm.Created == nil {
				cm.Created = &t
			}
		}
	}

	if len(item.Contacts) == 0 {
		cm.ImprovementsNeeded = append(cm.ImprovementsNeeded, "Need contacts in collection metadata")
		return cm
	}
	for _, ct := range item.Contacts {
		if ct.Type != dataOwnerType {
			continue
		}
		cm.Owner = ct.Name
		cm.OwnerLink = ct.OnlineResource
		if loc := ct.PrimaryLocation; loc != nil && loc.MailAddress.City != "" {
			cm.OwnerLocation = fmt.Sprintf("%s, %s", loc.MailAddress.City, loc.MailAddress.State)
		}
		return cm
	}
	cm.ImprovementsNeeded = append(cm.ImprovementsNeeded, "Need data owner contact in collection metadata")
	return cm
}

// FileEvaluation records whether a catalog file will be harvested.
type FileEvaluation struct {
	File       File   `json:"file"`
	Actionable bool   `json:"actionable"`
	Reason     string `json:"reason,omitempty"`
}

// EvaluateFile decides whether f can be harvested.
func EvaluateFile(f File, acceptable []string) FileEvaluation {
	ev := FileEvaluation{File: f}
	switch {
	case f.Name == metadataFileName:
		ev.Reason = "catalog metadata file"
	case f.Processed == nil || !*f.Processed:
		ev.Reason = "file not processed by catalog"
	case !contains(acceptable, f.ContentType):
		ev.Reason = fmt.Sprintf("content type %q not accepted", f.ContentType)
	default:
		ev.Actionable = true
	}
	return ev
}

// ActionableFiles converts an item's harvestable files into descriptors.
func ActionableFiles(item *Item, acceptable []string) []models.SourceDescriptor {
	if len(acceptable) == 0 {
		acceptable = DefaultAcceptableContentTypes
	}
	var out []models.SourceDescriptor
	for _, f := range item.Files {
		if !EvaluateFile(f, acceptable).Actionable {
			continue
		}
		desc := models.SourceDescriptor{
			URL:         f.URL,
			Name:        f.Name,
			Size:        f.Size,
			ContentType: f.ContentType,
			Origin:      models.OriginCatalogFile,
		}
		if t, err := dateparse.ParseIn(f.DateUploaded, time.UTC); err == nil {
			desc.UploadDate = t
		}
		out = append(out, desc)
	}
	return out
}

// WAFLinks returns the item's links to Web Accessible Folders.
func WAFLinks(item *Item) []string {
	var out []string
	for _, l := range item.WebLinks {
		if l.URI == "" {
			continue
		}
		label := strings.ToLower(l.Type + " " + l.TypeLabel + " " + l.Title)
		if strings.Contains(label, "waf") || strings.Contains(label, "web accessible folder") {
			out = append(out, l.URI)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
