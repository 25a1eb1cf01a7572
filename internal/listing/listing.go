// Package listing turns directory-style web pages (WAFs) into source
// descriptors.
package listing

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/nggdpp/ndc-harvester/internal/fetch"
	"github.com/nggdpp/ndc-harvester/internal/logging"
	"github.com/nggdpp/ndc-harvester/internal/models"
	"golang.org/x/net/html"
)

// Style is the layout variant of a listing page.
type Style int

const (
	StyleUnknown Style = iota
	StylePre
	StyleTable
)

func (s Style) String() string {
	switch s {
	case StylePre:
		return "pre"
	case StyleTable:
		return "table"
	default:
		return "unknown"
	}
}

// MarshalText lets Style render by name in JSON.
func (s Style) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Listing is the resolved content of one listing page.
type Listing struct {
	URL         string                    `json:"url"`
	Style       Style                     `json:"style"`
	Descriptors []models.SourceDescriptor `json:"descriptors"`
	Error       string                    `json:"error,omitempty"`
}

// Resolver fetches and parses listing pages.
type Resolver struct {
	fetcher   fetch.Fetcher
	extension string
	log       *logging.Logger
}

// NewResolver creates a resolver keeping files that end in extension
// (for example "xml"). An empty extension keeps every file.
func NewResolver(f fetch.Fetcher, extension string, log *logging.Logger) *Resolver {
	return &Resolver{
		fetcher:   f,
		extension: strings.TrimPrefix(strings.ToLower(extension), "."),
		log:       logging.OrNop(log).Component("listing"),
	}
}

// Resolve fetches rawURL and returns its descriptors. Fetch and parse
// failures yield an empty listing with Error set; Resolve never fails.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) *Listing {
	resp, err := r.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		r.log.Warn("listing fetch failed", "url", rawURL, "error", err)
		return &Listing{URL: rawURL, Descriptors: []models.SourceDescriptor{}, Error: err.Error()}
	}

	l, err := Parse(resp.Body, resp.URL, r.extension)
	if err != nil {
		r.log.Warn("listing parse failed", "url", resp.URL, "error", err)
		return &Listing{URL: resp.URL, Descriptors: []models.SourceDescriptor{}, Error: err.Error()}
	}
	r.log.Info("listing resolved", "url", resp.URL, "style", l.Style, "files", len(l.Descriptors))
	return l
}

// DetectStyle reports which listing layout a document uses. A <pre> block
// wins over a <table>.
func DetectStyle(doc *goquery.Document) Style {
	if doc.Find("pre").Length() > 0 {
		return StylePre
	}
	if doc.Find("table").Length() > 0 {
		return StyleTable
	}
	return StyleUnknown
}

// Parse reads a listing page body. baseURL resolves relative links.
func Parse(body []byte, baseURL, extension string) (*Listing, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing html: %w", err)
	}

	p := &pageParser{base: base, extension: extension}
	l := &Listing{URL: baseURL, Style: DetectStyle(doc), Descriptors: []models.SourceDescriptor{}}
	switch l.Style {
	case StylePre:
		l.Descriptors = p.parsePre(doc.Find("pre").First())
	case StyleTable:
		l.Descriptors = p.parseTable(doc.Find("table").First())
	}
	return l, nil
}

type pageParser struct {
	base      *url.URL
	extension string
}

// parsePre walks the children of an Apache style <pre> block. Each anchor
// naming a wanted file is paired with the text node that follows it, which
// carries "date time size".
func (p *pageParser) parsePre(pre *goquery.Selection) []models.SourceDescriptor {
	out := []models.SourceDescriptor{}
	nodes := pre.Contents().Nodes
	for i, n := range nodes {
		if n.Type != html.ElementNode || n.Data != "a" {
			continue
		}
		a := goquery.NewDocumentFromNode(n).Selection
		href, _ := a.Attr("href")
		name := linkName(strings.TrimSpace(a.Text()), href)
		if !p.wanted(name) {
			continue
		}
		if i+1 >= len(nodes) || nodes[i+1].Type != html.TextNode {
			continue
		}
		fields := strings.Fields(nodes[i+1].Data)
		if len(fields) < 2 {
			continue
		}
		uploaded, err := parseListingDate(fields[0] + " " + fields[1])
		if err != nil {
			continue
		}
		var size int64
		if len(fields) > 2 {
			size = parseSize(fields[2])
		}
		if d, ok := p.descriptor(name, href, uploaded, size); ok {
			out = append(out, d)
		}
	}
	return out
}

// parseTable maps fixed column positions: 1 name, 2 date, 3 size. Column 0
// holds the icon in the common server layouts.
func (p *pageParser) parseTable(table *goquery.Selection) []models.SourceDescriptor {
	out := []models.SourceDescriptor{}
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		if row.Find("th").Length() > 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		nameCell := cells.Eq(1)
		href, _ := nameCell.Find("a").First().Attr("href")
		name := linkName(strings.TrimSpace(nameCell.Text()), href)
		if name == "" || !p.wanted(name) {
			return
		}

		var uploaded time.Time
		if cells.Length() > 2 {
			t, err := parseListingDate(strings.TrimSpace(cells.Eq(2).Text()))
			if err != nil {
				return
			}
			uploaded = t
		}
		var size int64
		if cells.Length() > 3 {
			size = parseSize(strings.TrimSpace(cells.Eq(3).Text()))
		}
		if d, ok := p.descriptor(name, href, uploaded, size); ok {
			out = append(out, d)
		}
	})
	return out
}

// linkName takes the file name from the last segment of href, since servers
// truncate long names in the anchor text. Directory and query links keep the
// text.
func linkName(text, href string) string {
	if href == "" || strings.HasSuffix(href, "/") {
		return text
	}
	u, err := url.Parse(href)
	if err != nil || u.Path == "" {
		return text
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return text
	}
	return base
}

func (p *pageParser) wanted(name string) bool {
	if name == "" || strings.HasSuffix(name, "/") {
		return false
	}
	if p.extension == "" {
		return true
	}
	return strings.HasSuffix(strings.ToLower(name), "."+p.extension)
}

func (p *pageParser) descriptor(name, href string, uploaded time.Time, size int64) (models.SourceDescriptor, bool) {
	if href == "" {
		href = name
	}
	ref, err := url.Parse(href)
	if err != nil {
		return models.SourceDescriptor{}, false
	}
	return models.SourceDescriptor{
		URL:         p.base.ResolveReference(ref).String(),
		Name:        name,
		UploadDate:  uploaded,
		Size:        size,
		ContentType: mime.TypeByExtension(path.Ext(name)),
		Origin:      models.OriginWAF,
	}, true
}

var listingLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"02-Jan-2006 15:04",
	"02-Jan-2006 15:04:05",
}

func parseListingDate(s string) (time.Time, error) {
	for _, layout := range listingLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return dateparse.ParseIn(s, time.UTC)
}

// parseSize reads sizes such as "1234", "12K", "1.5M". Unknown sizes are 0.
func parseSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0
	}
	mult := 1.0
	switch strings.ToUpper(s[len(s)-1:]) {
	case "K":
		mult = 1 << 10
	case "M":
		mult = 1 << 20
	case "G":
		mult = 1 << 30
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || n < 0 {
		return 0
	}
	return int64(n * mult)
}
