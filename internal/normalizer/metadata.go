package normalizer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/nggdpp/ndc-harvester/internal/spatial"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// MetadataStandard names the schema of a metadata document.
type MetadataStandard string

const (
	StandardISO  MetadataStandard = "iso-19115"
	StandardFGDC MetadataStandard = "fgdc"
)

func metadataStandard(root string) (MetadataStandard, bool) {
	switch root {
	case "MD_Metadata", "MI_Metadata":
		return StandardISO, true
	case "metadata":
		return StandardFGDC, true
	}
	return "", false
}

const (
	methodBBoxCorner   = "bbox corner"
	methodNoGeometry   = "no processable geometry"
	bboxUnreadableInfo = "bounding box could not be read; kept empty geometry"
)

// contact is one responsible party named in a document.
type contact struct {
	Name         string
	Organization string
	Email        string
}

// documentInfo is the subset of a metadata document carried into records.
type documentInfo struct {
	Title             string
	Abstract          string
	Purpose           string
	SupplementaryInfo string
	UseConstraints    string
	DataCredits       string
	PublishDate       string
	PlaceKeywords     []string
	ThematicKeywords  []string
	Originators       []string
	OnlineLinkages    []string
	DateType          string
	Dates             []string
	Contacts          []contact
	BBox              map[string]string // west, east, north, south
}

// MetadataNormalizer turns one ISO-19115 or FGDC document into one record.
type MetadataNormalizer struct{}

func NewMetadataNormalizer() *MetadataNormalizer {
	return &MetadataNormalizer{}
}

func (n *MetadataNormalizer) Name() string { return "metadata-document" }

func (n *MetadataNormalizer) CanNormalize(in *Input) bool {
	if in.Source.Origin == models.OriginMetadataDocument {
		return true
	}
	if !looksLikeXML(in) {
		return false
	}
	root, err := RootName(in.Data)
	if err != nil {
		return false
	}
	_, ok := metadataStandard(root)
	return ok
}

func (n *MetadataNormalizer) Normalize(_ context.Context, in *Input) *Result {
	meta := newMeta(in, n.Name())

	tree, err := DecodeTree(in.Data)
	if err != nil {
		return failed(meta, models.ErrorKindStructural, "could not parse metadata document", err)
	}
	root := tree.Keys()[0]
	std, ok := metadataStandard(root)
	if !ok {
		return failed(meta, models.ErrorKindUnsupported, "metadata document not recognized",
			fmt.Errorf("%w: root element %q", ErrUnsupportedMetadata, root))
	}
	rootVal, _ := tree.Get(root)

	var info documentInfo
	switch std {
	case StandardISO:
		info = extractISO(rootVal)
	case StandardFGDC:
		info = extractFGDC(rootVal)
	}

	rec := models.NewRecord(info.fields(std))
	applyBoundingBox(rec, info.BBox)

	meta.ContainerPath = []string{root}
	meta.PropertyNames = rec.Fields.Keys()
	meta.AcceptedRecordCount = 1
	return &Result{Meta: meta, Records: []*models.Record{rec}}
}

func extractFGDC(doc models.Value) documentInfo {
	cite := []string{"idinfo", "citation", "citeinfo"}
	info := documentInfo{
		Title:             first(doc, at(cite, "title")...),
		Abstract:          first(doc, "idinfo", "descript", "abstract"),
		Purpose:           first(doc, "idinfo", "descript", "purpose"),
		SupplementaryInfo: first(doc, "idinfo", "descript", "supplinf"),
		UseConstraints:    first(doc, "idinfo", "useconst"),
		DataCredits:       first(doc, "idinfo", "datacred"),
		PublishDate:       first(doc, at(cite, "pubdate")...),
		PlaceKeywords:     texts(doc, "idinfo", "keywords", "place", "placekey"),
		ThematicKeywords:  texts(doc, "idinfo", "keywords", "theme", "themekey"),
		Originators:       texts(doc, at(cite, "origin")...),
		OnlineLinkages:    texts(doc, at(cite, "onlink")...),
	}

	timeinfo := []string{"idinfo", "timeperd", "timeinfo"}
	if d := texts(doc, at(timeinfo, "rngdates", "begdate")...); len(d) > 0 {
		info.DateType = "range"
		info.Dates = append(d, texts(doc, at(timeinfo, "rngdates", "enddate")...)...)
	} else if d := texts(doc, at(timeinfo, "mdattim", "sngdate", "caldate")...); len(d) > 0 {
		info.DateType = "multiple"
		info.Dates = d
	} else if d := texts(doc, at(timeinfo, "sngdate", "caldate")...); len(d) > 0 {
		info.DateType = "single"
		info.Dates = d
	}

	for _, c := range lookup(doc, "idinfo", "ptcontac", "cntinfo") {
		ct := contact{
			Name:         firstOf(c, []string{"cntperp", "cntper"}, []string{"cntorgp", "cntper"}),
			Organization: firstOf(c, []string{"cntperp", "cntorg"}, []string{"cntorgp", "cntorg"}),
			Email:        first(c, "cntemail"),
		}
		if ct != (contact{}) {
			info.Contacts = append(info.Contacts, ct)
		}
	}

	bounding := []string{"idinfo", "spdom", "bounding"}
	info.BBox = bbox(
		first(doc, at(bounding, "westbc")...),
		first(doc, at(bounding, "eastbc")...),
		first(doc, at(bounding, "northbc")...),
		first(doc, at(bounding, "southbc")...),
	)
	return info
}

func extractISO(doc models.Value) documentInfo {
	var ident []models.Value
	for _, kind := range []string{"MD_DataIdentification", "SV_ServiceIdentification"} {
		ident = append(ident, lookup(doc, "identificationInfo", kind)...)
	}
	identVal := models.List(ident...)
	cite := []string{"citation", "CI_Citation"}

	info := documentInfo{
		Title:             first(identVal, at(cite, "title", "CharacterString")...),
		Abstract:          first(identVal, "abstract", "CharacterString"),
		Purpose:           first(identVal, "purpose", "CharacterString"),
		SupplementaryInfo: first(identVal, "supplementalInformation", "CharacterString"),
		UseConstraints:    first(identVal, "resourceConstraints", "MD_Constraints", "useLimitation", "CharacterString"),
		DataCredits:       first(identVal, "credit", "CharacterString"),
		PublishDate:       first(identVal, at(cite, "date", "CI_Date", "date", "Date")...),
		Originators:       texts(identVal, at(cite, "citedResponsibleParty", "CI_ResponsibleParty", "organisationName", "CharacterString")...),
		OnlineLinkages: texts(doc, "distributionInfo", "MD_Distribution", "transferOptions",
			"MD_DigitalTransferOptions", "onLine", "CI_OnlineResource", "linkage", "URL"),
	}

	for _, kw := range lookup(identVal, "descriptiveKeywords", "MD_Keywords") {
		words := texts(kw, "keyword", "CharacterString")
		kwType := ""
		for _, code := range lookup(kw, "type", "MD_KeywordTypeCode") {
			if m, ok := code.MapValue(); ok {
				if v, ok := m.Get("@codeListValue"); ok {
					kwType = v.Text()
				}
			}
			if kwType == "" {
				kwType = textOf(code)
			}
		}
		switch strings.ToLower(kwType) {
		case "place":
			info.PlaceKeywords = append(info.PlaceKeywords, words...)
		default:
			info.ThematicKeywords = append(info.ThematicKeywords, words...)
		}
	}

	extent := []string{"extent", "EX_Extent"}
	period := at(extent, "temporalElement", "EX_TemporalExtent", "extent")
	if begin := texts(identVal, at(period, "TimePeriod", "beginPosition")...); len(begin) > 0 {
		info.DateType = "range"
		info.Dates = append(begin, texts(identVal, at(period, "TimePeriod", "endPosition")...)...)
	} else if inst := texts(identVal, at(period, "TimeInstant", "timePosition")...); len(inst) > 0 {
		info.DateType = "single"
		info.Dates = inst
	}

	for _, p := range lookup(identVal, "pointOfContact", "CI_ResponsibleParty") {
		ct := contact{
			Name:         first(p, "individualName", "CharacterString"),
			Organization: first(p, "organisationName", "CharacterString"),
			Email: first(p, "contactInfo", "CI_Contact", "address", "CI_Address",
				"electronicMailAddress", "CharacterString"),
		}
		if ct != (contact{}) {
			info.Contacts = append(info.Contacts, ct)
		}
	}

	box := at(extent, "geographicElement", "EX_GeographicBoundingBox")
	info.BBox = bbox(
		first(identVal, at(box, "westBoundLongitude", "Decimal")...),
		first(identVal, at(box, "eastBoundLongitude", "Decimal")...),
		first(identVal, at(box, "northBoundLatitude", "Decimal")...),
		first(identVal, at(box, "southBoundLatitude", "Decimal")...),
	)
	return info
}

// at returns base extended by more without sharing base's backing array.
func at(base []string, more ...string) []string {
	out := make([]string, 0, len(base)+len(more))
	out = append(out, base...)
	return append(out, more...)
}

func firstOf(v models.Value, paths ...[]string) string {
	for _, p := range paths {
		if s := first(v, p...); s != "" {
			return s
		}
	}
	return ""
}

func bbox(west, east, north, south string) map[string]string {
	if west == "" && east == "" && north == "" && south == "" {
		return nil
	}
	return map[string]string{"west": west, "east": east, "north": north, "south": south}
}

// fields renders the non-empty properties in a fixed order.
func (d documentInfo) fields(std MetadataStandard) *models.Fields {
	f := models.NewFields()
	f.SetString("metadata_standard", string(std))
	setText := func(k, v string) {
		if v != "" {
			f.SetString(k, v)
		}
	}
	setList := func(k string, v []string) {
		if len(v) > 0 {
			f.Set(k, models.StringList(v))
		}
	}
	setText("title", d.Title)
	setText("abstract", d.Abstract)
	setText("purpose", d.Purpose)
	setText("supplementary_info", d.SupplementaryInfo)
	setText("use_constraints", d.UseConstraints)
	setText("data_credits", d.DataCredits)
	setText("publish_date", d.PublishDate)
	setList("place_keywords", d.PlaceKeywords)
	setList("thematic_keywords", d.ThematicKeywords)
	setList("originators", d.Originators)
	setList("online_linkages", d.OnlineLinkages)
	if len(d.Dates) > 0 {
		dates := models.NewFields()
		dates.SetString("type", d.DateType)
		dates.Set("values", models.StringList(d.Dates))
		f.Set("dates", models.Map(dates))
	}
	if len(d.Contacts) > 0 {
		items := make([]models.Value, len(d.Contacts))
		for i, c := range d.Contacts {
			cf := models.NewFields()
			cf.SetString("name", c.Name)
			cf.SetString("organization", c.Organization)
			cf.SetString("email", c.Email)
			items[i] = models.Map(cf)
		}
		f.Set("contacts", models.List(items...))
	}
	return f
}

// applyBoundingBox records the box in processable forms and derives the
// record's coordinates from its south-east corner.
func applyBoundingBox(rec *models.Record, raw map[string]string) {
	point := models.NewFields()
	defer func() { rec.Fields.Set("coordinates_point", models.Map(point)) }()

	if raw == nil {
		point.Set("coordinates", models.Null())
		point.SetString("method", methodNoGeometry)
		return
	}

	var vals [4]float64
	for i, k := range []string{"west", "east", "north", "south"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw[k]), 64)
		if err != nil {
			rec.AddNotice(models.Notice{Error: fmt.Sprintf("bounding box %s: %v", k, err), Info: bboxUnreadableInfo})
			point.Set("coordinates", models.Null())
			point.SetString("method", methodNoGeometry)
			return
		}
		vals[i] = v
	}
	west, east, north, south := vals[0], vals[1], vals[2], vals[3]

	box := models.NewFields()
	box.Set("west", models.Number(west))
	box.Set("east", models.Number(east))
	box.Set("north", models.Number(north))
	box.Set("south", models.Number(south))
	rec.Fields.Set("bounding_box", models.Map(box))

	ring := orb.Ring{{west, north}, {east, north}, {east, south}, {west, south}}
	corners := make([]models.Value, len(ring))
	for i, p := range ring {
		corners[i] = models.List(models.Number(p.Lon()), models.Number(p.Lat()))
	}
	rec.Fields.Set("coordinates_geojson", models.List(corners...))
	closed := append(orb.Ring{}, ring...)
	closed = append(closed, ring[0])
	rec.Fields.SetString("coordinates_wkt", wkt.MarshalString(orb.Polygon{closed}))

	corner := spatial.FormatPair(formatFloat(east), formatFloat(south))
	point.SetString("coordinates", corner)
	point.SetString("method", methodBBoxCorner)

	p, err := spatial.BuildPointGeometry(corner)
	if err != nil {
		rec.AddNotice(models.Notice{Error: err.Error(), Info: corner + "; kept empty geometry"})
		return
	}
	if p != nil {
		rec.Fields.SetString(spatial.CoordinatesField, spatial.FormatPair(formatFloat(p.Lon()), formatFloat(p.Lat())))
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
