package normalizer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/nggdpp/ndc-harvester/internal/models"
)

// ContainerShape classifies the layout of an XML document.
type ContainerShape int

const (
	ShapeUnsupported ContainerShape = iota
	// ShapeRecordSet is a single root whose trailing child is a list of records.
	ShapeRecordSet
	// ShapeMetadataDocument is one ISO-19115 or FGDC metadata record.
	ShapeMetadataDocument
)

func (s ContainerShape) String() string {
	switch s {
	case ShapeRecordSet:
		return "record-set"
	case ShapeMetadataDocument:
		return "metadata-document"
	default:
		return "unsupported"
	}
}

// Container is the located list of records inside a record-set document.
type Container struct {
	Path       []string
	Records    []models.Value
	FieldNames []string
}

// DetectShape classifies a decoded tree.
func DetectShape(tree *models.Fields) ContainerShape {
	if tree.Len() != 1 {
		return ShapeUnsupported
	}
	if _, ok := metadataStandard(tree.Keys()[0]); ok {
		return ShapeMetadataDocument
	}
	if _, err := Introspect(tree); err == nil {
		return ShapeRecordSet
	}
	return ShapeUnsupported
}

// Introspect locates the record container: the document must have exactly
// one top-level element, and the last child of that element must be a list.
func Introspect(tree *models.Fields) (*Container, error) {
	if tree.Len() != 1 {
		return nil, fmt.Errorf("%w: expected one top-level element, found %d", ErrContainerNotFound, tree.Len())
	}
	rootName := tree.Keys()[0]
	rootVal, _ := tree.Get(rootName)
	root, ok := rootVal.MapValue()
	if !ok || root.Len() == 0 {
		return nil, fmt.Errorf("%w: root element %q has no children", ErrContainerNotFound, rootName)
	}
	keys := root.Keys()
	last := keys[len(keys)-1]
	v, _ := root.Get(last)
	items, ok := v.ListValue()
	if !ok {
		return nil, fmt.Errorf("%w: last child %q of %q is not a repeated element", ErrContainerNotFound, last, rootName)
	}

	c := &Container{Path: []string{rootName, last}, Records: items}
	if len(items) > 0 {
		if m, ok := items[0].MapValue(); ok {
			c.FieldNames = m.Keys()
		}
	}
	return c, nil
}

// RecordSetNormalizer handles XML documents holding a list of records.
type RecordSetNormalizer struct{}

func NewRecordSetNormalizer() *RecordSetNormalizer {
	return &RecordSetNormalizer{}
}

func (n *RecordSetNormalizer) Name() string { return "xml-recordset" }

func (n *RecordSetNormalizer) CanNormalize(in *Input) bool {
	if in.Source.Origin == models.OriginMetadataDocument || !looksLikeXML(in) {
		return false
	}
	root, err := RootName(in.Data)
	if err != nil {
		return false
	}
	_, isMetadata := metadataStandard(root)
	return !isMetadata
}

func (n *RecordSetNormalizer) Normalize(_ context.Context, in *Input) *Result {
	meta := newMeta(in, n.Name())

	tree, err := DecodeTree(in.Data)
	if err != nil {
		return failed(meta, models.ErrorKindStructural, "could not parse XML document", err)
	}
	container, err := Introspect(tree)
	if err != nil {
		return failed(meta, models.ErrorKindStructural, "record container not found", err)
	}
	meta.ContainerPath = container.Path
	meta.PropertyNames = container.FieldNames

	records := make([]*models.Record, 0, len(container.Records))
	for i, item := range container.Records {
		m, ok := item.MapValue()
		if !ok {
			meta.AddError(models.ErrorKindLine, fmt.Sprintf("record %d is not an element with fields", i+1), "")
			continue
		}
		records = append(records, models.NewRecord(normalizeRecordFields(m)))
	}
	meta.AcceptedRecordCount = len(records)
	return &Result{Meta: meta, Records: records}
}

// normalizeRecordFields lower-cases keys and splits a comma separated
// datatype string into a list.
func normalizeRecordFields(m *models.Fields) *models.Fields {
	out := models.NewFields()
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		out.Set(strings.ToLower(k), v)
	}
	if v, ok := out.Get("datatype"); ok {
		if s, isStr := v.Str(); isStr {
			parts := strings.Split(s, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			out.Set("datatype", models.StringList(parts))
		}
	}
	return out
}

func looksLikeXML(in *Input) bool {
	ct := strings.ToLower(in.ContentType)
	if ct == "" {
		ct = strings.ToLower(in.Source.ContentType)
	}
	if strings.Contains(ct, "xml") {
		return true
	}
	if strings.EqualFold(path.Ext(in.Source.Name), ".xml") {
		return true
	}
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(in.Data, []byte("\xef\xbb\xbf")), " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '<'
}
