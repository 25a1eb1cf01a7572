package normalizer

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nggdpp/ndc-harvester/internal/models"
	"golang.org/x/net/html/charset"
)

var errMultipleRoots = errors.New("document has more than one root element")

type xmlNode struct {
	name     string
	attrs    []xml.Attr
	children []*xmlNode
	text     strings.Builder
}

func newXMLDecoder(data []byte) *xml.Decoder {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charset.NewReaderLabel
	return d
}

// DecodeTree parses an XML document into a nested field tree keyed by local
// element names. Attributes appear as "@name", mixed text as "#text", and
// repeated sibling elements collapse into a list. Empty elements are null.
// The returned set has exactly one key, the root element.
func DecodeTree(data []byte) (*models.Fields, error) {
	d := newXMLDecoder(data)
	var root *xmlNode
	var stack []*xmlNode
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: t.Name.Local, attrs: t.Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, errMultipleRoots
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, errors.New("document has no root element")
	}
	tree := models.NewFields()
	tree.Set(root.name, root.value())
	return tree, nil
}

// RootName returns the local name of the first element without decoding the
// rest of the document.
func RootName(data []byte) (string, error) {
	d := newXMLDecoder(data)
	for {
		tok, err := d.Token()
		if err != nil {
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local, nil
		}
	}
}

func (n *xmlNode) value() models.Value {
	text := strings.TrimSpace(n.text.String())
	attrs := n.visibleAttrs()
	if len(attrs) == 0 && len(n.children) == 0 {
		if text == "" {
			return models.Null()
		}
		return models.String(text)
	}

	f := models.NewFields()
	for _, a := range attrs {
		f.SetString("@"+a.Name.Local, a.Value)
	}

	var order []string
	grouped := make(map[string][]models.Value)
	for _, c := range n.children {
		if _, seen := grouped[c.name]; !seen {
			order = append(order, c.name)
		}
		grouped[c.name] = append(grouped[c.name], c.value())
	}
	for _, name := range order {
		vals := grouped[name]
		if len(vals) == 1 {
			f.Set(name, vals[0])
		} else {
			f.Set(name, models.List(vals...))
		}
	}
	if text != "" {
		f.SetString("#text", text)
	}
	return models.Map(f)
}

func (n *xmlNode) visibleAttrs() []xml.Attr {
	out := make([]xml.Attr, 0, len(n.attrs))
	for _, a := range n.attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		out = append(out, a)
	}
	return out
}

// textOf returns the scalar text of a tree value, reading "#text" from
// elements that also carry attributes.
func textOf(v models.Value) string {
	if s, ok := v.Str(); ok {
		return s
	}
	if m, ok := v.MapValue(); ok {
		if t, ok := m.Get("#text"); ok {
			return t.Text()
		}
	}
	return ""
}

// lookup follows path through a tree, fanning out across lists at every
// step, and returns every value found at the end of the path.
func lookup(v models.Value, path ...string) []models.Value {
	current := []models.Value{v}
	for _, key := range path {
		var next []models.Value
		for _, c := range current {
			for _, item := range expand(c) {
				m, ok := item.MapValue()
				if !ok {
					continue
				}
				if child, ok := m.Get(key); ok && !child.IsNull() {
					next = append(next, child)
				}
			}
		}
		current = next
		if len(current) == 0 {
			return nil
		}
	}
	var out []models.Value
	for _, c := range current {
		out = append(out, expand(c)...)
	}
	return out
}

func expand(v models.Value) []models.Value {
	if items, ok := v.ListValue(); ok {
		return items
	}
	return []models.Value{v}
}

// texts returns the non-empty scalar texts found at path.
func texts(v models.Value, path ...string) []string {
	var out []string
	for _, item := range lookup(v, path...) {
		if s := strings.TrimSpace(textOf(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// first returns the first text found at path, or "".
func first(v models.Value, path ...string) string {
	if t := texts(v, path...); len(t) > 0 {
		return t[0]
	}
	return ""
}
