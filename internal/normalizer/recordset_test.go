package normalizer

import (
	"context"
	"errors"
	"testing"

	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recordSetXML = `<?xml version="1.0" encoding="UTF-8"?>
<nggdpp xmlns="http://example.org/ns" version="2">
  <header>Sample collection</header>
  <record>
    <Title>Core A</Title>
    <Coordinates>-105.2,40.5</Coordinates>
    <DataType>core, sample</DataType>
    <Date>2019-00-01</Date>
  </record>
  <record>
    <Title>Core B</Title>
    <Coordinates/>
  </record>
</nggdpp>`

func xmlInput(body string) *Input {
	return &Input{
		Source: models.SourceDescriptor{URL: "http://example.org/set.xml", Name: "set.xml", Origin: models.OriginCatalogFile},
		Data:   []byte(body),
	}
}

func TestDecodeTree(t *testing.T) {
	tree, err := DecodeTree([]byte(recordSetXML))
	require.NoError(t, err)
	assert.Equal(t, []string{"nggdpp"}, tree.Keys())

	rootVal, _ := tree.Get("nggdpp")
	root, ok := rootVal.MapValue()
	require.True(t, ok)
	assert.Equal(t, []string{"@version", "header", "record"}, root.Keys())

	recs, _ := root.Get("record")
	items, ok := recs.ListValue()
	require.True(t, ok)
	require.Len(t, items, 2)

	second, _ := items[1].MapValue()
	c, _ := second.Get("Coordinates")
	assert.True(t, c.IsNull())
}

func TestDecodeTreeAttributesWithText(t *testing.T) {
	tree, err := DecodeTree([]byte(`<a><b unit="m">12</b></a>`))
	require.NoError(t, err)
	a, _ := tree.Get("a")
	vals := lookup(a, "b")
	require.Len(t, vals, 1)
	assert.Equal(t, "12", textOf(vals[0]))
}

func TestDecodeTreeLatin1Declaration(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><r><n>Caf\xe9</n></r>"
	tree, err := DecodeTree([]byte(doc))
	require.NoError(t, err)
	r, _ := tree.Get("r")
	assert.Equal(t, "Café", first(r, "n"))
}

func TestIntrospect(t *testing.T) {
	tree, err := DecodeTree([]byte(recordSetXML))
	require.NoError(t, err)

	c, err := Introspect(tree)
	require.NoError(t, err)
	assert.Equal(t, []string{"nggdpp", "record"}, c.Path)
	assert.Len(t, c.Records, 2)
	assert.Equal(t, []string{"Title", "Coordinates", "DataType", "Date"}, c.FieldNames)
	assert.Equal(t, ShapeRecordSet, DetectShape(tree))
}

func TestIntrospectRequiresTrailingList(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"single record", `<set><record><a>1</a></record></set>`},
		{"list not last", `<set><record><a>1</a></record><record><a>2</a></record><footer>x</footer></set>`},
		{"empty root", `<set/>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := DecodeTree([]byte(tt.doc))
			require.NoError(t, err)
			_, err = Introspect(tree)
			assert.True(t, errors.Is(err, ErrContainerNotFound))
			assert.Equal(t, ShapeUnsupported, DetectShape(tree))
		})
	}
}

func TestRecordSetNormalize(t *testing.T) {
	n := NewRecordSetNormalizer()
	in := xmlInput(recordSetXML)
	require.True(t, n.CanNormalize(in))

	res := n.Normalize(context.Background(), in)
	assert.Empty(t, res.Meta.ErrorList)
	assert.Equal(t, 2, res.Meta.AcceptedRecordCount)
	assert.Equal(t, []string{"nggdpp", "record"}, res.Meta.ContainerPath)
	require.Len(t, res.Records, 2)

	f := res.Records[0].Fields
	assert.Equal(t, []string{"title", "coordinates", "datatype", "date"}, f.Keys())
	dt, _ := f.Get("datatype")
	items, ok := dt.ListValue()
	require.True(t, ok)
	require.Len(t, items, 2)
	s, _ := items[1].Str()
	assert.Equal(t, "sample", s)
}

func TestRecordSetStructuralFailure(t *testing.T) {
	n := NewRecordSetNormalizer()
	res := n.Normalize(context.Background(), xmlInput(`<set><record><a>1</a></record></set>`))
	assert.True(t, res.Meta.Failed())
	assert.Empty(t, res.Records)
	require.Len(t, res.Meta.ErrorList, 1)
	assert.Equal(t, models.ErrorKindStructural, res.Meta.ErrorList[0].Kind)

	res = n.Normalize(context.Background(), xmlInput(`<set><unclosed></set>`))
	assert.True(t, res.Meta.Failed())
	assert.Empty(t, res.Records)
}

func TestRecordSetSkipsScalarEntries(t *testing.T) {
	n := NewRecordSetNormalizer()
	res := n.Normalize(context.Background(), xmlInput(`<set><r><a>1</a></r><r>text</r></set>`))
	assert.False(t, res.Meta.Failed())
	assert.Len(t, res.Records, 1)
	require.Len(t, res.Meta.ErrorList, 1)
	assert.Equal(t, models.ErrorKindLine, res.Meta.ErrorList[0].Kind)
}
