// ==========================================================================
//
// File Name:  emit_test.go
//
// ==========================================================================

package srcml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// newTestArchive strips the variable attributes so expected documents can
// be written out literally.
func newTestArchive() *Archive {

	arch := New()
	arch.SetRevision("")
	arch.DisableOption(OptionXMLDecl)
	arch.DisableHash()

	return arch
}

func writeSolo(t *testing.T, arch *Archive, unit *Unit, src string) string {

	var buf []byte
	assert.NoError(t, arch.WriteOpenMemory(&buf))
	assert.NoError(t, unit.ParseSource([]byte(src)))
	assert.NoError(t, arch.WriteUnit(unit))
	assert.NoError(t, arch.Close())

	return string(buf)
}

func TestSoloCTranslation(t *testing.T) {

	arch := newTestArchive()
	unit := arch.NewUnit()
	unit.Language = LanguageC

	doc := writeSolo(t, arch, unit, "a;\n")

	assert.Equal(t,
		`<unit xmlns="http://www.sdml.info/srcML/src" xmlns:cpp="http://www.sdml.info/srcML/cpp" language="C">`+
			"<expr_stmt><expr><name>a</name></expr>;</expr_stmt>\n</unit>\n",
		doc)

	assert.Equal(t,
		`<unit language="C"><expr_stmt><expr><name>a</name></expr>;</expr_stmt>`+"\n</unit>",
		unit.SrcML())
}

func TestSoloUnitAttributes(t *testing.T) {

	arch := newTestArchive()
	unit := arch.NewUnit()
	unit.Language = LanguageCPlusPlus
	unit.Filename = "project"
	unit.Dir = "test"
	unit.Version = "1"

	doc := writeSolo(t, arch, unit, "a;\n")

	assert.Equal(t,
		`<unit xmlns="http://www.sdml.info/srcML/src" xmlns:cpp="http://www.sdml.info/srcML/cpp"`+
			` language="C++" filename="project" dir="test" version="1">`+
			"<expr_stmt><expr><name>a</name></expr>;</expr_stmt>\n</unit>\n",
		doc)
}

func archiveTwoUnitsDoc(t *testing.T) string {

	arch := newTestArchive()
	arch.EnableFullArchive()

	var buf []byte
	assert.NoError(t, arch.WriteOpenMemory(&buf))

	for _, in := range []struct{ name, src string }{
		{"a.cpp", "x;\n"},
		{"b.cpp", "y;\n"},
	} {
		unit := arch.NewUnit()
		unit.Filename = in.name
		assert.NoError(t, unit.ParseSource([]byte(in.src)))
		assert.NoError(t, arch.WriteUnit(unit))
	}

	assert.NoError(t, arch.Close())

	return string(buf)
}

func TestArchiveFraming(t *testing.T) {

	doc := archiveTwoUnitsDoc(t)

	assert.Equal(t,
		`<unit xmlns="http://www.sdml.info/srcML/src" xmlns:cpp="http://www.sdml.info/srcML/cpp">`+"\n\n"+
			`<unit language="C++" filename="a.cpp"><expr_stmt><expr><name>x</name></expr>;</expr_stmt>`+"\n</unit>\n\n"+
			`<unit language="C++" filename="b.cpp"><expr_stmt><expr><name>y</name></expr>;</expr_stmt>`+"\n</unit>\n\n"+
			"</unit>\n",
		doc)
}

func TestSoloSecondUnitRejected(t *testing.T) {

	arch := newTestArchive()

	var buf []byte
	assert.NoError(t, arch.WriteOpenMemory(&buf))

	first := arch.NewUnit()
	first.Language = LanguageC
	assert.NoError(t, first.ParseSource([]byte("a;\n")))
	assert.NoError(t, arch.WriteUnit(first))

	second := arch.NewUnit()
	second.Language = LanguageC
	assert.NoError(t, second.ParseSource([]byte("b;\n")))
	assert.ErrorIs(t, arch.WriteUnit(second), ErrInvalidInput)
}

func TestXMLDeclaration(t *testing.T) {

	arch := New()
	arch.DisableHash()

	var buf []byte
	assert.NoError(t, arch.WriteOpenMemory(&buf))

	unit := arch.NewUnit()
	unit.Language = LanguageC
	assert.NoError(t, unit.ParseSource([]byte("a;\n")))
	assert.NoError(t, arch.WriteUnit(unit))
	assert.NoError(t, arch.Close())

	assert.True(t, strings.HasPrefix(string(buf),
		`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`+"\n"))
}

func TestHashEmission(t *testing.T) {

	// enabled: the hash attribute carries the content hash of the source
	arch := New()
	arch.DisableOption(OptionXMLDecl)

	var buf []byte
	assert.NoError(t, arch.WriteOpenMemory(&buf))

	unit := arch.NewUnit()
	unit.Language = LanguageC
	assert.NoError(t, unit.ParseSource([]byte("a;\n")))
	assert.NoError(t, arch.WriteUnit(unit))
	assert.NoError(t, arch.Close())

	want := hashBytes(nil, []byte("a;\n"))
	assert.Contains(t, string(buf), ` hash="`+want+`"`)
}

func TestHashDisabled(t *testing.T) {

	arch := New()
	arch.DisableHash()

	var buf []byte
	assert.NoError(t, arch.WriteOpenMemory(&buf))

	unit := arch.NewUnit()
	unit.Language = LanguageC
	assert.NoError(t, unit.ParseSource([]byte("a;\n")))
	assert.NoError(t, arch.WriteUnit(unit))
	assert.NoError(t, arch.Close())

	assert.NotContains(t, string(buf), "hash=")
}

func TestHashOfEmptySource(t *testing.T) {

	arch := New()
	arch.DisableOption(OptionXMLDecl)

	var buf []byte
	assert.NoError(t, arch.WriteOpenMemory(&buf))

	unit := arch.NewUnit()
	unit.Language = LanguageC
	assert.NoError(t, unit.ParseSource([]byte{}))
	assert.NoError(t, arch.WriteUnit(unit))
	assert.NoError(t, arch.Close())

	assert.Contains(t, string(buf), ` hash="da39a3ee5e6b4b0d3255bfef95601890afd80709"`)
}

func TestAttributeOrder(t *testing.T) {

	arch := New()
	arch.SetRevision("2.0")
	arch.SetURL("https://example.org/project")
	arch.DisableOption(OptionXMLDecl)

	var buf []byte
	assert.NoError(t, arch.WriteOpenMemory(&buf))

	unit := arch.NewUnit()
	unit.Language = LanguageCPlusPlus
	unit.Filename = "a.cpp"
	unit.Dir = "src"
	unit.Version = "3"
	unit.Timestamp = "2014-01-01"
	unit.Attributes = append(unit.Attributes, Attribute{Name: "license", Value: "GPL"})
	assert.NoError(t, unit.ParseSource([]byte("a;\n")))
	assert.NoError(t, arch.WriteUnit(unit))
	assert.NoError(t, arch.Close())

	doc := string(buf)

	order := []string{
		` revision="`, ` language="`, ` url="`, ` filename="`, ` dir="`,
		` version="`, ` timestamp="`, ` hash="`, ` license="`,
	}

	last := -1
	for _, attr := range order {
		pos := strings.Index(doc, attr)
		assert.True(t, pos > last, "attribute %q out of order", attr)
		last = pos
	}
}

func TestNamespaceDeclarationRules(t *testing.T) {

	// all markup namespaces enabled appear in rule order
	arch := newTestArchive()
	arch.EnableOption(OptionDebug)
	arch.EnableOption(OptionLiteral)
	arch.EnableOption(OptionOperator)
	arch.EnableOption(OptionModifier)
	arch.EnableOption(OptionPosition)

	unit := arch.NewUnit()
	unit.Language = LanguageC

	doc := writeSolo(t, arch, unit, "a;\n")

	order := []string{
		`xmlns="http://www.sdml.info/srcML/src"`,
		`xmlns:cpp="http://www.sdml.info/srcML/cpp"`,
		`xmlns:err="http://www.sdml.info/srcML/srcerr"`,
		`xmlns:lit="http://www.sdml.info/srcML/literal"`,
		`xmlns:op="http://www.sdml.info/srcML/operator"`,
		`xmlns:type="http://www.sdml.info/srcML/modifier"`,
		`xmlns:pos="http://www.sdml.info/srcML/position"`,
	}

	last := -1
	for _, decl := range order {
		pos := strings.Index(doc, decl)
		assert.True(t, pos > last, "declaration %q missing or out of order", decl)
		last = pos
	}
}

func TestNamespaceJavaHasNoCpp(t *testing.T) {

	arch := newTestArchive()
	unit := arch.NewUnit()
	unit.Language = LanguageJava

	doc := writeSolo(t, arch, unit, "x;\n")

	assert.Contains(t, doc, `xmlns="http://www.sdml.info/srcML/src"`)
	assert.NotContains(t, doc, "xmlns:cpp=")
}

func TestNamespaceDeclDisabled(t *testing.T) {

	arch := newTestArchive()
	arch.DisableOption(OptionNamespaceDecl)

	unit := arch.NewUnit()
	unit.Language = LanguageC

	doc := writeSolo(t, arch, unit, "a;\n")

	assert.NotContains(t, doc, "xmlns")
}

func TestMacroListEmission(t *testing.T) {

	arch := newTestArchive()
	arch.RegisterMacro("MAX", "macro")
	arch.RegisterMacro("MIN", "macro")

	unit := arch.NewUnit()
	unit.Language = LanguageC

	doc := writeSolo(t, arch, unit, "a;\n")

	assert.Contains(t, doc, ">\n"+`<macro-list token="MAX" type="macro"/>`+"\n"+
		`<macro-list token="MIN" type="macro"/>`+"\n")
}

// direct element API

func openDirect(t *testing.T) (*Archive, *[]byte) {

	arch := newTestArchive()
	arch.DisableOption(OptionCPP)

	buf := new([]byte)
	assert.NoError(t, arch.WriteOpenMemory(buf))

	return arch, buf
}

func TestWriteByElement(t *testing.T) {

	const startUnit = `<unit xmlns="http://www.sdml.info/srcML/src">`
	const endUnit = "</unit>\n"

	cases := []struct {
		name  string
		write func(a *Archive)
		want  string
	}{
		{
			name: "plain element",
			write: func(a *Archive) {
				a.WriteStartElement("", "element", "")
				a.WriteEndElement()
			},
			want: "<element/>",
		},
		{
			name: "prefixed element",
			write: func(a *Archive) {
				a.WriteStartElement("foo", "element", "")
				a.WriteEndElement()
			},
			want: "<foo:element/>",
		},
		{
			name: "default namespace",
			write: func(a *Archive) {
				a.WriteStartElement("", "element", "bar")
				a.WriteEndElement()
			},
			want: `<element xmlns="bar"/>`,
		},
		{
			name: "prefixed with uri",
			write: func(a *Archive) {
				a.WriteStartElement("foo", "element", "bar")
				a.WriteEndElement()
			},
			want: `<foo:element xmlns:foo="bar"/>`,
		},
		{
			name: "namespace declaration",
			write: func(a *Archive) {
				a.WriteStartElement("", "element", "")
				a.WriteNamespace("foo", "bar")
				a.WriteEndElement()
			},
			want: `<element xmlns:foo="bar"/>`,
		},
		{
			name: "prefixed attribute with uri",
			write: func(a *Archive) {
				a.WriteStartElement("", "element", "")
				a.WriteAttribute("f", "foo", "b", "bar")
				a.WriteEndElement()
			},
			want: `<element f:foo="bar" xmlns:f="b"/>`,
		},
		{
			name: "string content",
			write: func(a *Archive) {
				a.WriteStartElement("", "element", "")
				a.WriteString("foo<bar")
				a.WriteEndElement()
			},
			want: "<element>foo&lt;bar</element>",
		},
		{
			name: "dangling element auto-closed",
			write: func(a *Archive) {
				a.WriteStartElement("", "element", "")
				a.WriteStartElement("", "inner", "")
			},
			want: "<element><inner/></element>",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			arch, buf := openDirect(t)
			unit := arch.NewUnit()
			assert.NoError(t, arch.WriteStartUnit(unit))
			tc.write(arch)
			assert.NoError(t, arch.WriteEndUnit())
			assert.NoError(t, arch.Close())

			assert.Equal(t, startUnit+tc.want+endUnit, string(*buf))
		})
	}
}

func TestWriteByElementErrors(t *testing.T) {

	// unopened archive
	arch := newTestArchive()
	assert.ErrorIs(t, arch.WriteStartElement("", "element", ""), ErrInvalidIOOperation)

	// opened, no unit started
	arch, _ = openDirect(t)
	assert.ErrorIs(t, arch.WriteStartElement("", "element", ""), ErrInvalidInput)
	assert.ErrorIs(t, arch.WriteString("text"), ErrInvalidInput)

	// empty identifiers
	unit := arch.NewUnit()
	assert.NoError(t, arch.WriteStartUnit(unit))
	assert.ErrorIs(t, arch.WriteStartElement("", "", ""), ErrInvalidArgument)
	assert.ErrorIs(t, arch.WriteAttribute("", "", "", "v"), ErrInvalidArgument)
	assert.ErrorIs(t, arch.WriteNamespace("p", ""), ErrInvalidArgument)
}

func TestEmptyUnitSelfCloses(t *testing.T) {

	arch := newTestArchive()

	var buf []byte
	assert.NoError(t, arch.WriteOpenMemory(&buf))

	unit := arch.NewUnit()
	unit.Language = LanguageCPlusPlus
	unit.Filename = "a.cpp"
	assert.NoError(t, unit.ParseSource([]byte{}))
	assert.NoError(t, arch.WriteUnit(unit))
	assert.NoError(t, arch.Close())

	assert.Equal(t,
		`<unit xmlns="http://www.sdml.info/srcML/src" xmlns:cpp="http://www.sdml.info/srcML/cpp"`+
			` language="C++" filename="a.cpp"/>`+"\n",
		string(buf))
}
