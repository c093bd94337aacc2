// ==========================================================================
//
// File Name:  namespace_test.go
//
// ==========================================================================

package srcml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryDefaults(t *testing.T) {

	reg := NewNamespaceRegistry()

	uri, ok := reg.URIForPrefix("")
	assert.True(t, ok)
	assert.Equal(t, SrcNamespaceURI, uri)

	uri, ok = reg.URIForPrefix("cpp")
	assert.True(t, ok)
	assert.Equal(t, CppNamespaceURI, uri)
}

func TestRegistryNormalizesURI(t *testing.T) {

	reg := NewNamespaceRegistry()

	assert.NoError(t, reg.Register("foo", "http://example.org/ns/"))

	uri, ok := reg.URIForPrefix("foo")
	assert.True(t, ok)
	assert.Equal(t, "http://example.org/ns", uri)
}

func TestReservedPrefixSafety(t *testing.T) {

	reg := NewNamespaceRegistry()

	// a reserved prefix may re-bind to its own canonical URI
	assert.NoError(t, reg.Register("cpp", CppNamespaceURI))

	// but never to a different one
	assert.ErrorIs(t, reg.Register("cpp", "http://example.org/other"), ErrNamespaceConflict)
	assert.ErrorIs(t, reg.Register("pos", "http://example.org/other"), ErrNamespaceConflict)
	assert.ErrorIs(t, reg.Register("", "http://example.org/other"), ErrNamespaceConflict)

	// a fresh prefix for a canonical URI is fine
	assert.NoError(t, reg.Register("cpp2", CppNamespaceURI))
}

func TestReservedPrefixFatalAtOpen(t *testing.T) {

	arch := New()

	// corrupt the registry below the public API to prove the open check
	arch.namespaces.add("pos", "http://example.org/not-position")

	var buf []byte
	assert.ErrorIs(t, arch.WriteOpenMemory(&buf), ErrNamespaceConflict)
}

func TestRegistryOrderPreserved(t *testing.T) {

	reg := NewNamespaceRegistry()
	assert.NoError(t, reg.Register("a", "http://example.org/a"))
	assert.NoError(t, reg.Register("b", "http://example.org/b"))

	// re-registering keeps the original position
	assert.NoError(t, reg.Register("a", "http://example.org/a2"))

	var prefixes []string
	for _, ns := range reg.Prefixes() {
		prefixes = append(prefixes, ns.Prefix)
	}

	assert.Equal(t, []string{"", "cpp", "a", "b"}, prefixes)
}

func TestRegistryMerge(t *testing.T) {

	reg := NewNamespaceRegistry()
	assert.NoError(t, reg.Register("foo", "http://example.org/foo"))

	local := reg.Merge([]Namespace{
		{Prefix: "foo", URI: "http://example.org/foo"},   // same binding, absorbed
		{Prefix: "bar", URI: "http://example.org/bar"},   // new prefix, absorbed
		{Prefix: "foo", URI: "http://example.org/other"}, // conflict, stays local
	})

	assert.Equal(t, []Namespace{{Prefix: "foo", URI: "http://example.org/other"}}, local)

	uri, ok := reg.URIForPrefix("bar")
	assert.True(t, ok)
	assert.Equal(t, "http://example.org/bar", uri)
}

func TestRegistryClone(t *testing.T) {

	reg := NewNamespaceRegistry()
	assert.NoError(t, reg.Register("foo", "http://example.org/foo"))

	dup := reg.Clone()
	assert.NoError(t, dup.Register("bar", "http://example.org/bar"))

	_, ok := reg.URIForPrefix("bar")
	assert.False(t, ok)
}

func TestInnerUnitNamespaceDeclaration(t *testing.T) {

	arch := newTestArchive()
	arch.EnableFullArchive()

	var buf []byte
	assert.NoError(t, arch.WriteOpenMemory(&buf))

	unit := arch.NewUnit()
	unit.Filename = "a.cpp"
	unit.Namespaces = append(unit.Namespaces, Namespace{Prefix: "foo", URI: "http://example.org/foo"})
	assert.NoError(t, unit.ParseSource([]byte("x;\n")))
	assert.NoError(t, arch.WriteUnit(unit))
	assert.NoError(t, arch.Close())

	doc := string(buf)

	// the binding first needed by the inner unit is declared there, while
	// root bindings are not repeated
	assert.Contains(t, doc, `<unit xmlns:foo="http://example.org/foo" language="C++" filename="a.cpp">`)
	assert.Equal(t, 1, strings.Count(doc, `xmlns="http://www.sdml.info/srcML/src"`))
}

