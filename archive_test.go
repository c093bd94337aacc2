// ==========================================================================
//
// File Name:  archive_test.go
//
// ==========================================================================

package srcml

import (
	"bytes"
	"crypto/sha256"
	"hash"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDoubleOpenRejected(t *testing.T) {

	var buf []byte

	arch := New()
	assert.NoError(t, arch.WriteOpenMemory(&buf))
	assert.ErrorIs(t, arch.WriteOpenMemory(&buf), ErrInvalidIOOperation)
	assert.ErrorIs(t, arch.ReadOpenMemory([]byte("<unit/>")), ErrInvalidIOOperation)

	arch = New()
	assert.NoError(t, arch.ReadOpenMemory([]byte(`<unit xmlns="http://www.sdml.info/srcML/src"/>`)))
	assert.ErrorIs(t, arch.ReadOpenMemory([]byte("<unit/>")), ErrInvalidIOOperation)
	assert.ErrorIs(t, arch.WriteOpenMemory(&buf), ErrInvalidIOOperation)
	arch.Close()
}

func TestWrongRoleRejected(t *testing.T) {

	var buf []byte

	arch := New()
	assert.NoError(t, arch.WriteOpenMemory(&buf))
	_, err := arch.ReadUnit()
	assert.ErrorIs(t, err, ErrInvalidIOOperation)

	arch = New()
	assert.NoError(t, arch.ReadOpenMemory([]byte(`<unit xmlns="http://www.sdml.info/srcML/src"/>`)))
	defer arch.Close()
	assert.ErrorIs(t, arch.WriteUnit(arch.NewUnit()), ErrInvalidIOOperation)
}

func TestConfigurationFrozenAfterOpen(t *testing.T) {

	var buf []byte

	arch := New()
	assert.NoError(t, arch.WriteOpenMemory(&buf))

	assert.ErrorIs(t, arch.SetLanguage(LanguageC), ErrInvalidIOOperation)
	assert.ErrorIs(t, arch.SetURL("u"), ErrInvalidIOOperation)
	assert.ErrorIs(t, arch.EnableFullArchive(), ErrInvalidIOOperation)
	assert.ErrorIs(t, arch.RegisterNamespace("foo", "bar"), ErrInvalidIOOperation)
	assert.ErrorIs(t, arch.RegisterFileExtension("cc", LanguageCPlusPlus), ErrInvalidIOOperation)
	assert.ErrorIs(t, arch.RegisterMacro("M", "macro"), ErrInvalidIOOperation)
}

func TestConfigurationValidation(t *testing.T) {

	arch := New()

	assert.ErrorIs(t, arch.SetTabStop(0), ErrInvalidArgument)
	assert.NoError(t, arch.SetTabStop(4))

	assert.ErrorIs(t, arch.SetLanguage("Fortran"), ErrUnsetLanguage)
	assert.NoError(t, arch.SetLanguage(LanguageJava))

	assert.ErrorIs(t, arch.SetXMLEncoding("no-such-encoding"), ErrUnsupportedEncoding)
	assert.NoError(t, arch.SetXMLEncoding("ISO-8859-1"))

	assert.ErrorIs(t, arch.RegisterFileExtension("", LanguageC), ErrExtensionConflict)
	assert.ErrorIs(t, arch.RegisterFileExtension("f", "Fortran"), ErrUnsetLanguage)
	assert.NoError(t, arch.RegisterFileExtension("cppx", LanguageCPlusPlus))
	assert.NoError(t, arch.RegisterFileExtension("cxx2", LanguageCPlusPlus))

	assert.ErrorIs(t, arch.SetProcessingInstruction("", "data"), ErrInvalidArgument)
	assert.ErrorIs(t, arch.RegisterMacro("", ""), ErrInvalidArgument)
}

func TestClone(t *testing.T) {

	arch := New()
	arch.SetLanguage(LanguageJava)
	arch.SetURL("https://example.org")
	arch.SetTabStop(2)
	arch.RegisterFileExtension("jsp", LanguageJava)
	arch.RegisterMacro("LOG", "macro")
	arch.RegisterNamespace("foo", "http://example.org/foo")
	arch.AddAttribute("origin", "clone-test")
	arch.AddTransform("xpath", "//name")
	arch.DisableHash()

	dup := arch.Clone()

	assert.Equal(t, LanguageJava, dup.Language())
	assert.Equal(t, "https://example.org", dup.URL())
	assert.Equal(t, 2, dup.TabStop())
	assert.Equal(t, []Macro{{Token: "LOG", Type: "macro"}}, dup.Macros())
	assert.Equal(t, []Transform{{Kind: "xpath", Arg: "//name"}}, dup.Transforms())
	assert.False(t, dup.Options().Hash)

	uri, ok := dup.Namespaces().URIForPrefix("foo")
	assert.True(t, ok)
	assert.Equal(t, "http://example.org/foo", uri)

	// the clone owns its state
	dup.RegisterFileExtension("jspx", LanguageJava)
	assert.Equal(t, "", languageForFilename("x.jspx", arch.extensions))

	// the clone opens independently of the original
	var buf []byte
	assert.NoError(t, arch.WriteOpenMemory(&buf))
	var buf2 []byte
	assert.NoError(t, dup.WriteOpenMemory(&buf2))
}

func TestCloneDoesNotShareSink(t *testing.T) {

	arch := New()

	var buf []byte
	assert.NoError(t, arch.WriteOpenMemory(&buf))

	dup := arch.Clone()
	assert.Equal(t, roleClosed, dup.role)
	assert.Nil(t, dup.sink)
}

func TestCustomHash(t *testing.T) {

	arch := New()
	arch.DisableOption(OptionXMLDecl)
	assert.NoError(t, arch.SetHash(func() hash.Hash { return sha256.New() }))

	var buf []byte
	assert.NoError(t, arch.WriteOpenMemory(&buf))

	unit := arch.NewUnit()
	unit.Language = LanguageC
	assert.NoError(t, unit.ParseSource([]byte("a;\n")))

	// sha-256 digests are 64 hex characters
	assert.Len(t, unit.Hash, 64)
}

func TestArchiveSplit(t *testing.T) {

	// read an archive and copy its units into two cloned archives, the
	// classic split flow
	doc := archiveTwoUnitsDoc(t)

	in := New()
	assert.NoError(t, in.ReadOpenMemory([]byte(doc)))
	defer in.Close()

	first := in.Clone()
	second := in.Clone()
	first.EnableFullArchive()
	second.EnableFullArchive()

	var bufA, bufB []byte
	assert.NoError(t, first.WriteOpenMemory(&bufA))
	assert.NoError(t, second.WriteOpenMemory(&bufB))

	n := 0
	for {
		unit, err := in.ReadUnit()
		assert.NoError(t, err)
		if unit == nil {
			break
		}
		if n == 0 {
			assert.NoError(t, first.WriteUnit(unit))
		} else {
			assert.NoError(t, second.WriteUnit(unit))
		}
		n++
	}

	assert.NoError(t, first.Close())
	assert.NoError(t, second.Close())

	assert.True(t, bytes.Contains(bufA, []byte(`filename="a.cpp"`)))
	assert.False(t, bytes.Contains(bufA, []byte(`filename="b.cpp"`)))
	assert.True(t, bytes.Contains(bufB, []byte(`filename="b.cpp"`)))
}

func TestLOCAccumulates(t *testing.T) {

	doc := archiveTwoUnitsDoc(t)

	arch := New()
	assert.NoError(t, arch.ReadOpenMemory([]byte(doc)))
	defer arch.Close()

	for {
		unit, err := arch.ReadUnit()
		assert.NoError(t, err)
		if unit == nil {
			break
		}
	}

	assert.Equal(t, 2, arch.LOC())
}
