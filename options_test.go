// ==========================================================================
//
// File Name:  options_test.go
//
// ==========================================================================

package srcml

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsBitsRoundTrip(t *testing.T) {

	opts := DefaultOptions()
	opts.Position = true
	opts.Operator = true

	assert.Equal(t, opts, OptionsFromBits(opts.Bits()))
}

func TestUnknownOptionBitsPreserved(t *testing.T) {

	// a flag this version does not recognize survives decode and encode
	unknown := uint64(1) << 40
	bits := uint64(OptionXMLDecl|OptionHash) | unknown

	opts := OptionsFromBits(bits)
	assert.True(t, opts.XMLDecl)
	assert.True(t, opts.Hash)
	assert.Equal(t, unknown, opts.Unknown)

	assert.Equal(t, bits, opts.Bits())
}

func TestEnableUnknownOption(t *testing.T) {

	arch := New()

	flag := Option(1) << 50
	assert.NoError(t, arch.EnableOption(flag))
	assert.Equal(t, uint64(flag), arch.Options().Unknown)

	assert.NoError(t, arch.DisableOption(flag))
	assert.Equal(t, uint64(0), arch.Options().Unknown)
}

func TestDefaultOptions(t *testing.T) {

	opts := DefaultOptions()

	assert.True(t, opts.XMLDecl)
	assert.True(t, opts.NamespaceDecl)
	assert.True(t, opts.CPP)
	assert.True(t, opts.Hash)
	assert.False(t, opts.FullArchive)
	assert.False(t, opts.Position)
}
