// ==========================================================================
//
// File Name:  io_test.go
//
// ==========================================================================

package srcml

import (
	"bytes"
	"compress/gzip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksLikeXML(t *testing.T) {

	cases := []struct {
		name  string
		head  string
		isXML bool
	}{
		{"xml declaration", `<?xml version="1.0"?>`, true},
		{"bare unit", `<unit xmlns="x">`, true},
		{"bom then declaration", "\xef\xbb\xbf<?xml", true},
		{"utf16 le bom", "\xff\xfe<\x00?\x00", true},
		{"utf16 be bom", "\xfe\xff\x00<\x00?", true},
		{"source", "int main()", false},
		{"short", "a", false},
		{"empty", "", false},
		{"other element", "<html>", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.isXML, LooksLikeXML([]byte(tc.head)))
		})
	}
}

func TestSniffStreamReplays(t *testing.T) {

	in := strings.NewReader("int a;\nint b;\n")

	replay, isXML, err := sniffStream(in)
	assert.NoError(t, err)
	assert.False(t, isXML)

	all, err := readAll(replay)
	assert.NoError(t, err)
	assert.Equal(t, "int a;\nint b;\n", string(all))
}

func TestDecompressGzip(t *testing.T) {

	var zipped bytes.Buffer
	zw := gzip.NewWriter(&zipped)
	zw.Write([]byte("int a;\n"))
	assert.NoError(t, zw.Close())

	src, err := openSourceReader(&zipped)
	assert.NoError(t, err)

	all, err := readAll(src)
	assert.NoError(t, err)
	assert.Equal(t, "int a;\n", string(all))
}

func TestDecompressPassthrough(t *testing.T) {

	src, err := openSourceReader(strings.NewReader("plain text"))
	assert.NoError(t, err)

	all, err := readAll(src)
	assert.NoError(t, err)
	assert.Equal(t, "plain text", string(all))
}

func TestMemorySink(t *testing.T) {

	var buf []byte
	sink := openSinkMemory(&buf)

	_, err := sink.Write([]byte("one"))
	assert.NoError(t, err)
	_, err = sink.Write([]byte("two"))
	assert.NoError(t, err)
	assert.NoError(t, sink.Close())

	assert.Equal(t, "onetwo", string(buf))
}

func TestGzipSinkRoundTrip(t *testing.T) {

	var buf bytes.Buffer
	sink := openSink(&buf, true)

	_, err := sink.Write([]byte("compressed payload"))
	assert.NoError(t, err)
	assert.NoError(t, sink.Close())

	src, err := openSourceReader(&buf)
	assert.NoError(t, err)

	all, err := readAll(src)
	assert.NoError(t, err)
	assert.Equal(t, "compressed payload", string(all))
}

func TestXMLDeclEncoding(t *testing.T) {

	assert.Equal(t, "ISO-8859-1",
		xmlDeclEncoding([]byte(`<?xml version="1.0" encoding="ISO-8859-1" standalone="yes"?>`)))
	assert.Equal(t, "UTF-8",
		xmlDeclEncoding([]byte(`<?xml version='1.0' encoding='UTF-8'?><unit/>`)))
	assert.Equal(t, "",
		xmlDeclEncoding([]byte(`<?xml version="1.0"?>`)))
	assert.Equal(t, "",
		xmlDeclEncoding([]byte(`<unit/>`)))
}

func TestCheckEncoding(t *testing.T) {

	assert.NoError(t, checkEncoding("UTF-8"))
	assert.NoError(t, checkEncoding("ISO-8859-1"))
	assert.ErrorIs(t, checkEncoding("no-such-encoding"), ErrUnsupportedEncoding)
}

func TestDecodeSource(t *testing.T) {

	// "café" in latin-1
	latin := []byte{'c', 'a', 'f', 0xe9}

	out, err := decodeSource(latin, "ISO-8859-1")
	assert.NoError(t, err)
	assert.Equal(t, "café", string(out))

	// utf-8 input passes through untouched
	out, err = decodeSource([]byte("café"), "UTF-8")
	assert.NoError(t, err)
	assert.Equal(t, "café", string(out))
}
