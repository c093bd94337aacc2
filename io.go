// ==========================================================================
//
// File Name:  io.go
//
// ==========================================================================

package srcml

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"io/ioutil"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// byteSource is the uniform read side of the byte I/O adapter. The adapter
// closes only what it opened; borrowed readers and descriptors are left open.
type byteSource struct {
	r     io.Reader
	owned io.Closer
}

func (s *byteSource) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

func (s *byteSource) Close() error {

	if s.owned == nil {
		return nil
	}

	return s.owned.Close()
}

// openSourceFile opens a path for reading, unwrapping compression.
func openSourceFile(name string) (*byteSource, error) {

	fl, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %q", name)
	}

	rdr, err := decompress(fl)
	if err != nil {
		fl.Close()
		return nil, err
	}

	return &byteSource{r: rdr, owned: fl}, nil
}

// openSourceReader wraps a borrowed reader, unwrapping compression. The
// caller keeps ownership of the underlying stream.
func openSourceReader(in io.Reader) (*byteSource, error) {

	if in == nil {
		return nil, ErrInvalidArgument
	}

	rdr, err := decompress(in)
	if err != nil {
		return nil, err
	}

	return &byteSource{r: rdr}, nil
}

// openSourceMemory reads from an in-memory buffer.
func openSourceMemory(data []byte) *byteSource {

	return &byteSource{r: bytes.NewReader(data)}
}

// decompress sniffs the stream for a gzip or bzip2 magic number and wraps
// the reader transparently when one is found.
func decompress(in io.Reader) (io.Reader, error) {

	br := bufio.NewReader(in)

	magic, err := br.Peek(3)
	if err != nil {
		// short streams are passed through untouched
		return br, nil
	}

	switch {
	case magic[0] == 0x1f && magic[1] == 0x8b:
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "gzip stream")
		}
		return zr, nil
	case magic[0] == 'B' && magic[1] == 'Z' && magic[2] == 'h':
		return bzip2.NewReader(br), nil
	default:
		return br, nil
	}
}

// byteSink is the uniform write side of the adapter. Writes are
// complete-or-fail; Close flushes any compression tail, then closes only
// what the adapter opened.
type byteSink struct {
	w     io.Writer
	flush func() error
	owned io.Closer
}

func (s *byteSink) Write(p []byte) (int, error) {

	n, err := s.w.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}

	return n, err
}

func (s *byteSink) Close() error {

	if s.flush != nil {
		if err := s.flush(); err != nil {
			return err
		}
	}

	if s.owned == nil {
		return nil
	}

	return s.owned.Close()
}

// openSinkFile opens a path for writing, optionally gzip-compressed. The
// name "-" is standard output, which is borrowed, never closed.
func openSinkFile(name string, compress bool) (*byteSink, error) {

	if name == "-" {
		return openSink(os.Stdout, compress), nil
	}

	fl, err := os.Create(name)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create %q", name)
	}

	sink := openSink(fl, compress)
	sink.owned = fl

	return sink, nil
}

// openSink wraps a borrowed writer, optionally gzip-compressed.
func openSink(w io.Writer, compress bool) *byteSink {

	if !compress {
		return &byteSink{w: w}
	}

	zw := gzip.NewWriter(w)

	return &byteSink{w: zw, flush: zw.Close}
}

// openSinkMemory appends all written bytes to the caller's buffer.
func openSinkMemory(buf *[]byte) *byteSink {

	return &byteSink{w: &memoryWriter{buf: buf}}
}

type memoryWriter struct {
	buf *[]byte
}

func (m *memoryWriter) Write(p []byte) (int, error) {

	*m.buf = append(*m.buf, p...)

	return len(p), nil
}

// LooksLikeXML classifies the first bytes of a stream: a recognized XML
// start sequence (allowing a BOM) means markup XML, anything else is
// source.
func LooksLikeXML(first []byte) bool {

	return looksLikeXML(first)
}

// OpenCompressedSink opens a path (or "-" for stdout) as a gzip-compressed
// writer for use with WriteOpenWriter.
func OpenCompressedSink(name string) (io.WriteCloser, error) {

	return openSinkFile(name, true)
}

func looksLikeXML(first []byte) bool {

	// strip a UTF-8 byte order mark
	if len(first) >= 3 && first[0] == 0xef && first[1] == 0xbb && first[2] == 0xbf {
		first = first[3:]
	}

	// UTF-16 byte order marks only ever lead XML output of this system
	if len(first) >= 2 {
		if (first[0] == 0xfe && first[1] == 0xff) || (first[0] == 0xff && first[1] == 0xfe) {
			return true
		}
	}

	if len(first) >= 4 {
		if bytes.HasPrefix(first, []byte("<?xm")) || bytes.HasPrefix(first, []byte("<uni")) {
			return true
		}
	}

	return false
}

// sniffStream reads enough of a stream to classify it and returns a reader
// that replays the consumed bytes.
func sniffStream(in io.Reader) (io.Reader, bool, error) {

	head := make([]byte, 7)
	n, err := io.ReadFull(in, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, false, errors.Wrap(err, "unable to probe input")
	}
	head = head[:n]

	return io.MultiReader(bytes.NewReader(head), in), looksLikeXML(head), nil
}

// checkEncoding verifies that an encoding name has a handler. A registered
// name with no supported implementation comes back as a nil Encoding and is
// rejected like an unknown one.
func checkEncoding(name string) error {

	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return errors.Wrapf(ErrUnsupportedEncoding, "%q", name)
	}

	return nil
}

// decodeSource converts source bytes in the named encoding to UTF-8.
func decodeSource(src []byte, encoding string) ([]byte, error) {

	if encoding == "" || strings.EqualFold(encoding, "UTF-8") {
		return src, nil
	}

	enc, err := ianaindex.IANA.Encoding(encoding)
	if err != nil || enc == nil {
		return nil, errors.Wrapf(ErrUnsupportedEncoding, "%q", encoding)
	}

	out, _, err := transform.Bytes(enc.NewDecoder(), src)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %q", encoding)
	}

	return out, nil
}

// encodeOutput wraps a sink with an encoder when the XML encoding is not
// UTF-8, so the document bytes match the declared encoding.
func encodeOutput(w io.Writer, encoding string) (io.Writer, error) {

	if encoding == "" || strings.EqualFold(encoding, "UTF-8") {
		return w, nil
	}

	enc, err := ianaindex.IANA.Encoding(encoding)
	if err != nil {
		return nil, errors.Wrapf(ErrUnsupportedEncoding, "%q", encoding)
	}
	if enc == nil {
		return w, nil
	}

	return transform.NewWriter(w, enc.NewEncoder()), nil
}

// decodeXMLStream resolves the encoding label declared (or byte-order
// marked) at the head of an XML stream and returns a UTF-8 reader plus the
// resolved label.
func decodeXMLStream(in io.Reader) (io.Reader, string, error) {

	br := bufio.NewReader(in)

	head, _ := br.Peek(1024)
	label := xmlDeclEncoding(head)

	if label == "" || strings.EqualFold(label, "UTF-8") {
		return br, label, nil
	}

	enc, name := charset.Lookup(label)
	if enc == nil {
		return nil, "", errors.Wrapf(ErrUnsupportedEncoding, "%q", label)
	}

	return transform.NewReader(br, enc.NewDecoder()), name, nil
}

// xmlDeclEncoding pulls the encoding pseudo-attribute out of a leading XML
// declaration, or returns empty when there is none.
func xmlDeclEncoding(head []byte) string {

	if !bytes.HasPrefix(head, []byte("<?xml")) {
		return ""
	}

	end := bytes.Index(head, []byte("?>"))
	if end < 0 {
		return ""
	}

	decl := head[:end]
	pos := bytes.Index(decl, []byte("encoding"))
	if pos < 0 {
		return ""
	}

	rest := decl[pos+len("encoding"):]
	quote := bytes.IndexAny(rest, `"'`)
	if quote < 0 {
		return ""
	}

	q := rest[quote]
	rest = rest[quote+1:]
	stop := bytes.IndexByte(rest, q)
	if stop < 0 {
		return ""
	}

	return string(rest[:stop])
}

// readAll drains a source into memory.
func readAll(in io.Reader) ([]byte, error) {

	data, err := ioutil.ReadAll(in)
	if err != nil {
		return nil, errors.Wrap(err, "read failed")
	}

	return data, nil
}
