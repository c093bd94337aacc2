// ==========================================================================
//
// File Name:  archive.go
//
// ==========================================================================

package srcml

import (
	"hash"
	"io"
	"sync/atomic"

	"github.com/pkg/errors"
)

// archive roles: an archive is configured, then opened exactly once as a
// reader or a writer.
type archiveRole int

const (
	roleClosed archiveRole = iota
	roleWriter
	roleReader
	roleDone
)

// Macro is one user macro registration, echoed into the document root as a
// macro-list element.
type Macro struct {
	Token string
	Type  string
}

// ProcessingInstruction is the optional instruction written after the XML
// declaration.
type ProcessingInstruction struct {
	Target string
	Data   string
}

// Transform is one registered transformation request, applied by the
// transformation glue outside this package. The list is carried so clones
// and drivers can inspect it.
type Transform struct {
	Kind string
	Arg  string
}

// Archive is the container for archive-level metadata, options, and the
// open sink or source. Configuration happens before open; once opened,
// changes that affect output framing are rejected.
type Archive struct {
	xmlEncoding string
	srcEncoding string
	language    string
	url         string
	version     string
	revision    string
	tabStop     int

	opts       Options
	namespaces *NamespaceRegistry
	extensions map[string]string
	macros     []Macro
	attributes []Attribute
	transforms []Transform
	pi         *ProcessingInstruction

	newHash func() hash.Hash

	role         archiveRole
	em           *emitter
	sink         *byteSink
	rdr          *Reader
	source       *byteSource
	unitsWritten int

	loc      int64
	errCount int64
	lastErr  error
}

// New creates an empty archive with default options, the builtin namespace
// registry, and the default content hash.
func New() *Archive {

	return &Archive{
		xmlEncoding: "UTF-8",
		revision:    Version,
		tabStop:     8,
		opts:        DefaultOptions(),
		namespaces:  NewNamespaceRegistry(),
		extensions:  make(map[string]string),
		newHash:     defaultHash,
	}
}

// Clone copies options, namespaces, extensions, macros, attributes, and
// transformations into a fresh unopened archive. The sink and role are
// never cloned.
func (a *Archive) Clone() *Archive {

	out := New()

	out.xmlEncoding = a.xmlEncoding
	out.srcEncoding = a.srcEncoding
	out.language = a.language
	out.url = a.url
	out.version = a.version
	out.revision = a.revision
	out.tabStop = a.tabStop
	out.opts = a.opts
	out.namespaces = a.namespaces.Clone()
	out.newHash = a.newHash

	for k, v := range a.extensions {
		out.extensions[k] = v
	}
	out.macros = append([]Macro(nil), a.macros...)
	out.attributes = append([]Attribute(nil), a.attributes...)
	out.transforms = append([]Transform(nil), a.transforms...)
	if a.pi != nil {
		pi := *a.pi
		out.pi = &pi
	}

	return out
}

// configurable rejects configuration once the archive has been opened.
func (a *Archive) configurable() error {

	if a.role != roleClosed {
		return ErrInvalidIOOperation
	}

	return nil
}

// SetXMLEncoding sets the encoding of the output XML document.
func (a *Archive) SetXMLEncoding(encoding string) error {

	if err := a.configurable(); err != nil {
		return err
	}
	if encoding == "" {
		return ErrInvalidArgument
	}
	if err := checkEncoding(encoding); err != nil {
		return err
	}

	a.xmlEncoding = encoding

	return nil
}

// SetSrcEncoding sets the encoding source bytes are decoded from.
func (a *Archive) SetSrcEncoding(encoding string) error {

	if err := a.configurable(); err != nil {
		return err
	}
	if encoding == "" {
		return ErrInvalidArgument
	}
	if err := checkEncoding(encoding); err != nil {
		return err
	}

	a.srcEncoding = encoding

	return nil
}

// SetLanguage sets the default language for units with no language of
// their own.
func (a *Archive) SetLanguage(language string) error {

	if err := a.configurable(); err != nil {
		return err
	}
	if !CheckLanguage(language) {
		return errors.Wrapf(ErrUnsetLanguage, "%q", language)
	}

	a.language = language

	return nil
}

// SetURL sets the url attribute of the framing root.
func (a *Archive) SetURL(url string) error {

	if err := a.configurable(); err != nil {
		return err
	}

	a.url = url

	return nil
}

// SetVersion sets the version attribute of the framing root.
func (a *Archive) SetVersion(version string) error {

	if err := a.configurable(); err != nil {
		return err
	}

	a.version = version

	return nil
}

// SetRevision overrides the revision attribute. The default is the library
// version.
func (a *Archive) SetRevision(revision string) error {

	if err := a.configurable(); err != nil {
		return err
	}

	a.revision = revision

	return nil
}

// SetTabStop sets the tab stop; values below one are rejected.
func (a *Archive) SetTabStop(tabstop int) error {

	if err := a.configurable(); err != nil {
		return err
	}
	if tabstop < 1 {
		return ErrInvalidArgument
	}

	a.tabStop = tabstop

	return nil
}

// SetProcessingInstruction sets the instruction written after the XML
// declaration.
func (a *Archive) SetProcessingInstruction(target, data string) error {

	if err := a.configurable(); err != nil {
		return err
	}
	if target == "" {
		return ErrInvalidArgument
	}

	a.pi = &ProcessingInstruction{Target: target, Data: data}

	return nil
}

// RegisterFileExtension maps a filename extension to a language for later
// lookups. Multiple extensions may map to the same language.
func (a *Archive) RegisterFileExtension(extension, language string) error {

	if err := a.configurable(); err != nil {
		return err
	}
	if extension == "" {
		return errors.Wrap(ErrExtensionConflict, "empty extension")
	}
	if !CheckLanguage(language) {
		return errors.Wrapf(ErrUnsetLanguage, "%q", language)
	}

	a.extensions[extension] = language

	return nil
}

// RegisterNamespace binds a prefix to a URI on the archive registry.
func (a *Archive) RegisterNamespace(prefix, uri string) error {

	if err := a.configurable(); err != nil {
		return err
	}

	return a.namespaces.Register(prefix, uri)
}

// RegisterMacro appends a user macro, echoed into the XML root before the
// first unit body.
func (a *Archive) RegisterMacro(token, kind string) error {

	if err := a.configurable(); err != nil {
		return err
	}
	if token == "" || kind == "" {
		return ErrInvalidArgument
	}

	a.macros = append(a.macros, Macro{Token: token, Type: kind})

	return nil
}

// AddAttribute appends a user attribute emitted on the framing root after
// the fixed attributes, in insertion order.
func (a *Archive) AddAttribute(name, value string) error {

	if err := a.configurable(); err != nil {
		return err
	}
	if name == "" {
		return ErrInvalidArgument
	}

	a.attributes = append(a.attributes, Attribute{Name: name, Value: value})

	return nil
}

// AddTransform appends a transformation request for the driver glue.
func (a *Archive) AddTransform(kind, arg string) error {

	if err := a.configurable(); err != nil {
		return err
	}
	if kind == "" {
		return ErrInvalidArgument
	}

	a.transforms = append(a.transforms, Transform{Kind: kind, Arg: arg})

	return nil
}

// Transforms returns the registered transformation requests.
func (a *Archive) Transforms() []Transform {

	return append([]Transform(nil), a.transforms...)
}

// EnableFullArchive forces the outer archive framing.
func (a *Archive) EnableFullArchive() error { return a.EnableOption(OptionFullArchive) }

// DisableFullArchive removes the forced archive framing.
func (a *Archive) DisableFullArchive() error { return a.DisableOption(OptionFullArchive) }

// EnableHash turns per-unit content hashing on.
func (a *Archive) EnableHash() error { return a.EnableOption(OptionHash) }

// DisableHash turns per-unit content hashing off.
func (a *Archive) DisableHash() error { return a.DisableOption(OptionHash) }

// EnableOption sets one option flag; must precede open.
func (a *Archive) EnableOption(flag Option) error {

	if err := a.configurable(); err != nil {
		return err
	}

	a.opts.enable(flag, true)

	return nil
}

// DisableOption clears one option flag; must precede open.
func (a *Archive) DisableOption(flag Option) error {

	if err := a.configurable(); err != nil {
		return err
	}

	a.opts.enable(flag, false)

	return nil
}

// SetHash overrides the per-archive content hash constructor.
func (a *Archive) SetHash(newHash func() hash.Hash) error {

	if err := a.configurable(); err != nil {
		return err
	}
	if newHash == nil {
		return ErrInvalidArgument
	}

	a.newHash = newHash

	return nil
}

// Options returns the archive's option flags.
func (a *Archive) Options() Options { return a.opts }

// XMLEncoding returns the configured XML document encoding.
func (a *Archive) XMLEncoding() string { return a.xmlEncoding }

// SrcEncoding returns the configured source encoding.
func (a *Archive) SrcEncoding() string { return a.srcEncoding }

// Language returns the archive default language.
func (a *Archive) Language() string { return a.language }

// URL returns the url attribute.
func (a *Archive) URL() string { return a.url }

// ArchiveVersion returns the version attribute.
func (a *Archive) ArchiveVersion() string { return a.version }

// Revision returns the revision attribute.
func (a *Archive) Revision() string { return a.revision }

// TabStop returns the tab stop.
func (a *Archive) TabStop() int { return a.tabStop }

// Namespaces returns the archive's namespace registry.
func (a *Archive) Namespaces() *NamespaceRegistry { return a.namespaces }

// Macros returns the registered user macros in insertion order.
func (a *Archive) Macros() []Macro { return append([]Macro(nil), a.macros...) }

// languageFor resolves a unit language from the archive default or the
// extension registry.
func (a *Archive) languageFor(filename string) string {

	if a.language != "" {
		return a.language
	}
	if filename == "" {
		return ""
	}

	return languageForFilename(filename, a.extensions)
}

// promoteToFullArchive switches an undecided writer to full framing. The
// write queue applies this policy when more than one unit is in flight by
// the time the first one lands.
func (a *Archive) promoteToFullArchive() {

	if a.em != nil && a.em.framing == framingPending {
		a.opts.FullArchive = true
		a.em.opts.FullArchive = true
	}
}

// Err returns the archive's last recorded error.
func (a *Archive) Err() error { return a.lastErr }

func (a *Archive) setError(err error) error {

	if err != nil {
		a.lastErr = err
	}

	return err
}

// ErrorCount returns the number of unit-level errors recorded during a
// pipeline run.
func (a *Archive) ErrorCount() int { return int(atomic.LoadInt64(&a.errCount)) }

func (a *Archive) countError() { atomic.AddInt64(&a.errCount, 1) }

// AddLOC accumulates lines of code across units.
func (a *Archive) AddLOC(n int) { atomic.AddInt64(&a.loc, int64(n)) }

// LOC returns the accumulated line count.
func (a *Archive) LOC() int { return int(atomic.LoadInt64(&a.loc)) }

// openWriter finalizes configuration and installs the emitter. A second
// open in either role fails.
func (a *Archive) openWriter(sink *byteSink) error {

	if a.role != roleClosed {
		return a.setError(ErrInvalidIOOperation)
	}

	if err := a.namespaces.validate(); err != nil {
		return a.setError(err)
	}

	w, err := encodeOutput(sink, a.xmlEncoding)
	if err != nil {
		return a.setError(err)
	}

	a.sink = sink
	a.em = newEmitter(w, a)
	a.role = roleWriter

	if err := a.em.startDocument(); err != nil {
		return a.setError(err)
	}

	return nil
}

// WriteOpenFile opens a path as the archive sink.
func (a *Archive) WriteOpenFile(name string) error {

	if a.role != roleClosed {
		return a.setError(ErrInvalidIOOperation)
	}

	sink, err := openSinkFile(name, false)
	if err != nil {
		return a.setError(err)
	}

	return a.openWriter(sink)
}

// WriteOpenWriter opens a borrowed writer as the archive sink; the writer
// is never closed by the archive.
func (a *Archive) WriteOpenWriter(w io.Writer) error {

	if w == nil {
		return a.setError(ErrInvalidArgument)
	}
	if a.role != roleClosed {
		return a.setError(ErrInvalidIOOperation)
	}

	return a.openWriter(openSink(w, false))
}

// WriteOpenMemory appends the document to the caller's buffer.
func (a *Archive) WriteOpenMemory(buf *[]byte) error {

	if buf == nil {
		return a.setError(ErrInvalidArgument)
	}
	if a.role != roleClosed {
		return a.setError(ErrInvalidIOOperation)
	}

	return a.openWriter(openSinkMemory(buf))
}

// openReader installs the streaming reader.
func (a *Archive) openReader(src *byteSource) error {

	if a.role != roleClosed {
		return a.setError(ErrInvalidIOOperation)
	}

	if err := a.namespaces.validate(); err != nil {
		return a.setError(err)
	}

	rdr, err := newReader(src, a)
	if err != nil {
		return a.setError(err)
	}

	a.source = src
	a.rdr = rdr
	a.role = roleReader

	return nil
}

// ReadOpenFile opens a markup XML document from a path.
func (a *Archive) ReadOpenFile(name string) error {

	if a.role != roleClosed {
		return a.setError(ErrInvalidIOOperation)
	}

	src, err := openSourceFile(name)
	if err != nil {
		return a.setError(err)
	}

	return a.openReader(src)
}

// ReadOpenReader opens a markup XML document from a borrowed reader.
func (a *Archive) ReadOpenReader(r io.Reader) error {

	if a.role != roleClosed {
		return a.setError(ErrInvalidIOOperation)
	}

	src, err := openSourceReader(r)
	if err != nil {
		return a.setError(err)
	}

	return a.openReader(src)
}

// ReadOpenMemory opens a markup XML document held in memory.
func (a *Archive) ReadOpenMemory(data []byte) error {

	if a.role != roleClosed {
		return a.setError(ErrInvalidIOOperation)
	}

	return a.openReader(openSourceMemory(data))
}

// Reader exposes the streaming reader for header-only access.
func (a *Archive) Reader() *Reader { return a.rdr }

// ReadUnit returns the next unit from a reader archive, or nil at EOF.
// Units must be read strictly sequentially.
func (a *Archive) ReadUnit() (*Unit, error) {

	if a.role != roleReader {
		return nil, a.setError(ErrInvalidIOOperation)
	}

	unit, err := a.rdr.ReadSrcML()
	if err != nil {
		return nil, a.setError(err)
	}
	if unit != nil {
		unit.archive = a
		a.AddLOC(unit.LOC)
		// fold the unit's bindings into the archive context; conflicting
		// prefixes stay unit-local
		a.namespaces.Merge(unit.Namespaces)
	}

	return unit, nil
}

// WriteUnit appends a fully-formed unit to the archive. In solo framing a
// second write fails.
func (a *Archive) WriteUnit(u *Unit) error {

	if a.role != roleWriter {
		return a.setError(ErrInvalidIOOperation)
	}
	if u == nil {
		return a.setError(ErrInvalidArgument)
	}

	if u.srcml == nil {
		src := u.source
		if src == nil {
			return a.setError(ErrInvalidInput)
		}
		if err := u.ParseSource(src); err != nil {
			return a.setError(err)
		}
	}

	if err := a.em.writeUnit(u); err != nil {
		return a.setError(err)
	}

	a.unitsWritten++

	return nil
}

// WriteStartUnit begins a unit on the writer, leaving it open for direct
// element writes.
func (a *Archive) WriteStartUnit(u *Unit) error {

	if a.role != roleWriter {
		return a.setError(ErrInvalidIOOperation)
	}
	if u == nil {
		return a.setError(ErrInvalidArgument)
	}

	return a.setError(a.em.WriteStartUnit(u))
}

// WriteEndUnit closes the open unit, auto-closing any dangling elements.
func (a *Archive) WriteEndUnit() error {

	if a.role != roleWriter {
		return a.setError(ErrInvalidIOOperation)
	}

	if err := a.em.WriteEndUnit(); err != nil {
		return a.setError(err)
	}

	a.unitsWritten++

	return nil
}

// WriteStartElement writes an element open tag inside the current unit.
func (a *Archive) WriteStartElement(prefix, name, uri string) error {

	if a.role != roleWriter {
		return a.setError(ErrInvalidIOOperation)
	}

	return a.setError(a.em.WriteStartElement(prefix, name, uri))
}

// WriteEndElement closes the innermost open element.
func (a *Archive) WriteEndElement() error {

	if a.role != roleWriter {
		return a.setError(ErrInvalidIOOperation)
	}

	return a.setError(a.em.WriteEndElement())
}

// WriteNamespace writes a namespace declaration on the open element.
func (a *Archive) WriteNamespace(prefix, uri string) error {

	if a.role != roleWriter {
		return a.setError(ErrInvalidIOOperation)
	}

	return a.setError(a.em.WriteNamespace(prefix, uri))
}

// WriteAttribute writes an attribute on the open element.
func (a *Archive) WriteAttribute(prefix, name, uri, value string) error {

	if a.role != roleWriter {
		return a.setError(ErrInvalidIOOperation)
	}

	return a.setError(a.em.WriteAttribute(prefix, name, uri, value))
}

// WriteString writes escaped character data inside the current unit.
func (a *Archive) WriteString(text string) error {

	if a.role != roleWriter {
		return a.setError(ErrInvalidIOOperation)
	}

	return a.setError(a.em.WriteString(text))
}

// Close flushes the structural tail and releases the sink or source. The
// archive cannot be reopened.
func (a *Archive) Close() error {

	switch a.role {
	case roleWriter:
		a.role = roleDone
		if err := a.em.closeDocument(); err != nil {
			a.sink.Close()
			return a.setError(err)
		}
		return a.setError(a.sink.Close())
	case roleReader:
		a.role = roleDone
		a.rdr.Stop()
		return a.setError(a.source.Close())
	default:
		a.role = roleDone
		return nil
	}
}
