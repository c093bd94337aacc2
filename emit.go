// ==========================================================================
//
// File Name:  emit.go
//
// ==========================================================================

package srcml

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// framing states for the write path. The decision is made once, on the
// first unit, and is immutable thereafter.
const (
	framingPending = iota
	framingSolo
	framingFull
)

// emitter writes well-formed markup XML from tokens and from the direct
// element API. It owns the element stack, the framing decision, and the
// per-unit blank-line separators. In fragment mode it emits a bare inner
// unit element with no document or root framing, which is how workers
// produce per-request buffers.
type emitter struct {
	w    io.Writer
	arch *Archive
	opts Options

	fragment bool
	started  bool
	framing  int
	rootOpen bool

	unitOpen  bool
	tagOpen   bool
	tagIsUnit bool
	pendingNS []Namespace
	stack     []string

	written          int
	unitContentBegin int
	unitContentEnd   int
	unitSelfClosed   bool

	pendingUnit *Unit

	err error
}

func newEmitter(w io.Writer, arch *Archive) *emitter {

	return &emitter{
		w:       w,
		arch:    arch,
		opts:    arch.Options(),
		framing: framingPending,
	}
}

// write sends a string to the sink, latching the first error.
func (em *emitter) write(s string) {

	if em.err != nil {
		return
	}

	n, err := io.WriteString(em.w, s)
	em.written += n
	em.err = err
}

func (em *emitter) flush() error {

	return em.err
}

// textEscaper escapes the three characters that markup text escapes, and
// nothing else; every other source byte passes through verbatim.
var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// attrEscaper additionally escapes the attribute quote.
var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// startDocument writes the XML declaration and the processing instruction.
func (em *emitter) startDocument() error {

	if em.started {
		return ErrInvalidIOOperation
	}
	em.started = true

	if em.opts.XMLDecl {
		encoding := em.arch.XMLEncoding()
		if encoding == "" {
			encoding = "UTF-8"
		}
		em.write(`<?xml version="1.0" encoding="` + encoding + `" standalone="yes"?>` + "\n")
	}

	if pi := em.arch.pi; pi != nil {
		em.write("<?" + pi.Target)
		if pi.Data != "" {
			em.write(" " + pi.Data)
		}
		em.write("?>\n")
	}

	return em.err
}

// closePendingTag terminates an open start tag, flushing buffered namespace
// declarations first. The unit content offset is recorded when the closed
// tag is the unit's own.
func (em *emitter) closePendingTag() {

	if !em.tagOpen {
		return
	}

	for _, ns := range em.pendingNS {
		em.writeNSDecl(ns.Prefix, ns.URI)
	}
	em.pendingNS = nil

	em.write(">")
	em.tagOpen = false

	if em.tagIsUnit {
		em.tagIsUnit = false
		em.unitContentBegin = em.written
		if em.framing == framingSolo && !em.fragment {
			em.writeMacros()
		}
	}
}

func (em *emitter) writeNSDecl(prefix, uri string) {

	if prefix == "" {
		em.write(` xmlns="` + attrEscaper.Replace(uri) + `"`)
	} else {
		em.write(` xmlns:` + prefix + `="` + attrEscaper.Replace(uri) + `"`)
	}
}

func (em *emitter) writeAttr(name, value string) {

	em.write(` ` + name + `="` + attrEscaper.Replace(value) + `"`)
}

// canonicalOrder lists the reserved namespaces in emission rule order for
// bindings that are enabled but never explicitly registered.
var canonicalOrder = []Namespace{
	{Prefix: "", URI: SrcNamespaceURI},
	{Prefix: "cpp", URI: CppNamespaceURI},
	{Prefix: "err", URI: ErrNamespaceURI},
	{Prefix: "lit", URI: LiteralNamespaceURI},
	{Prefix: "op", URI: OperatorNamespaceURI},
	{Prefix: "type", URI: ModifierNamespaceURI},
	{Prefix: "pos", URI: PositionNamespaceURI},
}

// enabledNamespaceURIs computes the reserved URIs the enabled options call
// for on the framing root. The cpp namespace is tied to the unit language
// in solo framing; an archive root always declares it when cpp markup is
// on, since inner languages are not yet known.
func (em *emitter) enabledNamespaceURIs(unitLanguage string, outer bool) map[string]bool {

	enabled := map[string]bool{
		SrcNamespaceURI: true,
	}

	if em.opts.CPP {
		if em.framing == framingFull || unitLanguage == "" || languageHasPreprocessor(unitLanguage) {
			enabled[CppNamespaceURI] = true
		}
	}
	if em.opts.Debug {
		enabled[ErrNamespaceURI] = true
	}
	if em.opts.Literal {
		enabled[LiteralNamespaceURI] = true
	}
	if em.opts.Operator {
		enabled[OperatorNamespaceURI] = true
	}
	if em.opts.Modifier {
		enabled[ModifierNamespaceURI] = true
	}
	if em.opts.Position {
		enabled[PositionNamespaceURI] = true
	}

	return enabled
}

// writeRootNamespaces declares namespaces on the framing root: registered
// bindings in registration order (reserved ones only when their option is
// enabled), then enabled reserved namespaces never registered, in rule
// order.
func (em *emitter) writeRootNamespaces(unitLanguage string) {

	if !em.opts.NamespaceDecl {
		return
	}

	enabled := em.enabledNamespaceURIs(unitLanguage, true)
	declared := map[string]bool{}

	for _, ns := range em.arch.Namespaces().Prefixes() {
		_, reserved := reservedPrefixes[ns.Prefix]
		if reserved && !enabled[ns.URI] {
			continue
		}
		em.writeNSDecl(ns.Prefix, ns.URI)
		declared[ns.URI] = true
	}

	for _, ns := range canonicalOrder {
		if enabled[ns.URI] && !declared[ns.URI] {
			em.writeNSDecl(ns.Prefix, ns.URI)
			declared[ns.URI] = true
		}
	}
}

// writeMacros echoes registered user macros as macro-list children.
func (em *emitter) writeMacros() {

	macros := em.arch.Macros()
	if len(macros) == 0 {
		return
	}

	em.write("\n")
	for _, m := range macros {
		em.write(`<macro-list token="` + attrEscaper.Replace(m.Token) +
			`" type="` + attrEscaper.Replace(m.Type) + `"/>` + "\n")
	}
}

// decideFraming fixes solo or full framing; called on the first unit.
func (em *emitter) decideFraming() {

	if em.framing != framingPending {
		return
	}

	if em.opts.FullArchive {
		em.framing = framingFull
	} else {
		em.framing = framingSolo
	}
}

// writeRootStart opens the outer archive element with its namespaces,
// archive attributes, macro list, and the leading unit separator.
func (em *emitter) writeRootStart() {

	em.write("<unit")
	em.writeRootNamespaces("")

	if rev := em.arch.Revision(); rev != "" {
		em.writeAttr("revision", rev)
	}
	if lang := em.arch.Language(); lang != "" {
		em.writeAttr("language", lang)
	}
	if url := em.arch.URL(); url != "" {
		em.writeAttr("url", url)
	}
	if version := em.arch.ArchiveVersion(); version != "" {
		em.writeAttr("version", version)
	}
	if em.opts.Position {
		em.writeAttr("tabs", strconv.Itoa(em.arch.TabStop()))
	}
	for _, attr := range em.arch.attributes {
		em.writeAttr(attr.Name, attr.Value)
	}

	em.write(">")
	em.writeMacros()
	em.write("\n\n")

	em.rootOpen = true
}

// WriteStartUnit opens a unit element. On a framing root (solo, or the
// first unit of a fragmentless document) the framing decision happens
// here; the tag is left open so direct attribute writes may follow.
func (em *emitter) WriteStartUnit(u *Unit) error {

	if !em.started && !em.fragment {
		return ErrInvalidIOOperation
	}
	if em.unitOpen {
		return ErrInvalidInput
	}

	if !em.fragment {
		em.decideFraming()

		if em.framing == framingFull && !em.rootOpen {
			em.writeRootStart()
		}
		if em.framing == framingSolo && em.arch.unitsWritten > 0 {
			return ErrInvalidInput
		}
	}

	outer := !em.fragment && em.framing == framingSolo

	em.write("<unit")

	if outer {
		em.writeRootNamespaces(u.Language)
	}

	// namespaces first needed by this unit are declared locally; bindings
	// the root declaration rules already cover are not repeated
	for _, ns := range u.Namespaces {
		uri := normalizeURI(ns.URI)
		if !em.fragment {
			if outerURI, ok := em.arch.Namespaces().URIForPrefix(ns.Prefix); ok && outerURI == uri {
				continue
			}
			if _, ok := reservedPrefixes[ns.Prefix]; ok && reservedPrefixes[ns.Prefix] == uri {
				continue
			}
		}
		em.writeNSDecl(ns.Prefix, uri)
	}

	em.writeUnitAttrs(u, outer)

	em.unitOpen = true
	em.tagOpen = true
	em.tagIsUnit = true
	em.unitSelfClosed = false
	em.pendingUnit = u

	return em.err
}

// writeUnitAttrs emits the fixed-order attribute list. Absent optional
// values are omitted entirely.
func (em *emitter) writeUnitAttrs(u *Unit, outer bool) {

	revision := u.Revision
	if outer && revision == "" {
		revision = em.arch.Revision()
	}
	if revision != "" {
		em.writeAttr("revision", revision)
	}

	if u.Language != "" {
		em.writeAttr("language", u.Language)
	}

	if outer {
		if url := em.arch.URL(); url != "" {
			em.writeAttr("url", url)
		}
	}

	if u.Filename != "" {
		em.writeAttr("filename", u.Filename)
	}
	if u.Dir != "" {
		em.writeAttr("dir", u.Dir)
	}

	version := u.Version
	if outer && version == "" {
		version = em.arch.ArchiveVersion()
	}
	if version != "" {
		em.writeAttr("version", version)
	}

	if u.Timestamp != "" {
		em.writeAttr("timestamp", u.Timestamp)
	}
	if em.opts.Hash && u.Hash != "" {
		em.writeAttr("hash", u.Hash)
	}
	if outer && em.opts.Position {
		em.writeAttr("tabs", strconv.Itoa(em.arch.TabStop()))
	}
	if em.opts.StoreEncoding && u.Encoding != "" {
		em.writeAttr("src-encoding", u.Encoding)
	}

	for _, attr := range u.Attributes {
		em.writeAttr(attr.Name, attr.Value)
	}
}

// WriteEndUnit closes the open unit, auto-closing dangling elements. An
// empty unit self-closes.
func (em *emitter) WriteEndUnit() error {

	if !em.unitOpen {
		return ErrInvalidInput
	}

	for len(em.stack) > 0 {
		if err := em.WriteEndElement(); err != nil {
			return err
		}
	}

	if em.tagOpen && em.tagIsUnit {
		for _, ns := range em.pendingNS {
			em.writeNSDecl(ns.Prefix, ns.URI)
		}
		em.pendingNS = nil
		em.write("/>")
		em.tagOpen = false
		em.tagIsUnit = false
		em.unitSelfClosed = true
		em.unitContentBegin = em.written
		em.unitContentEnd = em.written
	} else {
		em.closePendingTag()
		em.unitContentEnd = em.written
		em.write("</unit>")
	}

	em.unitOpen = false
	em.pendingUnit = nil

	if !em.fragment {
		if em.framing == framingFull {
			em.write("\n\n")
		} else {
			em.write("\n")
		}
	}

	return em.err
}

// WriteStartElement opens an element inside the current unit. A uri binds
// the element's own prefix (or the default namespace) on the element.
func (em *emitter) WriteStartElement(prefix, name, uri string) error {

	if name == "" {
		return ErrInvalidArgument
	}
	if !em.started && !em.fragment {
		return ErrInvalidIOOperation
	}
	if !em.unitOpen {
		return ErrInvalidInput
	}

	em.closePendingTag()

	qname := name
	if prefix != "" {
		qname = prefix + ":" + name
	}

	em.write("<" + qname)
	em.stack = append(em.stack, qname)
	em.tagOpen = true

	if uri != "" {
		em.pendingNS = append(em.pendingNS, Namespace{Prefix: prefix, URI: uri})
	}

	return em.err
}

// WriteNamespace declares a namespace on the open element.
func (em *emitter) WriteNamespace(prefix, uri string) error {

	if uri == "" {
		return ErrInvalidArgument
	}
	if !em.started && !em.fragment {
		return ErrInvalidIOOperation
	}
	if !em.unitOpen || !em.tagOpen {
		return ErrInvalidInput
	}

	em.pendingNS = append(em.pendingNS, Namespace{Prefix: prefix, URI: uri})

	return em.err
}

// WriteAttribute writes an attribute on the open element. A uri binds the
// attribute's prefix (or the default namespace) on the element, declared
// after all attributes.
func (em *emitter) WriteAttribute(prefix, name, uri, value string) error {

	if name == "" {
		return ErrInvalidArgument
	}
	if !em.started && !em.fragment {
		return ErrInvalidIOOperation
	}
	if !em.unitOpen || !em.tagOpen {
		return ErrInvalidInput
	}

	qname := name
	if prefix != "" {
		qname = prefix + ":" + name
	}

	em.writeAttr(qname, value)

	if uri != "" {
		em.pendingNS = append(em.pendingNS, Namespace{Prefix: prefix, URI: uri})
	}

	return em.err
}

// WriteString writes escaped character data inside the current unit.
func (em *emitter) WriteString(text string) error {

	if !em.started && !em.fragment {
		return ErrInvalidIOOperation
	}
	if !em.unitOpen {
		return ErrInvalidInput
	}

	em.closePendingTag()
	em.write(textEscaper.Replace(text))

	return em.err
}

// WriteEndElement closes the innermost open element; an element with no
// content self-closes.
func (em *emitter) WriteEndElement() error {

	if !em.started && !em.fragment {
		return ErrInvalidIOOperation
	}
	if !em.unitOpen || len(em.stack) == 0 {
		return ErrInvalidInput
	}

	qname := em.stack[len(em.stack)-1]
	em.stack = em.stack[:len(em.stack)-1]

	if em.tagOpen && !em.tagIsUnit {
		for _, ns := range em.pendingNS {
			em.writeNSDecl(ns.Prefix, ns.URI)
		}
		em.pendingNS = nil
		em.write("/>")
		em.tagOpen = false
	} else {
		em.closePendingTag()
		em.write("</" + qname + ">")
	}

	return em.err
}

// qnameForKind resolves the emission name of a token kind through the
// archive's registry, honoring re-registered prefixes.
func (em *emitter) qnameForKind(kind TokenKind) string {

	spec := elementTable[kind]

	var uri, fallback string
	switch spec.ns {
	case nsSrc:
		uri, fallback = SrcNamespaceURI, ""
	case nsCpp:
		uri, fallback = CppNamespaceURI, "cpp"
	case nsLit:
		uri, fallback = LiteralNamespaceURI, "lit"
	case nsOp:
		uri, fallback = OperatorNamespaceURI, "op"
	case nsMod:
		uri, fallback = ModifierNamespaceURI, "type"
	case nsErr:
		uri, fallback = ErrNamespaceURI, "err"
	}

	prefix := fallback
	if p, ok := em.arch.Namespaces().PrefixForURI(uri); ok {
		prefix = p
	}

	if prefix == "" {
		return spec.local
	}

	return prefix + ":" + spec.local
}

// writeTokens consumes a markup token stream. The unit start token carries
// the framing side-effect; the pending unit supplies its attributes.
func (em *emitter) writeTokens(stream TokenStream) error {

	unit := em.pendingUnit

	for {
		tkn := stream.NextToken()

		switch tkn.Type {
		case TokenEOF:
			return em.err

		case TokenStart:
			if tkn.Kind == KindUnit {
				if !em.unitOpen {
					if err := em.WriteStartUnit(unit); err != nil {
						return err
					}
				}
				continue
			}
			em.closePendingTag()
			em.write("<" + em.qnameForKind(tkn.Kind))
			for _, attr := range tkn.Attr {
				em.writeAttr(attr.Name, attr.Value)
			}
			em.stack = append(em.stack, em.qnameForKind(tkn.Kind))
			em.tagOpen = true

		case TokenEnd:
			if tkn.Kind == KindUnit {
				if em.unitOpen {
					if err := em.WriteEndUnit(); err != nil {
						return err
					}
				}
				continue
			}
			if err := em.WriteEndElement(); err != nil {
				return err
			}

		case TokenEmpty:
			em.closePendingTag()
			em.write("<" + em.qnameForKind(tkn.Kind))
			for _, attr := range tkn.Attr {
				em.writeAttr(attr.Name, attr.Value)
			}
			em.write("/>")

		case TokenText:
			em.closePendingTag()
			em.write(textEscaper.Replace(string(tkn.Text)))

		case TokenEscape:
			em.closePendingTag()
			var b byte
			if len(tkn.Text) > 0 {
				b = tkn.Text[0]
			}
			em.write("<" + em.qnameForKind(KindEscape) + fmt.Sprintf(` char="0x%x"/>`, b))
		}

		if em.err != nil {
			return em.err
		}
	}
}

// writeUnit serializes a fully-formed unit: regenerated start tag, raw
// body from the unit's markup fragment, end tag, and separators.
func (em *emitter) writeUnit(u *Unit) error {

	if err := em.WriteStartUnit(u); err != nil {
		return err
	}

	body := ""
	if u.srcml != nil && u.ContentEnd >= u.ContentBegin && u.ContentEnd <= len(u.srcml) {
		body = string(u.srcml[u.ContentBegin:u.ContentEnd])
	}

	if body != "" {
		em.closePendingTag()
		em.write(body)
	}

	return em.WriteEndUnit()
}

// closeDocument writes the structural tail: the outer element close for a
// full archive and the final newline.
func (em *emitter) closeDocument() error {

	if em.unitOpen {
		if err := em.WriteEndUnit(); err != nil {
			return err
		}
	}

	if em.rootOpen {
		em.write("</unit>\n")
		em.rootOpen = false
	}

	return em.err
}
