// ==========================================================================
//
// File Name:  reader.go
//
// ==========================================================================

package srcml

import (
	"bytes"
	"io"
	"strconv"
	"sync"

	"github.com/orisano/gosax"
	"github.com/pkg/errors"
)

// reader boundary kinds. The parser pauses at each boundary; the blocked
// channel send is the pause, the consumer's receive is the resume.
const (
	boundaryRoot = iota
	boundaryUnitHeader
	boundaryUnitBody
	boundaryDone
)

type saxBoundary struct {
	kind int
	unit *Unit
	err  error
}

// RootInfo carries the root element metadata of a markup XML document:
// attributes, namespace bindings, decoded option flags, the processing
// instruction, and the user macro list.
type RootInfo struct {
	Encoding  string
	Revision  string
	Language  string
	URL       string
	Filename  string
	Dir       string
	Version   string
	Timestamp string
	Hash      string
	TabStop   int

	Options    Options
	Namespaces []Namespace
	Attributes []Attribute

	ProcessingInstruction *ProcessingInstruction
	Macros                []Macro

	IsArchive bool
}

// Reader drives a streaming XML parse of a markup document on its own
// goroutine, pausing at unit boundaries so the consumer can inspect
// headers without materializing bodies. Exactly two goroutines are active:
// the parser and the consumer.
type Reader struct {
	arch *Archive

	boundaries chan saxBoundary
	stopc      chan struct{}
	stopOnce   sync.Once

	root *RootInfo
	cur  *Unit
	done bool
	err  error
}

// newReader starts the parser goroutine over a markup XML stream.
func newReader(src io.Reader, arch *Archive) (*Reader, error) {

	if src == nil {
		return nil, ErrInvalidArgument
	}

	decoded, label, err := decodeXMLStream(src)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		arch:       arch,
		boundaries: make(chan saxBoundary),
		stopc:      make(chan struct{}),
	}

	go r.run(decoded, label)

	return r, nil
}

// Stop sets the terminate flag and releases the parser, which returns at
// its next boundary check.
func (r *Reader) Stop() {

	r.stopOnce.Do(func() { close(r.stopc) })
}

// send delivers a boundary or aborts on stop. Returns false to terminate.
func (r *Reader) send(b saxBoundary) bool {

	select {
	case r.boundaries <- b:
		return true
	case <-r.stopc:
		return false
	}
}

// next receives the parser's next boundary; a closed channel means done.
func (r *Reader) next() (saxBoundary, bool) {

	b, ok := <-r.boundaries

	return b, ok
}

// stopped reports whether the consumer has called Stop; later reads are
// no-ops.
func (r *Reader) stopped() bool {

	select {
	case <-r.stopc:
		return true
	default:
		return false
	}
}

// parseTagAttrs splits a raw start tag into its attributes and namespace
// declarations.
func parseTagAttrs(tag []byte) ([]Attribute, []Namespace, error) {

	_, raw := gosax.Name(tag)

	var attrs []Attribute
	var nss []Namespace

	for len(raw) > 0 {
		attr, rest, err := gosax.NextAttribute(raw)
		if err != nil {
			return nil, nil, errors.Wrap(ErrParse, err.Error())
		}
		raw = rest
		if len(attr.Key) == 0 {
			break
		}

		value := attr.Value
		if len(value) >= 2 {
			value = value[1 : len(value)-1]
		}
		unescaped, err := gosax.Unescape(value)
		if err != nil {
			return nil, nil, errors.Wrap(ErrParse, err.Error())
		}

		key := string(attr.Key)
		switch {
		case key == "xmlns":
			nss = append(nss, Namespace{Prefix: "", URI: string(unescaped)})
		case len(key) > 6 && key[:6] == "xmlns:":
			nss = append(nss, Namespace{Prefix: key[6:], URI: string(unescaped)})
		default:
			attrs = append(attrs, Attribute{Name: key, Value: string(unescaped)})
		}
	}

	return attrs, nss, nil
}

// optionsFromNamespaces decodes the markup options implied by the
// namespace declarations of the root element.
func optionsFromNamespaces(nss []Namespace, sawDecl bool) Options {

	opts := Options{
		XMLDecl:       sawDecl,
		NamespaceDecl: len(nss) > 0,
	}

	for _, ns := range nss {
		switch normalizeURI(ns.URI) {
		case CppNamespaceURI:
			opts.CPP = true
		case ErrNamespaceURI:
			opts.Debug = true
		case LiteralNamespaceURI:
			opts.Literal = true
		case OperatorNamespaceURI:
			opts.Operator = true
		case ModifierNamespaceURI:
			opts.Modifier = true
		case PositionNamespaceURI:
			opts.Position = true
		}
	}

	return opts
}

// fillRootInfo distributes root attributes into their named slots; the
// rest stay user attributes.
func fillRootInfo(info *RootInfo, attrs []Attribute) {

	for _, attr := range attrs {
		switch attr.Name {
		case "revision":
			info.Revision = attr.Value
		case "language":
			info.Language = attr.Value
		case "url":
			info.URL = attr.Value
		case "filename":
			info.Filename = attr.Value
		case "dir":
			info.Dir = attr.Value
		case "version":
			info.Version = attr.Value
		case "timestamp":
			info.Timestamp = attr.Value
		case "hash":
			info.Hash = attr.Value
			info.Options.Hash = true
		case "tabs":
			if n, err := strconv.Atoi(attr.Value); err == nil && n >= 1 {
				info.TabStop = n
			}
		default:
			info.Attributes = append(info.Attributes, attr)
		}
	}
}

// fillUnit distributes unit attributes into their named slots.
func fillUnit(u *Unit, attrs []Attribute, nss []Namespace) {

	for _, attr := range attrs {
		switch attr.Name {
		case "revision":
			u.Revision = attr.Value
		case "language":
			u.Language = attr.Value
		case "filename":
			u.Filename = attr.Value
		case "dir":
			u.Dir = attr.Value
		case "version":
			u.Version = attr.Value
		case "timestamp":
			u.Timestamp = attr.Value
		case "hash":
			u.Hash = attr.Value
		case "src-encoding":
			u.Encoding = attr.Value
		case "url":
			// advisory on units, kept as a plain attribute
			u.Attributes = append(u.Attributes, attr)
		default:
			u.Attributes = append(u.Attributes, attr)
		}
	}

	u.Namespaces = append(u.Namespaces, nss...)
}

// run is the parser goroutine: it walks the SAX event stream, surfaces
// boundaries, and captures verbatim unit XML.
func (r *Reader) run(in io.Reader, encodingLabel string) {

	defer close(r.boundaries)

	gr := gosax.NewReader(in)
	gr.EmitSelfClosingTag = true

	info := &RootInfo{Encoding: encodingLabel, TabStop: 8}

	fail := func(err error) {
		r.send(saxBoundary{kind: boundaryDone, err: err})
	}

	// prolog: processing instructions and misc before the root element
	sawDecl := false
	var rootTag []byte

	for rootTag == nil {
		ev, err := gr.Event()
		if err != nil {
			fail(errors.Wrap(ErrParse, err.Error()))
			return
		}

		switch ev.Type() {
		case gosax.EventEOF:
			fail(errors.Wrap(ErrParse, "missing root element"))
			return
		case gosax.EventProcessingInstruction:
			pi := gosax.ProcInst(ev.Bytes)
			if pi.Target == "xml" {
				sawDecl = true
				if enc := xmlDeclEncoding(ev.Bytes); enc != "" && info.Encoding == "" {
					info.Encoding = enc
				}
			} else {
				info.ProcessingInstruction = &ProcessingInstruction{
					Target: pi.Target,
					Data:   string(pi.Inst),
				}
			}
		case gosax.EventStart:
			rootTag = append([]byte(nil), ev.Bytes...)
		default:
			// comments, doctype, stray whitespace
		}
	}

	if info.Encoding == "" {
		info.Encoding = "UTF-8"
	}

	rootAttrs, rootNS, err := parseTagAttrs(rootTag)
	if err != nil {
		fail(err)
		return
	}

	info.Namespaces = rootNS
	info.Options = optionsFromNamespaces(rootNS, sawDecl)
	fillRootInfo(info, rootAttrs)

	rootSelfClosed := bytes.HasSuffix(rootTag, []byte("/>"))

	// scan past root metadata to learn the framing: a unit child means a
	// full archive, any other content means the root is itself the unit
	var pending []byte   // buffered whitespace, replayed into a solo body
	var heldStart []byte // first body event of a solo document
	var heldText []byte
	var firstUnit []byte
	isArchive := false
	sawRootEnd := false

	if !rootSelfClosed {
	scan:
		for {
			ev, err := gr.Event()
			if err != nil {
				fail(errors.Wrap(ErrParse, err.Error()))
				return
			}

			switch ev.Type() {
			case gosax.EventEOF:
				fail(errors.Wrap(ErrParse, "truncated document"))
				return
			case gosax.EventText:
				text, cerr := gosax.CharData(ev.Bytes)
				if cerr == nil && len(bytes.TrimSpace(text)) == 0 {
					pending = append(pending, ev.Bytes...)
					continue
				}
				heldText = append([]byte(nil), ev.Bytes...)
				break scan
			case gosax.EventStart:
				name, _ := gosax.Name(ev.Bytes)
				switch local(name) {
				case "macro-list":
					attrs, _, aerr := parseTagAttrs(ev.Bytes)
					if aerr != nil {
						fail(aerr)
						return
					}
					macro := Macro{}
					for _, attr := range attrs {
						switch attr.Name {
						case "token":
							macro.Token = attr.Value
						case "type":
							macro.Type = attr.Value
						}
					}
					info.Macros = append(info.Macros, macro)
					pending = nil
					if err := skipElement(gr, bytes.HasSuffix(ev.Bytes, []byte("/>"))); err != nil {
						fail(err)
						return
					}
					continue
				case "unit":
					isArchive = true
					firstUnit = append([]byte(nil), ev.Bytes...)
					break scan
				default:
					heldStart = append([]byte(nil), ev.Bytes...)
					break scan
				}
			case gosax.EventEnd:
				// empty root: treated as an archive with no units
				isArchive = true
				sawRootEnd = true
				break scan
			default:
				pending = nil
			}
		}
	} else {
		isArchive = true
		sawRootEnd = true
	}

	info.IsArchive = isArchive
	r.root = info

	if !r.send(saxBoundary{kind: boundaryRoot}) {
		return
	}

	if !isArchive {
		r.runSolo(gr, info, rootTag, pending, heldStart, heldText)
		return
	}

	// archive: stream each inner unit
	for !sawRootEnd {
		if firstUnit == nil {
			// skip inter-unit whitespace and comments
			tag, end, err := r.scanToUnit(gr)
			if err != nil {
				fail(err)
				return
			}
			if end {
				break
			}
			firstUnit = tag
		}

		unitTag := firstUnit
		firstUnit = nil

		attrs, nss, err := parseTagAttrs(unitTag)
		if err != nil {
			fail(err)
			return
		}

		unit := &Unit{archive: r.arch}
		fillUnit(unit, attrs, nss)

		if !r.streamUnit(gr, unit, unitTag, nil, nil) {
			return
		}
	}

	r.send(saxBoundary{kind: boundaryDone})
}

// scanToUnit advances to the next inner unit start tag or the root end.
func (r *Reader) scanToUnit(gr *gosax.Reader) ([]byte, bool, error) {

	for {
		ev, err := gr.Event()
		if err != nil {
			return nil, false, errors.Wrap(ErrParse, err.Error())
		}

		switch ev.Type() {
		case gosax.EventEOF:
			return nil, true, nil
		case gosax.EventEnd:
			return nil, true, nil
		case gosax.EventStart:
			name, _ := gosax.Name(ev.Bytes)
			if local(name) == "unit" {
				return append([]byte(nil), ev.Bytes...), false, nil
			}
			return nil, false, errors.Wrap(ErrParse, "unexpected element in archive root")
		default:
			// whitespace and comments between units
		}
	}
}

// skipElement consumes events through the end of the current element. A
// self-closing tag is followed by one synthesized end event.
func skipElement(gr *gosax.Reader, selfClosed bool) error {

	if selfClosed {
		ev, err := gr.Event()
		if err != nil {
			return errors.Wrap(ErrParse, err.Error())
		}
		if ev.Type() != gosax.EventEnd {
			return errors.Wrap(ErrParse, "truncated element")
		}
		return nil
	}

	depth := 1
	skipEnd := false

	for depth > 0 {
		ev, err := gr.Event()
		if err != nil {
			return errors.Wrap(ErrParse, err.Error())
		}

		switch ev.Type() {
		case gosax.EventEOF:
			return errors.Wrap(ErrParse, "truncated element")
		case gosax.EventStart:
			if bytes.HasSuffix(ev.Bytes, []byte("/>")) {
				skipEnd = true
			} else {
				depth++
			}
		case gosax.EventEnd:
			if skipEnd {
				skipEnd = false
				continue
			}
			depth--
		default:
		}
	}

	return nil
}

// streamUnit surfaces one unit's header boundary, captures its verbatim
// XML through the matching end tag, and surfaces the body boundary. The
// seed arguments replay content the framing scan already consumed.
// Returns false when stopped or failed.
func (r *Reader) streamUnit(gr *gosax.Reader, unit *Unit, unitTag, seed, seedText []byte) bool {

	var buf bytes.Buffer
	buf.Write(unitTag)

	selfClosed := bytes.HasSuffix(unitTag, []byte("/>"))

	if !r.send(saxBoundary{kind: boundaryUnitHeader, unit: unit}) {
		return false
	}

	contentBegin := buf.Len()
	loc := 0

	if selfClosed {
		// consume the synthesized end event
		if _, err := gr.Event(); err != nil {
			r.send(saxBoundary{kind: boundaryDone, err: errors.Wrap(ErrParse, err.Error())})
			return false
		}
		unit.srcml = buf.Bytes()
		unit.ContentBegin = contentBegin
		unit.ContentEnd = contentBegin
		unit.InsertBegin = contentBegin
		unit.InsertEnd = contentBegin
		return r.send(saxBoundary{kind: boundaryUnitBody, unit: unit})
	}

	if len(seedText) > 0 {
		buf.Write(seedText)
		loc += bytes.Count(seedText, []byte("\n"))
	}

	depth := 1
	skipEnd := false

	if len(seed) > 0 {
		buf.Write(seed)
		if bytes.HasSuffix(seed, []byte("/>")) {
			skipEnd = true
		} else {
			depth++
		}
	}

	endLen := 0

	for depth > 0 {
		ev, err := gr.Event()
		if err != nil {
			r.send(saxBoundary{kind: boundaryDone, err: errors.Wrap(ErrParse, err.Error())})
			return false
		}

		switch ev.Type() {
		case gosax.EventEOF:
			r.send(saxBoundary{kind: boundaryDone, err: errors.Wrap(ErrParse, "truncated unit")})
			return false
		case gosax.EventStart:
			buf.Write(ev.Bytes)
			if bytes.HasSuffix(ev.Bytes, []byte("/>")) {
				skipEnd = true
			} else {
				depth++
			}
		case gosax.EventEnd:
			if skipEnd {
				skipEnd = false
				continue
			}
			depth--
			buf.Write(ev.Bytes)
			if depth == 0 {
				endLen = len(ev.Bytes)
			}
		case gosax.EventText, gosax.EventCData:
			buf.Write(ev.Bytes)
			loc += bytes.Count(ev.Bytes, []byte("\n"))
		default:
			buf.Write(ev.Bytes)
		}
	}

	unit.srcml = buf.Bytes()
	unit.LOC = loc
	unit.ContentBegin = contentBegin
	unit.ContentEnd = buf.Len() - endLen
	unit.InsertBegin = unit.ContentEnd
	unit.InsertEnd = unit.ContentEnd

	return r.send(saxBoundary{kind: boundaryUnitBody, unit: unit})
}

// runSolo treats the root element itself as the single unit, sourcing the
// unit attributes from the root info.
func (r *Reader) runSolo(gr *gosax.Reader, info *RootInfo, rootTag, pending, heldStart, heldText []byte) {

	unit := &Unit{
		archive:   r.arch,
		Revision:  info.Revision,
		Language:  info.Language,
		Filename:  info.Filename,
		Dir:       info.Dir,
		Version:   info.Version,
		Timestamp: info.Timestamp,
		Hash:      info.Hash,
	}
	unit.Attributes = append(unit.Attributes, info.Attributes...)
	unit.Namespaces = append(unit.Namespaces, info.Namespaces...)

	seedText := heldText
	if len(pending) > 0 {
		seedText = append(append([]byte(nil), pending...), seedText...)
	}

	if !r.streamUnit(gr, unit, rootTag, heldStart, seedText) {
		return
	}

	r.send(saxBoundary{kind: boundaryDone})
}

// ReadRootUnitAttributes fills the root metadata slots. The first call
// advances the parser to the root boundary; later calls return the same
// value without touching the parser.
func (r *Reader) ReadRootUnitAttributes() (*RootInfo, error) {

	if r.err != nil {
		return nil, r.err
	}
	if r.stopped() {
		r.done = true
		return nil, nil
	}
	if r.root != nil {
		return r.root, nil
	}
	if r.done {
		return nil, nil
	}

	b, ok := r.next()
	if !ok {
		r.done = true
		return nil, nil
	}
	if b.err != nil {
		r.err = b.err
		return nil, r.err
	}

	// the parser publishes root info before the root boundary
	return r.root, nil
}

// ReadUnitAttributes advances to the next unit's header and returns the
// unit with its attributes filled and no body. Returns nil at end of
// archive.
func (r *Reader) ReadUnitAttributes() (*Unit, error) {

	if r.err != nil {
		return nil, r.err
	}
	if r.stopped() {
		r.done = true
		return nil, nil
	}
	if r.done {
		return nil, nil
	}
	if r.root == nil {
		if _, err := r.ReadRootUnitAttributes(); err != nil {
			return nil, err
		}
	}

	for {
		b, ok := r.next()
		if !ok {
			r.done = true
			return nil, nil
		}
		if b.err != nil {
			r.err = b.err
			return nil, r.err
		}

		switch b.kind {
		case boundaryUnitHeader:
			r.cur = b.unit
			return b.unit, nil
		case boundaryDone:
			r.done = true
			return nil, nil
		default:
			// a body boundary for a unit whose body was not requested
		}
	}
}

// ReadSrcML advances to the next unit's end and returns the unit carrying
// its verbatim inner XML. When the current unit's header has been read but
// not its body, that unit is completed; otherwise the next unit is read
// whole. Returns nil at end of archive.
func (r *Reader) ReadSrcML() (*Unit, error) {

	if r.err != nil {
		return nil, r.err
	}
	if r.stopped() {
		r.done = true
		return nil, nil
	}
	if r.done {
		return nil, nil
	}
	if r.root == nil {
		if _, err := r.ReadRootUnitAttributes(); err != nil {
			return nil, err
		}
	}

	for {
		b, ok := r.next()
		if !ok {
			r.done = true
			return nil, nil
		}
		if b.err != nil {
			r.err = b.err
			return nil, r.err
		}

		switch b.kind {
		case boundaryUnitBody:
			r.cur = nil
			return b.unit, nil
		case boundaryUnitHeader:
			r.cur = b.unit
		case boundaryDone:
			r.done = true
			return nil, nil
		}
	}
}
