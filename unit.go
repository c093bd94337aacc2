// ==========================================================================
//
// File Name:  unit.go
//
// ==========================================================================

package srcml

import (
	"bytes"
	"strconv"

	"github.com/orisano/gosax"
	"github.com/pkg/errors"
)

// Unit is one translation unit: one source file or one text input. A unit
// holds its raw source bytes, its markup XML fragment, or both. The four
// byte offsets delimit the splice ranges inside the XML fragment that a
// transformation may use without re-parsing: content covers the text
// between the unit's open and close tags, insert is the zero-width point
// where new children are appended.
type Unit struct {
	archive *Archive

	Language  string
	Filename  string
	Dir       string
	Version   string
	Timestamp string
	Hash      string
	Revision  string
	Encoding  string

	Attributes []Attribute
	Namespaces []Namespace

	LOC int

	ContentBegin int
	ContentEnd   int
	InsertBegin  int
	InsertEnd    int

	source []byte
	srcml  []byte
}

// NewUnit creates an empty unit attached to an archive. The unit inherits
// nothing; attributes are set explicitly or filled by parsing.
func (a *Archive) NewUnit() *Unit {

	return &Unit{archive: a}
}

// SetSource stores raw source bytes on the unit.
func (u *Unit) SetSource(src []byte) {

	u.source = append([]byte(nil), src...)
}

// Source returns the unit's raw source bytes, extracting them from the
// markup XML when they were not stored directly.
func (u *Unit) Source() ([]byte, error) {

	if u.source != nil {
		return u.source, nil
	}

	return u.Unparse()
}

// SrcML returns the unit's markup XML fragment as a single
// <unit>...</unit> string.
func (u *Unit) SrcML() string {

	return string(u.srcml)
}

// ParseSource runs the grammar over source bytes and stores the resulting
// markup XML fragment on the unit. The unit's language must be set or
// inferrable from its filename.
func (u *Unit) ParseSource(src []byte) error {

	if u.archive == nil {
		return ErrInvalidArgument
	}

	if u.Language == "" {
		u.Language = u.archive.languageFor(u.Filename)
	}
	if u.Language == "" {
		return ErrUnsetLanguage
	}
	if !CheckLanguage(u.Language) {
		return errors.Wrapf(ErrUnsetLanguage, "%q", u.Language)
	}

	decoded, err := decodeSource(src, u.archive.SrcEncoding())
	if err != nil {
		return err
	}

	u.source = append([]byte(nil), src...)

	opts := u.archive.Options()
	if opts.Hash {
		u.Hash = hashBytes(u.archive.newHash, decoded)
	}
	if opts.StoreEncoding && u.Encoding == "" {
		u.Encoding = u.archive.SrcEncoding()
	}

	tokens := parseSource(decoded, u.Language, opts)

	return u.renderFragment(tokens)
}

// renderFragment emits the unit element for a token stream into the unit's
// srcml buffer and records the splice offsets.
func (u *Unit) renderFragment(tokens TokenStream) error {

	var buf bytes.Buffer

	em := newEmitter(&buf, u.archive)
	em.fragment = true
	em.pendingUnit = u

	if err := em.writeTokens(tokens); err != nil {
		return err
	}
	if em.unitOpen {
		// tolerate a stream that ends without its unit end token
		if err := em.WriteEndUnit(); err != nil {
			return err
		}
	}
	if err := em.flush(); err != nil {
		return err
	}

	u.srcml = buf.Bytes()
	u.ContentBegin = em.unitContentBegin
	u.ContentEnd = em.unitContentEnd
	u.InsertBegin = u.ContentEnd
	u.InsertEnd = u.ContentEnd
	u.LOC = bytes.Count(u.srcml[u.ContentBegin:u.ContentEnd], []byte("\n"))

	return nil
}

// Unparse reproduces the original source bytes from the unit's markup XML:
// the concatenated text of all descendants, with escape elements decoded
// back to their control bytes.
func (u *Unit) Unparse() ([]byte, error) {

	if u.srcml == nil {
		return nil, ErrInvalidInput
	}

	var out bytes.Buffer

	gr := gosax.NewReader(bytes.NewReader(u.srcml))
	gr.EmitSelfClosingTag = true

	for {
		ev, err := gr.Event()
		if err != nil {
			return nil, errors.Wrap(ErrParse, err.Error())
		}
		if ev.Type() == gosax.EventEOF {
			break
		}

		switch ev.Type() {
		case gosax.EventText:
			text, err := gosax.CharData(ev.Bytes)
			if err != nil {
				return nil, errors.Wrap(ErrParse, err.Error())
			}
			out.Write(text)
		case gosax.EventCData:
			out.Write(bytes.TrimSuffix(bytes.TrimPrefix(ev.Bytes, []byte("<![CDATA[")), []byte("]]>")))
		case gosax.EventStart:
			name, attrs := gosax.Name(ev.Bytes)
			if local(name) == "escape" {
				b, err := escapeCharValue(attrs)
				if err != nil {
					return nil, err
				}
				out.WriteByte(b)
			}
		default:
		}
	}

	return out.Bytes(), nil
}

// local strips a namespace prefix from a raw element name.
func local(name []byte) string {

	if pos := bytes.IndexByte(name, ':'); pos >= 0 {
		return string(name[pos+1:])
	}

	return string(name)
}

// escapeCharValue decodes the char attribute of an escape element, a
// byte-hex form such as 0x07.
func escapeCharValue(attrs []byte) (byte, error) {

	for len(attrs) > 0 {
		attr, rest, err := gosax.NextAttribute(attrs)
		if err != nil {
			return 0, errors.Wrap(ErrParse, err.Error())
		}
		attrs = rest
		if string(attr.Key) != "char" {
			continue
		}

		value := attr.Value
		if len(value) >= 2 {
			value = value[1 : len(value)-1]
		}

		n, err := strconv.ParseUint(string(value), 0, 8)
		if err != nil {
			return 0, errors.Wrap(ErrParse, err.Error())
		}

		return byte(n), nil
	}

	return 0, errors.Wrap(ErrParse, "escape element missing char attribute")
}
