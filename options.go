// ==========================================================================
//
// File Name:  options.go
//
// ==========================================================================

package srcml

// Option is one flag bit in the historical option bitset. The bit positions
// are part of the on-wire contract and must not be reordered.
type Option uint64

const (
	// OptionXMLDecl emits the XML declaration at the start of the document.
	OptionXMLDecl Option = 1 << iota

	// OptionNamespaceDecl emits xmlns declarations on the framing root.
	OptionNamespaceDecl

	// OptionCPP marks preprocessor constructs in the cpp namespace.
	OptionCPP

	// OptionCPPMarkupIf0 is carried for #if 0 region markup. The statement
	// grammar does not consult it and marks up #if 0 regions like any code.
	OptionCPPMarkupIf0

	// OptionCPPTextElse is carried for raw-text false preprocessor branches.
	// The statement grammar does not consult it.
	OptionCPPTextElse

	// OptionPosition declares the pos namespace and the tabs attribute on
	// the framing root. No line/column position attributes are emitted.
	OptionPosition

	// OptionLine is carried for line tracking; the statement grammar does
	// not consult it.
	OptionLine

	// OptionHash adds a content hash attribute to each unit.
	OptionHash

	// OptionFullArchive forces the outer archive framing even for one unit.
	OptionFullArchive

	// OptionStoreEncoding stores the source encoding on each unit.
	OptionStoreEncoding

	// OptionLiteral marks literal values in the lit namespace.
	OptionLiteral

	// OptionOperator marks operators in the op namespace.
	OptionOperator

	// OptionModifier marks type modifiers in the type namespace.
	OptionModifier

	// OptionDebug declares the err namespace on the framing root. The
	// statement grammar emits no diagnostic elements.
	OptionDebug
)

// knownOptions covers every bit with a named flag; anything outside is
// preserved round-trip but otherwise ignored.
const knownOptions = OptionXMLDecl | OptionNamespaceDecl | OptionCPP |
	OptionCPPMarkupIf0 | OptionCPPTextElse | OptionPosition | OptionLine |
	OptionHash | OptionFullArchive | OptionStoreEncoding | OptionLiteral |
	OptionOperator | OptionModifier | OptionDebug

// Options is the typed view of the option bitset. Fields correspond to the
// named flags; Unknown carries unrecognized bits so they survive a
// read-modify-write cycle.
type Options struct {
	XMLDecl       bool
	NamespaceDecl bool
	CPP           bool
	CPPMarkupIf0  bool
	CPPTextElse   bool
	Position      bool
	Line          bool
	Hash          bool
	FullArchive   bool
	StoreEncoding bool
	Literal       bool
	Operator      bool
	Modifier      bool
	Debug         bool

	Unknown uint64
}

// DefaultOptions returns the flags a fresh archive starts with.
func DefaultOptions() Options {

	return Options{
		XMLDecl:       true,
		NamespaceDecl: true,
		CPP:           true,
		Hash:          true,
	}
}

// Bits serializes the typed options back into the historical bitset.
func (o Options) Bits() uint64 {

	bits := o.Unknown &^ uint64(knownOptions)

	set := func(on bool, flag Option) {
		if on {
			bits |= uint64(flag)
		}
	}

	set(o.XMLDecl, OptionXMLDecl)
	set(o.NamespaceDecl, OptionNamespaceDecl)
	set(o.CPP, OptionCPP)
	set(o.CPPMarkupIf0, OptionCPPMarkupIf0)
	set(o.CPPTextElse, OptionCPPTextElse)
	set(o.Position, OptionPosition)
	set(o.Line, OptionLine)
	set(o.Hash, OptionHash)
	set(o.FullArchive, OptionFullArchive)
	set(o.StoreEncoding, OptionStoreEncoding)
	set(o.Literal, OptionLiteral)
	set(o.Operator, OptionOperator)
	set(o.Modifier, OptionModifier)
	set(o.Debug, OptionDebug)

	return bits
}

// OptionsFromBits decodes a bitset into typed options, stashing unknown bits.
func OptionsFromBits(bits uint64) Options {

	return Options{
		XMLDecl:       bits&uint64(OptionXMLDecl) != 0,
		NamespaceDecl: bits&uint64(OptionNamespaceDecl) != 0,
		CPP:           bits&uint64(OptionCPP) != 0,
		CPPMarkupIf0:  bits&uint64(OptionCPPMarkupIf0) != 0,
		CPPTextElse:   bits&uint64(OptionCPPTextElse) != 0,
		Position:      bits&uint64(OptionPosition) != 0,
		Line:          bits&uint64(OptionLine) != 0,
		Hash:          bits&uint64(OptionHash) != 0,
		FullArchive:   bits&uint64(OptionFullArchive) != 0,
		StoreEncoding: bits&uint64(OptionStoreEncoding) != 0,
		Literal:       bits&uint64(OptionLiteral) != 0,
		Operator:      bits&uint64(OptionOperator) != 0,
		Modifier:      bits&uint64(OptionModifier) != 0,
		Debug:         bits&uint64(OptionDebug) != 0,
		Unknown:       bits &^ uint64(knownOptions),
	}
}

// enable turns one named flag on or off.
func (o *Options) enable(flag Option, on bool) {

	switch flag {
	case OptionXMLDecl:
		o.XMLDecl = on
	case OptionNamespaceDecl:
		o.NamespaceDecl = on
	case OptionCPP:
		o.CPP = on
	case OptionCPPMarkupIf0:
		o.CPPMarkupIf0 = on
	case OptionCPPTextElse:
		o.CPPTextElse = on
	case OptionPosition:
		o.Position = on
	case OptionLine:
		o.Line = on
	case OptionHash:
		o.Hash = on
	case OptionFullArchive:
		o.FullArchive = on
	case OptionStoreEncoding:
		o.StoreEncoding = on
	case OptionLiteral:
		o.Literal = on
	case OptionOperator:
		o.Operator = on
	case OptionModifier:
		o.Modifier = on
	case OptionDebug:
		o.Debug = on
	default:
		// unknown flags are preserved for round-trip but have no effect
		if on {
			o.Unknown |= uint64(flag)
		} else {
			o.Unknown &^= uint64(flag)
		}
	}
}
