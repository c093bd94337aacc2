// ==========================================================================
//
// File Name:  namespace.go
//
// ==========================================================================

package srcml

import (
	"strings"

	"github.com/pkg/errors"
)

// Canonical namespace URIs. Reserved prefixes map to these and to nothing
// else; the mapping is part of the document format.
const (
	SrcNamespaceURI      = "http://www.sdml.info/srcML/src"
	CppNamespaceURI      = "http://www.sdml.info/srcML/cpp"
	ErrNamespaceURI      = "http://www.sdml.info/srcML/srcerr"
	LiteralNamespaceURI  = "http://www.sdml.info/srcML/literal"
	OperatorNamespaceURI = "http://www.sdml.info/srcML/operator"
	ModifierNamespaceURI = "http://www.sdml.info/srcML/modifier"
	PositionNamespaceURI = "http://www.sdml.info/srcML/position"
	DiffNamespaceURI     = "http://www.sdml.info/srcML/srcdiff"
)

// reservedPrefixes pins each reserved prefix to its canonical URI. The src
// namespace is the default (empty prefix).
var reservedPrefixes = map[string]string{
	"":        SrcNamespaceURI,
	"cpp":     CppNamespaceURI,
	"err":     ErrNamespaceURI,
	"lit":     LiteralNamespaceURI,
	"op":      OperatorNamespaceURI,
	"type":    ModifierNamespaceURI,
	"pos":     PositionNamespaceURI,
	"srcdiff": DiffNamespaceURI,
}

// Namespace is one prefix-to-URI binding.
type Namespace struct {
	Prefix string
	URI    string
}

// NamespaceRegistry is an ordered prefix-to-URI table. Registration order is
// preserved because it determines declaration order in the output.
type NamespaceRegistry struct {
	list     []Namespace
	byPrefix map[string]int
}

// NewNamespaceRegistry returns a registry preloaded with the src default
// namespace and the cpp namespace, matching a fresh archive.
func NewNamespaceRegistry() *NamespaceRegistry {

	reg := &NamespaceRegistry{
		byPrefix: make(map[string]int),
	}

	reg.add("", SrcNamespaceURI)
	reg.add("cpp", CppNamespaceURI)

	return reg
}

// normalizeURI strips a single trailing slash.
func normalizeURI(uri string) string {

	if strings.HasSuffix(uri, "/") {
		return uri[:len(uri)-1]
	}

	return uri
}

func (reg *NamespaceRegistry) add(prefix, uri string) {

	if idx, ok := reg.byPrefix[prefix]; ok {
		// re-registration keeps the original position
		reg.list[idx].URI = uri
		return
	}

	reg.byPrefix[prefix] = len(reg.list)
	reg.list = append(reg.list, Namespace{Prefix: prefix, URI: uri})
}

// Register binds a prefix to a URI. A reserved prefix may be re-registered
// with its own canonical URI but never with a different one.
func (reg *NamespaceRegistry) Register(prefix, uri string) error {

	if uri == "" {
		return ErrInvalidArgument
	}

	uri = normalizeURI(uri)

	if canonical, ok := reservedPrefixes[prefix]; ok && uri != canonical {
		return errors.Wrapf(ErrNamespaceConflict, "prefix %q is reserved for %q", prefix, canonical)
	}

	reg.add(prefix, uri)

	return nil
}

// Prefixes returns the registered bindings in registration order.
func (reg *NamespaceRegistry) Prefixes() []Namespace {

	out := make([]Namespace, len(reg.list))
	copy(out, reg.list)

	return out
}

// URIForPrefix looks up the URI bound to a prefix.
func (reg *NamespaceRegistry) URIForPrefix(prefix string) (string, bool) {

	idx, ok := reg.byPrefix[prefix]
	if !ok {
		return "", false
	}

	return reg.list[idx].URI, true
}

// PrefixForURI returns the first prefix bound to a URI in registration order.
func (reg *NamespaceRegistry) PrefixForURI(uri string) (string, bool) {

	uri = normalizeURI(uri)

	for _, ns := range reg.list {
		if ns.URI == uri {
			return ns.Prefix, true
		}
	}

	return "", false
}

// Merge folds per-unit namespace bindings into the registry and reports the
// bindings that must be declared on the inner unit itself: a prefix already
// bound at outer scope to a different URI stays an inner-scope declaration.
func (reg *NamespaceRegistry) Merge(inner []Namespace) []Namespace {

	var local []Namespace

	for _, ns := range inner {
		uri := normalizeURI(ns.URI)
		outer, ok := reg.URIForPrefix(ns.Prefix)
		if !ok {
			reg.add(ns.Prefix, uri)
			continue
		}
		if outer != uri {
			local = append(local, Namespace{Prefix: ns.Prefix, URI: uri})
		}
	}

	return local
}

// Clone returns an independent copy of the registry.
func (reg *NamespaceRegistry) Clone() *NamespaceRegistry {

	out := &NamespaceRegistry{
		list:     make([]Namespace, len(reg.list)),
		byPrefix: make(map[string]int, len(reg.byPrefix)),
	}

	copy(out.list, reg.list)
	for k, v := range reg.byPrefix {
		out.byPrefix[k] = v
	}

	return out
}

// validate confirms that no reserved prefix has strayed from its canonical
// URI. Called when an archive is opened; a conflict there is fatal.
func (reg *NamespaceRegistry) validate() error {

	for _, ns := range reg.list {
		if canonical, ok := reservedPrefixes[ns.Prefix]; ok && ns.URI != canonical {
			return errors.Wrapf(ErrNamespaceConflict, "prefix %q bound to %q", ns.Prefix, ns.URI)
		}
	}

	return nil
}
