// ==========================================================================
//
// File Name:  hash.go
//
// ==========================================================================

package srcml

import (
	"crypto/sha1"
	"encoding/hex"
	"hash"
)

// defaultHash is the per-archive content hash constructor. The hash covers
// the unit's source bytes, never its XML, so the value is stable across
// markup option changes.
func defaultHash() hash.Hash {

	return sha1.New()
}

// hashBytes computes the lowercase hex content hash of source bytes. An
// empty source still hashes; the attribute is only suppressed when hashing
// is disabled on the archive.
func hashBytes(newHash func() hash.Hash, src []byte) string {

	if newHash == nil {
		newHash = defaultHash
	}

	h := newHash()
	h.Write(src)

	return hex.EncodeToString(h.Sum(nil))
}
