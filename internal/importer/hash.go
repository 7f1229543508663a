package importer

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Normalize concatenates an entry's content after cleaning each part.
// Whitespace is trimmed, text is lowercased and line endings are
// normalized, so formatting churn does not change a batch's identity.
func Normalize(e Entry) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}

	return strings.Join([]string{
		normalizePart(e.Front),
		normalizePart(e.Back),
		normalizePart(e.Mnemonic),
	}, "\n")
}

// Hash returns the SHA-256 over the normalized entries of one import
// batch as a hex string. Identical content imported again produces the
// same hash, which is what the per-user source unique constraint keys
// on.
func Hash(entries []Entry) string {
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(Normalize(e)))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
