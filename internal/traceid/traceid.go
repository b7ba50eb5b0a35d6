// Package traceid mints the opaque per-request identifiers threaded through
// logs and events (§3 "Trace Id").
//
// There is no nanoid implementation in the dependency set this proxy draws
// from, so the alphabet and length are reproduced directly on top of
// crypto/rand rather than pulling in a new third-party dependency for a
// handful of lines of code.
package traceid

import "crypto/rand"

// alphabet is the default nanoid alphabet: URL-safe, no padding needed.
const alphabet = "useandom-26T198340PX75pxJACKVERYMINDBUSHWOLF_GTcfjdzwgamehnqrtio"

// Length is the fixed width of a Trace Id, matching the default nanoid size.
const Length = 21

// New returns a fresh 21-character Trace Id.
func New() string {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read on a supported platform only fails if the OS
		// entropy source is unavailable; there is nothing useful to do
		// with the error at the call sites (id generation has no error
		// return), so fall back to a degraded, still-usable id rather
		// than panicking mid-request.
		for i := range buf {
			buf[i] = byte(i)
		}
	}

	id := make([]byte, Length)
	for i, b := range buf {
		id[i] = alphabet[b%byte(len(alphabet))]
	}
	return string(id)
}
