package hub

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// newID returns 16 random bytes formatted as lowercase hex without dashes,
// matching the admin contract subscriber and publisher ids must satisfy.
// google/uuid supplies the CSPRNG-backed random generation; only the
// formatting departs from the standard dashed UUID string.
func newID() string {
	raw, err := uuid.NewRandom()
	if err != nil {
		// uuid.NewRandom only fails if crypto/rand is broken; fall back to
		// the all-zero UUID rather than panic inside a hot control path.
		raw = uuid.UUID{}
	}
	b := [16]byte(raw)
	return hex.EncodeToString(b[:])
}
