package ledger

import (
	"strings"

	"github.com/google/uuid"
)

// NewRecordID returns an id shaped like "4821-0937-QWZK-HDRA": two groups
// of digits and two of letters, taken from a random UUID.
func NewRecordID() string {
	u := uuid.New()

	var b strings.Builder
	b.Grow(19)
	for i := 0; i < 16; i++ {
		if i > 0 && i%4 == 0 {
			b.WriteByte('-')
		}
		if i < 8 {
			b.WriteByte('0' + u[i]%10)
		} else {
			b.WriteByte('A' + u[i]%26)
		}
	}
	return b.String()
}
