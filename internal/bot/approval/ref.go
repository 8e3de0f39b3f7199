// Package approval resolves review callback tokens back to the payment
// record they refer to. Tokens live in the in-memory pending store while
// the process is up; composite tokens stay resolvable after a restart
// because they carry the record reference inline.
package approval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nsafonov/proofdesk/internal/bot/pending"
	"github.com/nsafonov/proofdesk/internal/common"
)

// Resolution is the outcome of resolving a callback token.
type Resolution struct {
	Entry     pending.Entry
	FromStore bool
}

// Encode builds a composite token from a record reference and the
// submitting user's id. Composite tokens survive process restarts.
func Encode(recordRef string, userID int64) string {
	return fmt.Sprintf("%s|%d", recordRef, userID)
}

// Resolve looks the token up in the pending store first. On a miss it
// falls back to parsing the token as a composite "recordRef|userID"
// pair. A token that is neither is reported as common.ErrUnknownApproval.
func Resolve(store *pending.Store, token string) (Resolution, error) {
	if e, ok := store.Get(token); ok {
		return Resolution{Entry: e, FromStore: true}, nil
	}

	parts := strings.SplitN(token, "|", 2)
	if len(parts) != 2 || parts[0] == "" {
		return Resolution{}, common.ErrUnknownApproval
	}
	uid, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Resolution{}, common.ErrUnknownApproval
	}

	return Resolution{
		Entry: pending.Entry{
			ShortID:   token,
			UserID:    uid,
			RecordRef: parts[0],
		},
	}, nil
}
