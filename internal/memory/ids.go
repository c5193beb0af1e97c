package memory

import "github.com/google/uuid"

// randomID mints an opaque id with a short kind prefix. PersonIDs are
// globally unique and never parsed (§3), unlike the teacher's structured,
// per-user sequential session ids (GenerateSessionID) — there is no
// per-user sequence to thread here, so this promotes the teacher's
// already-indirect google/uuid dependency to generate them instead of
// inventing a formatted scheme with no analog in this domain.
func randomID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
