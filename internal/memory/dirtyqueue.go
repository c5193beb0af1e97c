package memory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arjunblj/memorycore/internal/errs"
	"github.com/arjunblj/memorycore/internal/idtime"
	"github.com/arjunblj/memorycore/internal/store"
)

// leaseMs is the dirty-queue claim lease (§4.D: "lease = 10 min").
const leaseMs int64 = 10 * 60 * 1000

// DirtyClaim is a claimed dirty-queue entry: the key plus the
// firstDirtyAtMs observed at claim time, which the caller must pass back to
// completeDirty unchanged so it can detect whether a fresh write arrived
// mid-processing.
type DirtyClaim struct {
	Key            string
	FirstDirtyAtMs idtime.Millis
}

// markDirty implements the idempotent "mark as needing recomputation" half
// of the protocol (§4.D). A single UPSERT covers all three states: no
// existing row (insert fresh), an existing unclaimed row (firstDirtyAtMs is
// left at its earliest value), and an existing claimed row (firstDirtyAtMs
// advances to now, or by 1ms if now is not past the stored value, so the
// in-flight claim's completeDirty call will detect the mismatch and release
// instead of delete — "a fresh write that arrives mid-processing is never
// lost").
func markDirty(ctx context.Context, db *sql.DB, table, keyCol, key string, now idtime.Millis) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (%s, first_dirty_at_ms, claim_until_ms) VALUES (?, ?, NULL)
		ON CONFLICT(%s) DO UPDATE SET
			first_dirty_at_ms = CASE
				WHEN %s.claim_until_ms IS NOT NULL THEN MAX(excluded.first_dirty_at_ms, %s.first_dirty_at_ms + 1)
				ELSE %s.first_dirty_at_ms
			END
	`, table, keyCol, keyCol, table, table, table)
	_, err := db.ExecContext(ctx, stmt, key, int64(now))
	if err != nil {
		return &errs.StorageError{Kind: errs.StorageIO, Op: "mark_dirty[" + table + "]", Err: err}
	}
	return nil
}

// claimDirty claims up to limit entries whose claim has expired or was
// never taken, inside one BEGIN IMMEDIATE transaction (§4.D steps 1-2).
func claimDirty(ctx context.Context, db *sql.DB, table, keyCol string, limit int, now idtime.Millis) ([]DirtyClaim, error) {
	cutoff := now - idtime.Millis(leaseMs)
	var claims []DirtyClaim

	err := store.WithImmediateTx(ctx, db, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, fmt.Sprintf(`
			SELECT %s, first_dirty_at_ms FROM %s
			WHERE claim_until_ms IS NULL OR claim_until_ms <= ?
			ORDER BY first_dirty_at_ms ASC
			LIMIT ?
		`, keyCol, table), int64(cutoff), limit)
		if err != nil {
			return err
		}
		var picked []DirtyClaim
		for rows.Next() {
			var key string
			var firstDirty int64
			if err := rows.Scan(&key, &firstDirty); err != nil {
				rows.Close()
				return err
			}
			picked = append(picked, DirtyClaim{Key: key, FirstDirtyAtMs: idtime.Millis(firstDirty)})
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		for _, c := range picked {
			if _, err := conn.ExecContext(ctx,
				fmt.Sprintf(`UPDATE %s SET claim_until_ms = ? WHERE %s = ?`, table, keyCol),
				int64(now), c.Key); err != nil {
				return err
			}
		}
		claims = picked
		return nil
	})
	if err != nil {
		return nil, &errs.StorageError{Kind: errs.StorageIO, Op: "claim_dirty[" + table + "]", Err: err}
	}
	return claims, nil
}

// completeDirty deletes the dirty entry only if firstDirtyAtMs has not
// advanced since the claim was taken; otherwise it releases the claim so a
// later pass retries (§4.D step 3).
func completeDirty(ctx context.Context, db *sql.DB, table, keyCol string, claim DirtyClaim) error {
	err := store.WithImmediateTx(ctx, db, func(ctx context.Context, conn *sql.Conn) error {
		var currentFirstDirty int64
		err := conn.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT first_dirty_at_ms FROM %s WHERE %s = ?`, table, keyCol), claim.Key).
			Scan(&currentFirstDirty)
		if err == sql.ErrNoRows {
			return nil // already completed by a racing caller
		}
		if err != nil {
			return err
		}

		if idtime.Millis(currentFirstDirty) == claim.FirstDirtyAtMs {
			_, err := conn.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, table, keyCol), claim.Key)
			return err
		}
		_, err = conn.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET claim_until_ms = NULL WHERE %s = ?`, table, keyCol), claim.Key)
		return err
	})
	if err != nil {
		return &errs.StorageError{Kind: errs.StorageIO, Op: "complete_dirty[" + table + "]", Err: err}
	}
	return nil
}

// MarkGroupCapsuleDirty marks chatId as needing group-capsule recomputation.
func (s *Store) MarkGroupCapsuleDirty(ctx context.Context, chatID idtime.ChatID) error {
	return markDirty(ctx, s.db, "dirty_group_capsules", "chat_id", string(chatID), s.now())
}

// MarkPublicStyleDirty marks personID as needing public-style recomputation.
func (s *Store) MarkPublicStyleDirty(ctx context.Context, personID idtime.PersonID) error {
	return markDirty(ctx, s.db, "dirty_public_styles", "person_id", string(personID), s.now())
}

// ClaimDirtyGroupCapsules claims up to limit group-capsule keys for
// consolidation.
func (s *Store) ClaimDirtyGroupCapsules(ctx context.Context, limit int) ([]DirtyClaim, error) {
	return claimDirty(ctx, s.db, "dirty_group_capsules", "chat_id", limit, s.now())
}

// CompleteDirtyGroupCapsule completes a previously claimed group-capsule key.
func (s *Store) CompleteDirtyGroupCapsule(ctx context.Context, claim DirtyClaim) error {
	return completeDirty(ctx, s.db, "dirty_group_capsules", "chat_id", claim)
}

// ClaimDirtyPublicStyles claims up to limit public-style keys.
func (s *Store) ClaimDirtyPublicStyles(ctx context.Context, limit int) ([]DirtyClaim, error) {
	return claimDirty(ctx, s.db, "dirty_public_styles", "person_id", limit, s.now())
}

// CompleteDirtyPublicStyle completes a previously claimed public-style key.
func (s *Store) CompleteDirtyPublicStyle(ctx context.Context, claim DirtyClaim) error {
	return completeDirty(ctx, s.db, "dirty_public_styles", "person_id", claim)
}
