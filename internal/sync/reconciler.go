package sync

import (
	"time"

	"github.com/reptrack/backend/internal/logging"
	"github.com/reptrack/backend/internal/models"
)

// The reconciler is stateless: it merges server records into the local set
// using a record-level last-writer-wins rule with two scalar exceptions
// (thanksCount never regresses, serverId is taken from whichever side has
// it). It never attempts per-field merge of payload content.

// MergeRemoteSnapshot merges a full remote snapshot into the local records.
// Remote tombstones remove the matching identity entirely; unknown remote
// records are inserted as-is; records sharing an identity key are resolved
// by mergeExercises. The result carries set semantics keyed by identity —
// order is not significant.
//
// A local record whose identity key no remote record shares is always kept,
// regardless of timestamps: an unsynced local creation can never be wiped by
// a pull.
func MergeRemoteSnapshot(local, remote []*models.Exercise) []*models.Exercise {
	byKey := make(map[string]*models.Exercise, len(local))
	for _, l := range local {
		byKey[l.Key()] = l.Clone()
	}

	for _, r := range remote {
		key, existing := lookupIdentity(byKey, r)

		if r.Deleted() {
			if existing != nil {
				delete(byKey, key)
				logging.Debug("Tombstone removed local record",
					map[string]interface{}{"key": key})
			}
			continue
		}

		if existing == nil {
			byKey[r.Key()] = r.Clone()
			continue
		}

		merged := mergeExercises(existing, r)
		// Re-key: the merge may have attached a server id to a record
		// previously keyed by its local id.
		delete(byKey, key)
		byKey[merged.Key()] = merged
	}

	result := make([]*models.Exercise, 0, len(byKey))
	for _, e := range byKey {
		result = append(result, e)
	}
	return result
}

// ApplyAcknowledged folds a single acknowledged server record into the cache
// using the same conflict rule, falling back to insertion when no local copy
// shares its identity. It returns the merged record, or the removed local
// copy when the response carries a tombstone. The caller owns persisting the
// change.
func ApplyAcknowledged(cache map[string]*models.Exercise, server *models.Exercise) (merged, removed *models.Exercise) {
	key, existing := lookupIdentity(cache, server)

	if server.Deleted() {
		if existing != nil {
			delete(cache, key)
			return nil, existing
		}
		return nil, nil
	}

	if existing == nil {
		merged = server.Clone()
		cache[merged.Key()] = merged
		return merged, nil
	}

	merged = mergeExercises(existing, server)
	delete(cache, key)
	cache[merged.Key()] = merged
	return merged, nil
}

// lookupIdentity finds the entry a remote record resolves to: first by the
// remote record's own identity key, then by its local id, which matches a
// locally created copy that does not yet know its server id.
func lookupIdentity(byKey map[string]*models.Exercise, r *models.Exercise) (string, *models.Exercise) {
	if e, ok := byKey[r.Key()]; ok {
		return r.Key(), e
	}
	if r.LocalID != "" && r.LocalID != r.Key() {
		if e, ok := byKey[r.LocalID]; ok {
			return r.LocalID, e
		}
	}
	return "", nil
}

// mergeExercises resolves two records sharing an identity key. The record
// with the greater-or-equal updatedAt is the preferred base; a missing local
// timestamp counts as the epoch and a missing remote timestamp as now, so an
// unstamped remote record wins by default.
func mergeExercises(local, remote *models.Exercise) *models.Exercise {
	localTS := local.UpdatedAt
	remoteTS := remote.UpdatedAt
	if remoteTS.IsZero() {
		remoteTS = time.Now().UTC()
	}

	preferred, other := local, remote
	if remoteTS.After(localTS) {
		preferred, other = remote, local
	}

	merged := preferred.Clone()

	// thanksCount accumulates on two devices independently; the max never
	// shows a lost increment.
	if other.ThanksCount > merged.ThanksCount {
		merged.ThanksCount = other.ThanksCount
	}

	// The local side may not yet know its own server id.
	if merged.ServerID == "" {
		merged.ServerID = other.ServerID
	}
	if merged.LocalID == "" {
		merged.LocalID = other.LocalID
	}

	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = other.CreatedAt
	}
	if merged.UpdatedAt.IsZero() {
		merged.UpdatedAt = other.UpdatedAt
	}

	return merged
}
