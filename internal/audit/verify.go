package audit

import (
	"fmt"
)

// VerifyChain checks a journaled event sequence for integrity: sequence
// numbers increase by exactly one, each prevHash equals the previous
// eventHash, and every eventHash recomputes from its envelope. The first
// entry must link to firstPrevHash (GenesisHash for a full chain).
func VerifyChain(instanceID string, firstPrevHash string, entries []Envelope) error {
	if firstPrevHash == "" {
		firstPrevHash = GenesisHash
	}

	prevHash := firstPrevHash
	var prevSeq uint64
	if len(entries) > 0 {
		prevSeq = entries[0].SeqNo - 1
	}

	for i, env := range entries {
		if env.SeqNo != prevSeq+1 {
			return fmt.Errorf("entry %d: seqNo %d does not follow %d", i, env.SeqNo, prevSeq)
		}
		if env.PrevHash != prevHash {
			return fmt.Errorf("entry %d (seq %d): prevHash %s does not match previous eventHash %s",
				i, env.SeqNo, env.PrevHash, prevHash)
		}
		if !IsHex64(env.EventHash) {
			return fmt.Errorf("entry %d (seq %d): malformed eventHash %q", i, env.SeqNo, env.EventHash)
		}

		recomputed, err := RecomputeHash(instanceID, &env)
		if err != nil {
			return fmt.Errorf("entry %d (seq %d): %w", i, env.SeqNo, err)
		}
		if recomputed != env.EventHash {
			return fmt.Errorf("entry %d (seq %d): eventHash mismatch: stored %s, recomputed %s",
				i, env.SeqNo, env.EventHash, recomputed)
		}

		prevSeq = env.SeqNo
		prevHash = env.EventHash
	}
	return nil
}

// RecomputeHash rebuilds an envelope's hash input from its journaled
// payload (already in canonical form) plus the envelope identity fields,
// and digests it. The stored eventHash is not an input to its own hash.
func RecomputeHash(instanceID string, env *Envelope) (string, error) {
	identity := NewFieldSet().
		PutString("instanceId", instanceID).
		PutString("eventType", env.EventType).
		PutString("prevHash", env.PrevHash).
		PutUint("seqNo", env.SeqNo).
		PutInt("timestamp", env.Timestamp)

	input, err := mergeCanonical(identity, string(env.Payload))
	if err != nil {
		return "", fmt.Errorf("rebuild hash input: %w", err)
	}
	return Digest(input), nil
}
