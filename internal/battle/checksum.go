package battle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// ChecksumVersion is bumped whenever the canonical representation changes.
const ChecksumVersion = 1

// Checksum identifies the content of a snapshot independent of entity order.
type Checksum struct {
	Hash    string
	Version int
}

// ComputeChecksum hashes a canonical rendering of the snapshot. Entities are
// sorted by id; events keep log order since their order is meaningful.
func (s *Snapshot) ComputeChecksum() (Checksum, error) {
	hash := sha256.New()
	if _, err := hash.Write([]byte(s.canonical())); err != nil {
		return Checksum{}, fmt.Errorf("failed to compute hash: %w", err)
	}
	return Checksum{
		Hash:    hex.EncodeToString(hash.Sum(nil)),
		Version: ChecksumVersion,
	}, nil
}

// VerifyChecksum reports whether the snapshot still hashes to expected.
func (s *Snapshot) VerifyChecksum(expected Checksum) (bool, error) {
	computed, err := s.ComputeChecksum()
	if err != nil {
		return false, fmt.Errorf("failed to compute checksum: %w", err)
	}
	return computed.Version == expected.Version && computed.Hash == expected.Hash, nil
}

func (s *Snapshot) canonical() string {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("SNAPSHOT:%s|%s|%d\n", s.BattleID, s.LocalPlayerID, s.Turn))

	entities := make([]Entity, len(s.Entities))
	copy(entities, s.Entities)
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })

	for _, e := range entities {
		buf.WriteString(fmt.Sprintf("ENTITY:%s|%s|%s|%s|%s|%d|%d\n",
			e.ID,
			e.OwnerID,
			e.Name,
			e.Kind,
			e.Location.String(),
			e.Damage,
			e.EnteredTurn,
		))

		conditions := make([]string, len(e.Conditions))
		for i, c := range e.Conditions {
			conditions[i] = string(c)
		}
		sort.Strings(conditions)
		if len(conditions) > 0 {
			buf.WriteString("  CONDITIONS:")
			buf.WriteString(strings.Join(conditions, ","))
			buf.WriteString("\n")
		}

		// attachment order is visible on the board, so it is not sorted
		for _, a := range e.Attached {
			buf.WriteString(fmt.Sprintf("  ATTACHED:%s|%s\n", a.ID, a.Kind))
		}
	}

	for _, ev := range s.Events {
		buf.WriteString(fmt.Sprintf("EVENT:%s|%s|%d|%t|%s\n",
			ev.Kind,
			ev.PlayerID,
			ev.Turn,
			ev.Hidden,
			ev.Text,
		))
	}

	return buf.String()
}
