// Package treasury implements the value-transfer collaborator: an atomic
// "debit caller, credit recipient" primitive behind which every pipeline
// fee flows to the administrator account.
//
// Every executed transfer is recorded in an append-only, hash-chained
// journal, so fee accounting is auditable after the fact: exactly one
// entry per successful gated call, never zero, never duplicated.
package treasury

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
)

// Transfer is one executed value movement.
type Transfer struct {
	Amount uint64              `json:"amount"`
	From   contracts.Principal `json:"from"`
	To     contracts.Principal `json:"to"`
}

// Entry is an immutable, hash-chained journal record.
type Entry struct {
	Sequence    uint64   `json:"sequence"`
	ContentHash string   `json:"content_hash"`
	PrevHash    string   `json:"prev_hash"`
	Height      uint64   `json:"height"`
	Transfer    Transfer `json:"transfer"`
}

// Journal is an append-only, hash-chained log of transfers.
// Append-only; no deletions or mutations.
type Journal struct {
	mu       sync.RWMutex
	entries  []Entry
	headHash string
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{headHash: "genesis"}
}

// Append records a transfer at the given height. Returns the sequence number.
func (j *Journal) Append(tr Transfer, height uint64) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	seq := uint64(len(j.entries)) + 1

	contentHash, err := entryHash(seq, height, tr, j.headHash)
	if err != nil {
		return 0, err
	}

	j.entries = append(j.entries, Entry{
		Sequence:    seq,
		ContentHash: contentHash,
		PrevHash:    j.headHash,
		Height:      height,
		Transfer:    tr,
	})
	j.headHash = contentHash

	return seq, nil
}

// Get retrieves an entry by sequence number.
func (j *Journal) Get(seq uint64) (*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if seq == 0 || seq > uint64(len(j.entries)) {
		return nil, fmt.Errorf("entry %d not found", seq)
	}
	entry := j.entries[seq-1]
	return &entry, nil
}

// Head returns the current head hash.
func (j *Journal) Head() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.headHash
}

// Length returns the number of entries.
func (j *Journal) Length() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.entries)
}

// Entries returns a copy of every recorded transfer, in order.
func (j *Journal) Entries() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Verify checks the integrity of the entire chain.
func (j *Journal) Verify() (bool, string) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	prevHash := "genesis"
	for i, entry := range j.entries {
		if entry.PrevHash != prevHash {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prevHash, entry.PrevHash)
		}

		computed, err := entryHash(entry.Sequence, entry.Height, entry.Transfer, entry.PrevHash)
		if err != nil {
			return false, fmt.Sprintf("failed to hash entry %d", i+1)
		}
		if computed != entry.ContentHash {
			return false, fmt.Sprintf("hash mismatch at entry %d", i+1)
		}
		prevHash = entry.ContentHash
	}

	return true, "chain verified"
}

func entryHash(seq, height uint64, tr Transfer, prevHash string) (string, error) {
	hashInput := struct {
		Seq      uint64   `json:"seq"`
		Height   uint64   `json:"height"`
		Transfer Transfer `json:"transfer"`
		PrevHash string   `json:"prev"`
	}{seq, height, tr, prevHash}

	raw, err := json.Marshal(hashInput)
	if err != nil {
		return "", fmt.Errorf("failed to marshal entry: %w", err)
	}
	h := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}
