// Package canonical derives deterministic proof hashes from verification
// evidence. Bundles are serialized to RFC 8785 canonical JSON before
// hashing so that two parties computing the hash from equal evidence
// always agree, regardless of map ordering or encoder quirks.
package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
)

// Bundle is the evidence behind a proof: the verified period, the plan
// it was scored against, and the outcome.
type Bundle struct {
	User        contracts.Principal `json:"user"`
	PlanID      uint64              `json:"plan_id"`
	PeriodStart uint64              `json:"period_start"`
	PeriodEnd   uint64              `json:"period_end"`
	Score       uint64              `json:"score"`
	Timestamp   uint64              `json:"timestamp"`
}

// Canonicalize returns the RFC 8785 canonical JSON form of v.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonical: transform: %w", err)
	}
	return out, nil
}

// BundleHash returns sha256 over the canonical form of the bundle. This
// is the byte string submitted as a proof hash.
func BundleHash(b Bundle) ([]byte, error) {
	canon, err := Canonicalize(b)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(canon)
	return sum[:], nil
}

// HashHex is BundleHash rendered as lowercase hex, for transport and
// logging.
func HashHex(b Bundle) (string, error) {
	sum, err := BundleHash(b)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}
