package observability

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
)

// Attribute helpers for pipeline spans and counters.

// VerificationAttrs describes a scored compliance period.
func VerificationAttrs(user contracts.Principal, planID, score uint64, passed bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("vitaclaim.user", string(user)),
		attribute.Int64("vitaclaim.plan.id", int64(planID)),
		attribute.Int64("vitaclaim.score", int64(score)),
		attribute.Bool("vitaclaim.passed", passed),
	}
}

// ProofAttrs describes a minted or checked proof.
func ProofAttrs(user contracts.Principal, proofID, expiry uint64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("vitaclaim.user", string(user)),
		attribute.Int64("vitaclaim.proof.id", int64(proofID)),
		attribute.Int64("vitaclaim.proof.expiry", int64(expiry)),
	}
}

// ClaimAttrs describes a claim moving through settlement.
func ClaimAttrs(user, insurer contracts.Principal, claimID uint64, status contracts.ClaimStatus) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("vitaclaim.user", string(user)),
		attribute.String("vitaclaim.insurer", string(insurer)),
		attribute.Int64("vitaclaim.claim.id", int64(claimID)),
		attribute.String("vitaclaim.claim.status", string(status)),
	}
}
