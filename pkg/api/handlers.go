package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/canonical"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/claims"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/issuer"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/observability"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/verifier"
)

// Archive receives successful pipeline writes for durable audit.
// Satisfied by *store.SQLitePipelineStore; nil disables archiving.
// Archive failures are logged, never surfaced: the in-memory components
// stay authoritative.
type Archive interface {
	PutVerification(ctx context.Context, user contracts.Principal, periodStart, periodEnd uint64, v contracts.Verification) error
	PutProof(ctx context.Context, proofID uint64, p contracts.Proof) error
	SetProofStatus(ctx context.Context, proofID uint64, status bool) error
	PutClaim(ctx context.Context, claimID uint64, c contracts.Claim) error
	SetClaimStatus(ctx context.Context, claimID uint64, status contracts.ClaimStatus) error
}

// Server wires the three pipeline stages behind HTTP handlers.
type Server struct {
	verifier *verifier.Verifier
	issuer   *issuer.Issuer
	settler  *claims.Settler
	archive  Archive
	obs      *observability.Provider
	logger   *slog.Logger
}

func NewServer(v *verifier.Verifier, i *issuer.Issuer, s *claims.Settler, archive Archive, obs *observability.Provider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		verifier: v,
		issuer:   i,
		settler:  s,
		archive:  archive,
		obs:      obs,
		logger:   logger,
	}
}

// Handler returns the route tree. Every route except /healthz sits
// behind auth; callers act as the principal named by their token.
func (s *Server) Handler(tm *TokenManager, limiter *GlobalRateLimiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	authed := http.NewServeMux()
	authed.HandleFunc("POST /v1/verifications", s.handleVerifyPeriod)
	authed.HandleFunc("GET /v1/verifications/{user}", s.handleGetVerification)
	authed.HandleFunc("GET /v1/users/{user}/aggregate", s.handleGetAggregate)
	authed.HandleFunc("GET /v1/users/{user}/score", s.handleCalculateScore)
	authed.HandleFunc("POST /v1/proofs", s.handleGenerateProof)
	authed.HandleFunc("GET /v1/proofs/hash", s.handleProofHash)
	authed.HandleFunc("GET /v1/proofs/{id}", s.handleGetProof)
	authed.HandleFunc("GET /v1/proofs/{id}/verify", s.handleVerifyProof)
	authed.HandleFunc("POST /v1/proofs/{id}/revoke", s.handleRevokeProof)
	authed.HandleFunc("POST /v1/claims", s.handleSubmitClaim)
	authed.HandleFunc("GET /v1/claims/{id}", s.handleGetClaim)
	authed.HandleFunc("POST /v1/claims/{id}/approve", s.handleApproveClaim)
	authed.HandleFunc("POST /v1/claims/{id}/reject", s.handleRejectClaim)
	authed.HandleFunc("POST /v1/insurers", s.handleRegisterInsurer)

	mux.Handle("/v1/", tm.AuthMiddleware(authed))

	var handler http.Handler = mux
	if limiter != nil {
		handler = limiter.Middleware(handler)
	}
	handler = LoggingMiddleware(s.logger, handler)
	return RequestIDMiddleware(handler)
}

type verifyPeriodRequest struct {
	PeriodStart uint64 `json:"period_start"`
	PeriodEnd   uint64 `json:"period_end"`
}

type verifyPeriodResponse struct {
	Score  uint64 `json:"score"`
	Status bool   `json:"status"`
}

func (s *Server) handleVerifyPeriod(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		WriteUnauthorized(w, "")
		return
	}
	var req verifyPeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "malformed JSON body")
		return
	}

	ctx, finish := s.track(r, "verify.period")
	score, err := s.verifier.VerifyPeriod(caller, req.PeriodStart, req.PeriodEnd)
	finish(err)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	v, _ := s.verifier.GetVerification(caller, req.PeriodStart, req.PeriodEnd)
	if s.archive != nil && v != nil {
		if aerr := s.archive.PutVerification(ctx, caller, req.PeriodStart, req.PeriodEnd, *v); aerr != nil {
			s.logger.Error("archive verification", "error", aerr)
		}
	}
	if s.obs != nil && v != nil {
		planID, _ := s.verifier.SubscribedPlan(caller)
		s.obs.RecordVerification(ctx, s.verifier.VerificationFee(),
			observability.VerificationAttrs(caller, planID, score, v.Status)...)
	}

	resp := verifyPeriodResponse{Score: score}
	if v != nil {
		resp.Status = v.Status
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	user := contracts.Principal(r.PathValue("user"))
	start, err1 := strconv.ParseUint(r.URL.Query().Get("start"), 10, 64)
	end, err2 := strconv.ParseUint(r.URL.Query().Get("end"), 10, 64)
	if err1 != nil || err2 != nil {
		WriteBadRequest(w, "start and end query parameters are required")
		return
	}

	v, ok := s.verifier.GetVerification(user, start, end)
	if !ok {
		WriteNotFound(w, "no verification for period")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGetAggregate(w http.ResponseWriter, r *http.Request) {
	user := contracts.Principal(r.PathValue("user"))
	agg, ok := s.verifier.GetAggregateScore(user)
	if !ok {
		WriteNotFound(w, "no verified periods for user")
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) handleCalculateScore(w http.ResponseWriter, r *http.Request) {
	user := contracts.Principal(r.PathValue("user"))
	q := r.URL.Query()
	start, err1 := strconv.ParseUint(q.Get("start"), 10, 64)
	end, err2 := strconv.ParseUint(q.Get("end"), 10, 64)
	planID, err3 := strconv.ParseUint(q.Get("plan_id"), 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		WriteBadRequest(w, "start, end and plan_id query parameters are required")
		return
	}

	score, err := s.verifier.CalculateAdherenceScore(user, planID, start, end)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"score": score})
}

// handleProofHash derives the canonical hash for the caller's recorded
// verification. Clients submit this hash back in POST /v1/proofs so
// both sides agree on the evidence behind the proof.
func (s *Server) handleProofHash(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		WriteUnauthorized(w, "")
		return
	}
	q := r.URL.Query()
	start, err1 := strconv.ParseUint(q.Get("start"), 10, 64)
	end, err2 := strconv.ParseUint(q.Get("end"), 10, 64)
	planID, err3 := strconv.ParseUint(q.Get("plan_id"), 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		WriteBadRequest(w, "start, end and plan_id query parameters are required")
		return
	}

	v, ok := s.verifier.GetVerification(caller, start, end)
	if !ok {
		WriteNotFound(w, "no verification for period")
		return
	}

	digest, err := canonical.HashHex(canonical.Bundle{
		User:        caller,
		PlanID:      planID,
		PeriodStart: start,
		PeriodEnd:   end,
		Score:       v.Score,
		Timestamp:   v.Timestamp,
	})
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"proof_hash": digest})
}

type generateProofRequest struct {
	PeriodStart uint64 `json:"period_start"`
	PeriodEnd   uint64 `json:"period_end"`
	PlanID      uint64 `json:"plan_id"`
	ProofHash   string `json:"proof_hash"` // hex
}

func (s *Server) handleGenerateProof(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		WriteUnauthorized(w, "")
		return
	}
	var req generateProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "malformed JSON body")
		return
	}
	hash, err := hex.DecodeString(req.ProofHash)
	if err != nil {
		WriteBadRequest(w, "proof_hash must be hex")
		return
	}

	ctx, finish := s.track(r, "proof.mint")
	proofID, err := s.issuer.GenerateProof(caller, req.PeriodStart, req.PeriodEnd, req.PlanID, hash)
	finish(err)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	if proof, ok := s.issuer.GetProof(proofID); ok {
		if s.archive != nil {
			if aerr := s.archive.PutProof(ctx, proofID, *proof); aerr != nil {
				s.logger.Error("archive proof", "error", aerr)
			}
		}
		if s.obs != nil {
			s.obs.RecordProof(ctx, s.issuer.ProofFee(),
				observability.ProofAttrs(caller, proofID, proof.Expiry)...)
		}
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"proof_id": proofID})
}

func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	proofID, err := pathID(r)
	if err != nil {
		WriteBadRequest(w, "invalid proof id")
		return
	}
	proof, ok := s.issuer.GetProof(proofID)
	if !ok {
		WriteNotFound(w, "no such proof")
		return
	}
	writeJSON(w, http.StatusOK, proof)
}

func (s *Server) handleVerifyProof(w http.ResponseWriter, r *http.Request) {
	proofID, err := pathID(r)
	if err != nil {
		WriteBadRequest(w, "invalid proof id")
		return
	}
	status, err := s.issuer.VerifyProof(proofID)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"status": status})
}

func (s *Server) handleRevokeProof(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		WriteUnauthorized(w, "")
		return
	}
	proofID, err := pathID(r)
	if err != nil {
		WriteBadRequest(w, "invalid proof id")
		return
	}

	ctx, finish := s.track(r, "proof.revoke")
	err = s.issuer.RevokeProof(caller, proofID)
	finish(err)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	if s.archive != nil {
		if aerr := s.archive.SetProofStatus(ctx, proofID, false); aerr != nil {
			s.logger.Error("archive proof revocation", "error", aerr)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitClaimRequest struct {
	ProofID        uint64              `json:"proof_id"`
	Insurer        contracts.Principal `json:"insurer"`
	DiscountAmount uint64              `json:"discount_amount"`
}

func (s *Server) handleSubmitClaim(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		WriteUnauthorized(w, "")
		return
	}
	var req submitClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "malformed JSON body")
		return
	}

	ctx, finish := s.track(r, "claim.submit")
	claimID, err := s.settler.SubmitClaim(caller, req.ProofID, req.Insurer, req.DiscountAmount)
	finish(err)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	if claim, ok := s.settler.GetClaim(claimID); ok {
		if s.archive != nil {
			if aerr := s.archive.PutClaim(ctx, claimID, *claim); aerr != nil {
				s.logger.Error("archive claim", "error", aerr)
			}
		}
		if s.obs != nil {
			s.obs.RecordClaim(ctx, s.settler.ClaimFee(),
				observability.ClaimAttrs(caller, req.Insurer, claimID, claim.Status)...)
		}
	}
	writeJSON(w, http.StatusCreated, map[string]uint64{"claim_id": claimID})
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	claimID, err := pathID(r)
	if err != nil {
		WriteBadRequest(w, "invalid claim id")
		return
	}
	claim, ok := s.settler.GetClaim(claimID)
	if !ok {
		WriteNotFound(w, "no such claim")
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

func (s *Server) handleApproveClaim(w http.ResponseWriter, r *http.Request) {
	s.settleClaim(w, r, contracts.ClaimApproved)
}

func (s *Server) handleRejectClaim(w http.ResponseWriter, r *http.Request) {
	s.settleClaim(w, r, contracts.ClaimRejected)
}

func (s *Server) settleClaim(w http.ResponseWriter, r *http.Request, target contracts.ClaimStatus) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		WriteUnauthorized(w, "")
		return
	}
	claimID, err := pathID(r)
	if err != nil {
		WriteBadRequest(w, "invalid claim id")
		return
	}

	ctx, finish := s.track(r, "claim.settle")
	if target == contracts.ClaimApproved {
		err = s.settler.ApproveClaim(caller, claimID)
	} else {
		err = s.settler.RejectClaim(caller, claimID)
	}
	finish(err)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	if s.archive != nil {
		if aerr := s.archive.SetClaimStatus(ctx, claimID, target); aerr != nil {
			s.logger.Error("archive claim settlement", "error", aerr)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type registerInsurerRequest struct {
	Insurer contracts.Principal `json:"insurer"`
}

func (s *Server) handleRegisterInsurer(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		WriteUnauthorized(w, "")
		return
	}
	var req registerInsurerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "malformed JSON body")
		return
	}
	if err := s.settler.RegisterInsurer(caller, req.Insurer); err != nil {
		WriteDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) track(r *http.Request, name string) (context.Context, func(error)) {
	if s.obs != nil {
		return s.obs.TrackOperation(r.Context(), name)
	}
	return r.Context(), func(error) {}
}

func pathID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
