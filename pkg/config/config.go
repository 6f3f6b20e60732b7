package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
)

// Config holds server configuration.
type Config struct {
	Port         string
	LogLevel     string
	DatabasePath string // sqlite pipeline store
	PostgresURL  string // optional treasury backend; empty selects in-memory
	PlanPackPath string
	JWTSecret    string

	Admin contracts.Principal

	MaxPeriods          uint64
	VerificationFee     uint64
	ComplianceThreshold uint64
	MaxProofs           uint64
	ProofFee            uint64
	ProofExpiry         uint64
	MaxClaims           uint64
	ClaimFee            uint64
}

// Load loads configuration from environment variables. Numeric limits
// and fees fall back to the contract defaults when unset.
func Load() (*Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "vitaclaim.db"
	}

	planPack := os.Getenv("PLAN_PACK_PATH")
	if planPack == "" {
		planPack = "plans.yaml"
	}

	admin := os.Getenv("ADMIN_PRINCIPAL")
	if admin == "" {
		return nil, fmt.Errorf("ADMIN_PRINCIPAL is required")
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		Port:         port,
		LogLevel:     logLevel,
		DatabasePath: dbPath,
		PostgresURL:  os.Getenv("POSTGRES_URL"),
		PlanPackPath: planPack,
		JWTSecret:    secret,
		Admin:        contracts.Principal(admin),
	}

	var err error
	if cfg.MaxPeriods, err = envUint("MAX_PERIODS", 100); err != nil {
		return nil, err
	}
	if cfg.VerificationFee, err = envUint("VERIFICATION_FEE", 500); err != nil {
		return nil, err
	}
	if cfg.ComplianceThreshold, err = envUint("COMPLIANCE_THRESHOLD", 80); err != nil {
		return nil, err
	}
	if cfg.MaxProofs, err = envUint("MAX_PROOFS", 1000); err != nil {
		return nil, err
	}
	if cfg.ProofFee, err = envUint("PROOF_FEE", 200); err != nil {
		return nil, err
	}
	if cfg.ProofExpiry, err = envUint("PROOF_EXPIRY", 52_560); err != nil {
		return nil, err
	}
	if cfg.MaxClaims, err = envUint("MAX_CLAIMS", 1000); err != nil {
		return nil, err
	}
	if cfg.ClaimFee, err = envUint("CLAIM_FEE", 100); err != nil {
		return nil, err
	}

	if cfg.ComplianceThreshold == 0 || cfg.ComplianceThreshold > 100 {
		return nil, fmt.Errorf("COMPLIANCE_THRESHOLD must be in 1..100, got %d", cfg.ComplianceThreshold)
	}
	if cfg.ProofExpiry == 0 {
		return nil, fmt.Errorf("PROOF_EXPIRY must be positive")
	}

	return cfg, nil
}

func envUint(key string, def uint64) (uint64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
