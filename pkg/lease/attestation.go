package lease

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const attestationIssuer = "aki/sentinel"

var (
	// ErrAttestationInvalid covers bad signatures, wrong lease binding and
	// malformed tokens.
	ErrAttestationInvalid = errors.New("attestation invalid")
	// ErrAttestationStale is returned when the attested cycle is too old.
	ErrAttestationStale = errors.New("attestation stale")
)

// ComplianceSummary is the structural summary bound into an attestation.
type ComplianceSummary struct {
	RenewalCount  int `json:"renewal_count"`
	Steps         int `json:"steps"`
	Actions       int `json:"actions"`
	ExternalCalls int `json:"external_calls"`
}

// AttestationClaims are signed by the Sentinel on a renewal request.
// Freshness is cycle-indexed; no wall-clock claims are set.
type AttestationClaims struct {
	jwt.RegisteredClaims
	LeaseID    string            `json:"lease_id"`
	Cycle      int64             `json:"cycle"`
	Nonce      string            `json:"nonce"`
	Compliance ComplianceSummary `json:"compliance"`
}

// GenerateAttestation signs a renewal attestation for the bound lease.
func (s *Sentinel) GenerateAttestation(nonce string, cycle int64) (string, error) {
	if s.lease == nil {
		return "", ErrNotBound
	}
	claims := AttestationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  attestationIssuer,
			Subject: s.lease.ID,
			ID:      nonce,
		},
		LeaseID: s.lease.ID,
		Cycle:   cycle,
		Nonce:   nonce,
		Compliance: ComplianceSummary{
			RenewalCount:  s.lease.RenewalCount,
			Steps:         s.usage.Steps,
			Actions:       s.usage.Actions,
			ExternalCalls: s.usage.ExternalCalls,
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign attestation: %w", err)
	}
	return signed, nil
}

// VerifyAttestation checks signature, lease binding and freshness. An
// attestation is fresh when it was produced at most maxAge cycles before now.
func (s *Sentinel) VerifyAttestation(token, leaseID string, now, maxAge int64) (*AttestationClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &AttestationClaims{}
	tok, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrAttestationInvalid, err)
	}
	if claims.Issuer != attestationIssuer || claims.LeaseID != leaseID || claims.Subject != leaseID {
		return nil, fmt.Errorf("%w: bound to %s, want %s", ErrAttestationInvalid, claims.LeaseID, leaseID)
	}
	if claims.Cycle > now || now-claims.Cycle > maxAge {
		return nil, fmt.Errorf("%w: cycle %d at %d (max age %d)", ErrAttestationStale, claims.Cycle, now, maxAge)
	}
	return claims, nil
}
