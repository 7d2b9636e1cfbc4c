// Package credential issues and verifies the session-scoped capability
// tokens presented by recruiters, candidates, and the AI interviewer.
//
// A credential is a short-lived ed25519-signed JWT binding an actor and a
// role to exactly one session. Authorization is a closed table: each role
// carries an explicit set of allowed operations, checked once at the
// boundary.
package credential

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/caliperhq/caliper/internal/platform/errors"
)

// Role identifies the kind of actor presenting a credential.
type Role int

const (
	// RoleUnspecified represents an invalid role value.
	RoleUnspecified Role = iota
	// RoleRecruiter is the recruiter who owns the session.
	RoleRecruiter
	// RoleCandidate is the candidate being interviewed.
	RoleCandidate
	// RoleAIAvatar is the AI interviewer driving the conversation.
	RoleAIAvatar
)

// Label returns a stable label for a role.
func (r Role) Label() string {
	switch r {
	case RoleRecruiter:
		return "RECRUITER"
	case RoleCandidate:
		return "CANDIDATE"
	case RoleAIAvatar:
		return "AI_AVATAR"
	default:
		return "UNSPECIFIED"
	}
}

// RoleFromLabel parses a string label into a Role.
func RoleFromLabel(value string) (Role, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return RoleUnspecified, apperrors.New(apperrors.CodeCredentialInvalidRole, "credential role is required")
	}
	switch strings.ToUpper(trimmed) {
	case "RECRUITER":
		return RoleRecruiter, nil
	case "CANDIDATE":
		return RoleCandidate, nil
	case "AI_AVATAR":
		return RoleAIAvatar, nil
	default:
		return RoleUnspecified, apperrors.WithMetadata(
			apperrors.CodeCredentialInvalidRole,
			fmt.Sprintf("unknown credential role: %s", trimmed),
			map[string]string{"Role": trimmed},
		)
	}
}

// Operation names one action an actor can perform against a session.
type Operation string

const (
	OperationStart           Operation = "start"
	OperationSubmitResponse  Operation = "submit_response"
	OperationPause           Operation = "pause"
	OperationResume          Operation = "resume"
	OperationCancel          Operation = "cancel"
	OperationTerminateEarly  Operation = "terminate_early"
	OperationDeliverQuestion Operation = "deliver_question"
	OperationReportFault     Operation = "report_fault"
	OperationGetStatus       Operation = "get_status"
	OperationGetAnalytics    Operation = "get_analytics"
)

// capabilities is the closed role-to-operations table.
var capabilities = map[Role]map[Operation]struct{}{
	RoleRecruiter: {
		OperationStart:          {},
		OperationPause:          {},
		OperationCancel:         {},
		OperationTerminateEarly: {},
		OperationGetStatus:      {},
		OperationGetAnalytics:   {},
	},
	RoleCandidate: {
		OperationStart:          {},
		OperationSubmitResponse: {},
		OperationPause:          {},
		OperationResume:         {},
		OperationGetStatus:      {},
	},
	RoleAIAvatar: {
		OperationDeliverQuestion: {},
		OperationReportFault:     {},
		OperationGetStatus:       {},
	},
}

// Allows reports whether the role may perform the operation.
func (r Role) Allows(op Operation) bool {
	_, ok := capabilities[r][op]
	return ok
}

// Operations returns the operations the role may perform.
func (r Role) Operations() []Operation {
	ops := make([]Operation, 0, len(capabilities[r]))
	for op := range capabilities[r] {
		ops = append(ops, op)
	}
	return ops
}

// Claims captures the validated contents of a session credential.
type Claims struct {
	SubjectID string
	Role      Role
	SessionID string
	JWTID     string
	Issuer    string
	Audience  []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// tokenClaims is the internal claims type used for JWT signing and parsing.
type tokenClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
}

// RevocationStore records sessions whose credentials are no longer valid.
// Revocation is session-scoped: a session entering a terminal state revokes
// every credential bound to it at once.
type RevocationStore interface {
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)
	RevokeSession(ctx context.Context, sessionID string, revokedAt time.Time) error
}

// issuerEnv holds raw env values before post-parse validation.
type issuerEnv struct {
	Issuer     string        `env:"CALIPER_CREDENTIAL_ISSUER"`
	Audience   string        `env:"CALIPER_CREDENTIAL_AUDIENCE"`
	PrivateKey string        `env:"CALIPER_CREDENTIAL_PRIVATE_KEY"`
	PublicKey  string        `env:"CALIPER_CREDENTIAL_PUBLIC_KEY"`
	TTL        time.Duration `env:"CALIPER_CREDENTIAL_TTL" envDefault:"2h"`
}

// IssuerConfig defines how credentials are signed.
type IssuerConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PrivateKey
	TTL      time.Duration
	Now      func() time.Time
}

// VerifierConfig defines how credentials are verified.
type VerifierConfig struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// LoadIssuerConfigFromEnv reads credential signing configuration.
func LoadIssuerConfigFromEnv(now func() time.Time) (IssuerConfig, error) {
	var raw issuerEnv
	if err := env.Parse(&raw); err != nil {
		return IssuerConfig{}, fmt.Errorf("parse credential env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	privateKey := strings.TrimSpace(raw.PrivateKey)
	if issuer == "" {
		return IssuerConfig{}, fmt.Errorf("CALIPER_CREDENTIAL_ISSUER is required")
	}
	if audience == "" {
		return IssuerConfig{}, fmt.Errorf("CALIPER_CREDENTIAL_AUDIENCE is required")
	}
	if privateKey == "" {
		return IssuerConfig{}, fmt.Errorf("CALIPER_CREDENTIAL_PRIVATE_KEY is required")
	}
	keyBytes, err := decodeBase64(privateKey)
	if err != nil {
		return IssuerConfig{}, fmt.Errorf("decode credential private key: %w", err)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return IssuerConfig{}, fmt.Errorf("credential private key must be %d bytes", ed25519.PrivateKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return IssuerConfig{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PrivateKey(keyBytes),
		TTL:      raw.TTL,
		Now:      now,
	}, nil
}

// LoadVerifierConfigFromEnv reads credential verification configuration.
func LoadVerifierConfigFromEnv(now func() time.Time) (VerifierConfig, error) {
	var raw issuerEnv
	if err := env.Parse(&raw); err != nil {
		return VerifierConfig{}, fmt.Errorf("parse credential env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return VerifierConfig{}, fmt.Errorf("CALIPER_CREDENTIAL_ISSUER is required")
	}
	if audience == "" {
		return VerifierConfig{}, fmt.Errorf("CALIPER_CREDENTIAL_AUDIENCE is required")
	}
	if publicKey == "" {
		return VerifierConfig{}, fmt.Errorf("CALIPER_CREDENTIAL_PUBLIC_KEY is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return VerifierConfig{}, fmt.Errorf("decode credential public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return VerifierConfig{}, fmt.Errorf("credential public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return VerifierConfig{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// IssueInput describes the credential to mint.
type IssueInput struct {
	SubjectID string
	Role      Role
	SessionID string
}

// Issue mints a signed session credential for one actor.
func Issue(input IssueInput, cfg IssuerConfig) (string, Claims, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Hour
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PrivateKeySize {
		return "", Claims{}, errors.New("credential issuer is not configured")
	}
	subjectID := strings.TrimSpace(input.SubjectID)
	if subjectID == "" {
		return "", Claims{}, apperrors.New(apperrors.CodeCredentialInvalid, "credential subject is required")
	}
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return "", Claims{}, apperrors.New(apperrors.CodeCredentialInvalid, "credential session id is required")
	}
	if _, ok := capabilities[input.Role]; !ok {
		return "", Claims{}, apperrors.New(apperrors.CodeCredentialInvalidRole, "credential role is invalid")
	}

	issuedAt := cfg.Now().UTC()
	expiresAt := issuedAt.Add(cfg.TTL)
	jwtID := uuid.NewString()

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   subjectID,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ID:        jwtID,
		},
		Role:      input.Role.Label(),
		SessionID: sessionID,
	})
	signed, err := token.SignedString(cfg.Key)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign credential: %w", err)
	}

	return signed, Claims{
		SubjectID: subjectID,
		Role:      input.Role,
		SessionID: sessionID,
		JWTID:     jwtID,
		Issuer:    cfg.Issuer,
		Audience:  []string{cfg.Audience},
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify parses a credential, checks its signature, expiry, issuer,
// audience, session binding, and revocation, and returns the claims.
func Verify(ctx context.Context, token string, sessionID string, cfg VerifierConfig, revocations RevocationStore) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperrors.New(apperrors.CodeCredentialInvalid, "credential is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Issuer == "" || cfg.Audience == "" || len(cfg.Key) != ed25519.PublicKeySize {
		return Claims{}, errors.New("credential verifier is not configured")
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(token *jwt.Token) (any, error) {
		return cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != cfg.Issuer {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeCredentialMismatch,
			"credential issuer mismatch",
			map[string]string{"Field": "issuer"},
		)
	}
	if !audienceContains(parsed.Audience, cfg.Audience) {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeCredentialMismatch,
			"credential audience mismatch",
			map[string]string{"Field": "audience"},
		)
	}
	if parsed.ID == "" {
		return Claims{}, apperrors.New(apperrors.CodeCredentialInvalid, "credential jti is required")
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return Claims{}, apperrors.New(apperrors.CodeCredentialInvalid, "credential subject is required")
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, apperrors.New(apperrors.CodeCredentialInvalid, "credential exp is required")
	}

	now := cfg.Now().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return Claims{}, apperrors.New(apperrors.CodeCredentialExpired, "credential is expired")
	}

	role, err := RoleFromLabel(parsed.Role)
	if err != nil {
		return Claims{}, err
	}

	boundSession := strings.TrimSpace(parsed.SessionID)
	if boundSession == "" {
		return Claims{}, apperrors.New(apperrors.CodeCredentialInvalid, "credential session id is required")
	}
	if sessionID != "" && boundSession != sessionID {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeCredentialSessionMismatch,
			"credential is bound to a different session",
			map[string]string{"SessionID": sessionID},
		)
	}

	if revocations != nil {
		revoked, err := revocations.IsSessionRevoked(ctx, boundSession)
		if err != nil {
			return Claims{}, fmt.Errorf("check credential revocation: %w", err)
		}
		if revoked {
			return Claims{}, apperrors.New(apperrors.CodeCredentialRevoked, "credential has been revoked")
		}
	}

	claims := Claims{
		SubjectID: parsed.Subject,
		Role:      role,
		SessionID: boundSession,
		JWTID:     parsed.ID,
		Issuer:    parsed.Issuer,
		Audience:  []string(parsed.Audience),
		ExpiresAt: exp,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

// Authorize checks the role capability table for the requested operation.
func Authorize(claims Claims, op Operation) error {
	if claims.Role.Allows(op) {
		return nil
	}
	return apperrors.WithMetadata(
		apperrors.CodeOperationNotAllowed,
		fmt.Sprintf("role %s may not perform %s", claims.Role.Label(), op),
		map[string]string{"Role": claims.Role.Label(), "Operation": string(op)},
	)
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeCredentialInvalid, "credential signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeCredentialInvalid, "credential alg is invalid")
	}
	return apperrors.New(apperrors.CodeCredentialInvalid, "credential is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
