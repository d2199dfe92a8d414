/*
token.go - Share token authority

PURPOSE:
  Issues, validates, rotates and audits the capability tokens that stand in
  for authentication on the public booking surface. A token is a
  high-entropy bearer string scoped to one (student, teacher) pair.

SECURITY PROPERTIES:
  - 256 bits of entropy from crypto/rand; unguessable, enumeration-proof.
  - One active token per pair; regeneration rotates (the prior token fails
    validation immediately, with the same error as a never-issued token).
  - Unknown and inactive tokens are indistinguishable: InvalidToken never
    reveals whether a token "almost" matched. Expired-but-otherwise-valid
    tokens fail with the distinguishable ExpiredToken.
  - Every validation is audited keyed by a SHA-256 hash of the token -
    never the raw value - with caller IP and user agent. The audit write is
    best-effort: its failure is logged and must not block the request.

SEE ALSO:
  - api/handlers.go: the public endpoints that consume the claims
*/
package booking

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// TokenTTLDefault is how long a share token stays valid.
	TokenTTLDefault = 90 * 24 * time.Hour

	// RotationWarning is how close to expiry Validate starts signalling
	// NeedsRotation so the UI can refresh the link proactively.
	RotationWarning = 7 * 24 * time.Hour

	tokenBytes = 32
)

// =============================================================================
// SHARE TOKEN AUTHORITY
// =============================================================================

type ShareTokenAuthority struct {
	store  TxStore
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

func NewShareTokenAuthority(store TxStore, logger *zap.Logger) *ShareTokenAuthority {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShareTokenAuthority{
		store:  store,
		logger: logger,
		ttl:    TokenTTLDefault,
		now:    time.Now,
	}
}

// SetClock overrides the authority clock. Tests only.
func (a *ShareTokenAuthority) SetClock(now func() time.Time) { a.now = now }

// SetTTL overrides the token lifetime.
func (a *ShareTokenAuthority) SetTTL(ttl time.Duration) { a.ttl = ttl }

// =============================================================================
// CREATE / ROTATE
// =============================================================================

// Create returns the pair's token. Idempotent: an active, non-expired
// token is returned as-is; otherwise a new token is generated and any
// prior token for the pair is deactivated (rotation, not append).
func (a *ShareTokenAuthority) Create(ctx context.Context, student StudentID, teacher TeacherID) (*ShareToken, error) {
	if student == "" || teacher == "" {
		return nil, ErrInvalidInput
	}

	var out *ShareToken
	err := a.store.WithTx(ctx, func(s Store) error {
		now := a.now().UTC()

		existing, err := s.GetActiveToken(ctx, student, teacher)
		if err == nil && existing.ExpiresAt.After(now) {
			out = existing
			return nil
		}
		if err != nil && !errors.Is(err, ErrInvalidToken) {
			return err
		}
		if existing != nil {
			existing.IsActive = false
			if err := s.SaveToken(ctx, existing); err != nil {
				return err
			}
		}

		value, err := generateToken()
		if err != nil {
			return err
		}
		t := &ShareToken{
			ID:        TokenID(uuid.NewString()),
			Token:     value,
			StudentID: student,
			TeacherID: teacher,
			CreatedAt: now,
			ExpiresAt: now.Add(a.ttl),
			IsActive:  true,
		}
		if err := s.SaveToken(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Rotate forces a new token for the pair, invalidating the current one
// even if it has not expired.
func (a *ShareTokenAuthority) Rotate(ctx context.Context, student StudentID, teacher TeacherID) (*ShareToken, error) {
	err := a.store.WithTx(ctx, func(s Store) error {
		existing, err := s.GetActiveToken(ctx, student, teacher)
		if errors.Is(err, ErrInvalidToken) {
			return nil
		}
		if err != nil {
			return err
		}
		existing.IsActive = false
		return s.SaveToken(ctx, existing)
	})
	if err != nil {
		return nil, err
	}
	return a.Create(ctx, student, teacher)
}

// =============================================================================
// VALIDATE
// =============================================================================

// TokenClaims is what a valid token grants.
type TokenClaims struct {
	StudentID     StudentID
	TeacherID     TeacherID
	NeedsRotation bool
}

// Validate checks a bearer token and returns its claims. Side effects:
// access_count and last_accessed are updated and an audit row is appended
// (best-effort) for every attempt, successful or not.
func (a *ShareTokenAuthority) Validate(ctx context.Context, token string, client ClientInfo) (*TokenClaims, error) {
	if token == "" {
		a.audit(ctx, token, nil, "invalid", client)
		return nil, ErrInvalidToken
	}

	var claims *TokenClaims
	var found *ShareToken
	expired := false
	err := a.store.WithTx(ctx, func(s Store) error {
		now := a.now().UTC()

		t, err := s.GetTokenByValue(ctx, token)
		if err != nil {
			return err
		}
		if !t.IsActive {
			// Rotated-out tokens look exactly like unknown ones.
			return ErrInvalidToken
		}
		found = t

		// The counter moves on every attempt, expired included, so the
		// expired branch must not abort the unit.
		t.AccessCount++
		t.LastAccessed = &now
		if err := s.SaveToken(ctx, t); err != nil {
			return err
		}

		if !t.ExpiresAt.After(now) {
			expired = true
			return nil
		}
		claims = &TokenClaims{
			StudentID:     t.StudentID,
			TeacherID:     t.TeacherID,
			NeedsRotation: t.ExpiresAt.Sub(now) < RotationWarning,
		}
		return nil
	})

	switch {
	case err == nil && expired:
		a.audit(ctx, token, found, "expired", client)
		return nil, ErrExpiredToken
	case err == nil:
		a.audit(ctx, token, found, "ok", client)
		return claims, nil
	case errors.Is(err, ErrInvalidToken):
		a.audit(ctx, token, nil, "invalid", client)
		return nil, ErrInvalidToken
	default:
		return nil, err
	}
}

// =============================================================================
// INTERNAL
// =============================================================================

// audit appends a validation attempt to the audit trail. Best-effort: a
// failed audit write is logged and never surfaces to the caller.
func (a *ShareTokenAuthority) audit(ctx context.Context, token string, t *ShareToken, outcome string, client ClientInfo) {
	entry := TokenAuditEntry{
		ID:        uuid.NewString(),
		TokenHash: HashToken(token),
		Outcome:   outcome,
		ClientIP:  client.IP,
		UserAgent: client.UserAgent,
		At:        a.now().UTC(),
	}
	if t != nil {
		entry.StudentID = t.StudentID
		entry.TeacherID = t.TeacherID
	}
	if err := a.store.AppendTokenAudit(ctx, entry); err != nil {
		a.logger.Warn("token audit write failed",
			zap.String("outcome", outcome), zap.Error(err))
	}
}

// HashToken returns the hex SHA-256 of a token. Audit rows and logs use
// this, never the raw value.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// generateToken returns a URL-safe bearer string with 256 bits of entropy.
func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
