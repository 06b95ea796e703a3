package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dkrasnov/tenantauth/internal/hash"
	"github.com/dkrasnov/tenantauth/internal/logging"
)

type SessionInfo struct {
	ID         uuid.UUID  `json:"id"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	Current    bool       `json:"current"`
}

// Sessions lists the caller's active sessions. currentSecret is the refresh
// secret from the request's cookie, used only to flag "this device"; an
// empty value just means nothing is marked current.
func (s *AuthService) Sessions(ctx context.Context, userID uuid.UUID, currentSecret string) ([]SessionInfo, error) {
	records, err := s.Repo.ActiveForUser(userID, s.now())
	if err != nil {
		return nil, err
	}

	currentHash := ""
	if currentSecret != "" {
		currentHash = hash.Sha256Hex(currentSecret)
	}

	out := make([]SessionInfo, 0, len(records))
	for _, r := range records {
		out = append(out, SessionInfo{
			ID:         r.ID,
			CreatedAt:  r.CreatedAt,
			LastUsedAt: r.LastUsedAt,
			ExpiresAt:  r.ExpiresAt,
			Current:    currentHash != "" && r.TokenHash == currentHash,
		})
	}
	return out, nil
}

// RevokeSession revokes one of the caller's sessions by id. Unknown and
// already-revoked ids return success: the endpoint must not leak whether a
// session existed, and clients can retry freely.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	revoked, err := s.Repo.RevokeOwnedIfActive(sessionID, userID, reasonLogout, s.now())
	if err != nil {
		return err
	}
	if revoked {
		logging.FromContext(ctx).Info("session_revoked", "user_id", userID, "session_id", sessionID)
	}
	return nil
}
