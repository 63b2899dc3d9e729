package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/agentdir/agentdir/internal/registry/model"
	"github.com/agentdir/agentdir/internal/registry/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// LivenessService owns the heartbeat protocol: credential checks and the
// atomic replacement of per-agent dynamic state. It never calls out to an
// agent's endpoint; liveness is purely self-reported.
type LivenessService struct {
	store  repository.Store
	logger *zap.Logger
	nowFn  func() time.Time
}

// NewLivenessService creates a LivenessService.
func NewLivenessService(store repository.Store, logger *zap.Logger) *LivenessService {
	return &LivenessService{store: store, logger: logger, nowFn: time.Now}
}

// SetNow replaces the clock used for last_seen_at stamps. Tests use this.
func (s *LivenessService) SetNow(now func() time.Time) {
	s.nowFn = now
}

// Online derives reachability for the given state against the service
// clock, so callers report it from the same reference time that stamped
// the heartbeat.
func (s *LivenessService) Online(state model.LivenessState) bool {
	return state.Online(s.nowFn())
}

// Authenticate verifies the presented heartbeat token against the stored
// bcrypt hash for id. Unknown ids and wrong tokens both come back as
// model.ErrUnauthorized so a caller probing the API cannot tell which
// failed; the distinction is kept for debug logs only. bcrypt's comparison
// is constant-time with respect to the presented credential.
func (s *LivenessService) Authenticate(ctx context.Context, id, token string) error {
	rec, _, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("heartbeat auth failed: unknown agent", zap.String("agent_id", id))
			return model.ErrUnauthorized
		}
		return fmt.Errorf("load agent %s: %w", id, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.CredentialHash), []byte(token)); err != nil {
		s.logger.Debug("heartbeat auth failed: token mismatch", zap.String("agent_id", id))
		return model.ErrUnauthorized
	}
	return nil
}

// RecordHeartbeat validates and applies a heartbeat for an already
// authenticated id. The stored liveness state is replaced wholesale:
// a heartbeat is "report your current state", so any load or message not
// present in this call is cleared, not carried over. Validation failures
// leave the stored state untouched.
func (s *LivenessService) RecordHeartbeat(ctx context.Context, id string, req model.HeartbeatRequest) (model.LivenessState, error) {
	if !req.Status.Valid() {
		return model.LivenessState{}, &model.ErrValidation{
			Msg: fmt.Sprintf("status must be one of online, offline, busy; got %q", req.Status),
		}
	}
	if req.Load != nil && (*req.Load < 0 || *req.Load > 1) {
		return model.LivenessState{}, &model.ErrValidation{
			Msg: fmt.Sprintf("load must be within [0.0, 1.0]; got %g", *req.Load),
		}
	}
	// The bound is in characters, not bytes; multibyte text counts by rune.
	if utf8.RuneCountInString(req.Message) > model.MaxMessageLen {
		return model.LivenessState{}, &model.ErrValidation{
			Msg: fmt.Sprintf("message must be at most %d characters", model.MaxMessageLen),
		}
	}

	now := s.nowFn().UTC()
	state := model.LivenessState{
		Status:     req.Status,
		Load:       req.Load,
		Message:    req.Message,
		LastSeenAt: &now,
	}

	if err := s.store.UpdateLiveness(ctx, id, state); err != nil {
		return model.LivenessState{}, err
	}

	s.logger.Debug("heartbeat recorded",
		zap.String("agent_id", id),
		zap.String("status", string(req.Status)),
	)
	return state, nil
}
