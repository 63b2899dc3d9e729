// Package service contains the registry's business logic: registration,
// heartbeat liveness tracking, and discovery queries. The persistence
// engine behind repository.Store is deliberately opaque here.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/agentdir/agentdir/internal/registry/model"
	"github.com/agentdir/agentdir/internal/registry/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// RegistryService handles agent registration and single-record reads.
type RegistryService struct {
	store  repository.Store
	logger *zap.Logger
	nowFn  func() time.Time
}

// NewRegistryService creates a RegistryService.
func NewRegistryService(store repository.Store, logger *zap.Logger) *RegistryService {
	return &RegistryService{store: store, logger: logger, nowFn: time.Now}
}

// SetNow replaces the clock used for created_at stamps and derived-online
// reads. Tests use this to move time past the online window.
func (s *RegistryService) SetNow(now func() time.Time) {
	s.nowFn = now
}

// Register validates the card, derives the slug id, issues the one-time
// heartbeat token, and creates the record with an offline-equivalent
// liveness state. Collisions on the derived id are rejected with
// repository.ErrConflict: re-registering a name requires choosing a new
// one, never silently replacing the existing record or its credential.
func (s *RegistryService) Register(ctx context.Context, req *model.RegisterRequest) (*model.RegisterResult, error) {
	card := req.Card
	card.Normalize()
	if err := card.Validate(); err != nil {
		return nil, &model.ErrValidation{Msg: err.Error()}
	}

	id := model.Slugify(card.Name)
	if id == "" {
		return nil, &model.ErrValidation{Msg: "card: name must contain at least one alphanumeric character"}
	}

	token, hash, err := newHeartbeatToken()
	if err != nil {
		return nil, fmt.Errorf("generate heartbeat token: %w", err)
	}

	rec := &model.AgentRecord{
		ID:             id,
		Card:           card,
		CredentialHash: hash,
		CreatedAt:      s.nowFn().UTC(),
	}

	if err := s.store.Create(ctx, rec, model.NewLivenessState()); err != nil {
		return nil, err
	}

	// The plaintext token is returned to the caller exactly once and is
	// never logged.
	s.logger.Info("agent registered",
		zap.String("agent_id", id),
		zap.String("name", card.Name),
		zap.Int("skills", len(card.Skills)),
	)

	// Lint the normalized card so warnings describe what was stored, not
	// the raw submission.
	return &model.RegisterResult{ID: id, Token: token, Warnings: card.Lint()}, nil
}

// Get returns the merged static + liveness view of one agent, with Online
// derived at call time.
func (s *RegistryService) Get(ctx context.Context, id string) (model.Snapshot, error) {
	rec, state, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Snapshot{}, err
	}
	return model.NewSnapshot(rec, state, s.nowFn()), nil
}

// newHeartbeatToken generates the opaque bearer credential an agent uses
// to authenticate heartbeats: 32 random bytes, base32-encoded with an
// "hb_" prefix. The returned hash is what gets stored; the plaintext
// leaves this function only once.
func newHeartbeatToken() (token, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	token = "hb_" + strings.ToLower(encoded)

	h, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return token, string(h), nil
}
