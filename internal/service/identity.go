package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/concord/internal/domain"
	"github.com/Harshitk-cp/concord/internal/store"
	"go.uber.org/zap"
)

var (
	ErrIdentityNotFound = fmt.Errorf("%w: identity", domain.ErrNotFound)
	ErrIdentityExists   = fmt.Errorf("%w: identity already registered", domain.ErrConflict)
)

type IdentityService struct {
	store  domain.IdentityStore
	logger *zap.Logger
}

func NewIdentityService(s domain.IdentityStore, logger *zap.Logger) *IdentityService {
	return &IdentityService{store: s, logger: logger}
}

func (s *IdentityService) Register(ctx context.Context, did string, key ed25519.PublicKey) (*domain.Identity, error) {
	if did == "" {
		return nil, domain.NewValidationError("did", "is required")
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, domain.NewValidationError("public_key", "must be a 32-byte Ed25519 key")
	}

	id := &domain.Identity{DID: did, PublicKey: key}
	if err := s.store.Create(ctx, id); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrIdentityExists
		}
		return nil, err
	}
	s.logger.Info("identity registered", zap.String("did", did))
	return id, nil
}

func (s *IdentityService) Get(ctx context.Context, did string) (*domain.Identity, error) {
	id, err := s.store.GetByDID(ctx, did)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	return id, nil
}
