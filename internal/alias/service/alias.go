package service

import (
	"context"
	"errors"

	aliaserrors "clubsync/internal/alias/errors"
	"clubsync/internal/alias/repository"
	"clubsync/pkg/config"
	apperrors "clubsync/pkg/errors"
	"clubsync/pkg/model"
	"clubsync/pkg/sanitizer"
)

// AliasService is the alias ledger. Lookups and writes key on the lowercased
// alternate email; a hit is as authoritative as an exact directory match.
type AliasService interface {
	// Resolve returns the canonical member email for an alternate email, or
	// empty string when no link exists.
	Resolve(ctx context.Context, alternateEmail string) (string, error)

	Link(ctx context.Context, alternateEmail, canonicalEmail, linkedBy string) (*model.AliasLink, error)
	Unlink(ctx context.Context, alternateEmail string) error
	List(ctx context.Context, limit int, offset int64) ([]*model.AliasLink, int64, error)
	ListByCanonical(ctx context.Context, canonicalEmail string) ([]*model.AliasLink, error)
}

type aliasService struct {
	repo repository.AliasRepository
	cfg  *config.Config
}

func NewAliasService(repo repository.AliasRepository, cfg *config.Config) AliasService {
	return &aliasService{
		repo: repo,
		cfg:  cfg,
	}
}

func (s *aliasService) Resolve(ctx context.Context, alternateEmail string) (string, error) {
	key := sanitizer.NormalizeEmail(alternateEmail)
	if key == "" {
		return "", nil
	}

	link, err := s.repo.FindByAlternate(ctx, key)
	if err != nil {
		if errors.Is(err, aliaserrors.ErrNotFound) {
			return "", nil
		}
		return "", apperrors.Internal("Failed to resolve alias", err)
	}

	return link.CanonicalEmail, nil
}

func (s *aliasService) Link(ctx context.Context, alternateEmail, canonicalEmail, linkedBy string) (*model.AliasLink, error) {
	alternate := sanitizer.NormalizeEmail(alternateEmail)
	canonical := sanitizer.NormalizeEmail(canonicalEmail)

	if alternate == "" || canonical == "" {
		return nil, apperrors.InvalidInput("Both alternate and canonical emails are required")
	}
	if alternate == canonical {
		return nil, apperrors.InvalidInput("Alternate email cannot equal the canonical email")
	}

	link := &model.AliasLink{
		AlternateEmail: alternate,
		CanonicalEmail: canonical,
		LinkedBy:       linkedBy,
	}

	if err := s.repo.Upsert(ctx, link); err != nil {
		s.cfg.Log.Error("Failed to link alias",
			"alternate_email", alternate,
			"canonical_email", canonical,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to link alias", err)
	}

	s.cfg.Log.Info("Alias linked",
		"alternate_email", alternate,
		"canonical_email", canonical,
		"linked_by", linkedBy,
	)
	return link, nil
}

func (s *aliasService) Unlink(ctx context.Context, alternateEmail string) error {
	key := sanitizer.NormalizeEmail(alternateEmail)
	if key == "" {
		return apperrors.InvalidInput("Alternate email is required")
	}

	if err := s.repo.Delete(ctx, key); err != nil {
		if errors.Is(err, aliaserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Alias link", key)
		}
		return apperrors.Internal("Failed to unlink alias", err)
	}

	s.cfg.Log.Info("Alias unlinked", "alternate_email", key)
	return nil
}

func (s *aliasService) List(ctx context.Context, limit int, offset int64) ([]*model.AliasLink, int64, error) {
	links, err := s.repo.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Internal("Failed to list alias links", err)
	}

	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, apperrors.Internal("Failed to count alias links", err)
	}

	return links, count, nil
}

func (s *aliasService) ListByCanonical(ctx context.Context, canonicalEmail string) ([]*model.AliasLink, error) {
	canonical := sanitizer.NormalizeEmail(canonicalEmail)
	if canonical == "" {
		return nil, apperrors.InvalidInput("Canonical email is required")
	}

	links, err := s.repo.FindByCanonical(ctx, canonical)
	if err != nil {
		return nil, apperrors.Internal("Failed to list alias links", err)
	}

	return links, nil
}
