package service

import (
	"context"
	"testing"

	aliaserrors "clubsync/internal/alias/errors"
	"clubsync/pkg/config"
	apperrors "clubsync/pkg/errors"
	"clubsync/pkg/logger"
	"clubsync/pkg/model"
)

type mockAliasRepository struct {
	upsertFunc          func(ctx context.Context, link *model.AliasLink) error
	findByAlternateFunc func(ctx context.Context, alternateEmail string) (*model.AliasLink, error)
	findByCanonicalFunc func(ctx context.Context, canonicalEmail string) ([]*model.AliasLink, error)
	deleteFunc          func(ctx context.Context, alternateEmail string) error
	capturedLink        *model.AliasLink
}

func (m *mockAliasRepository) Upsert(ctx context.Context, link *model.AliasLink) error {
	m.capturedLink = link
	if m.upsertFunc != nil {
		return m.upsertFunc(ctx, link)
	}
	return nil
}

func (m *mockAliasRepository) FindByAlternate(ctx context.Context, alternateEmail string) (*model.AliasLink, error) {
	if m.findByAlternateFunc != nil {
		return m.findByAlternateFunc(ctx, alternateEmail)
	}
	return nil, aliaserrors.ErrNotFound
}

func (m *mockAliasRepository) FindByCanonical(ctx context.Context, canonicalEmail string) ([]*model.AliasLink, error) {
	if m.findByCanonicalFunc != nil {
		return m.findByCanonicalFunc(ctx, canonicalEmail)
	}
	return nil, nil
}

func (m *mockAliasRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.AliasLink, error) {
	return nil, nil
}

func (m *mockAliasRepository) Count(ctx context.Context) (int64, error) {
	return 0, nil
}

func (m *mockAliasRepository) Delete(ctx context.Context, alternateEmail string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, alternateEmail)
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  logger.JSON,
			Service: "test",
		}),
	}
}

func TestResolve_LowercasesLookupKey(t *testing.T) {
	var lookedUp string
	repo := &mockAliasRepository{
		findByAlternateFunc: func(ctx context.Context, alternateEmail string) (*model.AliasLink, error) {
			lookedUp = alternateEmail
			return &model.AliasLink{
				AlternateEmail: alternateEmail,
				CanonicalEmail: "j.smith@club.test",
			}, nil
		},
	}
	svc := NewAliasService(repo, testConfig())

	canonical, err := svc.Resolve(context.Background(), "  JSmith@Gmail.COM ")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if lookedUp != "jsmith@gmail.com" {
		t.Errorf("lookup key = %q, want %q", lookedUp, "jsmith@gmail.com")
	}
	if canonical != "j.smith@club.test" {
		t.Errorf("canonical = %q, want %q", canonical, "j.smith@club.test")
	}
}

func TestResolve_MissingLinkIsNotAnError(t *testing.T) {
	svc := NewAliasService(&mockAliasRepository{}, testConfig())

	canonical, err := svc.Resolve(context.Background(), "unknown@example.com")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if canonical != "" {
		t.Errorf("canonical = %q, want empty", canonical)
	}
}

func TestLink_NormalizesBothEmails(t *testing.T) {
	repo := &mockAliasRepository{}
	svc := NewAliasService(repo, testConfig())

	link, err := svc.Link(context.Background(), "JSmith@Gmail.com", "J.Smith@Club.Test", "staff-1")
	if err != nil {
		t.Fatalf("Link returned error: %v", err)
	}
	if link.AlternateEmail != "jsmith@gmail.com" {
		t.Errorf("alternate = %q, want %q", link.AlternateEmail, "jsmith@gmail.com")
	}
	if link.CanonicalEmail != "j.smith@club.test" {
		t.Errorf("canonical = %q, want %q", link.CanonicalEmail, "j.smith@club.test")
	}
	if repo.capturedLink == nil {
		t.Fatal("repository Upsert was not called")
	}
}

func TestLink_RejectsSelfLink(t *testing.T) {
	svc := NewAliasService(&mockAliasRepository{}, testConfig())

	_, err := svc.Link(context.Background(), "same@club.test", "Same@Club.Test", "staff-1")
	if err == nil {
		t.Fatal("expected error for self-link")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeInvalidInput {
		t.Errorf("code = %q, want %q", appErr.Code, apperrors.CodeInvalidInput)
	}
}

func TestLink_OverwritesExistingMapping(t *testing.T) {
	repo := &mockAliasRepository{}
	svc := NewAliasService(repo, testConfig())

	if _, err := svc.Link(context.Background(), "alt@gmail.com", "first@club.test", "staff-1"); err != nil {
		t.Fatalf("first Link returned error: %v", err)
	}
	if _, err := svc.Link(context.Background(), "alt@gmail.com", "second@club.test", "staff-2"); err != nil {
		t.Fatalf("second Link returned error: %v", err)
	}
	if repo.capturedLink.CanonicalEmail != "second@club.test" {
		t.Errorf("canonical after relink = %q, want %q", repo.capturedLink.CanonicalEmail, "second@club.test")
	}
}
