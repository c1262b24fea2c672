package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ujianku/ujianku-backend/internal/model"
	"github.com/ujianku/ujianku-backend/internal/repository"
)

// GuruService handles guru account lookups and registration. Accounts are
// created from the CLI, not over HTTP.
type GuruService struct {
	gurus *repository.GuruRepository
}

// NewGuruService creates a GuruService.
func NewGuruService(gurus *repository.GuruRepository) *GuruService {
	return &GuruService{gurus: gurus}
}

func (s *GuruService) GetByEmail(ctx context.Context, email string) (*model.Guru, error) {
	guru, err := s.gurus.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("lookup guru: %w", err)
	}
	return guru, nil
}

func (s *GuruService) GetByID(ctx context.Context, id int) (*model.Guru, error) {
	guru, err := s.gurus.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load guru: %w", err)
	}
	return guru, nil
}

// Register creates a guru account with an already-hashed password.
func (s *GuruService) Register(ctx context.Context, name, email, passwordHash string) (*model.Guru, error) {
	guru := &model.Guru{
		Name:         strings.TrimSpace(name),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: passwordHash,
	}
	if err := s.gurus.Create(ctx, guru); err != nil {
		return nil, fmt.Errorf("create guru: %w", err)
	}
	return guru, nil
}
