package services

import (
	"context"

	"cloudmedia/internal/common"
	"cloudmedia/internal/database"
	"cloudmedia/internal/models"
)

// HistoryService lists past compress operations.
type HistoryService struct {
	db *database.Database
}

func NewHistoryService(db *database.Database) *HistoryService {
	return &HistoryService{db: db}
}

// ListCompressions returns the user's compress records, newest first.
func (s *HistoryService) ListCompressions(ctx context.Context, userID string) ([]models.Conversion, error) {
	rows, err := s.db.ListConversions(ctx, userID, common.KindCompress)
	if err != nil {
		return nil, common.Internal("history", err)
	}
	return rows, nil
}
