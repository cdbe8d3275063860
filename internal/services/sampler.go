package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/testschool/testschool-backend/internal/logger"
	"github.com/testschool/testschool-backend/internal/repos"
	"github.com/testschool/testschool-backend/internal/types"
)

var ErrInvalidStep = fmt.Errorf("Invalid step")

type SamplerService interface {
	// Sample draws an ordered question set for a step: roughly half from each
	// of the step's two levels, topped up across both levels when the bank is
	// sparse, deduplicated by id, capped at TargetTotal.
	Sample(ctx context.Context, step types.Step) ([]*types.Question, error)
}

type samplerService struct {
	db           *gorm.DB
	log          *logger.Logger
	questionRepo repos.QuestionRepo
}

func NewSamplerService(db *gorm.DB, log *logger.Logger, questionRepo repos.QuestionRepo) SamplerService {
	return &samplerService{
		db:           db,
		log:          log.With("service", "SamplerService"),
		questionRepo: questionRepo,
	}
}

func (ss *samplerService) Sample(ctx context.Context, step types.Step) ([]*types.Question, error) {
	levels, ok := StepLevels(step)
	if !ok {
		return nil, ErrInvalidStep
	}

	perLevel := (TargetTotal + len(levels) - 1) / len(levels)

	merged := make([]*types.Question, 0, TargetTotal)
	seen := make(map[uuid.UUID]bool, TargetTotal)
	for _, lvl := range levels {
		sample, err := ss.questionRepo.SampleByLevel(ctx, nil, lvl, perLevel)
		if err != nil {
			return nil, fmt.Errorf("Failed to sample level %s: %w", lvl, err)
		}
		for _, q := range sample {
			if seen[q.ID] {
				continue
			}
			seen[q.ID] = true
			merged = append(merged, q)
		}
	}

	if len(merged) < TargetTotal {
		need := TargetTotal - len(merged)
		exclude := make([]uuid.UUID, 0, len(merged))
		for id := range seen {
			exclude = append(exclude, id)
		}
		topUp, err := ss.questionRepo.SampleByLevels(ctx, nil, levels, need, exclude)
		if err != nil {
			return nil, fmt.Errorf("Failed to top up sample: %w", err)
		}
		for _, q := range topUp {
			if seen[q.ID] {
				continue
			}
			seen[q.ID] = true
			merged = append(merged, q)
		}
	}

	if len(merged) > TargetTotal {
		merged = merged[:TargetTotal]
	}
	return merged, nil
}
