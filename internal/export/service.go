package export

import (
	"context"
	"fmt"

	"trailmemo/api/internal/store"
)

// Service renders decisions to PDF
type Service struct{}

// NewService creates a new export service
func NewService() *Service {
	return &Service{}
}

// ExportDecision renders a decision, its tags, and its review (if any) to PDF.
func (s *Service) ExportDecision(ctx context.Context, decision store.Decision, author store.User) (*Result, error) {
	tags := make([]string, 0, len(decision.Tags))
	for _, tag := range decision.Tags {
		tags = append(tags, tag.Name)
	}

	data := TemplateData{
		Title:           decision.Title,
		Context:         decision.Context,
		ExpectedOutcome: decision.ExpectedOutcome,
		Status:          decision.Status,
		Author:          author.Name,
		Tags:            tags,
		CreatedAt:       decision.CreatedAt,
	}

	if decision.Review != nil {
		review := &TemplateReview{
			ActualOutcome:  decision.Review.ActualOutcome,
			LessonsLearned: decision.Review.LessonsLearned,
			ReviewedAt:     decision.Review.ReviewedAt,
		}
		if decision.Review.WouldDoDiff != nil {
			review.WouldDoDiff = *decision.Review.WouldDoDiff
		}
		data.Review = review
	}

	html, err := RenderDecisionHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	return exportPDF(html, decision.Title)
}
