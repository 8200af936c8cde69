// Package app wires the decision journal's domain logic to its HTTP surface.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"trailmemo/api/internal/auth"
	"trailmemo/api/internal/authpw"
	"trailmemo/api/internal/config"
	"trailmemo/api/internal/export"
	"trailmemo/api/internal/search"
	"trailmemo/api/internal/store"
	"trailmemo/api/internal/util"
)

// reviewWindow is the minimum age a decision must reach before it can be
// reviewed. Reviews at exactly the boundary are allowed.
const reviewWindow = 24 * time.Hour

// dataStore abstracts the persistence layer so tests can swap in fakes.
type dataStore interface {
	CreateUser(ctx context.Context, user store.User) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	ListTags(ctx context.Context) ([]store.Tag, error)
	InsertTag(ctx context.Context, tag store.Tag) (store.Tag, error)
	GetTagsByNames(ctx context.Context, names []string) ([]store.Tag, error)
	ListDecisions(ctx context.Context, userID string) ([]store.Decision, error)
	GetDecision(ctx context.Context, decisionID string) (store.Decision, error)
	InsertDecision(ctx context.Context, decision store.Decision, tagIDs []string) error
	UpdateDecision(ctx context.Context, decisionID, title, context, expectedOutcome string, tagIDs []string) error
	DeleteDecision(ctx context.Context, decisionID string) error
	InsertReview(ctx context.Context, review store.Review) error
	Ping(ctx context.Context) error
}

// TagCache caches the global tag catalog. Implementations may fail on Get
// without consequence; the service falls back to the database.
type TagCache interface {
	Get(ctx context.Context) ([]store.Tag, error)
	Set(ctx context.Context, tags []store.Tag) error
	Invalidate(ctx context.Context) error
}

// Identity is the authenticated caller, as carried by the access token.
type Identity struct {
	UserID string
	Email  string
}

// Service implements the decision journal's use cases.
type Service struct {
	cfg      config.Config
	store    dataStore
	authpw   *authpw.Service
	search   *search.Service
	exporter *export.Service
	tags     TagCache
}

// New creates the service. Search and the tag cache are optional and attached
// with SetSearch / SetTagCache.
func New(cfg config.Config, st dataStore) *Service {
	return &Service{
		cfg:      cfg,
		store:    st,
		authpw:   authpw.NewService(st),
		exporter: export.NewService(),
	}
}

// SetSearch attaches the full-text search facade.
func (s *Service) SetSearch(sr *search.Service) {
	s.search = sr
}

// SetTagCache attaches a tag catalog cache.
func (s *Service) SetTagCache(cache TagCache) {
	s.tags = cache
}

// Ping reports database connectivity.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// IdentityFromToken validates an access token and returns the caller identity.
func (s *Service) IdentityFromToken(token string) (Identity, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: claims.UserID, Email: claims.Email}, nil
}

// SignUp registers a new account and returns the created user.
func (s *Service) SignUp(ctx context.Context, name, email, password string) (map[string]any, error) {
	user, err := s.authpw.SignUp(ctx, authpw.SignUpRequest{Name: name, Email: email, Password: password})
	if errors.Is(err, authpw.ErrEmailTaken) {
		return nil, domainError(http.StatusForbidden, "CREDENTIALS_TAKEN", "Credentials taken", nil)
	}
	if errors.Is(err, authpw.ErrInvalidInput) {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	}
	if err != nil {
		return nil, err
	}
	return userPayload(user), nil
}

// SignIn verifies credentials and mints an access token.
func (s *Service) SignIn(ctx context.Context, email, password string) (map[string]any, error) {
	user, err := s.authpw.SignIn(ctx, email, password)
	if errors.Is(err, authpw.ErrBadCredentials) {
		return nil, domainError(http.StatusForbidden, "CREDENTIALS_INCORRECT", "Credentials incorrect", nil)
	}
	if err != nil {
		return nil, err
	}

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.ID, user.Email, s.cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return map[string]any{"accessToken": token}, nil
}

// CurrentUser returns the caller's profile.
func (s *Service) CurrentUser(ctx context.Context, id Identity) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, id.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	}
	if err != nil {
		return nil, err
	}
	return userPayload(user), nil
}

// ListTags returns the global tag catalog, served from cache when possible.
func (s *Service) ListTags(ctx context.Context) ([]map[string]any, error) {
	if s.tags != nil {
		if cached, err := s.tags.Get(ctx); err == nil {
			return tagPayloads(cached), nil
		}
	}

	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	if s.tags != nil {
		if err := s.tags.Set(ctx, tags); err != nil {
			log.Printf("tagcache: set failed: %v", err)
		}
	}
	return tagPayloads(tags), nil
}

// CreateTag adds a tag to the global catalog.
func (s *Service) CreateTag(ctx context.Context, name string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "name is required", nil)
	}

	tag, err := s.store.InsertTag(ctx, store.Tag{ID: util.NewID("tag"), Name: name})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, domainError(http.StatusConflict, "TAG_EXISTS", "Tag already exists", nil)
	}
	if err != nil {
		return nil, err
	}

	if s.tags != nil {
		if err := s.tags.Invalidate(ctx); err != nil {
			log.Printf("tagcache: invalidate failed: %v", err)
		}
	}
	return tagPayload(tag), nil
}

// ListDecisions returns the caller's decisions, newest first.
func (s *Service) ListDecisions(ctx context.Context, id Identity) ([]map[string]any, error) {
	decisions, err := s.store.ListDecisions(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	payloads := make([]map[string]any, 0, len(decisions))
	for _, decision := range decisions {
		payloads = append(payloads, decisionPayload(decision))
	}
	return payloads, nil
}

// GetDecision returns a single decision owned by the caller.
func (s *Service) GetDecision(ctx context.Context, id Identity, decisionID string) (map[string]any, error) {
	decision, err := s.loadOwnedDecision(ctx, id, decisionID)
	if err != nil {
		return nil, err
	}
	return decisionPayload(decision), nil
}

// CreateDecisionInput carries the fields for a new decision.
type CreateDecisionInput struct {
	Title           string
	Context         string
	ExpectedOutcome string
	Tags            []string
}

// CreateDecision records a new pending decision. Tag names must all exist in
// the catalog or the whole creation fails.
func (s *Service) CreateDecision(ctx context.Context, id Identity, input CreateDecisionInput) (map[string]any, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Context = strings.TrimSpace(input.Context)
	input.ExpectedOutcome = strings.TrimSpace(input.ExpectedOutcome)
	if input.Title == "" || input.Context == "" || input.ExpectedOutcome == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title, context, and expectedOutcome are required", nil)
	}

	tagIDs, err := s.resolveTagNames(ctx, input.Tags)
	if err != nil {
		return nil, err
	}

	decision := store.Decision{
		ID:              util.NewID("dec"),
		UserID:          id.UserID,
		Title:           input.Title,
		Context:         input.Context,
		ExpectedOutcome: input.ExpectedOutcome,
		Status:          store.StatusPending,
	}
	if err := s.store.InsertDecision(ctx, decision, tagIDs); err != nil {
		return nil, fmt.Errorf("insert decision: %w", err)
	}

	created, err := s.store.GetDecision(ctx, decision.ID)
	if err != nil {
		return nil, fmt.Errorf("reload decision: %w", err)
	}
	s.indexDecision(created)
	return decisionPayload(created), nil
}

// UpdateDecisionInput carries a partial update. Nil fields are left untouched;
// a non-nil Tags replaces the whole tag set.
type UpdateDecisionInput struct {
	Title           *string
	Context         *string
	ExpectedOutcome *string
	Tags            *[]string
}

// UpdateDecision edits a pending decision. Reviewed decisions are immutable.
func (s *Service) UpdateDecision(ctx context.Context, id Identity, decisionID string, input UpdateDecisionInput) (map[string]any, error) {
	decision, err := s.loadOwnedDecision(ctx, id, decisionID)
	if err != nil {
		return nil, err
	}
	if decision.Status == store.StatusReviewed {
		return nil, domainError(http.StatusForbidden, "DECISION_REVIEWED", "Cannot update a reviewed decision", nil)
	}

	title := decision.Title
	if input.Title != nil {
		title = strings.TrimSpace(*input.Title)
	}
	contextField := decision.Context
	if input.Context != nil {
		contextField = strings.TrimSpace(*input.Context)
	}
	expectedOutcome := decision.ExpectedOutcome
	if input.ExpectedOutcome != nil {
		expectedOutcome = strings.TrimSpace(*input.ExpectedOutcome)
	}
	if title == "" || contextField == "" || expectedOutcome == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "title, context, and expectedOutcome cannot be blank", nil)
	}

	var tagIDs []string
	if input.Tags != nil {
		tagIDs, err = s.resolveTagNames(ctx, *input.Tags)
		if err != nil {
			return nil, err
		}
		if tagIDs == nil {
			tagIDs = []string{}
		}
	}

	if err := s.store.UpdateDecision(ctx, decisionID, title, contextField, expectedOutcome, tagIDs); err != nil {
		return nil, fmt.Errorf("update decision: %w", err)
	}

	updated, err := s.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, fmt.Errorf("reload decision: %w", err)
	}
	s.indexDecision(updated)
	return decisionPayload(updated), nil
}

// DeleteDecision removes a decision and returns its last state.
func (s *Service) DeleteDecision(ctx context.Context, id Identity, decisionID string) (map[string]any, error) {
	decision, err := s.loadOwnedDecision(ctx, id, decisionID)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteDecision(ctx, decisionID); err != nil {
		return nil, fmt.Errorf("delete decision: %w", err)
	}
	if s.search != nil {
		s.search.DeleteDecision(decisionID)
	}
	return decisionPayload(decision), nil
}

// CreateReviewInput carries the fields for a review.
type CreateReviewInput struct {
	ActualOutcome  string
	LessonsLearned string
	WouldDoDiff    *string
}

// CreateReview attaches the one and only review to a decision and marks it
// reviewed. The decision must be at least a full day old.
func (s *Service) CreateReview(ctx context.Context, id Identity, decisionID string, input CreateReviewInput) (map[string]any, error) {
	decision, err := s.loadOwnedDecision(ctx, id, decisionID)
	if err != nil {
		return nil, err
	}
	if decision.Status == store.StatusReviewed || decision.Review != nil {
		return nil, domainError(http.StatusBadRequest, "ALREADY_REVIEWED", "Decision already reviewed", nil)
	}
	if time.Since(decision.CreatedAt) < reviewWindow {
		return nil, domainError(http.StatusBadRequest, "REVIEW_TOO_EARLY", "Wait at least 1 day before reviewing", nil)
	}

	input.ActualOutcome = strings.TrimSpace(input.ActualOutcome)
	input.LessonsLearned = strings.TrimSpace(input.LessonsLearned)
	if input.ActualOutcome == "" || input.LessonsLearned == "" {
		return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "actualOutcome and lessonsLearned are required", nil)
	}

	review := store.Review{
		ID:             util.NewID("rev"),
		DecisionID:     decisionID,
		ActualOutcome:  input.ActualOutcome,
		LessonsLearned: input.LessonsLearned,
		WouldDoDiff:    input.WouldDoDiff,
	}
	if err := s.store.InsertReview(ctx, review); err != nil {
		// unique constraint on decision_id closes the race between two
		// concurrent review attempts
		if errors.Is(err, store.ErrDuplicate) {
			return nil, domainError(http.StatusBadRequest, "ALREADY_REVIEWED", "Decision already reviewed", nil)
		}
		return nil, fmt.Errorf("insert review: %w", err)
	}

	reviewed, err := s.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, fmt.Errorf("reload decision: %w", err)
	}
	s.indexDecision(reviewed)
	return decisionPayload(reviewed), nil
}

// SearchDecisions runs a full-text search over the caller's decisions.
func (s *Service) SearchDecisions(ctx context.Context, id Identity, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	q.OwnerID = id.UserID
	return s.search.Search(q), nil
}

// ExportDecision renders a decision to PDF.
func (s *Service) ExportDecision(ctx context.Context, id Identity, decisionID string) (*export.Result, error) {
	decision, err := s.loadOwnedDecision(ctx, id, decisionID)
	if err != nil {
		return nil, err
	}
	author, err := s.store.GetUserByID(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("load author: %w", err)
	}
	result, err := s.exporter.ExportDecision(ctx, decision, author)
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("export decision: %w", err)
	}
	return result, nil
}

// loadOwnedDecision fetches a decision and enforces ownership. A decision
// that exists but belongs to someone else yields 403, not 404.
func (s *Service) loadOwnedDecision(ctx context.Context, id Identity, decisionID string) (store.Decision, error) {
	decision, err := s.store.GetDecision(ctx, decisionID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Decision{}, domainError(http.StatusNotFound, "DECISION_NOT_FOUND", "Decision not found", nil)
	}
	if err != nil {
		return store.Decision{}, fmt.Errorf("load decision: %w", err)
	}
	if decision.UserID != id.UserID {
		return store.Decision{}, domainError(http.StatusForbidden, "ACCESS_DENIED", "Access to this resource denied", nil)
	}
	return decision, nil
}

// resolveTagNames maps tag names to IDs. Any unknown name fails the whole
// operation.
func (s *Service) resolveTagNames(ctx context.Context, names []string) ([]string, error) {
	cleaned := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		cleaned = append(cleaned, name)
	}
	if len(cleaned) == 0 {
		return nil, nil
	}

	tags, err := s.store.GetTagsByNames(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("resolve tags: %w", err)
	}
	if len(tags) != len(cleaned) {
		return nil, domainError(http.StatusNotFound, "TAG_NOT_FOUND", "One or more tags not found", nil)
	}

	ids := make([]string, 0, len(tags))
	for _, tag := range tags {
		ids = append(ids, tag.ID)
	}
	return ids, nil
}

func (s *Service) indexDecision(decision store.Decision) {
	if s.search == nil {
		return
	}
	record := search.DecisionRecord{
		ID:              decision.ID,
		OwnerID:         decision.UserID,
		Title:           decision.Title,
		Context:         decision.Context,
		ExpectedOutcome: decision.ExpectedOutcome,
		Status:          decision.Status,
	}
	if decision.Review != nil {
		record.ReviewText = strings.TrimSpace(decision.Review.ActualOutcome + " " + decision.Review.LessonsLearned)
	}
	s.search.IndexDecision(record)
}

func userPayload(user store.User) map[string]any {
	return map[string]any{
		"id":        user.ID,
		"name":      user.Name,
		"email":     user.Email,
		"createdAt": user.CreatedAt,
		"updatedAt": user.UpdatedAt,
	}
}

func tagPayload(tag store.Tag) map[string]any {
	return map[string]any{
		"id":   tag.ID,
		"name": tag.Name,
	}
}

func tagPayloads(tags []store.Tag) []map[string]any {
	payloads := make([]map[string]any, 0, len(tags))
	for _, tag := range tags {
		payloads = append(payloads, tagPayload(tag))
	}
	return payloads
}

func reviewPayload(review *store.Review) any {
	if review == nil {
		return nil
	}
	return map[string]any{
		"id":             review.ID,
		"decisionId":     review.DecisionID,
		"actualOutcome":  review.ActualOutcome,
		"lessonsLearned": review.LessonsLearned,
		"wouldDoDiff":    review.WouldDoDiff,
		"reviewedAt":     review.ReviewedAt,
	}
}

func decisionPayload(decision store.Decision) map[string]any {
	tags := make([]map[string]any, 0, len(decision.Tags))
	for _, tag := range decision.Tags {
		tags = append(tags, tagPayload(tag))
	}
	return map[string]any{
		"id":              decision.ID,
		"userId":          decision.UserID,
		"title":           decision.Title,
		"context":         decision.Context,
		"expectedOutcome": decision.ExpectedOutcome,
		"status":          decision.Status,
		"createdAt":       decision.CreatedAt,
		"updatedAt":       decision.UpdatedAt,
		"tags":            tags,
		"review":          reviewPayload(decision.Review),
	}
}
