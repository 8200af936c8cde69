package app

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"trailmemo/api/internal/store"
)

// memStore is an in-memory dataStore used by service and HTTP tests. It
// mirrors the constraint behavior of the Postgres store: unique emails,
// unique tag names, and one review per decision.
type memStore struct {
	mu        sync.Mutex
	users     map[string]store.User
	tags      []store.Tag
	decisions map[string]store.Decision
	tagIDs    map[string][]string
	reviews   map[string]store.Review
}

func newMemStore() *memStore {
	return &memStore{
		users:     make(map[string]store.User),
		decisions: make(map[string]store.Decision),
		tagIDs:    make(map[string][]string),
		reviews:   make(map[string]store.Review),
	}
}

func (m *memStore) CreateUser(_ context.Context, user store.User) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return store.User{}, store.ErrDuplicate
		}
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	m.users[user.ID] = user
	return user, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (m *memStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memStore) ListTags(_ context.Context) ([]store.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tags := make([]store.Tag, len(m.tags))
	copy(tags, m.tags)
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

func (m *memStore) InsertTag(_ context.Context, tag store.Tag) (store.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tags {
		if existing.Name == tag.Name {
			return store.Tag{}, store.ErrDuplicate
		}
	}
	m.tags = append(m.tags, tag)
	return tag, nil
}

func (m *memStore) GetTagsByNames(_ context.Context, names []string) ([]store.Tag, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []store.Tag
	for _, name := range names {
		for _, tag := range m.tags {
			if tag.Name == name {
				found = append(found, tag)
				break
			}
		}
	}
	return found, nil
}

func (m *memStore) ListDecisions(_ context.Context, userID string) ([]store.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var decisions []store.Decision
	for id, decision := range m.decisions {
		if decision.UserID != userID {
			continue
		}
		decisions = append(decisions, m.hydrate(id))
	}
	sort.Slice(decisions, func(i, j int) bool {
		return decisions[i].CreatedAt.After(decisions[j].CreatedAt)
	})
	return decisions, nil
}

func (m *memStore) GetDecision(_ context.Context, decisionID string) (store.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.decisions[decisionID]; !ok {
		return store.Decision{}, sql.ErrNoRows
	}
	return m.hydrate(decisionID), nil
}

// hydrate attaches tags and the review; callers must hold the lock.
func (m *memStore) hydrate(decisionID string) store.Decision {
	decision := m.decisions[decisionID]
	decision.Tags = []store.Tag{}
	for _, tagID := range m.tagIDs[decisionID] {
		for _, tag := range m.tags {
			if tag.ID == tagID {
				decision.Tags = append(decision.Tags, tag)
			}
		}
	}
	sort.Slice(decision.Tags, func(i, j int) bool { return decision.Tags[i].Name < decision.Tags[j].Name })
	if review, ok := m.reviews[decisionID]; ok {
		decision.Review = &review
	}
	return decision
}

func (m *memStore) InsertDecision(_ context.Context, decision store.Decision, tagIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	decision.CreatedAt = now
	decision.UpdatedAt = now
	m.decisions[decision.ID] = decision
	m.tagIDs[decision.ID] = tagIDs
	return nil
}

func (m *memStore) UpdateDecision(_ context.Context, decisionID, title, context, expectedOutcome string, tagIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	decision, ok := m.decisions[decisionID]
	if !ok {
		return sql.ErrNoRows
	}
	decision.Title = title
	decision.Context = context
	decision.ExpectedOutcome = expectedOutcome
	decision.UpdatedAt = time.Now()
	m.decisions[decisionID] = decision
	if tagIDs != nil {
		m.tagIDs[decisionID] = tagIDs
	}
	return nil
}

func (m *memStore) DeleteDecision(_ context.Context, decisionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.decisions, decisionID)
	delete(m.tagIDs, decisionID)
	delete(m.reviews, decisionID)
	return nil
}

func (m *memStore) InsertReview(_ context.Context, review store.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reviews[review.DecisionID]; ok {
		return store.ErrDuplicate
	}
	review.ReviewedAt = time.Now()
	m.reviews[review.DecisionID] = review
	decision := m.decisions[review.DecisionID]
	decision.Status = store.StatusReviewed
	decision.UpdatedAt = time.Now()
	m.decisions[review.DecisionID] = decision
	return nil
}

func (m *memStore) Ping(context.Context) error {
	return nil
}

// backdate moves a decision's creation time into the past so review-window
// tests do not have to wait.
func (m *memStore) backdate(decisionID string, age time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	decision := m.decisions[decisionID]
	decision.CreatedAt = time.Now().Add(-age)
	m.decisions[decisionID] = decision
}
