package store

import "time"

// Decision status values. A decision starts PENDING and flips to REVIEWED
// exactly once, when its review is created. There is no way back.
const (
	StatusPending  = "PENDING"
	StatusReviewed = "REVIEWED"
)

type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Decision struct {
	ID              string
	UserID          string
	Title           string
	Context         string
	ExpectedOutcome string
	Status          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Tags            []Tag
	Review          *Review
}

type Tag struct {
	ID   string
	Name string
}

type Review struct {
	ID             string
	DecisionID     string
	ActualOutcome  string
	LessonsLearned string
	WouldDoDiff    *string
	ReviewedAt     time.Time
}
