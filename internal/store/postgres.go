package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicate is returned when an insert violates a unique constraint
// (duplicate email on signup, duplicate tag name).
var ErrDuplicate = errors.New("duplicate key")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) (User, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, name, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, email, password_hash, created_at, updated_at
	`, user.ID, user.Name, user.Email, user.PasswordHash).Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return User{}, fmt.Errorf("insert user: %w", ErrDuplicate)
	}
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM users
		WHERE email=$1
	`, email).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, created_at, updated_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM tags`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	items := make([]Tag, 0)
	for rows.Next() {
		var item Tag
		if err := rows.Scan(&item.ID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertTag(ctx context.Context, tag Tag) (Tag, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tags (id, name)
		VALUES ($1, $2)
		RETURNING id, name
	`, tag.ID, tag.Name).Scan(&tag.ID, &tag.Name)
	if isUniqueViolation(err) {
		return Tag{}, fmt.Errorf("insert tag: %w", ErrDuplicate)
	}
	if err != nil {
		return Tag{}, fmt.Errorf("insert tag: %w", err)
	}
	return tag, nil
}

// GetTagsByNames resolves tag names to tag rows. Names with no matching tag
// are simply absent from the result; the caller compares lengths.
func (s *PostgresStore) GetTagsByNames(ctx context.Context, names []string) ([]Tag, error) {
	if len(names) == 0 {
		return []Tag{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM tags WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("resolve tags: %w", err)
	}
	defer rows.Close()

	items := make([]Tag, 0, len(names))
	for rows.Next() {
		var item Tag
		if err := rows.Scan(&item.ID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, userID string) ([]Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, context, expected_outcome, status, created_at, updated_at
		FROM decisions
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	items := make([]Decision, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var item Decision
		if err := rows.Scan(&item.ID, &item.UserID, &item.Title, &item.Context, &item.ExpectedOutcome, &item.Status, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		item.Tags = []Tag{}
		items = append(items, item)
		ids = append(ids, item.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	if len(items) == 0 {
		return items, nil
	}

	byID := make(map[string]*Decision, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
	}

	tagRows, err := s.db.QueryContext(ctx, `
		SELECT dt.decision_id, t.id, t.name
		FROM decision_tags dt
		JOIN tags t ON t.id = dt.tag_id
		WHERE dt.decision_id = ANY($1)
		ORDER BY t.name ASC
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list decision tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var decisionID string
		var tag Tag
		if err := tagRows.Scan(&decisionID, &tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("scan decision tag: %w", err)
		}
		if item, ok := byID[decisionID]; ok {
			item.Tags = append(item.Tags, tag)
		}
	}
	if err := tagRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision tags: %w", err)
	}

	reviewRows, err := s.db.QueryContext(ctx, `
		SELECT id, decision_id, actual_outcome, lessons_learned, would_do_diff, reviewed_at
		FROM reviews
		WHERE decision_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer reviewRows.Close()
	for reviewRows.Next() {
		var review Review
		if err := reviewRows.Scan(&review.ID, &review.DecisionID, &review.ActualOutcome, &review.LessonsLearned, &review.WouldDoDiff, &review.ReviewedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		if item, ok := byID[review.DecisionID]; ok {
			r := review
			item.Review = &r
		}
	}
	if err := reviewRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}

	return items, nil
}

// GetDecision loads a decision with its tags and review, regardless of owner.
// The service layer distinguishes not-found from not-yours.
func (s *PostgresStore) GetDecision(ctx context.Context, decisionID string) (Decision, error) {
	var item Decision
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, context, expected_outcome, status, created_at, updated_at
		FROM decisions
		WHERE id=$1
	`, decisionID).Scan(&item.ID, &item.UserID, &item.Title, &item.Context, &item.ExpectedOutcome, &item.Status, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Decision{}, err
	}

	item.Tags = []Tag{}
	tagRows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name
		FROM decision_tags dt
		JOIN tags t ON t.id = dt.tag_id
		WHERE dt.decision_id=$1
		ORDER BY t.name ASC
	`, decisionID)
	if err != nil {
		return Decision{}, fmt.Errorf("decision tags: %w", err)
	}
	defer tagRows.Close()
	for tagRows.Next() {
		var tag Tag
		if err := tagRows.Scan(&tag.ID, &tag.Name); err != nil {
			return Decision{}, fmt.Errorf("scan decision tag: %w", err)
		}
		item.Tags = append(item.Tags, tag)
	}
	if err := tagRows.Err(); err != nil {
		return Decision{}, fmt.Errorf("iterate decision tags: %w", err)
	}

	var review Review
	err = s.db.QueryRowContext(ctx, `
		SELECT id, decision_id, actual_outcome, lessons_learned, would_do_diff, reviewed_at
		FROM reviews
		WHERE decision_id=$1
	`, decisionID).Scan(&review.ID, &review.DecisionID, &review.ActualOutcome, &review.LessonsLearned, &review.WouldDoDiff, &review.ReviewedAt)
	if err == nil {
		item.Review = &review
	} else if !errors.Is(err, sql.ErrNoRows) {
		return Decision{}, fmt.Errorf("decision review: %w", err)
	}

	return item, nil
}

func (s *PostgresStore) InsertDecision(ctx context.Context, decision Decision, tagIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert decision: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO decisions (id, user_id, title, context, expected_outcome, status)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, decision.ID, decision.UserID, decision.Title, decision.Context, decision.ExpectedOutcome, StatusPending); err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}

	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO decision_tags (decision_id, tag_id)
			VALUES ($1, $2)
			ON CONFLICT (decision_id, tag_id) DO NOTHING
		`, decision.ID, tagID); err != nil {
			return fmt.Errorf("insert decision tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert decision: %w", err)
	}
	return nil
}

// UpdateDecision replaces the decision's field set and, when tagIDs is
// non-nil, its entire tag association set (delete-all-then-recreate). Both
// run in one transaction so a crash cannot leave a half-replaced tag set.
func (s *PostgresStore) UpdateDecision(ctx context.Context, decisionID, title, context, expectedOutcome string, tagIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update decision: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE decisions
		SET title=$2, context=$3, expected_outcome=$4, updated_at=NOW()
		WHERE id=$1
	`, decisionID, title, context, expectedOutcome); err != nil {
		return fmt.Errorf("update decision: %w", err)
	}

	if tagIDs != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM decision_tags WHERE decision_id=$1`, decisionID); err != nil {
			return fmt.Errorf("clear decision tags: %w", err)
		}
		for _, tagID := range tagIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO decision_tags (decision_id, tag_id)
				VALUES ($1, $2)
			`, decisionID, tagID); err != nil {
				return fmt.Errorf("insert decision tag: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update decision: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteDecision(ctx context.Context, decisionID string) error {
	// decision_tags and reviews cascade at the schema level
	_, err := s.db.ExecContext(ctx, `DELETE FROM decisions WHERE id=$1`, decisionID)
	if err != nil {
		return fmt.Errorf("delete decision: %w", err)
	}
	return nil
}

// InsertReview creates the review row and flips the decision to REVIEWED in a
// single transaction. Either both land or neither does; the unique constraint
// on decision_id rejects a concurrent second review.
func (s *PostgresStore) InsertReview(ctx context.Context, review Review) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert review: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reviews (id, decision_id, actual_outcome, lessons_learned, would_do_diff)
		VALUES ($1, $2, $3, $4, $5)
	`, review.ID, review.DecisionID, review.ActualOutcome, review.LessonsLearned, review.WouldDoDiff); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert review: %w", ErrDuplicate)
		}
		return fmt.Errorf("insert review: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE decisions SET status=$2, updated_at=NOW() WHERE id=$1
	`, review.DecisionID, StatusReviewed); err != nil {
		return fmt.Errorf("mark decision reviewed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert review: %w", err)
	}
	return nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
