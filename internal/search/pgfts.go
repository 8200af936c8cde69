package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery against the generated fts column on decisions,
// ranked by ts_rank with ts_headline snippets. Always scoped to the owner.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.OwnerID == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "d.user_id = $2 AND d.fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text, q.OwnerID}
	if q.Status != "" {
		where += " AND d.status = $3"
		args = append(args, q.Status)
	}

	ctx := context.Background()

	countSQL := "SELECT count(*) FROM decisions d WHERE " + where
	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT d.id, d.title,
			ts_headline('english', coalesce(d.context, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			d.status
		FROM decisions d
		WHERE %s
		ORDER BY ts_rank(d.fts, plainto_tsquery('english', $1)) DESC, d.created_at DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all decisions for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DecisionRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT d.id, d.user_id, d.title, d.context, d.expected_outcome, d.status,
			coalesce(r.actual_outcome, '') || ' ' || coalesce(r.lessons_learned, '')
		FROM decisions d
		LEFT JOIN reviews r ON r.decision_id = d.id
	`)
	if err != nil {
		return nil, fmt.Errorf("load decisions: %w", err)
	}
	defer rows.Close()

	records := make([]DecisionRecord, 0)
	for rows.Next() {
		var d DecisionRecord
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.Title, &d.Context, &d.ExpectedOutcome, &d.Status, &d.ReviewText); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.ReviewText = strings.TrimSpace(d.ReviewText)
		records = append(records, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}

	return records, nil
}
