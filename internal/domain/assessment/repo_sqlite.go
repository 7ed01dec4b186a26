package assessment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/assessment/internal/platform/db"
)

// AssessmentRepoSQLite stores responses as JSON text in an embedded SQLite
// database.
type AssessmentRepoSQLite struct {
	db *sql.DB
}

func NewAssessmentRepoSQLite(sqlDB *sql.DB) *AssessmentRepoSQLite {
	return &AssessmentRepoSQLite{db: sqlDB}
}

func (r *AssessmentRepoSQLite) SaveAssessment(ctx context.Context, resp *Response, actorID string) error {
	raw, err := encodeResponse(resp)
	if err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}
	crisis := 0
	if resp.CrisisProtocolActivated {
		crisis = 1
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO assessment (`+assessmentCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		resp.ID.String(), nullable(resp.SubjectID), nullable(actorID), string(resp.Language),
		resp.Urgency.String(), crisis, string(raw), resp.Timestamp.UTC().Format(db.SQLiteTimeFormat))
	return err
}

func (r *AssessmentRepoSQLite) GetAssessment(ctx context.Context, id uuid.UUID) (*Response, error) {
	var raw string
	err := r.db.QueryRowContext(ctx, `SELECT response FROM assessment WHERE id = ?`, id.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAssessmentNotFound
	}
	if err != nil {
		return nil, err
	}
	resp, err := decodeResponse([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("decode assessment %s: %w", id, err)
	}
	return resp, nil
}
