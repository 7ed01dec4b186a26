package assessment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/assessment/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type AssessmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewAssessmentRepoPG(pool *pgxpool.Pool) *AssessmentRepoPG {
	return &AssessmentRepoPG{pool: pool}
}

func (r *AssessmentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const assessmentCols = `id, subject_id, actor_id, language, urgency, crisis_protocol, response, created_at`

func (r *AssessmentRepoPG) SaveAssessment(ctx context.Context, resp *Response, actorID string) error {
	raw, err := encodeResponse(resp)
	if err != nil {
		return fmt.Errorf("encode assessment: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO assessment (`+assessmentCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		resp.ID, nullable(resp.SubjectID), nullable(actorID), string(resp.Language),
		resp.Urgency.String(), resp.CrisisProtocolActivated, raw, resp.Timestamp)
	return err
}

func (r *AssessmentRepoPG) GetAssessment(ctx context.Context, id uuid.UUID) (*Response, error) {
	var raw []byte
	err := r.conn(ctx).QueryRow(ctx, `SELECT response FROM assessment WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAssessmentNotFound
	}
	if err != nil {
		return nil, err
	}
	resp, err := decodeResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("decode assessment %s: %w", id, err)
	}
	return resp, nil
}
