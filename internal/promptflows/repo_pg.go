package promptflows

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a flow and its steps in one transaction.
func (r *PGRepo) Create(ctx context.Context, flow Flow) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const flowQuery = `
INSERT INTO prompt_flows (id, user_id, name, description, created_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := tx.ExecContext(ctx, flowQuery,
		flow.ID, flow.UserID, flow.Name, flow.Description, flow.CreatedAt,
	); err != nil {
		return err
	}
	if err := insertSteps(ctx, tx, flow.ID, flow.Steps); err != nil {
		return err
	}
	return tx.Commit()
}

func insertSteps(ctx context.Context, tx *sql.Tx, flowID string, steps []Step) error {
	const query = `
INSERT INTO prompt_steps (id, flow_id, name, content, step_order)
VALUES ($1, $2, $3, $4, $5)`
	for _, s := range steps {
		if _, err := tx.ExecContext(ctx, query, s.ID, flowID, s.Name, s.Content, s.StepOrder); err != nil {
			return err
		}
	}
	return nil
}

// GetByID returns a flow with its steps in order.
func (r *PGRepo) GetByID(ctx context.Context, flowID string) (Flow, error) {
	const query = `
SELECT id, user_id, name, description, created_at
FROM prompt_flows
WHERE id = $1
LIMIT 1`
	var f Flow
	var description sql.NullString
	err := r.DB.QueryRowContext(ctx, query, flowID).Scan(&f.ID, &f.UserID, &f.Name, &description, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Flow{}, ErrNotFound
		}
		return Flow{}, err
	}
	f.Description = description.String

	steps, err := r.listSteps(ctx, flowID)
	if err != nil {
		return Flow{}, err
	}
	f.Steps = steps
	return f, nil
}

func (r *PGRepo) listSteps(ctx context.Context, flowID string) ([]Step, error) {
	const query = `
SELECT id, flow_id, name, content, step_order
FROM prompt_steps
WHERE flow_id = $1
ORDER BY step_order ASC`
	rows, err := r.DB.QueryContext(ctx, query, flowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Step
	for rows.Next() {
		var s Step
		if err := rows.Scan(&s.ID, &s.FlowID, &s.Name, &s.Content, &s.StepOrder); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListByUser returns a user's flows with steps, newest first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string) ([]Flow, error) {
	const query = `
SELECT id, user_id, name, description, created_at
FROM prompt_flows
WHERE user_id = $1
ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Flow
	for rows.Next() {
		var f Flow
		var description sql.NullString
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &description, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Description = description.String
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		steps, err := r.listSteps(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Steps = steps
	}
	return out, nil
}

// Update rewrites the flow header and replaces its steps.
func (r *PGRepo) Update(ctx context.Context, flow Flow) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const headerQuery = `
UPDATE prompt_flows SET name = $2, description = $3 WHERE id = $1`
	res, err := tx.ExecContext(ctx, headerQuery, flow.ID, flow.Name, flow.Description)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM prompt_steps WHERE flow_id = $1`, flow.ID); err != nil {
		return err
	}
	if err := insertSteps(ctx, tx, flow.ID, flow.Steps); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a flow; steps cascade.
func (r *PGRepo) Delete(ctx context.Context, flowID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM prompt_flows WHERE id = $1`, flowID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
