package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/warden/internal/audit"
	"github.com/gosuda/warden/internal/domain"
)

// LedgerRepo implements domain.Ledger on postgres. Appends serialize on an
// exclusive table lock so the chain head cannot fork under concurrent
// writers from multiple processes. The schema has no UPDATE or DELETE path;
// the table is append-only by contract.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func (r *LedgerRepo) Append(ctx context.Context, e domain.AuditEntry) (uint64, error) {
	e = audit.Normalize(e, time.Now())

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("ledgerRepo.Append: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize chain-head reads across all appenders.
	if _, err := tx.Exec(ctx, `LOCK TABLE audit_log IN EXCLUSIVE MODE`); err != nil {
		return 0, fmt.Errorf("ledgerRepo.Append: lock: %w", err)
	}

	prev := audit.GenesisHash
	var lastSeq uint64
	err = tx.QueryRow(ctx,
		`SELECT seq, hash FROM audit_log ORDER BY seq DESC LIMIT 1`,
	).Scan(&lastSeq, &prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("ledgerRepo.Append: head: %w", err)
	}

	e.Seq = lastSeq + 1
	e.PrevHash = prev
	e.Hash, err = audit.ChainHash(prev, e)
	if err != nil {
		return 0, fmt.Errorf("ledgerRepo.Append: %w", err)
	}

	var planID any
	if e.PlanID != uuid.Nil {
		planID = e.PlanID
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO audit_log (seq, prev_hash, hash, ts, kind, plan_id, jti, principal_id, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.Seq, e.PrevHash, e.Hash, e.Timestamp, string(e.Kind), planID, e.JTI, e.PrincipalID, e.Detail,
	)
	if err != nil {
		return 0, fmt.Errorf("ledgerRepo.Append: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("ledgerRepo.Append: commit: %w", err)
	}

	return e.Seq, nil
}

func (r *LedgerRepo) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	query := strings.Builder{}
	query.WriteString(
		`SELECT seq, prev_hash, hash, ts, kind, plan_id, jti, principal_id, detail FROM audit_log`)

	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.PlanID != uuid.Nil {
		conds = append(conds, "plan_id = "+arg(f.PlanID))
	}
	if f.JTI != "" {
		conds = append(conds, "jti = "+arg(f.JTI))
	}
	if f.PrincipalID != "" {
		conds = append(conds, "principal_id = "+arg(f.PrincipalID))
	}
	if f.Kind != "" {
		conds = append(conds, "kind = "+arg(string(f.Kind)))
	}
	if len(conds) > 0 {
		query.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	query.WriteString(" ORDER BY seq ASC")

	rows, err := r.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("ledgerRepo.List: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows, "ledgerRepo.List")
}

func (r *LedgerRepo) VerifyChain(ctx context.Context) error {
	entries, err := r.List(ctx, domain.AuditFilter{})
	if err != nil {
		return fmt.Errorf("ledgerRepo.VerifyChain: %w", err)
	}
	return audit.VerifyEntries(entries)
}

func scanEntries(rows pgx.Rows, caller string) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var kind string
		var planID *uuid.UUID

		if err := rows.Scan(
			&e.Seq, &e.PrevHash, &e.Hash, &e.Timestamp, &kind,
			&planID, &e.JTI, &e.PrincipalID, &e.Detail,
		); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", caller, err)
		}
		e.Kind = domain.EventKind(kind)
		if planID != nil {
			e.PlanID = *planID
		}
		// Hashing happened over UTC-truncated timestamps; restore that form.
		e.Timestamp = e.Timestamp.UTC().Truncate(time.Microsecond)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", caller, err)
	}

	return entries, nil
}
