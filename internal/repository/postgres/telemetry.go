package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"

	"github.com/hidroops/represas-insights/internal/insights"
)

// TelemetryRepo implements insights.Repository against the reservoir
// warehouse schema (dim_fecha, dim_represa, dim_variable,
// hecho_represa_diario).
type TelemetryRepo struct{ db *sql.DB }

// NewTelemetryRepo creates a Postgres-backed telemetry repository.
func NewTelemetryRepo(db *sql.DB) *TelemetryRepo { return &TelemetryRepo{db: db} }

func (r *TelemetryRepo) EntityNames(ctx context.Context, ids []int64) ([]insights.Entity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id_represa, nombre
		FROM dim_represa
		WHERE id_represa = ANY($1)
		ORDER BY nombre
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list represas: %w", err)
	}
	return scanEntities(rows)
}

func (r *TelemetryRepo) ListEntities(ctx context.Context) ([]insights.Entity, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id_represa, nombre FROM dim_represa ORDER BY nombre`)
	if err != nil {
		return nil, fmt.Errorf("list all represas: %w", err)
	}
	return scanEntities(rows)
}

func scanEntities(rows *sql.Rows) ([]insights.Entity, error) {
	defer rows.Close()

	out := []insights.Entity{}
	for rows.Next() {
		var e insights.Entity
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, fmt.Errorf("scan represa: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate represas: %w", err)
	}
	return out, nil
}

// bucketExpr returns the SELECT and GROUP BY expressions for g. Weekly
// buckets are labelled with the first observed date of the week.
func bucketExpr(g insights.Granularity) (selectExpr, groupExpr string) {
	switch g {
	case insights.GranularityWeek:
		return "MIN(f.fecha)", "date_trunc('week', f.fecha)"
	case insights.GranularityMonth:
		return "date_trunc('month', f.fecha)::date", "date_trunc('month', f.fecha)"
	default:
		return "f.fecha", "f.fecha"
	}
}

func telemetryQuery(g insights.Granularity) string {
	sel, group := bucketExpr(g)
	return fmt.Sprintf(`
		SELECT %s AS fecha, r.id_represa, r.nombre, v.codigo, AVG(h.valor) AS valor
		FROM hecho_represa_diario h
		JOIN dim_fecha f ON f.id_fecha = h.id_fecha
		JOIN dim_represa r ON r.id_represa = h.id_represa
		JOIN dim_variable v ON v.id_variable = h.id_variable
		WHERE f.fecha BETWEEN $1 AND $2
		  AND h.id_represa = ANY($3)
		  AND v.codigo = ANY($4)
		GROUP BY %s, r.id_represa, r.nombre, v.codigo
		ORDER BY 1, r.nombre, v.codigo
	`, sel, group)
}

func (r *TelemetryRepo) TelemetryRows(ctx context.Context, q insights.RowsQuery) ([]insights.TelemetryRow, error) {
	rows, err := r.db.QueryContext(ctx, telemetryQuery(q.Granularity),
		q.Start, q.End, pq.Array(q.EntityIDs), pq.Array(q.Variables))
	if err != nil {
		return nil, fmt.Errorf("query telemetry: %w", err)
	}
	defer rows.Close()

	var out []insights.TelemetryRow
	for rows.Next() {
		var (
			fecha time.Time
			row   insights.TelemetryRow
			valor sql.NullFloat64
		)
		if err := rows.Scan(&fecha, &row.EntityID, &row.EntityName, &row.Variable, &valor); err != nil {
			return nil, fmt.Errorf("scan telemetry: %w", err)
		}
		row.Date = fecha.UTC().Format("2006-01-02")
		row.Value = math.NaN()
		if valor.Valid {
			row.Value = valor.Float64
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate telemetry: %w", err)
	}
	return out, nil
}
