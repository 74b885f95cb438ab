package postgres

import (
	"context"
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidroops/represas-insights/internal/insights"
)

func newMock(t *testing.T) (*TelemetryRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTelemetryRepo(db), mock
}

func TestEntityNames(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM dim_represa")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id_represa", "nombre"}).
			AddRow(2, "Colbún").
			AddRow(1, "Rapel"))

	got, err := repo.EntityNames(context.Background(), []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []insights.Entity{{ID: 2, Name: "Colbún"}, {ID: 1, Name: "Rapel"}}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityNamesError(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("FROM dim_represa").WillReturnError(errors.New("connection reset"))

	_, err := repo.EntityNames(context.Background(), []int64{1})
	assert.ErrorContains(t, err, "list represas")
}

func TestListEntities(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id_represa, nombre FROM dim_represa ORDER BY nombre")).
		WillReturnRows(sqlmock.NewRows([]string{"id_represa", "nombre"}))

	got, err := repo.ListEntities(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTelemetryRows(t *testing.T) {
	repo, mock := newMock(t)
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT f.fecha AS fecha")).
		WithArgs(start, end, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"fecha", "id_represa", "nombre", "codigo", "valor"}).
			AddRow(start, 1, "Rapel", "COTA", 104.5).
			AddRow(end, 1, "Rapel", "COTA", nil))

	got, err := repo.TelemetryRows(context.Background(), insights.RowsQuery{
		Start:       start,
		End:         end,
		EntityIDs:   []int64{1},
		Variables:   insights.VariableCodes,
		Granularity: insights.GranularityDay,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, insights.TelemetryRow{Date: "2024-05-01", EntityID: 1, EntityName: "Rapel", Variable: "COTA", Value: 104.5}, got[0])
	assert.Equal(t, "2024-05-02", got[1].Date)
	assert.True(t, math.IsNaN(got[1].Value))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTelemetryQueryByGranularity(t *testing.T) {
	assert.Contains(t, telemetryQuery(insights.GranularityDay), "GROUP BY f.fecha,")
	assert.Contains(t, telemetryQuery(insights.GranularityWeek), "SELECT MIN(f.fecha) AS fecha")
	assert.Contains(t, telemetryQuery(insights.GranularityWeek), "GROUP BY date_trunc('week', f.fecha),")
	assert.Contains(t, telemetryQuery(insights.GranularityMonth), "SELECT date_trunc('month', f.fecha)::date AS fecha")
}

func TestTelemetryRowsQueryError(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("FROM hecho_represa_diario").WillReturnError(errors.New("relation does not exist"))

	_, err := repo.TelemetryRows(context.Background(), insights.RowsQuery{Granularity: insights.GranularityMonth})
	assert.ErrorContains(t, err, "query telemetry")
}
