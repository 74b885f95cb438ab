package insights

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidroops/represas-insights/internal/apperr"
)

func TestDatasetBuilderJoinsNamesAndRows(t *testing.T) {
	repo := &fakeRepo{
		names: []Entity{{ID: 1, Name: "Rapel"}},
		rows:  series(1, "Rapel", "VOL_BRUTO", 1, 10, 20),
	}
	r := mustRange(t, "2024-05-01", "2024-05-02")

	ds, err := NewDatasetBuilder(repo, Aggregator{}).Build(context.Background(), r, []int64{1}, GranularityDay)
	require.NoError(t, err)

	assert.Equal(t, RangeInfo{Start: "2024-05-01", End: "2024-05-02", Days: 2}, ds.Range)
	assert.Equal(t, Meta{Entities: repo.names, Granularity: GranularityDay}, ds.Meta)
	assert.Equal(t, 1, repo.nameCalls)
	assert.Equal(t, 1, repo.rowCalls)
	assert.Equal(t, r.Start, repo.lastQuery.Start)
	assert.Equal(t, r.End, repo.lastQuery.End)
}

func TestDatasetBuilderNamesFailure(t *testing.T) {
	repo := &fakeRepo{namesErr: errors.New("timeout")}
	_, err := NewDatasetBuilder(repo, Aggregator{}).
		Build(context.Background(), mustRange(t, "2024-05-01", "2024-05-02"), []int64{1}, GranularityDay)

	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindDB, ae.Kind)
}

func TestDatasetBuilderEmptyResult(t *testing.T) {
	ds, err := NewDatasetBuilder(&fakeRepo{}, Aggregator{}).
		Build(context.Background(), mustRange(t, "2024-05-01", "2024-05-02"), []int64{9}, GranularityWeek)
	require.NoError(t, err)
	assert.Empty(t, ds.Entities)
	assert.NotNil(t, ds.Entities)
	assert.NotNil(t, ds.Meta.Entities)
	assert.NotNil(t, ds.Daily)
}
