package insights

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

const (
	outlierSigma = 2.5
	maxOutliers  = 5
	// Used as the trend threshold when a series has zero spread.
	flatThreshold = 0.01
)

// Aggregator reduces telemetry rows to a Dataset. MaxDailyRows caps the
// daily series by uniform downsampling; MaxPayloadBytes bounds the
// serialized dataset by dropping the daily series. Zero disables a limit.
type Aggregator struct {
	MaxDailyRows    int
	MaxPayloadBytes int
}

type statKey struct {
	entityID int64
	variable string
}

type dailyKey struct {
	date     string
	entityID int64
}

type varAccumulator struct {
	entityID   int64
	entityName string
	variable   string

	count    int
	sum      float64
	min, max float64
	values   []DatedValue
	first    *DatedValue
	last     *DatedValue
	dates    map[string]struct{}
}

func (a *varAccumulator) add(date string, v float64) {
	if !isFinite(v) {
		return
	}
	if a.count == 0 {
		a.min, a.max = v, v
	} else {
		a.min = math.Min(a.min, v)
		a.max = math.Max(a.max, v)
	}
	a.count++
	a.sum += v
	dv := DatedValue{Date: date, Value: v}
	a.values = append(a.values, dv)
	a.dates[date] = struct{}{}

	if a.first == nil || date < a.first.Date {
		first := dv
		a.first = &first
	}
	if a.last == nil || date >= a.last.Date {
		last := dv
		a.last = &last
	}
}

func (a *varAccumulator) stat(rangeDays int) VariableStat {
	st := VariableStat{
		Variable:    a.variable,
		Count:       a.count,
		Trend:       TrendStable,
		Outliers:    []DatedValue{},
		MissingDays: max(rangeDays-len(a.dates), 0),
	}
	if a.count == 0 {
		return st
	}

	mean := a.sum / float64(a.count)
	st.Average = finiteOrNil(mean)
	st.Min = finiteOrNil(a.min)
	st.Max = finiteOrNil(a.max)

	var sq float64
	for _, dv := range a.values {
		d := dv.Value - mean
		sq += d * d
	}
	stdev := math.Sqrt(sq / float64(a.count))
	if !isFinite(stdev) || !isFinite(mean) {
		stdev = 0
	}
	st.Stdev = stdev

	if stdev > 0 {
		st.Outliers = outliers(a.values, mean, stdev)
	}

	if a.first != nil && a.last != nil {
		variation := a.last.Value - a.first.Value
		if isFinite(variation) {
			st.VariationAbsolute = &variation
			threshold := stdev
			if threshold == 0 {
				threshold = flatThreshold
			}
			switch {
			case math.Abs(variation) < threshold:
				st.Trend = TrendStable
			case variation > 0:
				st.Trend = TrendRising
			default:
				st.Trend = TrendFalling
			}
			if a.first.Value != 0 {
				st.VariationPercent = finiteOrNil(variation / a.first.Value * 100)
			}
		}
	}
	return st
}

func outliers(values []DatedValue, mean, stdev float64) []DatedValue {
	limit := outlierSigma * stdev
	var out []DatedValue
	for _, dv := range values {
		if math.Abs(dv.Value-mean) >= limit {
			out = append(out, dv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Value-mean) > math.Abs(out[j].Value-mean)
	})
	if len(out) > maxOutliers {
		out = out[:maxOutliers]
	}
	if out == nil {
		out = []DatedValue{}
	}
	return out
}

type dailyAccumulator struct {
	entityName string
	sum        float64
	count      int
}

// Summarize builds the dataset for rows observed in r. Rows are expected to
// carry dates inside r; values that are NaN or infinite are ignored.
func (a Aggregator) Summarize(rows []TelemetryRow, r DateRange) (*Dataset, error) {
	stats := make(map[statKey]*varAccumulator)
	daily := make(map[dailyKey]*dailyAccumulator)

	for _, row := range rows {
		sk := statKey{entityID: row.EntityID, variable: row.Variable}
		acc, ok := stats[sk]
		if !ok {
			acc = &varAccumulator{
				entityID:   row.EntityID,
				entityName: row.EntityName,
				variable:   row.Variable,
				dates:      make(map[string]struct{}),
			}
			stats[sk] = acc
		}
		acc.add(row.Date, row.Value)

		dk := dailyKey{date: row.Date, entityID: row.EntityID}
		d, ok := daily[dk]
		if !ok {
			d = &dailyAccumulator{entityName: row.EntityName}
			daily[dk] = d
		}
		if isFinite(row.Value) {
			d.sum += row.Value
			d.count++
		}
	}

	ds := &Dataset{
		Range:    r.Info(),
		Entities: summarizeEntities(stats, r.Days),
		Daily:    a.dailySeries(daily),
	}
	if a.MaxDailyRows > 0 && len(daily) > a.MaxDailyRows {
		ds.Truncated = true
	}

	if a.MaxPayloadBytes > 0 {
		payload, err := json.Marshal(ds)
		if err != nil {
			return nil, fmt.Errorf("measure dataset: %w", err)
		}
		if len(payload) > a.MaxPayloadBytes {
			ds.Daily = []DailyPoint{}
			ds.Truncated = true
		}
	}
	return ds, nil
}

func summarizeEntities(stats map[statKey]*varAccumulator, rangeDays int) []EntitySummary {
	byEntity := make(map[int64]*EntitySummary)
	for _, acc := range stats {
		es, ok := byEntity[acc.entityID]
		if !ok {
			es = &EntitySummary{EntityID: acc.entityID, EntityName: acc.entityName}
			byEntity[acc.entityID] = es
		}
		st := acc.stat(rangeDays)
		es.Variables = append(es.Variables, st)
		es.MissingDays = max(es.MissingDays, st.MissingDays)
	}

	out := make([]EntitySummary, 0, len(byEntity))
	for _, es := range byEntity {
		sort.Slice(es.Variables, func(i, j int) bool {
			return es.Variables[i].Variable < es.Variables[j].Variable
		})
		out = append(out, *es)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntityName != out[j].EntityName {
			return out[i].EntityName < out[j].EntityName
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

func (a Aggregator) dailySeries(daily map[dailyKey]*dailyAccumulator) []DailyPoint {
	points := make([]DailyPoint, 0, len(daily))
	for k, d := range daily {
		p := DailyPoint{Date: k.date, EntityID: k.entityID, EntityName: d.entityName}
		if d.count > 0 {
			p.AverageValue = finiteOrNil(d.sum / float64(d.count))
		}
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Date != points[j].Date {
			return points[i].Date < points[j].Date
		}
		if points[i].EntityName != points[j].EntityName {
			return points[i].EntityName < points[j].EntityName
		}
		return points[i].EntityID < points[j].EntityID
	})
	return Downsample(points, a.MaxDailyRows)
}

// Downsample keeps every ceil(len/limit)-th point, starting with the first.
func Downsample[T any](points []T, limit int) []T {
	if limit <= 0 || len(points) <= limit {
		return points
	}
	step := (len(points) + limit - 1) / limit
	out := make([]T, 0, limit)
	for i := 0; i < len(points); i += step {
		out = append(out, points[i])
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOrNil(v float64) *float64 {
	if !isFinite(v) {
		return nil
	}
	return &v
}
