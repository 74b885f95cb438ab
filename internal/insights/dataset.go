package insights

// Granularity is the time bucket the data source aggregates rows into.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// Trend classifies the movement between the first and last observation.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

// VariableCodes are the reservoir variables summarized for insights.
var VariableCodes = []string{"VOL_BRUTO", "VOL_UTIL", "COTA", "DESCARGA", "REBOSE", "PRECIP"}

// TelemetryRow is one observation, already aggregated by the data source
// to the requested granularity. Date is YYYY-MM-DD.
type TelemetryRow struct {
	Date       string
	EntityID   int64
	EntityName string
	Variable   string
	Value      float64
}

// Entity is a monitored asset.
type Entity struct {
	ID   int64  `json:"id"`
	Name string `json:"nombre"`
}

// DatedValue is a single measurement.
type DatedValue struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// VariableStat summarizes one variable of one entity over the range.
// Pointer fields are null when undefined (no finite values, first == 0, ...).
type VariableStat struct {
	Variable          string       `json:"variable"`
	Count             int          `json:"count"`
	Average           *float64     `json:"average"`
	Min               *float64     `json:"min"`
	Max               *float64     `json:"max"`
	Stdev             float64      `json:"stdev"`
	Trend             Trend        `json:"trend"`
	VariationAbsolute *float64     `json:"variationAbsolute"`
	VariationPercent  *float64     `json:"variationPercent"`
	Outliers          []DatedValue `json:"outliers"`
	MissingDays       int          `json:"missingDays"`
}

// EntitySummary groups the variable statistics of one entity.
type EntitySummary struct {
	EntityID    int64          `json:"entityId"`
	EntityName  string         `json:"entityName"`
	Variables   []VariableStat `json:"variables"`
	MissingDays int            `json:"missingDays"`
}

// DailyPoint is the cross-variable average of one entity on one date.
type DailyPoint struct {
	Date         string   `json:"date"`
	EntityID     int64    `json:"entityId"`
	EntityName   string   `json:"entityName"`
	AverageValue *float64 `json:"averageValue"`
}

// RangeInfo echoes the validated range inside the dataset.
type RangeInfo struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"days"`
}

// Meta describes the request side of a dataset. It is not part of the
// serialized model context.
type Meta struct {
	Entities    []Entity    `json:"entities"`
	Granularity Granularity `json:"granularity"`
}

// Dataset is the compact statistical view handed to the model.
// Truncated is set whenever the row cap or the byte budget dropped data.
type Dataset struct {
	Range     RangeInfo       `json:"range"`
	Entities  []EntitySummary `json:"entities"`
	Daily     []DailyPoint    `json:"daily"`
	Truncated bool            `json:"truncated"`

	Meta Meta `json:"-"`
}
