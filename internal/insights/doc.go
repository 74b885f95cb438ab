// Package insights turns reservoir telemetry for a date range into a
// compact statistical dataset and drives it through the insights pipeline:
// validation, rate limiting, aggregation and model invocation.
//
// The package depends on the Repository interface in repository.go for
// data access and never imports database/sql or net/http.
package insights
