// Package ai generates structured insights from a compact dataset using a
// hosted language model. Providers implement Generator; the Orchestrator
// adds the deadline, response validation and error classification.
package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Language is the response language requested by the client.
type Language string

const (
	LanguageES Language = "es"
	LanguageEN Language = "en"
)

// Detail is the requested depth of the analysis.
type Detail string

const (
	DetailBrief     Detail = "breve"
	DetailNormal    Detail = "normal"
	DetailTechnical Detail = "tecnico"
)

// ParseLanguage accepts "es" or "en"; empty defaults to Spanish.
func ParseLanguage(s string) (Language, bool) {
	switch l := Language(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return LanguageES, true
	case LanguageES, LanguageEN:
		return l, true
	}
	return "", false
}

// ParseDetail accepts breve, normal or tecnico; empty defaults to normal.
func ParseDetail(s string) (Detail, bool) {
	switch d := Detail(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return DetailNormal, true
	case DetailBrief, DetailNormal, DetailTechnical:
		return d, true
	}
	return "", false
}

// Options tune a single generation.
type Options struct {
	Language Language
	Detail   Detail
}

// Anomaly is a dated irregularity the model points out.
type Anomaly struct {
	Entity string `json:"represa"`
	Date   string `json:"fecha"`
	Reason string `json:"motivo"`
}

// InsightResult is the validated model output.
type InsightResult struct {
	Summary            string    `json:"resumen"`
	Findings           []string  `json:"hallazgos"`
	Risks              []string  `json:"riesgos"`
	Recommendations    []string  `json:"recomendaciones"`
	Anomalies          []Anomaly `json:"anomalias"`
	SuggestedQuestions []string  `json:"preguntasSugeridas"`
}

var (
	ErrEmptyResponse = errors.New("model returned an empty response")
	ErrTrailingData  = errors.New("model output has data after the JSON object")
)

// MissingFieldError reports a required field absent from the model output.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("model output is missing required field %q", e.Field)
}

type rawAnomaly struct {
	Entity *string `json:"represa"`
	Date   *string `json:"fecha"`
	Reason *string `json:"motivo"`
}

type rawResult struct {
	Summary            *string      `json:"resumen"`
	Findings           []string     `json:"hallazgos"`
	Risks              []string     `json:"riesgos"`
	Recommendations    []string     `json:"recomendaciones"`
	Anomalies          []rawAnomaly `json:"anomalias"`
	SuggestedQuestions []string     `json:"preguntasSugeridas"`
}

// ParseResult decodes model text as exactly one JSON object of the insight
// schema. There is no salvage of partial or wrapped output. Absent lists
// become empty slices.
func ParseResult(text string) (*InsightResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	dec := json.NewDecoder(strings.NewReader(text))
	var raw rawResult
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, ErrTrailingData
	}

	if raw.Summary == nil {
		return nil, &MissingFieldError{Field: "resumen"}
	}

	res := &InsightResult{
		Summary:            *raw.Summary,
		Findings:           nonNil(raw.Findings),
		Risks:              nonNil(raw.Risks),
		Recommendations:    nonNil(raw.Recommendations),
		Anomalies:          make([]Anomaly, 0, len(raw.Anomalies)),
		SuggestedQuestions: nonNil(raw.SuggestedQuestions),
	}
	for i, a := range raw.Anomalies {
		switch {
		case a.Entity == nil:
			return nil, &MissingFieldError{Field: fmt.Sprintf("anomalias[%d].represa", i)}
		case a.Date == nil:
			return nil, &MissingFieldError{Field: fmt.Sprintf("anomalias[%d].fecha", i)}
		case a.Reason == nil:
			return nil, &MissingFieldError{Field: fmt.Sprintf("anomalias[%d].motivo", i)}
		}
		res.Anomalies = append(res.Anomalies, Anomaly{Entity: *a.Entity, Date: *a.Date, Reason: *a.Reason})
	}
	return res, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
