// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

// Package scoring turns a raw factor bundle into a weighted 0-100
// suitability score with a per-factor breakdown and recommendations.
package scoring

import (
	"fmt"
	"math"

	"github.com/locacash/sitescore/site"
)

// Rating buckets a factor score.
type Rating string

const (
	RatingHigh   Rating = "High"
	RatingMedium Rating = "Medium"
	RatingLow    Rating = "Low"
)

// Suitability labels the overall score.
type Suitability string

const (
	HighlySuitable     Suitability = "highly suitable"
	ModeratelySuitable Suitability = "moderately suitable"
	LowSuitability     Suitability = "low suitability"
)

// FactorScore is the breakdown entry of one factor.
type FactorScore struct {
	Score  int     `json:"score"`
	Rating Rating  `json:"rating"`
	Raw    float64 `json:"-"`
}

// Result is the outcome of scoring one bundle.
type Result struct {
	OverallScore    int                         `json:"overall_score"`
	Suitability     Suitability                 `json:"suitability"`
	Summary         string                      `json:"summary"`
	Factors         map[site.Factor]FactorScore `json:"factor_scores"`
	Recommendations []string                    `json:"recommendations"`
	Weights         site.WeightSet              `json:"weights_used"`
}

// Score evaluates b under w. A nil weight set selects the defaults.
func Score(b site.RawFactorBundle, w site.WeightSet) (*Result, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	weights, err := w.Normalize()
	if err != nil {
		return nil, err
	}

	raw := map[site.Factor]float64{
		site.PopulationDensity:  populationScore(b.PopulationDensity),
		site.CompetingATMs:      competitionScore(b.CompetingATMs),
		site.CommercialActivity: commercialScore(b.CommercialActivity),
		site.TrafficFlow:        trafficScore(b.TrafficFlow),
		site.PublicTransport:    transportScore(b.PublicTransport),
		site.LandRate:           landRateScore(b.LandRate),
	}

	var weighted float64

	factors := make(map[site.Factor]FactorScore, len(raw))
	for _, f := range site.Factors {
		s := raw[f]
		weighted += s * weights[f] / 100
		factors[f] = FactorScore{Score: int(math.Round(s)), Rating: rate(s), Raw: s}
	}

	overall := int(math.Round(clamp(weighted)))
	suitability := classify(overall)

	return &Result{
		OverallScore:    overall,
		Suitability:     suitability,
		Summary:         fmt.Sprintf("This location is %s for an ATM placement.", suitability),
		Factors:         factors,
		Recommendations: recommend(b, raw),
		Weights:         weights,
	}, nil
}

// ScoreReport converts the wire report and scores it. Absent factors
// surface as a missing factor error.
func ScoreReport(r site.FactorReport, w site.WeightSet) (*Result, error) {
	b, err := r.Bundle()
	if err != nil {
		return nil, err
	}

	return Score(b, w)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func populationScore(d float64) float64 {
	if d <= 0 {
		return 10
	}

	return clamp(40 + 45*math.Log10(d))
}

func competitionScore(n int) float64 {
	switch {
	case n == 0:
		return 85
	case n == 1:
		return 95
	case n <= 3:
		return clamp(80 - 5*float64(n-1))
	default:
		return clamp(math.Max(30, 65-7*float64(n-3)))
	}
}

func commercialScore(c int) float64 {
	return clamp(math.Min(100, 40+5*float64(c)))
}

func trafficScore(t int) float64 {
	if t <= 0 {
		return 10
	}

	return clamp(30 + 35*math.Log10(float64(t)))
}

func transportScore(p int) float64 {
	return clamp(math.Min(100, 40+5*float64(p)))
}

func landRateScore(r float64) float64 {
	if r <= 0 {
		return 90
	}

	return clamp(math.Max(30, 110-15*math.Log10(r)))
}

func rate(s float64) Rating {
	switch {
	case s >= 80:
		return RatingHigh
	case s >= 60:
		return RatingMedium
	default:
		return RatingLow
	}
}

func classify(overall int) Suitability {
	switch {
	case overall >= 75:
		return HighlySuitable
	case overall >= 60:
		return ModeratelySuitable
	default:
		return LowSuitability
	}
}
