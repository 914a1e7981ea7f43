// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package scoring

import (
	"fmt"

	"github.com/locacash/sitescore/site"
)

const (
	transportThreshold = 70
	landRateThreshold  = 50
)

// recommend builds the advice list: commercial tier first, then transport,
// competition and land rate.
func recommend(b site.RawFactorBundle, raw map[site.Factor]float64) []string {
	recs := make([]string, 0, 4)

	switch rate(raw[site.CommercialActivity]) {
	case RatingHigh:
		recs = append(recs, "This location has excellent commercial activity nearby")
	case RatingMedium:
		recs = append(recs, "Moderate commercial presence offers good potential foot traffic")
	default:
		recs = append(recs, "Limited commercial activity may reduce potential transactions")
	}

	if raw[site.PublicTransport] >= transportThreshold {
		recs = append(recs, "Good public transportation access increases potential foot traffic")
	}

	switch n := b.CompetingATMs; {
	case n == 0:
		recs = append(recs, "No competing ATMs in the area - opportunity to establish presence")
	case n <= 3:
		recs = append(recs, fmt.Sprintf("Consider the moderate competition from %d existing ATM(s) in a 1.5km radius", n))
	default:
		recs = append(recs, fmt.Sprintf("High competition with %d existing ATMs may limit transaction volume", n))
	}

	if raw[site.LandRate] < landRateThreshold {
		recs = append(recs, "High land rates in this area may affect long-term ROI - consider lease options")
	}

	return recs
}
