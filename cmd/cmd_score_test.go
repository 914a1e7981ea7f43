// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locacash/sitescore/site"
)

func TestScoreLines(t *testing.T) {
	in := strings.Join([]string{
		`{"population_density":20.94,"competing_atms":1,"commercial_activity":14,"traffic_flow":1233,"public_transport":33,"land_rate":69237.54}`,
		``,
		`{"population_density":20.94}`,
		`not json`,
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, scoreLines(strings.NewReader(in), &out, nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var res struct {
		OverallScore int `json:"overall_score"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &res))
	assert.Equal(t, 93, res.OverallScore)

	assert.True(t, strings.HasPrefix(lines[1], "line 3\tmissing_factor"), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "line 4\t"), lines[2])
}

func TestParseWeights(t *testing.T) {
	w, err := parseWeights(nil)
	require.NoError(t, err)
	assert.Nil(t, w)

	w, err = parseWeights(map[string]string{"population_density": "30", "land_rate": "5"})
	require.NoError(t, err)
	assert.Equal(t, site.WeightSet{site.PopulationDensity: 30, site.LandRate: 5}, w)

	_, err = parseWeights(map[string]string{"land_rate": "lots"})
	assert.True(t, site.IsValidation(err))
}
