// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"

	"github.com/locacash/sitescore/site"
	"github.com/locacash/sitescore/spatial"
)

// Func adapts a plain function to the provider interface.
type Func func(ctx context.Context, p spatial.Point, radius float64) (site.RawFactorBundle, error)

// FetchFactors calls f.
func (f Func) FetchFactors(ctx context.Context, p spatial.Point, radius float64) (site.RawFactorBundle, error) {
	return f(ctx, p, radius)
}
