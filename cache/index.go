// Copyright 2025 The LocaCash Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"fmt"
	"math"

	"github.com/uber/h3-go/v4"

	"github.com/locacash/sitescore/spatial"
)

// IndexKind selects the spatial index used for proximity lookups.
type IndexKind string

const (
	// IndexScan compares the query against every stored entry.
	IndexScan IndexKind = "scan"
	// IndexH3 buckets entries by H3 cell and only inspects nearby cells.
	IndexH3 IndexKind = "h3"
)

// DefaultH3Resolution gives cells with roughly 76 m edges.
const DefaultH3Resolution = 10

// maxGridK bounds the H3 disk size; larger searches fall back to a scan.
const maxGridK = 40

// avgEdgeMeters is the average hexagon edge length per H3 resolution.
var avgEdgeMeters = [...]float64{
	1281256.011, 483056.8391, 182512.9565, 68979.22179,
	26071.75968, 9854.090990, 3724.532667, 1406.475763,
	531.414010, 200.786148, 75.863783, 28.663897,
	10.830188, 4.092010, 1.546100, 0.584169,
}

// ParseIndexKind validates a configured index name.
func ParseIndexKind(s string) (IndexKind, error) {
	switch k := IndexKind(s); k {
	case IndexScan, IndexH3:
		return k, nil
	case "":
		return IndexScan, nil
	default:
		return "", fmt.Errorf("unknown index kind %q (want %q or %q)", s, IndexScan, IndexH3)
	}
}

// spatialIndex returns the entries that may lie within a radius of a point.
// Callers filter candidates by exact distance.
type spatialIndex interface {
	add(e *entry)
	candidates(p spatial.Point, radius float64) []*entry
	reset()
}

type scanIndex struct {
	all []*entry
}

func (s *scanIndex) add(e *entry) {
	s.all = append(s.all, e)
}

func (s *scanIndex) candidates(spatial.Point, float64) []*entry {
	return s.all
}

func (s *scanIndex) reset() {
	s.all = nil
}

type h3Index struct {
	resolution int
	cells      map[h3.Cell][]*entry
	all        []*entry
	// orphans could not be assigned a cell and are always candidates.
	orphans []*entry
}

func newH3Index(resolution int) (*h3Index, error) {
	if resolution < 0 || resolution >= len(avgEdgeMeters) {
		return nil, fmt.Errorf("h3 resolution %d out of range [0, %d]", resolution, len(avgEdgeMeters)-1)
	}

	return &h3Index{resolution: resolution, cells: make(map[h3.Cell][]*entry)}, nil
}

func (x *h3Index) cellOf(p spatial.Point) (h3.Cell, error) {
	return h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), x.resolution)
}

func (x *h3Index) add(e *entry) {
	x.all = append(x.all, e)

	cell, err := x.cellOf(e.point)
	if err != nil {
		x.orphans = append(x.orphans, e)

		return
	}

	x.cells[cell] = append(x.cells[cell], e)
}

func (x *h3Index) candidates(p spatial.Point, radius float64) []*entry {
	edge := avgEdgeMeters[x.resolution]
	k := int(math.Ceil((radius + 2*edge) / (0.75 * edge)))

	if k > maxGridK {
		return x.all
	}

	origin, err := x.cellOf(p)
	if err != nil {
		return x.all
	}

	disk, err := h3.GridDisk(origin, k)
	if err != nil {
		return x.all
	}

	out := append([]*entry(nil), x.orphans...)
	for _, cell := range disk {
		out = append(out, x.cells[cell]...)
	}

	return out
}

func (x *h3Index) reset() {
	x.cells = make(map[h3.Cell][]*entry)
	x.all = nil
	x.orphans = nil
}
