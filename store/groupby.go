package store

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"flightdash/models"
)

type AggFunc string

const (
	AggCount AggFunc = "count"
	AggSum   AggFunc = "sum"
	AggMean  AggFunc = "mean"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
)

// Aggregation names one output column of a GroupBy. Alias defaults to
// "<Column>_<Func>".
type Aggregation struct {
	Column string  `json:"column"`
	Func   AggFunc `json:"func"`
	Alias  string  `json:"alias,omitempty"`
}

func (a Aggregation) Name() string {
	if a.Alias != "" {
		return a.Alias
	}
	return a.Column + "_" + string(a.Func)
}

// GroupRow is one group of a GroupBy result. Keys are in the order of the
// requested key columns.
type GroupRow struct {
	Keys   []string           `json:"keys"`
	Count  int                `json:"count"`
	Values map[string]float64 `json:"values"`
}

// Value returns an aggregate by name; "count" falls back to the group size.
func (r GroupRow) Value(name string) float64 {
	if v, ok := r.Values[name]; ok {
		return v
	}
	if name == string(AggCount) {
		return float64(r.Count)
	}
	return 0
}

var blank models.FlightRecord

func validate(keys []string, aggs []Aggregation) error {
	for _, k := range keys {
		if _, ok := blank.Dimension(k); !ok {
			return fmt.Errorf("unknown group key %q", k)
		}
	}
	seen := make(map[string]bool, len(aggs))
	for _, a := range aggs {
		switch a.Func {
		case AggCount:
			_, dim := blank.Dimension(a.Column)
			_, num := blank.Measure(a.Column)
			if !dim && !num {
				return fmt.Errorf("unknown column %q", a.Column)
			}
		case AggSum, AggMean, AggMin, AggMax:
			if _, ok := blank.Measure(a.Column); !ok {
				return fmt.Errorf("column %q is not numeric", a.Column)
			}
		default:
			return fmt.Errorf("unknown aggregation %q", a.Func)
		}
		if seen[a.Name()] {
			return fmt.Errorf("duplicate aggregation name %q", a.Name())
		}
		seen[a.Name()] = true
	}
	return nil
}

// GroupBy groups the records by the key columns and computes the
// aggregations per group. Rows come back in first-encounter order of their
// key tuple.
func (s *Store) GroupBy(keys []string, aggs []Aggregation) ([]GroupRow, error) {
	if err := validate(keys, aggs); err != nil {
		return nil, err
	}
	return s.groupBy(keys, aggs, nil), nil
}

type accumulator struct {
	sum, min, max float64
	n             int
}

// groupBy assumes validated columns. A nil filter keeps every record.
func (s *Store) groupBy(keys []string, aggs []Aggregation, filter func(*models.FlightRecord) bool) []GroupRow {
	index := make(map[string]int)
	rows := make([]GroupRow, 0)
	accs := make([][]accumulator, 0)

	parts := make([]string, len(keys))
	for i := range s.records {
		r := &s.records[i]
		if filter != nil && !filter(r) {
			continue
		}
		for k, key := range keys {
			parts[k], _ = r.Dimension(key)
		}
		id := strings.Join(parts, "\x1f")

		g, ok := index[id]
		if !ok {
			g = len(rows)
			index[id] = g
			rows = append(rows, GroupRow{Keys: append([]string(nil), parts...)})
			acc := make([]accumulator, len(aggs))
			for j := range acc {
				acc[j] = accumulator{min: math.Inf(1), max: math.Inf(-1)}
			}
			accs = append(accs, acc)
		}
		rows[g].Count++

		for j, a := range aggs {
			if a.Func == AggCount {
				accs[g][j].n++
				continue
			}
			v, _ := r.Measure(a.Column)
			acc := &accs[g][j]
			acc.n++
			acc.sum += v
			acc.min = math.Min(acc.min, v)
			acc.max = math.Max(acc.max, v)
		}
	}

	for g := range rows {
		rows[g].Values = make(map[string]float64, len(aggs))
		for j, a := range aggs {
			acc := accs[g][j]
			var v float64
			switch a.Func {
			case AggCount:
				v = float64(acc.n)
			case AggSum:
				v = acc.sum
			case AggMean:
				v = acc.sum / float64(acc.n)
			case AggMin:
				v = acc.min
			case AggMax:
				v = acc.max
			}
			rows[g].Values[a.Name()] = v
		}
	}
	return rows
}

// TopN ranks rows by the named aggregate, descending. The sort is stable so
// ties keep their encounter order. n <= 0 returns every row.
func TopN(rows []GroupRow, by string, n int) []GroupRow {
	ranked := append([]GroupRow(nil), rows...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Value(by) > ranked[j].Value(by)
	})
	if n > 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// Flatten turns rows into flat JSON objects keyed by column and aggregate
// names, the shape the chart front end consumes.
func Flatten(keys []string, rows []GroupRow) []map[string]interface{} {
	out := make([]map[string]interface{}, len(rows))
	for i, row := range rows {
		m := make(map[string]interface{}, len(keys)+len(row.Values))
		for k, key := range keys {
			m[key] = row.Keys[k]
		}
		for name, v := range row.Values {
			m[name] = v
		}
		out[i] = m
	}
	return out
}
