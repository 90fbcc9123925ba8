package store

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Operator is a filter comparison.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
	OpGte      Operator = "gte"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
	OpIn       Operator = "in"
)

// Filter matches entities whose Field (a dotted JSON path) satisfies Operator
// against Value. For OpIn, Value is a slice.
type Filter struct {
	Field    string
	Operator Operator
	Value    any
}

// Direction orders a sort.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort orders entities by Field.
type Sort struct {
	Field     string
	Direction Direction
}

// Pagination selects a 1-based page of PageSize entities.
type Pagination struct {
	Page     int
	PageSize int
}

// QueryParams adjust a fetch. Filters, Sort and Pagination replace the
// collection's current settings when set; Query is sent with the request.
type QueryParams struct {
	Filters    []Filter
	Sort       *Sort
	Pagination *Pagination
	Query      url.Values
}

type contentHolder interface {
	UnstructuredContent() map[string]any
}

// fieldsOf exposes v as a generic JSON object for path lookups.
func fieldsOf(v any) map[string]any {
	if h, ok := v.(contentHolder); ok {
		return h.UnstructuredContent()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func lookup(fields map[string]any, path string) (any, bool) {
	var cur any = fields
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// normalize brings v into the shape encoding/json produces, so ints compare
// equal to float64 and typed slices become []any.
func normalize(v any) any {
	switch v.(type) {
	case nil, string, bool, float64, map[string]any, []any:
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			}
			return 0, true
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}

func equal(a, b any) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func (f Filter) matches(fields map[string]any) bool {
	value, _ := lookup(fields, f.Field)
	want := normalize(f.Value)

	switch f.Operator {
	case OpEq:
		return equal(value, want)
	case OpNeq:
		return !equal(value, want)
	case OpGt, OpLt, OpGte, OpLte:
		c, ok := compare(value, want)
		if !ok {
			return false
		}
		switch f.Operator {
		case OpGt:
			return c > 0
		case OpLt:
			return c < 0
		case OpGte:
			return c >= 0
		}
		return c <= 0
	case OpContains:
		return strings.Contains(strings.ToLower(stringify(value)), strings.ToLower(stringify(want)))
	case OpIn:
		list, ok := want.([]any)
		if !ok {
			return false
		}
		for _, candidate := range list {
			if equal(value, candidate) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

func applyFilters[T any](items []T, filters []Filter) []T {
	if len(filters) == 0 {
		return items
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		fields := fieldsOf(item)
		keep := true
		for _, f := range filters {
			if !f.matches(fields) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, item)
		}
	}
	return out
}

func applySort[T any](items []T, s *Sort, comparator func(a, b T) int) []T {
	if s == nil {
		return items
	}
	sign := 1
	if s.Direction == Desc {
		sign = -1
	}
	out := append([]T(nil), items...)
	if comparator != nil {
		sort.SliceStable(out, func(i, j int) bool {
			return sign*comparator(out[i], out[j]) < 0
		})
		return out
	}

	values := make([]any, len(out))
	for i, item := range out {
		values[i], _ = lookup(fieldsOf(item), s.Field)
	}
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		c, ok := compare(values[idx[i]], values[idx[j]])
		return ok && sign*c < 0
	})
	sorted := make([]T, len(out))
	for i, k := range idx {
		sorted[i] = out[k]
	}
	return sorted
}

func applyPagination[T any](items []T, p *Pagination) []T {
	if p == nil || p.PageSize <= 0 {
		return items
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * p.PageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + p.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// fieldKey returns a KeyFunc reading the dotted JSON path.
func fieldKey[T any](path string) func(T) string {
	return func(item T) string {
		v, ok := lookup(fieldsOf(item), path)
		if !ok {
			return ""
		}
		return stringify(v)
	}
}

// withField returns a merge patch that sets path to value.
func withField(path string, value any) map[string]any {
	parts := strings.Split(path, ".")
	patch := map[string]any{parts[len(parts)-1]: value}
	for i := len(parts) - 2; i >= 0; i-- {
		patch = map[string]any{parts[i]: patch}
	}
	return patch
}
