package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type host struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	CPU    int    `json:"cpu"`
	Active bool   `json:"active"`
	Spec   struct {
		Zone string `json:"zone"`
	} `json:"spec"`
}

func hosts() []host {
	mk := func(id, name string, cpu int, active bool, zone string) host {
		h := host{ID: id, Name: name, CPU: cpu, Active: active}
		h.Spec.Zone = zone
		return h
	}
	return []host{
		mk("1", "Alpha", 4, true, "east"),
		mk("2", "bravo", 8, false, "west"),
		mk("3", "charlie", 2, true, "east"),
	}
}

func ids(hs []host) []string {
	out := make([]string, 0, len(hs))
	for _, h := range hs {
		out = append(out, h.ID)
	}
	return out
}

func TestFilterOperators(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"eq", Filter{Field: "cpu", Operator: OpEq, Value: 4}, []string{"1"}},
		{"neq", Filter{Field: "active", Operator: OpNeq, Value: true}, []string{"2"}},
		{"gt", Filter{Field: "cpu", Operator: OpGt, Value: 4}, []string{"2"}},
		{"lt", Filter{Field: "cpu", Operator: OpLt, Value: 4}, []string{"3"}},
		{"gte", Filter{Field: "cpu", Operator: OpGte, Value: 4}, []string{"1", "2"}},
		{"lte", Filter{Field: "cpu", Operator: OpLte, Value: 4}, []string{"1", "3"}},
		{"contains case-insensitive", Filter{Field: "name", Operator: OpContains, Value: "AL"}, []string{"1"}},
		{"in", Filter{Field: "name", Operator: OpIn, Value: []string{"bravo", "charlie"}}, []string{"2", "3"}},
		{"in requires slice", Filter{Field: "name", Operator: OpIn, Value: "bravo"}, []string{}},
		{"nested path", Filter{Field: "spec.zone", Operator: OpEq, Value: "east"}, []string{"1", "3"}},
		{"unknown operator passes", Filter{Field: "name", Operator: "regex", Value: "x"}, []string{"1", "2", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(applyFilters(hosts(), []Filter{tt.filter}))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSortAndPaginate(t *testing.T) {
	hs := hosts()

	got := ids(applySort(hs, &Sort{Field: "cpu", Direction: Desc}, nil))
	if diff := cmp.Diff([]string{"2", "1", "3"}, got); diff != "" {
		t.Fatalf("desc sort mismatch (-want +got):\n%s", diff)
	}

	byName := func(a, b host) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	}
	got = ids(applySort(hs, &Sort{Field: "ignored", Direction: Asc}, byName))
	if diff := cmp.Diff([]string{"1", "2", "3"}, got); diff != "" {
		t.Fatalf("comparator sort mismatch (-want +got):\n%s", diff)
	}
	if got := ids(applySort(hs, nil, byName)); got[0] != "1" || got[2] != "3" {
		t.Fatalf("nil sort reordered items: %v", got)
	}

	if got := ids(applyPagination(hs, &Pagination{Page: 2, PageSize: 2})); len(got) != 1 || got[0] != "3" {
		t.Fatalf("page 2 = %v, want [3]", got)
	}
	if got := applyPagination(hs, &Pagination{Page: 5, PageSize: 2}); len(got) != 0 {
		t.Fatalf("page 5 = %v, want empty", got)
	}
	if got := applyPagination(hs, nil); len(got) != 3 {
		t.Fatalf("nil pagination len = %d, want 3", len(got))
	}
}

func TestDerivedViewsRecomputeWithoutFetching(t *testing.T) {
	tr := &fakeTransport{}
	c := New(Options[host]{Name: "hosts", Endpoint: "/hosts", Transport: tr, InitialData: hosts()})

	c.AddFilter(Filter{Field: "active", Operator: OpEq, Value: true})
	c.SetSort(&Sort{Field: "cpu", Direction: Asc})
	if diff := cmp.Diff([]string{"3", "1"}, ids(c.SortedItems().Get())); diff != "" {
		t.Fatalf("sorted mismatch (-want +got):\n%s", diff)
	}

	c.SetPagination(&Pagination{Page: 1, PageSize: 1})
	if diff := cmp.Diff([]string{"3"}, ids(c.PaginatedItems().Get())); diff != "" {
		t.Fatalf("paginated mismatch (-want +got):\n%s", diff)
	}

	c.RemoveFilter("active")
	if got := len(c.FilteredItems().Get()); got != 3 {
		t.Fatalf("filtered len = %d, want 3", got)
	}
	if tr.count() != 0 {
		t.Fatalf("requests = %d, want 0", tr.count())
	}
}
