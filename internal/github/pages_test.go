package github

import (
	"errors"
	"testing"
)

func TestCollectPagesStopsAtLimit(t *testing.T) {
	fetches := 0
	items, err := collectPages(3, 5, nil, func(page, perPage int) ([]int, error) {
		fetches++
		return []int{1, 2, 3, 4, 5}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("expected 3 items, got %d", len(items))
	}
	// The first page satisfied the limit; no second fetch allowed.
	if fetches != 1 {
		t.Errorf("expected exactly 1 fetch, got %d", fetches)
	}
}

func TestCollectPagesFiltersPerPage(t *testing.T) {
	// Pages of 4 where only even values match; limit 3 matching items should
	// span two pages and return exactly 3 matching values.
	pages := [][]int{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9, 10, 11, 12},
	}
	fetches := 0
	keep := func(v int) bool { return v%2 == 0 }
	items, err := collectPages(3, 4, keep, func(page, perPage int) ([]int, error) {
		fetches++
		return pages[page-1], nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 matching items, got %d", len(items))
	}
	for _, v := range items {
		if v%2 != 0 {
			t.Errorf("expected only matching items, got %d", v)
		}
	}
	if fetches != 2 {
		t.Errorf("expected 2 fetches, got %d", fetches)
	}
}

func TestCollectPagesExhaustion(t *testing.T) {
	// A short page signals the end even when the limit is not reached.
	items, err := collectPages(10, 5, nil, func(page, perPage int) ([]int, error) {
		if page == 1 {
			return []int{1, 2, 3}, nil
		}
		t.Fatal("must not fetch past a short page")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Errorf("expected 3 items, got %d", len(items))
	}
}

func TestCollectPagesEmptyPage(t *testing.T) {
	items, err := collectPages(10, 5, nil, func(page, perPage int) ([]int, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
}

func TestCollectPagesPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := collectPages(10, 5, nil, func(page, perPage int) ([]int, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected fetch error propagated, got %v", err)
	}
}
