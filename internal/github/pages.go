package github

// fetchPage returns one page of results. Pages start at 1.
type fetchPage[T any] func(page, perPage int) ([]T, error)

// collectPages fetches successive pages until limit matching items are
// collected or the source runs out. The keep filter is applied per page, so
// limit means "first N matching items", not "first N raw items". A first page
// that already satisfies the limit ends the loop without a second fetch.
func collectPages[T any](limit, perPage int, keep func(T) bool, fetch fetchPage[T]) ([]T, error) {
	if limit <= 0 {
		return nil, nil
	}

	var out []T
	for page := 1; len(out) < limit; page++ {
		batch, err := fetch(page, perPage)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}

		for _, item := range batch {
			if keep != nil && !keep(item) {
				continue
			}
			out = append(out, item)
			if len(out) == limit {
				break
			}
		}

		if len(batch) < perPage {
			// Short page: the source has no further pages.
			break
		}
	}
	return out, nil
}
