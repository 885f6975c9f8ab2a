package govdata

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"
)

// fetchPaged pulls up to limit records, splitting the request into
// provider pages. Page 1 is fetched first; remaining pages go through a
// small worker pool. A failed page degrades to partial results, and a
// failed first page degrades to none: callers always get a record list,
// possibly empty.
func (c *Client) fetchPaged(ctx context.Context, ds dataset, base url.Values, limit int) []json.RawMessage {
	start := time.Now()

	pageSize := ds.pageSize
	if limit < pageSize {
		pageSize = limit
	}
	totalPages := (limit + ds.pageSize - 1) / ds.pageSize

	first, err := c.fetchRecords(ctx, ds, ds.pageParams(base, pageSize, 1))
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("dataset", ds.name).
			Msg("Upstream unavailable, returning empty result set")
		return nil
	}

	if totalPages == 1 || len(first) < pageSize {
		// The provider ran out of records before the budget did.
		return truncateRecords(first, limit)
	}

	results := make(map[int][]json.RawMessage, totalPages)
	results[1] = first
	var mu sync.Mutex

	pageQueue := make(chan int, totalPages)
	for page := 2; page <= totalPages; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	workers := c.config.MaxPageWorkers
	if workers > totalPages-1 {
		workers = totalPages - 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range pageQueue {
				select {
				case <-ctx.Done():
					return
				default:
				}

				records, err := c.fetchRecords(ctx, ds, ds.pageParams(base, ds.pageSize, page))
				if err != nil {
					c.logger.Warn().
						Err(err).
						Str("dataset", ds.name).
						Int("page", page).
						Msg("Page fetch failed, continuing with partial results")
					continue
				}

				mu.Lock()
				results[page] = records
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assembled := make([]json.RawMessage, 0, limit)
	for page := 1; page <= totalPages; page++ {
		records, ok := results[page]
		if !ok {
			continue
		}
		assembled = append(assembled, records...)
		if len(records) < ds.pageSize {
			// Short page means the provider is exhausted.
			break
		}
	}

	c.logger.Debug().
		Str("dataset", ds.name).
		Int("pages", totalPages).
		Int("records", len(assembled)).
		Dur("duration", time.Since(start)).
		Msg("Paged fetch complete")

	return truncateRecords(assembled, limit)
}

func truncateRecords(records []json.RawMessage, limit int) []json.RawMessage {
	if len(records) > limit {
		return records[:limit]
	}
	return records
}
