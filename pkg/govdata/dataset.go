package govdata

import (
	"net/url"
	"strconv"
	"time"
)

// Dataset source names, used for cache namespacing and rate budgets.
const (
	SourceTransactions = "transactions"
	SourceDiagnostics  = "diagnostics"
)

// dataset describes one upstream provider: where to fetch, how records are
// enveloped, how long responses stay fresh, and how paging parameters are
// spelled.
type dataset struct {
	name          string
	baseURL       string
	envelopeField string
	ttl           time.Duration
	pageSize      int

	// pageParams clones the filter parameters and adds provider-specific
	// paging for the given 1-based page.
	pageParams func(base url.Values, pageSize, page int) url.Values
}

// dvfPageParams pages the DVF catalog API with limit/offset.
func dvfPageParams(base url.Values, pageSize, page int) url.Values {
	params := cloneValues(base)
	params.Set("limit", strconv.Itoa(pageSize))
	if page > 1 {
		params.Set("offset", strconv.Itoa((page-1)*pageSize))
	}
	return params
}

// ademePageParams pages the ADEME data-fair API with size/page.
func ademePageParams(base url.Values, pageSize, page int) url.Values {
	params := cloneValues(base)
	params.Set("size", strconv.Itoa(pageSize))
	if page > 1 {
		params.Set("page", strconv.Itoa(page))
	}
	return params
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for key, values := range v {
		copied := make([]string, len(values))
		copy(copied, values)
		out[key] = copied
	}
	return out
}
