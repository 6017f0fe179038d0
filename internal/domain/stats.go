package domain

// ListingStats are the aggregate counters behind the stats endpoint.
type ListingStats struct {
	TotalRecords   int64 `json:"total_records"`
	LiveRecords    int64 `json:"live_records"`
	DistinctWorlds int64 `json:"distinct_worlds"`
}
