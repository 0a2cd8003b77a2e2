package domain

// ListFilter narrows and pages a use-case listing.
type ListFilter struct {
	Query   string
	PlantID string
	Page    int
	Limit   int
}

// Paging describes the slice of a listing that was returned.
type Paging struct {
	Count     int   `json:"count"`
	Page      int   `json:"page"`
	PageCount int   `json:"page_count"`
	Total     int64 `json:"total"`
}
