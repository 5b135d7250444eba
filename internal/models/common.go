package models

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// PendingRegistrationFilter captures search parameters for the admin roster.
type PendingRegistrationFilter struct {
	Search    string
	Course    string
	YearLevel string
	Page      int
	PageSize  int
}
