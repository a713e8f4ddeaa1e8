package domain

import "time"

type Order struct {
	ID        string    `json:"id"`
	RecordID  string    `json:"recordId"`
	UserID    string    `json:"userId"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MostOrderedRecord is one row of the ranking of records by total quantity ordered.
type MostOrderedRecord struct {
	RecordID     string `json:"recordId"`
	Artist       string `json:"artist"`
	Album        string `json:"album"`
	TotalOrdered int    `json:"totalOrdered"`
}
