package domain

import "time"

// Totals aggregates archived events over a time range. Unlike ledger
// statistics it is not limited by the in-memory retention bound.
type Totals struct {
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	Count        int64     `json:"count"`
	SignIns      int64     `json:"signIns"`
	SignOuts     int64     `json:"signOuts"`
	UniquePeople int64     `json:"uniquePeople"`
}
