package models

import "time"

// Visit records a single student visit to the clinic. When medicine was
// dispensed, MedicineID and Quantity capture the stock movement.
type Visit struct {
	ID          string    `db:"id"`
	StudentName string    `db:"student_name"`
	VisitedAt   time.Time `db:"visited_at"`
	Reason      string    `db:"reason"`
	Treatment   string    `db:"treatment"`
	MedicineID  *string   `db:"medicine_id"`
	Quantity    int       `db:"quantity"`
	RecordedBy  string    `db:"recorded_by"`
	CreatedAt   time.Time `db:"created_at"`
}
