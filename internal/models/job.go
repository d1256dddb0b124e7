package models

import "github.com/google/uuid"

// Job is the read-only slice of the jobs table this service needs.
type Job struct {
	ID         uuid.UUID `json:"id"`
	CompanyID  uuid.UUID `json:"company_id"`
	Title      string    `json:"title"`
	HourlyRate *int64    `json:"hourly_rate,omitempty"`
}
