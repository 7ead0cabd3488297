package model

import "time"

// Query types accepted by the support form.
const (
	QueryTypeIncident       = "Incident with another user"
	QueryTypeAppIssue       = "App Issue"
	QueryTypeSessionBooking = "Session Booking Issue"
	QueryTypeOther          = "Other"
)

// IsQueryType reports whether t is a supported query type.
func IsQueryType(t string) bool {
	switch t {
	case QueryTypeIncident, QueryTypeAppIssue, QueryTypeSessionBooking, QueryTypeOther:
		return true
	}
	return false
}

// HelpRequest is a write-once support query.
type HelpRequest struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	StudentNum string    `json:"student_num"`
	QueryType  string    `json:"query_type"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}
