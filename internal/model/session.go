package model

import (
	"strings"
	"time"
)

type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"  // ждёт ответа тутора
	SessionStatusAccepted SessionStatus = "accepted" // принята тутором
	SessionStatusPaid     SessionStatus = "paid"     // оплата подтверждена тутором
)

// Party identifies which side of a session acts.
type Party string

const (
	PartyStudent Party = "student"
	PartyTutor   Party = "tutor"
)

type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodZapper PaymentMethod = "zapper"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCash || m == PaymentMethodZapper
}

// TimeSlots are the bookable one-hour slot labels.
var TimeSlots = []string{
	"8:00 AM - 9:00 AM",
	"9:00 AM - 10:00 AM",
	"10:00 AM - 11:00 AM",
	"11:00 AM - 12:00 PM",
	"12:00 PM - 1:00 PM",
	"1:00 PM - 2:00 PM",
	"2:00 PM - 3:00 PM",
	"3:00 PM - 4:00 PM",
	"4:00 PM - 5:00 PM",
	"5:00 PM - 6:00 PM",
	"6:00 PM - 7:00 PM",
	"7:00 PM - 8:00 PM",
}

// IsTimeSlot reports whether label is one of TimeSlots.
func IsTimeSlot(label string) bool {
	for _, slot := range TimeSlots {
		if slot == label {
			return true
		}
	}
	return false
}

// SlotRange returns the start and end of a slot label as offsets from midnight.
func SlotRange(label string) (start, end time.Duration, ok bool) {
	from, to, found := strings.Cut(label, " - ")
	if !found {
		return 0, 0, false
	}
	a, err := time.Parse("3:04 PM", from)
	if err != nil {
		return 0, 0, false
	}
	b, err := time.Parse("3:04 PM", to)
	if err != nil {
		return 0, 0, false
	}
	start = time.Duration(a.Hour())*time.Hour + time.Duration(a.Minute())*time.Minute
	end = time.Duration(b.Hour())*time.Hour + time.Duration(b.Minute())*time.Minute
	return start, end, end > start
}

type Session struct {
	ID                string         `json:"id"`
	TutorID           string         `json:"tutor_id"`
	StudentID         string         `json:"student_id"`
	Module            string         `json:"module"`
	SessionDate       time.Time      `json:"session_date"`
	TimeSlot          string         `json:"time_slot"`
	AdditionalDetails string         `json:"additional_details"`
	Status            SessionStatus  `json:"status"`
	StudentRating     *int           `json:"student_rating,omitempty"` // оценка, выставленная студентом тутору
	TutorRating       *int           `json:"tutor_rating,omitempty"`   // оценка, выставленная тутором студенту
	PaymentMethod     *PaymentMethod `json:"payment_method,omitempty"`
	PaidAt            *time.Time     `json:"paid_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// IsOver reports whether the session date has passed at now.
func (s *Session) IsOver(now time.Time) bool {
	return s.SessionDate.Before(now)
}

// IsExpired reports whether a pending session can no longer be acted upon.
func (s *Session) IsExpired(now time.Time) bool {
	return s.Status == SessionStatusPending && s.IsOver(now)
}

// PartyOf returns which side userID takes in the session.
func (s *Session) PartyOf(userID string) (Party, bool) {
	switch userID {
	case s.StudentID:
		return PartyStudent, true
	case s.TutorID:
		return PartyTutor, true
	}
	return "", false
}

// RatingBy returns the rating already given by party, nil if unset.
func (s *Session) RatingBy(party Party) *int {
	if party == PartyStudent {
		return s.StudentRating
	}
	return s.TutorRating
}

// Counterpart returns the id of the user rated by party.
func (s *Session) Counterpart(party Party) string {
	if party == PartyStudent {
		return s.TutorID
	}
	return s.StudentID
}

// PairKey returns the conversation key shared by the session's participants.
func (s *Session) PairKey() PairKey {
	return PairKey{TutorID: s.TutorID, StudentID: s.StudentID}
}
