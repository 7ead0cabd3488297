package model

import (
	"fmt"
	"strings"
	"time"
)

// PairKey names the single conversation between a tutor and a student.
type PairKey struct {
	TutorID   string
	StudentID string
}

// String renders the key as "<tutorID>_<studentID>".
func (k PairKey) String() string {
	return k.TutorID + "_" + k.StudentID
}

// Has reports whether userID is one of the pair.
func (k PairKey) Has(userID string) bool {
	return userID == k.TutorID || userID == k.StudentID
}

// Other returns the participant that is not userID.
func (k PairKey) Other(userID string) string {
	if userID == k.TutorID {
		return k.StudentID
	}
	return k.TutorID
}

// ParsePairKey parses the String form back into a key.
func ParsePairKey(s string) (PairKey, error) {
	tutorID, studentID, ok := strings.Cut(s, "_")
	if !ok || tutorID == "" || studentID == "" {
		return PairKey{}, fmt.Errorf("invalid pair key %q", s)
	}
	return PairKey{TutorID: tutorID, StudentID: studentID}, nil
}

// Chat is the conversation document of a tutor/student pair.
type Chat struct {
	Key               PairKey   `json:"-"`
	ID                string    `json:"id"`
	TutorID           string    `json:"tutor_id"`
	StudentID         string    `json:"student_id"`
	SessionID         string    `json:"session_id"` // session that opened the conversation
	Module            string    `json:"module"`
	TimeSlot          string    `json:"time_slot"`
	AdditionalDetails string    `json:"additional_details"`
	Messages          []Message `json:"messages"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewChatFromSession builds the seed document for the session's pair.
func NewChatFromSession(s *Session) *Chat {
	key := s.PairKey()
	return &Chat{
		Key:               key,
		ID:                key.String(),
		TutorID:           s.TutorID,
		StudentID:         s.StudentID,
		SessionID:         s.ID,
		Module:            s.Module,
		TimeSlot:          s.TimeSlot,
		AdditionalDetails: s.AdditionalDetails,
	}
}

type Message struct {
	Text       string    `json:"text"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	CreatedAt  time.Time `json:"created_at"` // часы отправителя
}
