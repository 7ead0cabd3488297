package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePairKey(t *testing.T) {
	key := PairKey{TutorID: "T1", StudentID: "S1"}
	assert.Equal(t, "T1_S1", key.String())

	parsed, err := ParsePairKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	for _, bad := range []string{"", "T1", "_S1", "T1_"} {
		_, err := ParsePairKey(bad)
		assert.Error(t, err, bad)
	}

	assert.True(t, key.Has("S1"))
	assert.False(t, key.Has("S2"))
	assert.Equal(t, "S1", key.Other("T1"))
	assert.Equal(t, "T1", key.Other("S1"))
}

func TestSession_Expiry(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		status  SessionStatus
		date    time.Time
		expired bool
		over    bool
	}{
		{name: "pending future", status: SessionStatusPending, date: now.Add(time.Hour)},
		{name: "pending past", status: SessionStatusPending, date: now.Add(-time.Hour), expired: true, over: true},
		{name: "accepted past", status: SessionStatusAccepted, date: now.Add(-time.Hour), over: true},
		{name: "paid past", status: SessionStatusPaid, date: now.Add(-time.Hour), over: true},
		{name: "pending exactly now", status: SessionStatusPending, date: now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{Status: tt.status, SessionDate: tt.date}
			assert.Equal(t, tt.expired, s.IsExpired(now))
			assert.Equal(t, tt.over, s.IsOver(now))
		})
	}
}

func TestSession_Parties(t *testing.T) {
	rating := 4
	s := &Session{ID: "s", TutorID: "T1", StudentID: "S1", TutorRating: &rating}

	party, ok := s.PartyOf("S1")
	require.True(t, ok)
	assert.Equal(t, PartyStudent, party)
	assert.Nil(t, s.RatingBy(party))
	assert.Equal(t, "T1", s.Counterpart(party))

	party, ok = s.PartyOf("T1")
	require.True(t, ok)
	assert.Equal(t, PartyTutor, party)
	assert.Equal(t, &rating, s.RatingBy(party))
	assert.Equal(t, "S1", s.Counterpart(party))

	_, ok = s.PartyOf("X")
	assert.False(t, ok)

	chat := NewChatFromSession(s)
	assert.Equal(t, "T1_S1", chat.ID)
	assert.Equal(t, "s", chat.SessionID)
}

func TestTimeSlots(t *testing.T) {
	assert.Len(t, TimeSlots, 12)
	assert.Equal(t, "8:00 AM - 9:00 AM", TimeSlots[0])
	assert.Equal(t, "7:00 PM - 8:00 PM", TimeSlots[len(TimeSlots)-1])
	assert.True(t, IsTimeSlot("12:00 PM - 1:00 PM"))
	assert.False(t, IsTimeSlot("12:00 AM - 1:00 AM"))

	for _, slot := range TimeSlots {
		start, end, ok := SlotRange(slot)
		require.True(t, ok, slot)
		assert.Equal(t, time.Hour, end-start, slot)
	}
	start, _, _ := SlotRange("12:00 PM - 1:00 PM")
	assert.Equal(t, 12*time.Hour, start)
	_, _, ok := SlotRange("noon")
	assert.False(t, ok)

	assert.True(t, PaymentMethodCash.Valid())
	assert.False(t, PaymentMethod("card").Valid())
	assert.True(t, IsQueryType(QueryTypeAppIssue))
	assert.False(t, IsQueryType("Billing"))
}
