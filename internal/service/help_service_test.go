package service

import (
	"context"
	"testing"

	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelpService_Submit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	student := e.addUser(t, "student", model.RoleStudent, "Law")

	req, err := e.help.Submit(ctx, student, HelpRequestInput{
		QueryType: model.QueryTypeSessionBooking,
		Message:   "  My tutor never showed up  ",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, "student@up.ac.za", req.Email)
	assert.Equal(t, "student Test", req.Name)
	assert.Equal(t, "My tutor never showed up", req.Message)

	stored := e.store.HelpRequestsSnapshot()
	require.Len(t, stored, 1)
	assert.Equal(t, req.ID, stored[0].ID)

	tests := []struct {
		name string
		in   HelpRequestInput
	}{
		{name: "unknown query type", in: HelpRequestInput{QueryType: "Billing", Message: "?"}},
		{name: "blank message", in: HelpRequestInput{QueryType: model.QueryTypeOther, Message: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.help.Submit(ctx, student, tt.in)
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}

	_, err = e.help.Submit(ctx, identityOf("ghost", model.RoleStudent), HelpRequestInput{
		QueryType: model.QueryTypeOther,
		Message:   "hello",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}
