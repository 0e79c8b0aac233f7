package entity

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Field: "body", Message: "is required"}
	assert.Equal(t, "body is required", err.Error())
	assert.True(t, errors.Is(err, ErrValidationFailed))
}

func TestValidate_CommentInput(t *testing.T) {
	tests := []struct {
		name      string
		input     CommentInput
		wantField string
	}{
		{name: "valid", input: CommentInput{PostID: "p1", Body: "hello"}},
		{name: "missing body", input: CommentInput{PostID: "p1"}, wantField: "body"},
		{name: "missing post", input: CommentInput{Body: "hello"}, wantField: "postid"},
		{name: "body too long", input: CommentInput{PostID: "p1", Body: strings.Repeat("a", 2001)}, wantField: "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.input)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestValidate_NotificationInputType(t *testing.T) {
	err := Validate(NotificationInput{RecipientID: "u1", Title: "t", Type: "unknown"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type", verr.Field)
	assert.Contains(t, verr.Message, "must be one of")

	assert.NoError(t, Validate(NotificationInput{RecipientID: "u1", Title: "t", Type: NotificationTypeComment}))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ApplicationStatus
		want     bool
	}{
		{ApplicationPending, ApplicationReviewing, true},
		{ApplicationPending, ApplicationAccepted, false},
		{ApplicationInterview, ApplicationAccepted, true},
		{ApplicationReviewing, ApplicationWithdrawn, true},
		{ApplicationAccepted, ApplicationRejected, false},
		{ApplicationWithdrawn, ApplicationPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestApplicationStatus_IsFinal(t *testing.T) {
	assert.True(t, ApplicationAccepted.IsFinal())
	assert.True(t, ApplicationRejected.IsFinal())
	assert.True(t, ApplicationWithdrawn.IsFinal())
	assert.False(t, ApplicationPending.IsFinal())
}

func TestInteractionKey_String(t *testing.T) {
	key := InteractionKey{EntityID: "P1", Operation: OperationLike}
	assert.Equal(t, "like:P1", key.String())
}
