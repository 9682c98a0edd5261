package feedback_test

import (
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"hostflow/internal/feedback"
	hostflowsdk "hostflow/sdk/go"
)

func TestMessagePrefersStructuredCode(t *testing.T) {
	err := fmt.Errorf("join: %w", &hostflowsdk.APIError{StatusCode: 409, Code: "already_member", Message: "dup"})
	assert.Equal(t, "You are already a member of this group.", feedback.Message(err))
	assert.Equal(t, feedback.CodeAlreadyMember, feedback.Code(err))
}

func TestMessageFallsBackToPhraseWithoutCode(t *testing.T) {
	err := &hostflowsdk.APIError{StatusCode: 400, Body: `{"detail":"Owner cannot leave the community"}`}
	assert.Equal(t, feedback.CodeOwnerCannotLeave, feedback.Code(err))
	assert.Equal(t, "Group owners cannot leave their own group.", feedback.Message(err))
}

func TestCodeIgnoresPhraseWhenCodePresent(t *testing.T) {
	err := &hostflowsdk.APIError{StatusCode: 400, Code: "bad_request", Message: "already a member"}
	assert.Equal(t, "bad_request", feedback.Code(err))
	assert.Equal(t, "already a member", feedback.Message(err))
}

func TestMessageGenericForUnknownApplicationError(t *testing.T) {
	err := &hostflowsdk.APIError{StatusCode: 500, Body: "<html>oops</html>"}
	assert.Equal(t, "Something went wrong. Please try again.", feedback.Message(err))
}

func TestTransportErrorsAreVerbatim(t *testing.T) {
	err := &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}
	assert.True(t, feedback.IsTransport(err))
	assert.Equal(t, err.Error(), feedback.Message(err))
}

func TestValidationMessage(t *testing.T) {
	assert.Equal(t, "please fill all required fields in Basics", feedback.Message(feedback.ValidationError{Step: "Basics"}))
	assert.Empty(t, feedback.Message(nil))
}
