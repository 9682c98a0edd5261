// Package feedback turns workflow errors into the single message shown to the user.
package feedback

import (
	"errors"
	"net"
	"net/url"
	"strings"

	hostflowsdk "hostflow/sdk/go"
)

// Error codes the backend puts in its error envelope.
const (
	CodeAlreadyMember    = "already_member"
	CodeNotMember        = "not_member"
	CodeOwnerCannotLeave = "owner_cannot_leave"
	CodePayloadTooLarge  = "payload_too_large"
	CodeReadOnly         = "entity_read_only"
	CodeForbidden        = "forbidden"
	CodeUnauthorized     = "unauthorized"
	CodeNotFound         = "not_found"
	CodeValidation       = "validation_failed"
)

// ValidationError is raised client-side before any network call.
type ValidationError struct {
	Step string
}

func (e ValidationError) Error() string {
	if e.Step == "" {
		return "please fill all required fields"
	}
	return "please fill all required fields in " + e.Step
}

var byCode = map[string]string{
	CodeAlreadyMember:    "You are already a member of this group.",
	CodeNotMember:        "You are not a member of this group.",
	CodeOwnerCannotLeave: "Group owners cannot leave their own group.",
	CodePayloadTooLarge:  "The upload is too large. Try fewer or smaller images.",
	CodeReadOnly:         "This listing is approved and can no longer be edited.",
	CodeForbidden:        "You are not allowed to do that.",
	CodeUnauthorized:     "Please sign in again.",
	CodeNotFound:         "We could not find that item.",
}

// legacyPhrases map message fragments to codes for backends that answer
// without a structured code. Only consulted when Code is empty.
var legacyPhrases = []struct {
	phrase string
	code   string
}{
	{"already a member", CodeAlreadyMember},
	{"not a member", CodeNotMember},
	{"owner cannot leave", CodeOwnerCannotLeave},
	{"too large", CodePayloadTooLarge},
	{"read-only", CodeReadOnly},
}

// Code returns the structured application code of err, falling back to
// phrase matching on the message when the backend sent none.
func Code(err error) string {
	var ae *hostflowsdk.APIError
	if !errors.As(err, &ae) {
		return ""
	}
	if ae.Code != "" {
		return ae.Code
	}
	text := strings.ToLower(ae.Message + " " + ae.Body)
	for _, lp := range legacyPhrases {
		if strings.Contains(text, lp.phrase) {
			return lp.code
		}
	}
	return ""
}

// Message renders err for the inline error banner.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ve ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	if IsTransport(err) {
		return err.Error()
	}
	var ae *hostflowsdk.APIError
	if errors.As(err, &ae) {
		if msg, ok := byCode[Code(err)]; ok {
			return msg
		}
		if ae.Message != "" {
			return ae.Message
		}
		return "Something went wrong. Please try again."
	}
	return err.Error()
}

// IsTransport reports network-level failures.
func IsTransport(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
