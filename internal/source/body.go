package source

import (
	"strings"

	"github.com/tidwall/gjson"
)

// sessionDelimiter separates the account part of metadata.user_id from
// the session id.
const sessionDelimiter = "session_"

// ExtractResponse reads model and usage from a single JSON response body.
// ok is false when the body is not JSON or carries no usage object.
func ExtractResponse(body []byte) (Result, bool) {
	res := Result{Model: UnknownModel}
	if !gjson.ValidBytes(body) {
		return res, false
	}

	doc := gjson.ParseBytes(body)
	u := doc.Get("usage")
	if !u.IsObject() {
		return res, false
	}

	if m := doc.Get("model"); m.Type == gjson.String && m.String() != "" {
		res.Model = m.String()
	}
	res.Usage = usageFrom(u)
	res.HasUsage = true
	res.Events = 1
	return res, true
}

// ExtractSessionID returns the session id carried in an outbound request
// body's metadata.user_id, or "" if there is none.
//
// The id is the text between the first "session_" delimiter and the next
// one (or the end of the value).
func ExtractSessionID(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	userID := gjson.GetBytes(body, "metadata.user_id")
	if userID.Type != gjson.String {
		return ""
	}
	parts := strings.Split(userID.String(), sessionDelimiter)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
