package source

import "testing"

func TestExtractResponse(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantOK    bool
		wantModel string
		wantIn    int64
		wantOut   int64
	}{
		{
			name:      "message body",
			body:      `{"id":"msg_1","type":"message","model":"claude-sonnet-4","usage":{"input_tokens":1000,"output_tokens":500}}`,
			wantOK:    true,
			wantModel: "claude-sonnet-4",
			wantIn:    1000,
			wantOut:   500,
		},
		{
			name:      "usage without model",
			body:      `{"usage":{"input_tokens":1}}`,
			wantOK:    true,
			wantModel: UnknownModel,
			wantIn:    1,
		},
		{name: "no usage", body: `{"model":"claude-opus-4"}`, wantModel: UnknownModel},
		{name: "usage not an object", body: `{"usage":5}`, wantModel: UnknownModel},
		{name: "error body", body: `{"type":"error","error":{"type":"overloaded_error"}}`, wantModel: UnknownModel},
		{name: "not json", body: `<html>bad gateway</html>`, wantModel: UnknownModel},
		{name: "empty", body: ``, wantModel: UnknownModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractResponse([]byte(tt.body))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got.Model != tt.wantModel {
				t.Errorf("Model = %q, want %q", got.Model, tt.wantModel)
			}
			if got.Usage.InputTokens != tt.wantIn || got.Usage.OutputTokens != tt.wantOut {
				t.Errorf("Usage = %+v", got.Usage)
			}
		})
	}
}

func TestExtractSessionID(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "standard user id",
			body: `{"model":"x","metadata":{"user_id":"user_abc_account_123_session_9f1c-44aa"}}`,
			want: "9f1c-44aa",
		},
		{
			name: "second delimiter ends the id",
			body: `{"metadata":{"user_id":"user_session_first_session_second"}}`,
			want: "first_",
		},
		{name: "no delimiter", body: `{"metadata":{"user_id":"user_abc"}}`, want: ""},
		{name: "no metadata", body: `{"messages":[]}`, want: ""},
		{name: "user id not a string", body: `{"metadata":{"user_id":42}}`, want: ""},
		{name: "malformed", body: `{"metadata":`, want: ""},
		{name: "empty", body: ``, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractSessionID([]byte(tt.body)); got != tt.want {
				t.Fatalf("ExtractSessionID = %q, want %q", got, tt.want)
			}
		})
	}
}
