package wsproto

import (
	"testing"
)

func TestDecodeClientMessage_Hello(t *testing.T) {
	raw := []byte(`{
		"type":"hello",
		"protocol_version":"1",
		"client":{"name":"frontdesk-web","version":"0.3.0"}
	}`)

	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	hello, ok := msg.(ClientHello)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientHello", msg)
	}
	if hello.ProtocolVersion != "1" {
		t.Fatalf("protocol_version=%q", hello.ProtocolVersion)
	}
	if hello.Client.Name != "frontdesk-web" {
		t.Fatalf("client.name=%q", hello.Client.Name)
	}
}

func TestDecodeClientMessage_Utterance(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"utterance","text":"Did anyone call today?"}`))
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	u, ok := msg.(ClientUtterance)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientUtterance", msg)
	}
	if u.Text != "Did anyone call today?" {
		t.Fatalf("text=%q", u.Text)
	}
}

func TestDecodeClientMessage_Close(t *testing.T) {
	msg, err := DecodeClientMessage([]byte(`{"type":"close","reason":"user_left"}`))
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	if _, ok := msg.(ClientClose); !ok {
		t.Fatalf("decoded type = %T, want ClientClose", msg)
	}
}

func TestDecodeClientMessage_Rejections(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		wantCode string
	}{
		{"not json", `{{{`, "bad_request"},
		{"missing type", `{"text":"hi"}`, "bad_request"},
		{"unknown type", `{"type":"audio_frame"}`, "bad_request"},
		{"empty utterance", `{"type":"utterance","text":"  "}`, "bad_request"},
		{"hello without version", `{"type":"hello"}`, "bad_request"},
		{"hello wrong version", `{"type":"hello","protocol_version":"9"}`, "unsupported"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeClientMessage([]byte(tc.raw))
			if err == nil {
				t.Fatal("expected error")
			}
			decErr, ok := err.(*DecodeError)
			if !ok {
				t.Fatalf("err type = %T", err)
			}
			if decErr.Code != tc.wantCode {
				t.Fatalf("code=%q, want %q", decErr.Code, tc.wantCode)
			}
		})
	}
}

func TestDecodeError_IncludesParam(t *testing.T) {
	err := badRequest("utterance.text is required", "text")
	if got := err.Error(); got != "utterance.text is required (text)" {
		t.Fatalf("Error() = %q", got)
	}
	bare := badRequest("invalid json frame", "")
	if got := bare.Error(); got != "invalid json frame" {
		t.Fatalf("Error() = %q", got)
	}
}
