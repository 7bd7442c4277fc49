package mailbox

import (
	"strings"
	"testing"

	"mailagent/core/port/out"
)

func TestReplySubject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"咨询", "Re: 咨询"},
		{"Re: 咨询", "Re: 咨询"},
		{"RE: hello", "RE: hello"},
		{"", "Re: "},
	}
	for _, tt := range tests {
		if got := replySubject(tt.in); got != tt.want {
			t.Errorf("replySubject(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildReplyMessage(t *testing.T) {
	msg, err := buildReplyMessage("support@example.com", out.OutgoingReply{
		To:         "customer@example.com",
		Subject:    "产品咨询",
		Body:       "您好，感谢来信。",
		InReplyTo:  "<orig@id>",
		References: "<orig@id>",
	})
	if err != nil {
		t.Fatal(err)
	}
	text := string(msg)

	for _, want := range []string{
		"From: <support@example.com>",
		"To: <customer@example.com>",
		"In-Reply-To: <orig@id>",
		"References: <orig@id>",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("message missing %q:\n%s", want, text)
		}
	}
	if !strings.Contains(text, "Subject:") {
		t.Error("message missing subject header")
	}
}

func TestStripHTML(t *testing.T) {
	in := `<html><head><style>p{color:red}</style></head><body><p>你好&nbsp;世界</p><script>evil()</script></body></html>`
	got := stripHTML(in)
	if strings.Contains(got, "<") || strings.Contains(got, "evil") || strings.Contains(got, "color") {
		t.Errorf("markup left in output: %q", got)
	}
	if !strings.Contains(got, "你好") || !strings.Contains(got, "世界") {
		t.Errorf("text lost: %q", got)
	}
}
