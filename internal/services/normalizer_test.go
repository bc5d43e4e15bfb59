package services

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Truncation must clamp every field to its limit and keep valid UTF-8
func TestProperty_TruncationBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("all_fields_within_limits_after_truncate", prop.ForAll(
		func(subject, fromName, fromAddr, to, text, html string) bool {
			msg := FetchedMessage{
				Subject:     subject,
				FromName:    fromName,
				FromAddress: fromAddr,
				ToAddresses: to,
				BodyText:    text,
				BodyHTML:    html,
			}
			msg.Truncate()

			return len(msg.Subject) <= maxSubjectLen &&
				len(msg.FromName) <= maxFromNameLen &&
				len(msg.FromAddress) <= maxFromAddressLen &&
				len(msg.ToAddresses) <= maxToAddressesLen &&
				len(msg.BodyText) <= maxBodyTextLen &&
				len(msg.BodyHTML) <= maxBodyHTMLLen
		},
		gen.AnyString(), gen.AnyString(), gen.AnyString(),
		gen.AnyString(), gen.AnyString(), gen.AnyString(),
	))

	properties.Property("truncate_preserves_utf8_validity", prop.ForAll(
		func(s string) bool {
			msg := FetchedMessage{Subject: s}
			msg.Truncate()
			return utf8.ValidString(msg.Subject)
		},
		gen.AnyString(),
	))

	properties.Property("truncate_is_noop_for_short_fields", prop.ForAll(
		func(s string) bool {
			if len(s) > maxSubjectLen {
				return true
			}
			msg := FetchedMessage{Subject: s}
			msg.Truncate()
			return msg.Subject == s
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestDedupKey(t *testing.T) {
	tests := []struct {
		name      string
		messageID string
		uid       string
		accountID uint
		want      string
	}{
		{"message id wins", "abc@example.com", "42", 7, "abc@example.com"},
		{"synthetic key without message id", "", "42", 7, "7-42"},
		{"synthetic key is account scoped", "", "42", 8, "8-42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := FetchedMessage{MessageID: tt.messageID, UID: tt.uid}
			if got := msg.DedupKey(tt.accountID); got != tt.want {
				t.Errorf("DedupKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRawMessage_Simple(t *testing.T) {
	raw := []byte("From: Alice Example <alice@example.com>\r\n" +
		"To: bob@example.com, carol@example.com\r\n" +
		"Subject: Hello\r\n" +
		"Message-Id: <msg-1@example.com>\r\n" +
		"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Plain body here.\r\n")

	msg, err := ParseRawMessage(raw, "101")
	if err != nil {
		t.Fatalf("ParseRawMessage() error: %v", err)
	}

	if msg.UID != "101" {
		t.Errorf("UID = %q, want 101", msg.UID)
	}
	if msg.MessageID != "msg-1@example.com" {
		t.Errorf("MessageID = %q, want msg-1@example.com", msg.MessageID)
	}
	if msg.Subject != "Hello" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if msg.FromName != "Alice Example" || msg.FromAddress != "alice@example.com" {
		t.Errorf("From = %q <%q>", msg.FromName, msg.FromAddress)
	}
	if msg.ToAddresses != "bob@example.com, carol@example.com" {
		t.Errorf("ToAddresses = %q", msg.ToAddresses)
	}
	if !strings.Contains(msg.BodyText, "Plain body here.") {
		t.Errorf("BodyText = %q", msg.BodyText)
	}
	if msg.BodyHTML != "" {
		t.Errorf("BodyHTML = %q, want empty", msg.BodyHTML)
	}
	if msg.ReceivedAt.IsZero() {
		t.Error("ReceivedAt is zero")
	}
}

func TestParseRawMessage_MultipartAlternative(t *testing.T) {
	raw := []byte("From: alice@example.com\r\n" +
		"Subject: Multipart\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=\"BOUNDARY\"\r\n" +
		"\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"plain part\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>html part</p>\r\n" +
		"--BOUNDARY--\r\n")

	msg, err := ParseRawMessage(raw, "1")
	if err != nil {
		t.Fatalf("ParseRawMessage() error: %v", err)
	}
	if !strings.Contains(msg.BodyText, "plain part") {
		t.Errorf("BodyText = %q, want plain part", msg.BodyText)
	}
	if !strings.Contains(msg.BodyHTML, "<p>html part</p>") {
		t.Errorf("BodyHTML = %q, want html part", msg.BodyHTML)
	}
}

func TestParseRawMessage_AttachmentSkipped(t *testing.T) {
	raw := []byte("From: alice@example.com\r\n" +
		"Subject: With attachment\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=\"BOUNDARY\"\r\n" +
		"\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"the body\r\n" +
		"--BOUNDARY\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Disposition: attachment; filename=\"notes.txt\"\r\n" +
		"\r\n" +
		"attachment content\r\n" +
		"--BOUNDARY--\r\n")

	msg, err := ParseRawMessage(raw, "1")
	if err != nil {
		t.Fatalf("ParseRawMessage() error: %v", err)
	}
	if strings.Contains(msg.BodyText, "attachment content") {
		t.Errorf("BodyText includes attachment content: %q", msg.BodyText)
	}
	if !strings.Contains(msg.BodyText, "the body") {
		t.Errorf("BodyText = %q, want the body", msg.BodyText)
	}
}

func TestParseRawMessage_EncodedSubject(t *testing.T) {
	// RFC 2047 encoded-word, UTF-8 base64 for "日本語"
	raw := []byte("From: alice@example.com\r\n" +
		"Subject: =?UTF-8?B?5pel5pys6Kqe?=\r\n" +
		"\r\n" +
		"body\r\n")

	msg, err := ParseRawMessage(raw, "1")
	if err != nil {
		t.Fatalf("ParseRawMessage() error: %v", err)
	}
	if msg.Subject != "日本語" {
		t.Errorf("Subject = %q, want 日本語", msg.Subject)
	}
}

func TestParseRawMessage_LongSubjectTruncated(t *testing.T) {
	subject := strings.Repeat("x", 1000)
	raw := []byte(fmt.Sprintf("From: a@b.c\r\nSubject: %s\r\n\r\nbody\r\n", subject))

	msg, err := ParseRawMessage(raw, "1")
	if err != nil {
		t.Fatalf("ParseRawMessage() error: %v", err)
	}
	if len(msg.Subject) != maxSubjectLen {
		t.Errorf("len(Subject) = %d, want %d", len(msg.Subject), maxSubjectLen)
	}
}
