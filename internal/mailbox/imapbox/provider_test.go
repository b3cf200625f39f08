package imapbox

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/google/go-cmp/cmp"

	"jobtracker/internal/mailbox"
)

const rawReply = "From: Acme Recruiting <jobs@acme.com>\r\n" +
	"To: me@example.com\r\n" +
	"Subject: Re: Your application to Acme\r\n" +
	"Date: Tue, 14 Nov 2023 22:13:20 +0000\r\n" +
	"Message-Id: <reply-2@acme.com>\r\n" +
	"In-Reply-To: <reply-1@acme.com>\r\n" +
	"References: <root@acme.com> <reply-1@acme.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"b1\"\r\n" +
	"\r\n" +
	"--b1\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"We would like to schedule an interview.\r\n" +
	"--b1\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>We would like to schedule an interview.</p>\r\n" +
	"--b1--\r\n"

func TestParseRaw(t *testing.T) {
	m, err := ParseRaw([]byte(rawReply))
	if err != nil {
		t.Fatalf("ParseRaw() error = %v", err)
	}
	if m.ThreadID != "<root@acme.com>" {
		t.Errorf("ThreadID = %q, want root reference", m.ThreadID)
	}
	if m.Subject != "Re: Your application to Acme" {
		t.Errorf("Subject = %q", m.Subject)
	}
	if mailbox.FromAddress(m.From) != "jobs@acme.com" {
		t.Errorf("From = %q", m.From)
	}
	if m.Date.Unix() != 1700000000 {
		t.Errorf("Date = %v", m.Date)
	}
	if got := mailbox.ExtractBody(m.Payload); !strings.Contains(got, "schedule an interview") {
		t.Errorf("body = %q", got)
	}
}

func TestThreadKey(t *testing.T) {
	tests := []struct {
		name                                   string
		references, inReplyTo, messageID, subj string
		want                                   string
	}{
		{"references", "<a> <b>", "<b>", "<c>", "Re: x", "<a>"},
		{"in-reply-to", "", "<b>", "<c>", "Re: x", "<b>"},
		{"root message", "", "", "<c>", "x", "<c>"},
		{"subject fallback", "", "", "", "RE: Fwd: Offer Letter", "offer letter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ThreadKey(tt.references, tt.inReplyTo, tt.messageID, tt.subj); got != tt.want {
				t.Errorf("ThreadKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseAfter(t *testing.T) {
	got, ok := ParseAfter(`(subject:"applied") after:1700000000`)
	if !ok || !got.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("ParseAfter() = %v, %v", got, ok)
	}
	if _, ok := ParseAfter(`subject:"applied"`); ok {
		t.Error("ParseAfter() without bound should report false")
	}
}

func TestPaginate(t *testing.T) {
	uids := []imap.UID{9, 8, 7, 6, 5}

	first := paginate(uids, 0, 2)
	if diff := cmp.Diff(mailbox.Page{IDs: []string{"9", "8"}, NextPageToken: "2"}, first); diff != "" {
		t.Errorf("first page mismatch (-want +got):\n%s", diff)
	}
	last := paginate(uids, 4, 2)
	if diff := cmp.Diff(mailbox.Page{IDs: []string{"5"}}, last); diff != "" {
		t.Errorf("last page mismatch (-want +got):\n%s", diff)
	}
}
