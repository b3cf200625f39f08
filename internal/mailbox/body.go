package mailbox

import (
	"net/mail"
	"strings"
	"time"

	"github.com/jaytaylor/html2text"
)

// ExtractBody returns the first text/plain part found depth-first,
// or the text of the first text/html part when no plain part exists.
func ExtractBody(p *Part) string {
	if p == nil {
		return ""
	}
	if plain := findPart(p, "text/plain"); plain != nil {
		return strings.TrimSpace(string(plain.Body))
	}
	if html := findPart(p, "text/html"); html != nil {
		return HTMLToText(string(html.Body))
	}
	return ""
}

func findPart(p *Part, mimeType string) *Part {
	if p.Attachment || p.Filename != "" {
		return nil
	}
	if len(p.Parts) == 0 {
		if strings.EqualFold(baseMimeType(p.MimeType), mimeType) {
			return p
		}
		return nil
	}
	for _, child := range p.Parts {
		if found := findPart(child, mimeType); found != nil {
			return found
		}
	}
	return nil
}

func baseMimeType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

// HTMLToText strips markup. Unparseable input falls back to the raw string.
func HTMLToText(html string) string {
	text, err := html2text.FromString(html, html2text.Options{OmitLinks: true})
	if err != nil {
		return strings.TrimSpace(html)
	}
	return strings.TrimSpace(text)
}

// ParseDate parses an RFC 5322 Date header; the zero time means unknown.
func ParseDate(header string) time.Time {
	if header == "" {
		return time.Time{}
	}
	t, err := mail.ParseDate(strings.TrimSpace(header))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
