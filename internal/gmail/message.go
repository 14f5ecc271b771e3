package gmail

import (
	"encoding/base64"
	"net/mail"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
)

// Email is the part of a Gmail message a ticket is built from.
type Email struct {
	ID          string
	From        string
	FromAddress string
	Subject     string
	Body        string
	Date        time.Time
}

// ParseMessage extracts headers and the plain-text body. The snippet is used
// when the message has no text/plain part.
func ParseMessage(msg *gmailapi.Message) Email {
	e := Email{ID: msg.Id}
	if msg.InternalDate > 0 {
		e.Date = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "subject":
				e.Subject = strings.TrimSpace(h.Value)
			case "from":
				e.From = h.Value
			}
		}
		e.Body = strings.TrimSpace(extractBody(msg.Payload))
	}
	if e.Body == "" {
		e.Body = strings.TrimSpace(msg.Snippet)
	}
	if addr, err := mail.ParseAddress(e.From); err == nil {
		e.FromAddress = addr.Address
	}
	return e
}

func extractBody(part *gmailapi.MessagePart) string {
	if part.Body != nil && part.Body.Data != "" && (part.MimeType == "" || strings.HasPrefix(part.MimeType, "text/plain")) {
		if text, ok := decode(part.Body.Data); ok {
			return text
		}
	}
	for _, p := range part.Parts {
		if body := extractBody(p); body != "" {
			return body
		}
	}
	return ""
}

// decode accepts padded and unpadded URL-safe base64.
func decode(data string) (string, bool) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b), true
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b), true
	}
	return "", false
}
