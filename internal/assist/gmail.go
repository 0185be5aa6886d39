package assist

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

type Email struct {
	ID      string
	Subject string
	From    string
	Snippet string
	Body    string
}

// MailSource lists the mail the assistant reads.
type MailSource interface {
	FetchTodayUnread(ctx context.Context) ([]Email, error)
}

type GmailSource struct {
	srv *gmail.Service
	now func() time.Time
	max int64
}

// NewGmailSource authenticates with a service account key. subject is the
// mailbox impersonated through domain-wide delegation.
func NewGmailSource(ctx context.Context, credentialsFile, subject string) (*GmailSource, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	conf, err := google.JWTConfigFromJSON(data, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	conf.Subject = subject

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Gmail client: %w", err)
	}
	return &GmailSource{srv: srv, now: time.Now, max: 20}, nil
}

func (s *GmailSource) query() string {
	day := s.now()
	return fmt.Sprintf("is:unread after:%s", day.Format("2006/01/02"))
}

func (s *GmailSource) FetchTodayUnread(ctx context.Context) ([]Email, error) {
	const user = "me"
	r, err := s.srv.Users.Messages.List(user).Q(s.query()).MaxResults(s.max).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve messages: %w", err)
	}

	out := make([]Email, 0, len(r.Messages))
	for _, m := range r.Messages {
		msg, err := s.srv.Users.Messages.Get(user, m.Id).Format("full").Context(ctx).Do()
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable message",
				slog.String("message_id", m.Id),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, toEmail(msg))
	}
	return out, nil
}

func toEmail(msg *gmail.Message) Email {
	e := Email{ID: msg.Id, Snippet: msg.Snippet}
	if msg.Payload == nil {
		return e
	}
	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			e.Subject = h.Value
		case "from":
			e.From = h.Value
		}
	}
	e.Body = plainText(msg.Payload)
	if e.Body == "" {
		e.Body = e.Snippet
	}
	return e
}

// plainText returns the first text/plain body in the part tree.
func plainText(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if strings.HasPrefix(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	for _, child := range part.Parts {
		if text := plainText(child); text != "" {
			return text
		}
	}
	if part.MimeType == "" && part.Body != nil && part.Body.Data != "" {
		return decodeBody(part.Body.Data)
	}
	return ""
}

func decodeBody(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}
