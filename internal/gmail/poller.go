// Package gmail turns unread support emails into tickets.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"support-orchestrator/internal/agent"
)

const (
	user         = "me"
	defaultBatch = 20
	unreadLabel  = "UNREAD"
)

type mailbox interface {
	List(ctx context.Context, query string, max int64) ([]string, error)
	Get(ctx context.Context, id string) (*gmailapi.Message, error)
	MarkRead(ctx context.Context, id string) error
}

// TicketProcessor is satisfied by *agent.Orchestrator.
type TicketProcessor interface {
	Process(ctx context.Context, in agent.Input) (agent.Result, error)
}

// NewService builds a Gmail client from an OAuth2 refresh token.
func NewService(ctx context.Context, clientID, clientSecret, refreshToken string) (*gmailapi.Service, error) {
	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       []string{gmailapi.GmailModifyScope},
		Endpoint:     google.Endpoint,
	}
	httpClient := conf.Client(ctx, &oauth2.Token{RefreshToken: refreshToken})
	svc, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

type apiMailbox struct{ svc *gmailapi.Service }

func (m apiMailbox) List(ctx context.Context, query string, max int64) ([]string, error) {
	resp, err := m.svc.Users.Messages.List(user).Q(query).MaxResults(max).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

func (m apiMailbox) Get(ctx context.Context, id string) (*gmailapi.Message, error) {
	return m.svc.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
}

func (m apiMailbox) MarkRead(ctx context.Context, id string) error {
	req := &gmailapi.ModifyMessageRequest{RemoveLabelIds: []string{unreadLabel}}
	_, err := m.svc.Users.Messages.Modify(user, id, req).Context(ctx).Do()
	return err
}

type InboxPoller struct {
	box   mailbox
	proc  TicketProcessor
	query string
	batch int64
}

func NewInboxPoller(svc *gmailapi.Service, proc TicketProcessor, query string) *InboxPoller {
	return &InboxPoller{box: apiMailbox{svc: svc}, proc: proc, query: query, batch: defaultBatch}
}

// Poll processes one batch of matching messages and returns how many became
// tickets. Messages that cannot be tickets are marked read; messages that
// fail processing stay unread for the next poll.
func (p *InboxPoller) Poll(ctx context.Context) (int, error) {
	ids, err := p.box.List(ctx, p.query, p.batch)
	if err != nil {
		return 0, fmt.Errorf("list messages: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	log.Printf("📧 %d support emails to process", len(ids))

	processed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		msg, err := p.box.Get(ctx, id)
		if err != nil {
			log.Printf("⚠️ fetch message %s: %v", id, err)
			continue
		}
		e := ParseMessage(msg)

		res, err := p.proc.Process(ctx, agent.Input{Message: e.Body, CustomerEmail: e.FromAddress, Subject: e.Subject})
		var verr *agent.ValidationError
		switch {
		case errors.As(err, &verr):
			log.Printf("⚠️ skipping message %s: %v", id, verr)
		case err != nil:
			log.Printf("❌ message %s not processed: %v", id, err)
			continue
		default:
			processed++
			log.Printf("✅ message %s became ticket %s", id, res.TicketID)
		}
		if err := p.box.MarkRead(ctx, id); err != nil {
			log.Printf("⚠️ mark %s read: %v", id, err)
		}
	}
	return processed, nil
}
