// Package gmail adapts the Gmail REST API to the mailclient.Client
// interface, built the way the teacher's GmailAPIFetcher/EmailForwarder did
// it: oauth2.Config + a per-call token source, google.golang.org/api/gmail/v1
// for transport.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/googleapi"

	"warmup-engine/internal/errs"
	"warmup-engine/internal/mailclient"
	"warmup-engine/internal/models"
)

// Client is a mailclient.Client backed by the Gmail API. It is stateless
// across mailboxes: every call builds its own service from the Credentials
// passed in, since different senders carry different tokens.
type Client struct {
	oauthConfig oauth2.Config
}

// New builds a Gmail adapter using the OAuth app registration shared by all
// mailboxes of this provider (their individual refresh tokens come from
// each Mailbox's stored Credentials).
func New(clientID, clientSecret string) *Client {
	return &Client{
		oauthConfig: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				gmailapi.GmailSendScope,
				gmailapi.GmailModifyScope,
				gmailapi.GmailReadonlyScope,
			},
		},
	}
}

func (c *Client) service(ctx context.Context, creds models.Credentials) (*gmailapi.Service, error) {
	token := &oauth2.Token{
		AccessToken:  creds.Access,
		RefreshToken: creds.Refresh,
		Expiry:       creds.Expiry,
	}
	ts := c.oauthConfig.TokenSource(ctx, token)
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, errs.New(errs.KindTransientNetwork, "gmail.service", err)
	}
	return svc, nil
}

func (c *Client) Send(ctx context.Context, creds models.Credentials, from, to, subject, html string) (mailclient.SentMessage, error) {
	raw, err := buildRawMessage(from, to, subject, html, "", "")
	if err != nil {
		return mailclient.SentMessage{}, errs.New(errs.KindUnknown, "gmail.send.build", err)
	}
	return c.send(ctx, creds, raw)
}

func (c *Client) SendReply(ctx context.Context, creds models.Credentials, from, to, originalThreadID, originalMsgID, subject, html string) (mailclient.SentMessage, error) {
	raw, err := buildRawMessage(from, to, subject, html, originalMsgID, originalMsgID)
	if err != nil {
		return mailclient.SentMessage{}, errs.New(errs.KindUnknown, "gmail.reply.build", err)
	}
	msg := &gmailapi.Message{Raw: raw, ThreadId: originalThreadID}
	svc, err := c.service(ctx, creds)
	if err != nil {
		return mailclient.SentMessage{}, err
	}
	sent, err := svc.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return mailclient.SentMessage{}, classify("gmail.reply.send", err)
	}
	return mailclient.SentMessage{ProviderMsgID: sent.Id, ProviderThreadID: sent.ThreadId}, nil
}

func (c *Client) send(ctx context.Context, creds models.Credentials, raw string) (mailclient.SentMessage, error) {
	svc, err := c.service(ctx, creds)
	if err != nil {
		return mailclient.SentMessage{}, err
	}
	sent, err := svc.Users.Messages.Send("me", &gmailapi.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return mailclient.SentMessage{}, classify("gmail.send", err)
	}
	return mailclient.SentMessage{ProviderMsgID: sent.Id, ProviderThreadID: sent.ThreadId}, nil
}

func (c *Client) ListUnreadTo(ctx context.Context, creds models.Credentials, since time.Time) ([]mailclient.InboundMessage, error) {
	svc, err := c.service(ctx, creds)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("is:unread after:%d", since.Unix())
	resp, err := svc.Users.Messages.List("me").Q(query).Context(ctx).Do()
	if err != nil {
		return nil, classify("gmail.list_unread", err)
	}
	return c.hydrate(ctx, svc, resp.Messages)
}

func (c *Client) ListSpamFrom(ctx context.Context, creds models.Credentials, senderAddresses []string) ([]mailclient.InboundMessage, error) {
	svc, err := c.service(ctx, creds)
	if err != nil {
		return nil, err
	}
	froms := make([]string, len(senderAddresses))
	for i, a := range senderAddresses {
		froms[i] = "from:" + a
	}
	query := "in:spam (" + strings.Join(froms, " OR ") + ")"
	resp, err := svc.Users.Messages.List("me").Q(query).Context(ctx).Do()
	if err != nil {
		return nil, classify("gmail.list_spam", err)
	}
	return c.hydrate(ctx, svc, resp.Messages)
}

func (c *Client) hydrate(ctx context.Context, svc *gmailapi.Service, refs []*gmailapi.Message) ([]mailclient.InboundMessage, error) {
	out := make([]mailclient.InboundMessage, 0, len(refs))
	for _, ref := range refs {
		full, err := svc.Users.Messages.Get("me", ref.Id).Format("metadata").Context(ctx).Do()
		if err != nil {
			continue
		}
		inbound := mailclient.InboundMessage{ProviderMsgID: full.Id, ProviderThreadID: full.ThreadId}
		for _, h := range full.Payload.Headers {
			switch h.Name {
			case "Subject":
				inbound.Subject = h.Value
			case "From":
				inbound.From = h.Value
			}
		}
		out = append(out, inbound)
	}
	return out, nil
}

func (c *Client) MarkRead(ctx context.Context, creds models.Credentials, providerMsgID string) error {
	svc, err := c.service(ctx, creds)
	if err != nil {
		return err
	}
	_, err = svc.Users.Messages.Modify("me", providerMsgID, &gmailapi.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return classify("gmail.mark_read", err)
	}
	return nil
}

func (c *Client) MarkImportant(ctx context.Context, creds models.Credentials, providerMsgID string) error {
	svc, err := c.service(ctx, creds)
	if err != nil {
		return err
	}
	_, err = svc.Users.Messages.Modify("me", providerMsgID, &gmailapi.ModifyMessageRequest{
		AddLabelIds: []string{"IMPORTANT", "STARRED"},
	}).Context(ctx).Do()
	if err != nil {
		return classify("gmail.mark_important", err)
	}
	return nil
}

func (c *Client) Unspam(ctx context.Context, creds models.Credentials, providerMsgID string) error {
	svc, err := c.service(ctx, creds)
	if err != nil {
		return err
	}
	_, err = svc.Users.Messages.Modify("me", providerMsgID, &gmailapi.ModifyMessageRequest{
		RemoveLabelIds: []string{"SPAM"},
		AddLabelIds:    []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return classify("gmail.unspam", err)
	}
	return nil
}

// Refresh exchanges the stored refresh token for a fresh access token. The
// engine persists whatever it returns; Refresh itself never touches storage.
func (c *Client) Refresh(ctx context.Context, creds models.Credentials) (models.Credentials, error) {
	token := &oauth2.Token{RefreshToken: creds.Refresh}
	ts := c.oauthConfig.TokenSource(ctx, token)
	fresh, err := ts.Token()
	if err != nil {
		return models.Credentials{}, errs.New(errs.KindNeedsReauth, "gmail.refresh", err)
	}
	out := creds
	out.Access = fresh.AccessToken
	out.Expiry = fresh.Expiry
	if fresh.RefreshToken != "" {
		out.Refresh = fresh.RefreshToken
	}
	return out, nil
}

func buildRawMessage(from, to, subject, html, inReplyTo, references string) (string, error) {
	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	if to != "" {
		fmt.Fprintf(&b, "To: %s\r\n", to)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	if inReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", inReplyTo)
	}
	if references != "" {
		fmt.Fprintf(&b, "References: %s\r\n", references)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 7bit\r\n\r\n")
	b.WriteString(html)
	return base64.URLEncoding.EncodeToString([]byte(b.String())), nil
}

// classify maps a googleapi error's status code to the error taxonomy
// spec.md §6/§7 require of every adapter.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if e, ok := err.(*googleapi.Error); ok {
		gerr = e
	}
	if gerr != nil {
		switch gerr.Code {
		case 401:
			return errs.New(errs.KindExpiredToken, op, err)
		case 403:
			return errs.New(errs.KindNeedsReauth, op, err)
		case 429, 500, 502, 503, 504:
			return errs.New(errs.KindTransientNetwork, op, err)
		}
	}
	return errs.New(errs.KindTransientNetwork, op, err)
}
