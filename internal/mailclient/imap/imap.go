// Package imap adapts a generic IMAP/SMTP mailbox to the mailclient.Client
// interface, for providers without a REST API — built the way the
// teacher's IMAPFetcher used emersion/go-imap and emersion/go-message.
// Sending rides over SMTP via net/smtp since IMAP itself has no submission
// verb; everything else (search, fetch, flag) goes through IMAP.
package imap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"

	"warmup-engine/internal/errs"
	"warmup-engine/internal/mailclient"
	"warmup-engine/internal/models"
)

// Client is a mailclient.Client backed by plain IMAP+SMTP. Credentials.Access
// and Credentials.Refresh are repurposed as the IMAP/SMTP username and
// password for this provider, since there is no OAuth dance to do.
type Client struct {
	IMAPHost string
	IMAPPort int
	SMTPHost string
	SMTPPort int
}

func New(imapHost string, imapPort int, smtpHost string, smtpPort int) *Client {
	return &Client{IMAPHost: imapHost, IMAPPort: imapPort, SMTPHost: smtpHost, SMTPPort: smtpPort}
}

func (c *Client) dial(creds models.Credentials) (*client.Client, error) {
	conn, err := client.DialTLS(fmt.Sprintf("%s:%d", c.IMAPHost, c.IMAPPort), nil)
	if err != nil {
		return nil, errs.New(errs.KindTransientNetwork, "imap.dial", err)
	}
	if err := conn.Login(creds.Access, creds.Refresh); err != nil {
		conn.Logout()
		return nil, errs.New(errs.KindExpiredToken, "imap.login", err)
	}
	return conn, nil
}

func (c *Client) Send(ctx context.Context, creds models.Credentials, from, to, subject, html string) (mailclient.SentMessage, error) {
	raw := buildMIME(from, to, subject, html)
	auth := smtp.PlainAuth("", creds.Access, creds.Refresh, c.SMTPHost)
	addr := fmt.Sprintf("%s:%d", c.SMTPHost, c.SMTPPort)
	if err := smtp.SendMail(addr, auth, from, []string{to}, []byte(raw)); err != nil {
		return mailclient.SentMessage{}, errs.New(errs.KindTransientNetwork, "imap.send", err)
	}
	// IMAP/SMTP has no provider-assigned message id at send time; the
	// Reply Matcher falls back to subject normalization for this provider.
	return mailclient.SentMessage{ProviderMsgID: "", ProviderThreadID: ""}, nil
}

func (c *Client) SendReply(ctx context.Context, creds models.Credentials, from, to, originalThreadID, originalMsgID, subject, html string) (mailclient.SentMessage, error) {
	raw := buildMIMEReply(from, to, subject, html, originalMsgID)
	auth := smtp.PlainAuth("", creds.Access, creds.Refresh, c.SMTPHost)
	addr := fmt.Sprintf("%s:%d", c.SMTPHost, c.SMTPPort)
	if err := smtp.SendMail(addr, auth, from, []string{to}, []byte(raw)); err != nil {
		return mailclient.SentMessage{}, errs.New(errs.KindTransientNetwork, "imap.reply.send", err)
	}
	return mailclient.SentMessage{}, nil
}

func (c *Client) ListUnreadTo(ctx context.Context, creds models.Credentials, since time.Time) ([]mailclient.InboundMessage, error) {
	return c.search(creds, "INBOX", func() *imap.SearchCriteria {
		crit := imap.NewSearchCriteria()
		crit.Since = since
		crit.WithoutFlags = []string{imap.SeenFlag}
		return crit
	}())
}

func (c *Client) ListSpamFrom(ctx context.Context, creds models.Credentials, senderAddresses []string) ([]mailclient.InboundMessage, error) {
	all, err := c.search(creds, "Spam", imap.NewSearchCriteria())
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(senderAddresses))
	for _, a := range senderAddresses {
		wanted[strings.ToLower(a)] = true
	}
	filtered := make([]mailclient.InboundMessage, 0, len(all))
	for _, m := range all {
		if wanted[strings.ToLower(extractAddress(m.From))] {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

func (c *Client) search(creds models.Credentials, mailbox string, crit *imap.SearchCriteria) ([]mailclient.InboundMessage, error) {
	conn, err := c.dial(creds)
	if err != nil {
		return nil, err
	}
	defer conn.Logout()

	if _, err := conn.Select(mailbox, false); err != nil {
		return nil, errs.New(errs.KindTransientNetwork, "imap.select", err)
	}

	uids, err := conn.Search(crit)
	if err != nil {
		return nil, errs.New(errs.KindTransientNetwork, "imap.search", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- conn.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}, messages)
	}()

	var out []mailclient.InboundMessage
	for msg := range messages {
		out = append(out, envelopeToInbound(msg))
	}
	if err := <-done; err != nil {
		return nil, errs.New(errs.KindTransientNetwork, "imap.fetch", err)
	}
	return out, nil
}

func envelopeToInbound(msg *imap.Message) mailclient.InboundMessage {
	inbound := mailclient.InboundMessage{}
	if msg.Envelope == nil {
		return inbound
	}
	inbound.Subject = msg.Envelope.Subject
	inbound.ProviderMsgID = msg.Envelope.MessageId
	if len(msg.Envelope.From) > 0 {
		inbound.From = msg.Envelope.From[0].Address()
	}
	return inbound
}

func (c *Client) MarkRead(ctx context.Context, creds models.Credentials, providerMsgID string) error {
	return c.setFlag(creds, providerMsgID, imap.SeenFlag, true)
}

func (c *Client) MarkImportant(ctx context.Context, creds models.Credentials, providerMsgID string) error {
	return c.setFlag(creds, providerMsgID, imap.FlaggedFlag, true)
}

func (c *Client) Unspam(ctx context.Context, creds models.Credentials, providerMsgID string) error {
	conn, err := c.dial(creds)
	if err != nil {
		return err
	}
	defer conn.Logout()

	uid, err := c.findByMessageID(conn, "Spam", providerMsgID)
	if err != nil {
		return err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	if err := conn.Copy(seqset, "INBOX"); err != nil {
		return errs.New(errs.KindTransientNetwork, "imap.unspam.copy", err)
	}
	deletedFlag := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := conn.Store(seqset, deletedFlag, []interface{}{imap.DeletedFlag}, nil); err != nil {
		return errs.New(errs.KindTransientNetwork, "imap.unspam.flag", err)
	}
	if err := conn.Expunge(nil); err != nil {
		return errs.New(errs.KindTransientNetwork, "imap.unspam.expunge", err)
	}
	return nil
}

func (c *Client) setFlag(creds models.Credentials, providerMsgID string, flag string, add bool) error {
	conn, err := c.dial(creds)
	if err != nil {
		return err
	}
	defer conn.Logout()

	uid, err := c.findByMessageID(conn, "INBOX", providerMsgID)
	if err != nil {
		return err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if !add {
		item = imap.FormatFlagsOp(imap.RemoveFlags, true)
	}
	if err := conn.Store(seqset, item, []interface{}{flag}, nil); err != nil {
		return errs.New(errs.KindTransientNetwork, "imap.store_flag", err)
	}
	return nil
}

func (c *Client) findByMessageID(conn *client.Client, mailbox, messageID string) (uint32, error) {
	if _, err := conn.Select(mailbox, false); err != nil {
		return 0, errs.New(errs.KindTransientNetwork, "imap.select", err)
	}
	crit := imap.NewSearchCriteria()
	crit.Header.Add("Message-Id", messageID)
	uids, err := conn.Search(crit)
	if err != nil {
		return 0, errs.New(errs.KindTransientNetwork, "imap.search_by_id", err)
	}
	if len(uids) == 0 {
		return 0, errs.New(errs.KindUnknown, "imap.search_by_id", fmt.Errorf("message %s not found in %s", messageID, mailbox))
	}
	return uids[0], nil
}

// Refresh is a no-op for IMAP/SMTP: there is no token to rotate, only a
// static username/password pair. It echoes the credentials back unchanged.
func (c *Client) Refresh(ctx context.Context, creds models.Credentials) (models.Credentials, error) {
	return creds, nil
}

func buildMIME(from, to, subject, html string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(html)
	return b.String()
}

func buildMIMEReply(from, to, subject, html, inReplyTo string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "In-Reply-To: %s\r\n", inReplyTo)
	fmt.Fprintf(&b, "References: %s\r\n", inReplyTo)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	b.WriteString(html)
	return b.String()
}

// extractAddress pulls an address out of a raw "From" header using
// go-message's mail parsing, falling back to the raw string if parsing
// fails — the envelope form is already address-only in most cases.
func extractAddress(from string) string {
	entity, err := message.Read(bytes.NewReader([]byte("From: " + from + "\r\n\r\n")))
	if err != nil {
		return from
	}
	defer io.Copy(io.Discard, entity.Body)
	addr := entity.Header.Get("From")
	if i := strings.LastIndex(addr, "<"); i >= 0 {
		return strings.TrimSuffix(addr[i+1:], ">")
	}
	return addr
}
