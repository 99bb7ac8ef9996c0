// Package gmail wraps the Gmail API for statement discovery. Access is
// strictly read-only and authenticated with the user's own refresh token,
// decrypted just before use and never persisted in plaintext.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// ErrNoPDFAttachment is returned when a message carries no PDF part.
var ErrNoPDFAttachment = errors.New("gmail: message has no PDF attachment")

// pageSize bounds one Messages.List call; search paginates past it.
const pageSize = 50

// MessageRef identifies one matched message.
type MessageRef struct {
	ID       string
	ThreadID string
}

// Client searches a user's mailbox and downloads statement PDFs.
type Client struct {
	clientID     string
	clientSecret string
	log          zerolog.Logger
}

// NewClient builds a Client from the OAuth app credentials.
func NewClient(clientID, clientSecret string, log zerolog.Logger) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		log:          log.With().Str("component", "gmail").Logger(),
	}
}

func (c *Client) service(ctx context.Context, refreshToken string) (*gmailapi.Service, error) {
	cfg := oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmailapi.GmailReadonlyScope},
	}
	ts := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}
	return svc, nil
}

// Search returns all messages matching the query, paging through the full
// result set.
func (c *Client) Search(ctx context.Context, refreshToken, query string) ([]MessageRef, error) {
	svc, err := c.service(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	var refs []MessageRef
	pageToken := ""
	for {
		call := svc.Users.Messages.List("me").Q(query).MaxResults(pageSize)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("search messages: %w", err)
		}
		for _, m := range resp.Messages {
			refs = append(refs, MessageRef{ID: m.Id, ThreadID: m.ThreadId})
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	c.log.Debug().Str("query", query).Int("matches", len(refs)).Msg("gmail search complete")
	return refs, nil
}

// PDFAttachment downloads the first PDF attached to the message and returns
// its bytes and filename. It returns ErrNoPDFAttachment when the message has
// none.
func (c *Client) PDFAttachment(ctx context.Context, refreshToken, messageID string) ([]byte, string, error) {
	svc, err := c.service(ctx, refreshToken)
	if err != nil {
		return nil, "", err
	}

	msg, err := svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, "", fmt.Errorf("get message %s: %w", messageID, err)
	}
	if msg.Payload == nil {
		return nil, "", ErrNoPDFAttachment
	}

	part := findPDFPart(flattenParts(msg.Payload))
	if part == nil {
		return nil, "", ErrNoPDFAttachment
	}

	if part.Body != nil && part.Body.Data != "" {
		b, err := decodeBody(part.Body.Data)
		if err != nil {
			return nil, "", err
		}
		return b, part.Filename, nil
	}
	if part.Body == nil || part.Body.AttachmentId == "" {
		return nil, "", ErrNoPDFAttachment
	}

	att, err := svc.Users.Messages.Attachments.Get("me", messageID, part.Body.AttachmentId).Context(ctx).Do()
	if err != nil {
		return nil, "", fmt.Errorf("get attachment of %s: %w", messageID, err)
	}
	b, err := decodeBody(att.Data)
	if err != nil {
		return nil, "", err
	}
	return b, part.Filename, nil
}

// flattenParts walks the MIME tree depth-first, including the payload itself.
// Statement mails are usually multipart/mixed with the PDF one level down,
// but some senders nest it inside multipart/alternative.
func flattenParts(p *gmailapi.MessagePart) []*gmailapi.MessagePart {
	out := []*gmailapi.MessagePart{p}
	for _, child := range p.Parts {
		out = append(out, flattenParts(child)...)
	}
	return out
}

func findPDFPart(parts []*gmailapi.MessagePart) *gmailapi.MessagePart {
	for _, p := range parts {
		if isPDFPart(p) {
			return p
		}
	}
	return nil
}

func isPDFPart(p *gmailapi.MessagePart) bool {
	if strings.EqualFold(p.MimeType, "application/pdf") {
		return true
	}
	// Some providers send PDFs as application/octet-stream; go by filename.
	return strings.HasSuffix(strings.ToLower(p.Filename), ".pdf")
}

func decodeBody(data string) ([]byte, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err == nil {
		return b, nil
	}
	b, err = base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment body: %w", err)
	}
	return b, nil
}
