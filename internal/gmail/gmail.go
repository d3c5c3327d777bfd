// Package gmail sends reminders and fetches replies through the Gmail API.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"

	"github.com/pathakanu/impact/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Scopes needed to send mail and clear the UNREAD label on replies.
var Scopes = []string{
	gm.GmailSendScope,
	gm.GmailModifyScope,
}

const (
	me          = "me"
	unreadLabel = "UNREAD"
	maxPages    = 10
)

// Credentials identify the OAuth client and the refresh token minted by the
// auth command.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	RefreshToken string
}

// OAuthConfig builds the OAuth2 client configuration for Gmail.
func OAuthConfig(creds Credentials) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Endpoint:     google.Endpoint,
		Scopes:       Scopes,
	}
}

// Client wraps Gmail messaging operations required by the bot.
type Client struct {
	svc *gm.Service
}

// New returns a Client authenticated with the refresh token. The access
// token is refreshed on demand by the oauth2 transport.
func New(ctx context.Context, creds Credentials) (*Client, error) {
	if creds.RefreshToken == "" {
		return nil, fmt.Errorf("gmail refresh token is not configured")
	}
	cfg := OAuthConfig(creds)
	httpClient := cfg.Client(ctx, &oauth2.Token{RefreshToken: creds.RefreshToken})
	return NewWithOptions(ctx, option.WithHTTPClient(httpClient))
}

// NewWithOptions builds a Client from raw API options, e.g. a test endpoint.
func NewWithOptions(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := gm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// Send delivers a plain-text message and returns its thread id.
func (c *Client) Send(ctx context.Context, to, subject, body string) (string, error) {
	if strings.TrimSpace(to) == "" {
		return "", fmt.Errorf("recipient address missing")
	}
	raw := base64.URLEncoding.EncodeToString([]byte(buildMessage(to, subject, body)))

	sent, err := c.svc.Users.Messages.Send(me, &gm.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gmail send: %w", err)
	}
	if sent.ThreadId == "" {
		return "", fmt.Errorf("gmail send: response carried no thread id")
	}
	return sent.ThreadId, nil
}

// ListUnread returns unread messages whose subject mentions filter.
func (c *Client) ListUnread(ctx context.Context, filter string) ([]model.InboundMessage, error) {
	query := "is:unread"
	if filter = strings.TrimSpace(filter); filter != "" {
		query += " subject:" + filter
	}

	var ids []string
	pageToken := ""
	for page := 0; page < maxPages; page++ {
		call := c.svc.Users.Messages.List(me).Q(query).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	messages := make([]model.InboundMessage, 0, len(ids))
	for _, id := range ids {
		msg, err := c.svc.Users.Messages.Get(me, id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get message %s: %w", id, err)
		}
		messages = append(messages, toInbound(msg))
	}
	return messages, nil
}

// MarkRead removes the UNREAD label from a message.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	_, err := c.svc.Users.Messages.Modify(me, messageID, &gm.ModifyMessageRequest{
		RemoveLabelIds: []string{unreadLabel},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("mark message %s read: %w", messageID, err)
	}
	return nil
}

// buildMessage renders an RFC 2822 message. Non-ASCII subjects are encoded
// as RFC 2047 words so the token survives transit intact.
func buildMessage(to, subject, body string) string {
	lines := []string{
		"To: " + to,
		"Subject: " + mime.QEncoding.Encode("utf-8", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}
	return strings.Join(lines, "\r\n")
}

func toInbound(msg *gm.Message) model.InboundMessage {
	in := model.InboundMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
	}
	if msg.Payload == nil {
		return in
	}
	headers := headerMap(msg.Payload.Headers)
	in.From = headers["from"]
	in.Subject = decodeHeader(headers["subject"])
	in.Body = extractBody(msg.Payload)
	in.ReceivedAt = messageTime(headers["date"], msg.InternalDate)
	return in
}

// extractBody returns the first text/plain body, searching nested parts.
func extractBody(payload *gm.MessagePart) string {
	if payload == nil {
		return ""
	}
	if len(payload.Parts) == 0 {
		if payload.Body != nil && payload.Body.Data != "" {
			if decoded, err := decodeBase64URL(payload.Body.Data); err == nil {
				return decoded
			}
		}
		return ""
	}

	for _, part := range payload.Parts {
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			if decoded, err := decodeBase64URL(part.Body.Data); err == nil {
				return decoded
			}
		}
		if len(part.Parts) > 0 {
			if body := extractBody(part); body != "" {
				return body
			}
		}
	}

	// Fall back to the first part with any data.
	for _, part := range payload.Parts {
		if part.Body != nil && part.Body.Data != "" {
			if decoded, err := decodeBase64URL(part.Body.Data); err == nil {
				return decoded
			}
		}
	}
	return ""
}

// headerMap keys headers by lower-cased name.
func headerMap(headers []*gm.MessagePartHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		key := strings.ToLower(h.Name)
		if _, ok := m[key]; !ok {
			m[key] = h.Value
		}
	}
	return m
}

func decodeHeader(value string) string {
	decoded, err := new(mime.WordDecoder).DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// decodeBase64URL accepts Gmail's base64url data with or without padding.
func decodeBase64URL(data string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func messageTime(dateHeader string, internalMillis int64) time.Time {
	if dateHeader != "" {
		if t, err := mail.ParseDate(dateHeader); err == nil {
			return t
		}
	}
	if internalMillis > 0 {
		return time.UnixMilli(internalMillis)
	}
	return time.Time{}
}
