// Package gmail implements mailbox.Provider on top of the Gmail REST API.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"jobtracker/internal/mailbox"
	"jobtracker/pkg/config"
)

const userID = "me"

type Provider struct {
	svc *gmailapi.Service
}

// NewProvider builds a provider from explicit client options.
func NewProvider(ctx context.Context, opts ...option.ClientOption) (*Provider, error) {
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Provider{svc: svc}, nil
}

// NewProviderForUser authenticates with the user's stored refresh token.
func NewProviderForUser(ctx context.Context, cfg config.GmailConfig, refreshToken string) (*Provider, error) {
	if refreshToken == "" {
		return nil, errors.New("gmail: user has no refresh token")
	}
	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{gmailapi.GmailReadonlyScope},
	}
	ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return NewProvider(ctx, option.WithTokenSource(ts))
}

func (p *Provider) ListMessageIDs(ctx context.Context, query, pageToken string) (mailbox.Page, error) {
	call := p.svc.Users.Messages.List(userID).
		Q(query).
		IncludeSpamTrash(true).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do()
	if err != nil {
		return mailbox.Page{}, fmt.Errorf("gmail list: %w", err)
	}

	page := mailbox.Page{NextPageToken: resp.NextPageToken}
	for _, m := range resp.Messages {
		page.IDs = append(page.IDs, m.Id)
	}
	return page, nil
}

func (p *Provider) GetMessage(ctx context.Context, id string, format mailbox.Format) (*mailbox.Message, error) {
	call := p.svc.Users.Messages.Get(userID, id).Context(ctx)
	if format == mailbox.FormatMetadata {
		call = call.Format("metadata").MetadataHeaders("Date", "From", "To", "Subject")
	} else {
		call = call.Format("full")
	}

	msg, err := call.Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", mailbox.ErrNotFound, id)
		}
		return nil, fmt.Errorf("gmail get %s: %w", id, err)
	}

	out := &mailbox.Message{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		InternalDate: msg.InternalDate,
	}
	if msg.Payload == nil {
		return out, nil
	}
	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			out.From = h.Value
		case "to":
			out.To = h.Value
		case "subject":
			out.Subject = h.Value
		case "date":
			out.Date = mailbox.ParseDate(h.Value)
		}
	}
	if format == mailbox.FormatFull {
		out.Payload = convertPart(msg.Payload)
	}
	return out, nil
}

func convertPart(mp *gmailapi.MessagePart) *mailbox.Part {
	part := &mailbox.Part{
		MimeType: mp.MimeType,
		Filename: mp.Filename,
	}
	for _, h := range mp.Headers {
		if strings.EqualFold(h.Name, "Content-Disposition") && strings.HasPrefix(strings.ToLower(h.Value), "attachment") {
			part.Attachment = true
		}
	}
	if mp.Body != nil && mp.Body.Data != "" {
		part.Body = decodeBody(mp.Body.Data)
	}
	for _, child := range mp.Parts {
		part.Parts = append(part.Parts, convertPart(child))
	}
	return part
}

// decodeBody accepts padded or unpadded base64url.
func decodeBody(data string) []byte {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return nil
	}
	return b
}
