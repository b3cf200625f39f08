package pipeline

import (
	"context"
	"errors"
	"fmt"

	"jobtracker/internal/mailbox"
	"jobtracker/internal/mailbox/gmail"
	"jobtracker/internal/model"
	"jobtracker/pkg/config"
)

var ErrNoMailboxCredentials = errors.New("user has no linked mailbox")

type UserFinder interface {
	FindByID(ctx context.Context, id int) (*model.User, error)
}

// GmailOpener builds a Gmail provider from the user's stored refresh token.
type GmailOpener struct {
	cfg   config.GmailConfig
	users UserFinder
}

func NewGmailOpener(cfg config.GmailConfig, users UserFinder) *GmailOpener {
	return &GmailOpener{cfg: cfg, users: users}
}

func (o *GmailOpener) Open(ctx context.Context, userID int) (mailbox.Provider, error) {
	u, err := o.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u.GmailRefreshToken == "" {
		return nil, ErrNoMailboxCredentials
	}
	p, err := gmail.NewProviderForUser(ctx, o.cfg, u.GmailRefreshToken)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// StaticOpener serves one configured mailbox to every user.
type StaticOpener struct {
	Provider mailbox.Provider
}

func (o StaticOpener) Open(context.Context, int) (mailbox.Provider, error) {
	return o.Provider, nil
}
