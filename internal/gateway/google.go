package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"

	apperrors "github.com/smileagent/autoreply-engine/internal/errors"
	"github.com/smileagent/autoreply-engine/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleConfig holds the OAuth client used for all tenants. Tokens are
// per tenant; the client registration is shared.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timezone     string
}

// GoogleFactory builds Gmail and Calendar adapters from stored tenant
// credentials. Token refresh is handled by the oauth2 token source; a
// refresh rejection surfaces as ErrAuthExpired.
type GoogleFactory struct {
	config GoogleConfig
}

// NewGoogleFactory creates a Factory for Google Workspace providers.
func NewGoogleFactory(config GoogleConfig) *GoogleFactory {
	if config.Timezone == "" {
		config.Timezone = "Europe/Rome"
	}
	return &GoogleFactory{config: config}
}

// Mailbox builds a Gmail adapter bound to the credential.
func (f *GoogleFactory) Mailbox(ctx context.Context, cred *models.MailboxCredential) (Mailbox, error) {
	svc, err := gmail.NewService(ctx, option.WithTokenSource(f.tokenSource(ctx, cred)))
	if err != nil {
		return nil, fmt.Errorf("failed to build gmail service: %w", err)
	}
	return &GmailMailbox{svc: svc}, nil
}

// Calendar builds a Calendar adapter bound to the credential.
func (f *GoogleFactory) Calendar(ctx context.Context, cred *models.MailboxCredential, tenant *models.Tenant) (Calendar, error) {
	svc, err := calendar.NewService(ctx, option.WithTokenSource(f.tokenSource(ctx, cred)))
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar service: %w", err)
	}
	return &GoogleCalendar{
		svc:         svc,
		timezone:    f.config.Timezone,
		tenantEmail: tenant.Email,
		tenantName:  tenant.Name,
	}, nil
}

func (f *GoogleFactory) tokenSource(ctx context.Context, cred *models.MailboxCredential) oauth2.TokenSource {
	conf := &oauth2.Config{
		ClientID:     f.config.ClientID,
		ClientSecret: f.config.ClientSecret,
		RedirectURL:  f.config.RedirectURL,
		Endpoint:     google.Endpoint,
	}
	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    cred.TokenType,
		Expiry:       cred.ExpiresAt,
	}
	return conf.TokenSource(ctx, token)
}

// classifyProviderError maps raw provider failures onto the engine's
// error taxonomy: 401/invalid_grant means the tenant must re-authenticate,
// everything retryable is transient.
func classifyProviderError(err error, op string) error {
	if err == nil {
		return nil
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch {
		case gErr.Code == 401:
			return fmt.Errorf("%s: %w: %v", op, apperrors.ErrAuthExpired, err)
		case gErr.Code == 403 || gErr.Code == 429 || gErr.Code >= 500:
			return fmt.Errorf("%s: %w: %v", op, apperrors.ErrTransient, err)
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		return fmt.Errorf("%s: %w: %v", op, apperrors.ErrAuthExpired, err)
	}

	var nErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nErr) && nErr.Timeout()) {
		return fmt.Errorf("%s: %w: %v", op, apperrors.ErrTransient, err)
	}

	return fmt.Errorf("%s: %w: %v", op, apperrors.ErrTransient, err)
}
