package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

var (
	ErrInvalidGoogleAudience = errors.New("invalid google audience")
	ErrUnverifiedGoogleEmail = errors.New("google email is not verified")
)

// GoogleIdentity is the subset of a validated Google ID token the service relies on.
type GoogleIdentity struct {
	Subject string
	Email   string
}

// GoogleOAuthProvider verifies Google ID tokens issued for one OAuth client.
type GoogleOAuthProvider struct {
	clientID   string
	httpClient *http.Client
	options    []option.ClientOption
}

// NewGoogleOAuthProvider creates a GoogleOAuthProvider for clientID. opts are passed to
// the oauth2 service, e.g. option.WithEndpoint.
func NewGoogleOAuthProvider(clientID string, opts ...option.ClientOption) *GoogleOAuthProvider {
	return &GoogleOAuthProvider{
		clientID:   clientID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		options:    opts,
	}
}

// ValidateIDToken asks Google to introspect idToken and checks that it was issued
// for this client and carries a verified email address.
func (p *GoogleOAuthProvider) ValidateIDToken(ctx context.Context, idToken string) (*GoogleIdentity, error) {
	opts := append([]option.ClientOption{option.WithHTTPClient(p.httpClient)}, p.options...)
	oauth2Service, err := oauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}

	tokenInfoCall := oauth2Service.Tokeninfo()
	tokenInfoCall.IdToken(idToken)
	tokenInfo, err := tokenInfoCall.Context(ctx).Do()
	if err != nil {
		return nil, err
	}

	if tokenInfo.Audience != p.clientID {
		return nil, ErrInvalidGoogleAudience
	}

	if !tokenInfo.VerifiedEmail || tokenInfo.Email == "" {
		return nil, ErrUnverifiedGoogleEmail
	}

	return &GoogleIdentity{
		Subject: tokenInfo.UserId,
		Email:   tokenInfo.Email,
	}, nil
}
