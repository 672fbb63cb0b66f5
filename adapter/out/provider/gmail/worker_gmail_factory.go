package gmail

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"mailsync_worker/core/domain"
	"mailsync_worker/core/port/out"
	"mailsync_worker/pkg/httputil"
)

// FactoryConfig holds the OAuth client used to refresh stored tokens.
type FactoryConfig struct {
	ClientID     string
	ClientSecret string

	// Endpoint overrides the Gmail API base URL (tests only).
	Endpoint string
}

// Factory builds a Client per job from an encrypted credential.
type Factory struct {
	config     *oauth2.Config
	httpClient *http.Client
	encryptor  out.Encryptor
	breaker    *Breaker
	endpoint   string
	log        zerolog.Logger
}

func NewFactory(cfg FactoryConfig, encryptor out.Encryptor, log zerolog.Logger) *Factory {
	return &Factory{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       []string{gmail.GmailReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		httpClient: httputil.NewClient(httputil.GmailClientConfig()),
		encryptor:  encryptor,
		breaker:    NewBreaker(log),
		endpoint:   cfg.Endpoint,
		log:        log,
	}
}

var _ out.MailboxFactory = (*Factory)(nil)

// Breaker exposes the shared breaker for health reporting.
func (f *Factory) Breaker() *Breaker {
	return f.breaker
}

func (f *Factory) ForCredential(ctx context.Context, cred *domain.Credential) (out.MailboxProvider, error) {
	token, err := f.Token(cred)
	if err != nil {
		return nil, err
	}

	// token refreshes and API calls share the pooled transport
	baseCtx := context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	client := oauth2.NewClient(baseCtx, f.config.TokenSource(baseCtx, token))

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if f.endpoint != "" {
		opts = append(opts, option.WithEndpoint(f.endpoint))
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return NewClient(svc, f.breaker, f.log.With().Str("user_id", cred.UserID).Logger()), nil
}

// Token decrypts the stored tokens. An empty refresh token is allowed; the
// access token is then used until it expires.
func (f *Factory) Token(cred *domain.Credential) (*oauth2.Token, error) {
	if cred == nil || cred.AccessTokenEnc == "" {
		return nil, fmt.Errorf("credential has no access token")
	}

	access, err := f.encryptor.Decrypt(cred.AccessTokenEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}

	token := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if cred.RefreshTokenEnc != "" {
		refresh, err := f.encryptor.Decrypt(cred.RefreshTokenEnc)
		if err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
		token.RefreshToken = refresh
	}
	if cred.Expiry != nil {
		token.Expiry = *cred.Expiry
	} else if token.RefreshToken != "" {
		// Unknown expiry: force a refresh on first use.
		token.Expiry = time.Now().Add(-time.Minute)
	}
	return token, nil
}
