package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSVerifier checks RS256 tokens against a remote JWK set. The set is
// refreshed in the background.
type JWKSVerifier struct {
	jwks   keyfunc.Keyfunc
	leeway time.Duration
}

// NewJWKSVerifier starts fetching keys from jwksURL. The first fetch may
// fail; the server still starts and retries on the refresh interval.
func NewJWKSVerifier(jwksURL string, refreshInterval time.Duration, logger logging.Logger) (*JWKSVerifier, error) {
	logger = logger.With("module", "jwks")

	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: 10 * time.Second},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(ctx context.Context, err error) {
			logger.Error(ctx, "jwks refresh failed", "url", jwksURL, "error", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create jwks storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("create keyfunc: %w", err)
	}

	return NewJWKSVerifierWithKeyfunc(k), nil
}

// NewJWKSVerifierWithKeyfunc wraps an existing keyfunc, e.g. one built from
// static JSON in tests.
func NewJWKSVerifierWithKeyfunc(k keyfunc.Keyfunc) *JWKSVerifier {
	return &JWKSVerifier{jwks: k, leeway: 30 * time.Second}
}

func (v *JWKSVerifier) Verify(ctx context.Context, tokenString string) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}
	return claims.Subject, nil
}
