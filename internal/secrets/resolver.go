package secrets

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Checker-Finance/fleet-telemetry/internal/auth"
	"github.com/Checker-Finance/fleet-telemetry/internal/metrics"
	pkgsecrets "github.com/Checker-Finance/fleet-telemetry/pkg/secrets"
	"github.com/Checker-Finance/fleet-telemetry/pkg/utils"
)

// CredentialResolver yields the sign-in credential for the fleet API.
//
// When a secret name is configured the credential is read from the secrets
// provider (fields "email" and "password") and cached; otherwise the static
// fallback from configuration is used.
type CredentialResolver struct {
	logger     *zap.Logger
	provider   pkgsecrets.Provider
	cache      *pkgsecrets.Cache[auth.Credential]
	secretName string
	fallback   auth.Credential
}

// NewCredentialResolver constructs a resolver. provider may be nil when secretName is empty;
// a nil cache fetches the secret on every Resolve.
func NewCredentialResolver(
	logger *zap.Logger,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[auth.Credential],
	secretName string,
	fallback auth.Credential,
) *CredentialResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CredentialResolver{
		logger:     logger,
		provider:   provider,
		cache:      cache,
		secretName: secretName,
		fallback:   fallback,
	}
}

// Resolve returns the credential, validating that both fields are present.
func (r *CredentialResolver) Resolve(ctx context.Context) (auth.Credential, error) {
	if r.secretName == "" {
		if err := validate(r.fallback); err != nil {
			return auth.Credential{}, fmt.Errorf("config credential: %w", err)
		}
		return r.fallback, nil
	}

	if r.provider == nil {
		return auth.Credential{}, fmt.Errorf("resolve credential %q: no secrets provider configured", r.secretName)
	}

	if r.cache != nil {
		if cred, ok := r.cache.Get(r.secretName); ok {
			metrics.IncCacheHit("hit")
			return cred, nil
		}
		metrics.IncCacheHit("miss")
	}

	fields, err := r.provider.GetSecret(ctx, r.secretName)
	if err != nil {
		r.logger.Warn("aws.secret_fetch_failed",
			zap.String("key", r.secretName),
			zap.Error(err))
		return auth.Credential{}, fmt.Errorf("resolve credential: %w", err)
	}

	cred := auth.Credential{Email: fields["email"], Password: fields["password"]}
	if err := validate(cred); err != nil {
		return auth.Credential{}, fmt.Errorf("parse secret %q: %w", r.secretName, err)
	}

	if r.cache != nil {
		r.cache.Put(r.secretName, cred)
	}
	r.logger.Info("aws.credential_resolved",
		zap.String("key", r.secretName),
		zap.String("email", utils.MaskEmail(cred.Email)))
	return cred, nil
}

func validate(c auth.Credential) error {
	if c.Email == "" {
		return fmt.Errorf("email is required")
	}
	if c.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}
