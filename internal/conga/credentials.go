package conga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used throughout this package.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Identity is the account used to derive every credential.
// It is immutable once created.
type Identity struct {
	username string
	password string
}

// NewIdentity creates an Identity from a username and password.
func NewIdentity(username, password string) Identity {
	return Identity{username: username, password: password}
}

// Username returns the account username.
func (i Identity) Username() string { return i.username }

// Password returns the account password.
// WARNING: Never log this value.
func (i Identity) Password() string { return i.password }

// String returns the identity with the password redacted.
func (i Identity) String() string {
	return fmt.Sprintf("Identity{Username:%q, Password:[REDACTED]}", i.username)
}

// APICredential is the bearer material sent with REST calls.
// It has no expiry of its own; it is replaced when a call using it is
// rejected as unauthorised.
type APICredential struct {
	Token string
}

// ShadowCredential is a set of temporary federated credentials used to sign
// shadow-service requests.
type ShadowCredential struct {
	IdentityID      string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// ExpiresAt is the absolute expiry issued by the identity pool.
	ExpiresAt time.Time
}

// same reports whether c and o are the same issued credential.
func (c ShadowCredential) same(o ShadowCredential) bool {
	return c.AccessKeyID == o.AccessKeyID &&
		c.SessionToken == o.SessionToken &&
		c.ExpiresAt.Equal(o.ExpiresAt)
}

// ValidAt reports whether the credential may be used at t.
func (c ShadowCredential) ValidAt(t time.Time) bool {
	return t.Before(c.ExpiresAt)
}

// Directory authenticates an Identity against the user directory and
// returns an identity token.
//
// Implementations return ErrAuthentication when the directory rejects the
// account and ErrDeviceUnreachable on transport failures.
type Directory interface {
	Authenticate(ctx context.Context, identity Identity) (string, error)
}

// Federator exchanges a directory identity token for temporary credentials
// scoped to the authenticated identity.
//
// Implementations return ErrFederation when the identity pool refuses the
// exchange.
type Federator interface {
	Federate(ctx context.Context, idToken string) (ShadowCredential, error)
}

// CredentialBroker owns the cached API and shadow credentials of a single
// Identity and renews them on demand.
//
// Renewal is a check-then-act sequence guarded by one mutex, so at most one
// renewal is in flight per broker.
//
// Thread Safety: All methods are safe for concurrent use.
type CredentialBroker struct {
	identity  Identity
	directory Directory
	federator Federator
	now       func() time.Time

	mu     sync.Mutex
	api    *APICredential
	shadow *ShadowCredential

	logger Logger
}

// NewCredentialBroker creates a broker for identity.
// No network calls are made until a credential is first requested.
func NewCredentialBroker(identity Identity, directory Directory, federator Federator) *CredentialBroker {
	return &CredentialBroker{
		identity:  identity,
		directory: directory,
		federator: federator,
		now:       time.Now,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the broker.
func (b *CredentialBroker) SetLogger(logger Logger) {
	b.logger = logger
}

// APICredential returns the cached API credential, authenticating against
// the directory on first use.
//
// Returns:
//   - APICredential: Bearer material for REST calls
//   - error: ErrAuthentication if the directory rejects the account
func (b *CredentialBroker) APICredential(ctx context.Context) (APICredential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.api != nil {
		return *b.api, nil
	}

	token, err := b.authenticate(ctx)
	if err != nil {
		return APICredential{}, err
	}

	b.api = &APICredential{Token: token}
	b.logger.Debug("api credential created", "username", b.identity.Username())
	return *b.api, nil
}

// ShadowCredential returns the cached shadow credential while it is still
// valid. Once the clock reaches its expiry the credential is derived again:
// directory authentication, then identity-pool federation.
//
// Returns:
//   - ShadowCredential: Temporary credentials valid at the time of return
//   - error: ErrAuthentication or ErrFederation
func (b *CredentialBroker) ShadowCredential(ctx context.Context) (ShadowCredential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.shadow != nil && b.shadow.ValidAt(now) {
		return *b.shadow, nil
	}

	token, err := b.authenticate(ctx)
	if err != nil {
		return ShadowCredential{}, err
	}

	cred, err := b.federator.Federate(ctx, token)
	if err != nil {
		return ShadowCredential{}, typed(err, ErrFederation)
	}
	if !cred.ValidAt(now) {
		return ShadowCredential{}, fmt.Errorf("%w: issued credential expires at %s, before now (%s)",
			ErrFederation, cred.ExpiresAt.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}

	b.shadow = &cred
	if b.api == nil {
		// The directory round trip is the expensive step; keep its token.
		b.api = &APICredential{Token: token}
	}

	b.logger.Info("shadow credentials renewed",
		"identity_id", cred.IdentityID,
		"expires_at", cred.ExpiresAt.UTC().Format(time.RFC3339))
	return cred, nil
}

// Invalidate clears both cached credentials so the next request derives
// them again. Call after a downstream authorisation failure.
func (b *CredentialBroker) Invalidate() {
	b.mu.Lock()
	b.api = nil
	b.shadow = nil
	b.mu.Unlock()

	b.logger.Info("credentials invalidated", "username", b.identity.Username())
}

// InvalidateIf drops the cached credentials only while the cached shadow
// credential is still stale. A caller rejected with a credential that
// another goroutine has already renewed leaves the renewal in place.
//
// Returns:
//   - bool: true if the cache was cleared
func (b *CredentialBroker) InvalidateIf(stale ShadowCredential) bool {
	b.mu.Lock()
	if b.shadow == nil || !b.shadow.same(stale) {
		b.mu.Unlock()
		return false
	}
	b.api = nil
	b.shadow = nil
	b.mu.Unlock()

	b.logger.Info("credentials invalidated", "username", b.identity.Username())
	return true
}

// authenticate runs directory authentication. Callers hold b.mu.
func (b *CredentialBroker) authenticate(ctx context.Context) (string, error) {
	token, err := b.directory.Authenticate(ctx, b.identity)
	if err != nil {
		return "", typed(err, ErrAuthentication)
	}
	if token == "" {
		return "", fmt.Errorf("%w: directory returned an empty identity token", ErrAuthentication)
	}
	return token, nil
}

// kinds lists every sentinel error this package returns.
var kinds = []error{
	ErrAuthentication,
	ErrFederation,
	ErrAuthorization,
	ErrDeviceUnreachable,
	ErrNotFound,
	ErrPlanNotFound,
	ErrInvalidCommand,
	ErrInvalidResponse,
}

// typed returns err unchanged if it already wraps one of this package's
// sentinel errors, otherwise it wraps err with fallback.
func typed(err, fallback error) error {
	if err == nil {
		return nil
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", fallback, err)
}
