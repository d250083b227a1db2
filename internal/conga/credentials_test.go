package conga

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestShadowCredentialCachedWhileValid(t *testing.T) {
	b, dir, fed, clock := newTestBroker()
	ctx := context.Background()

	first, err := b.ShadowCredential(ctx)
	if err != nil {
		t.Fatalf("ShadowCredential() error = %v", err)
	}

	clock.Advance(59 * time.Minute)
	second, err := b.ShadowCredential(ctx)
	if err != nil {
		t.Fatalf("ShadowCredential() second call error = %v", err)
	}

	if first != second {
		t.Errorf("credential changed while valid: %+v != %+v", first, second)
	}
	if dir.Calls() != 1 {
		t.Errorf("directory calls = %d, want 1", dir.Calls())
	}
	if fed.Calls() != 1 {
		t.Errorf("federator calls = %d, want 1", fed.Calls())
	}
}

func TestShadowCredentialRenewedAtExpiry(t *testing.T) {
	b, dir, fed, clock := newTestBroker()
	ctx := context.Background()

	first, err := b.ShadowCredential(ctx)
	if err != nil {
		t.Fatalf("ShadowCredential() error = %v", err)
	}

	// now == ExpiresAt is no longer valid.
	clock.Advance(time.Hour)
	second, err := b.ShadowCredential(ctx)
	if err != nil {
		t.Fatalf("ShadowCredential() after expiry error = %v", err)
	}

	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Errorf("renewed ExpiresAt = %v, want after %v", second.ExpiresAt, first.ExpiresAt)
	}
	if dir.Calls() != 2 {
		t.Errorf("directory calls = %d, want 2", dir.Calls())
	}
	if fed.Calls() != 2 {
		t.Errorf("federator calls = %d, want 2", fed.Calls())
	}
}

func TestShadowCredentialSingleRenewalUnderContention(t *testing.T) {
	b, _, fed, _ := newTestBroker()
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.ShadowCredential(ctx); err != nil {
				t.Errorf("ShadowCredential() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if fed.Calls() != 1 {
		t.Errorf("federator calls = %d, want 1", fed.Calls())
	}
}

func TestShadowCredentialErrors(t *testing.T) {
	tests := []struct {
		name    string
		dirErr  error
		token   string
		fedErr  error
		wantErr error
	}{
		{
			name:    "directory rejects account",
			dirErr:  errors.New("NotAuthorizedException"),
			token:   "x",
			wantErr: ErrAuthentication,
		},
		{
			name:    "directory returns empty token",
			token:   "",
			wantErr: ErrAuthentication,
		},
		{
			name:    "federation refused",
			token:   "x",
			fedErr:  errors.New("identity pool says no"),
			wantErr: ErrFederation,
		},
		{
			name:    "typed directory error kept",
			dirErr:  ErrDeviceUnreachable,
			token:   "x",
			wantErr: ErrDeviceUnreachable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, dir, fed, _ := newTestBroker()
			dir.token = tt.token
			dir.err = tt.dirErr
			fed.err = tt.fedErr

			_, err := b.ShadowCredential(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ShadowCredential() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestShadowCredentialRejectsExpiredIssue(t *testing.T) {
	b, _, fed, _ := newTestBroker()
	fed.lifetime = -time.Minute

	_, err := b.ShadowCredential(context.Background())
	if !errors.Is(err, ErrFederation) {
		t.Errorf("ShadowCredential() error = %v, want ErrFederation", err)
	}
}

func TestAPICredentialCachedUntilInvalidated(t *testing.T) {
	b, dir, _, _ := newTestBroker()
	ctx := context.Background()

	for range 3 {
		cred, err := b.APICredential(ctx)
		if err != nil {
			t.Fatalf("APICredential() error = %v", err)
		}
		if cred.Token != "id-token" {
			t.Errorf("Token = %q, want %q", cred.Token, "id-token")
		}
	}
	if dir.Calls() != 1 {
		t.Errorf("directory calls = %d, want 1", dir.Calls())
	}

	b.Invalidate()
	if _, err := b.APICredential(ctx); err != nil {
		t.Fatalf("APICredential() after invalidate error = %v", err)
	}
	if dir.Calls() != 2 {
		t.Errorf("directory calls after invalidate = %d, want 2", dir.Calls())
	}
}

func TestShadowRenewalSeedsAPICredential(t *testing.T) {
	b, dir, _, _ := newTestBroker()
	ctx := context.Background()

	if _, err := b.ShadowCredential(ctx); err != nil {
		t.Fatalf("ShadowCredential() error = %v", err)
	}
	if _, err := b.APICredential(ctx); err != nil {
		t.Fatalf("APICredential() error = %v", err)
	}
	if dir.Calls() != 1 {
		t.Errorf("directory calls = %d, want 1", dir.Calls())
	}
}

func TestInvalidateForcesShadowRenewal(t *testing.T) {
	b, _, fed, _ := newTestBroker()
	ctx := context.Background()

	if _, err := b.ShadowCredential(ctx); err != nil {
		t.Fatalf("ShadowCredential() error = %v", err)
	}
	b.Invalidate()
	if _, err := b.ShadowCredential(ctx); err != nil {
		t.Fatalf("ShadowCredential() error = %v", err)
	}
	if fed.Calls() != 2 {
		t.Errorf("federator calls = %d, want 2", fed.Calls())
	}
}

func TestInvalidateIfKeepsRenewedCredential(t *testing.T) {
	b, dir, fed, clock := newTestBroker()
	ctx := context.Background()

	stale, err := b.ShadowCredential(ctx)
	if err != nil {
		t.Fatalf("ShadowCredential() error = %v", err)
	}

	// First rejected caller clears the cache and renews.
	if !b.InvalidateIf(stale) {
		t.Fatal("InvalidateIf(stale) = false, want true")
	}
	clock.Advance(time.Second)
	renewed, err := b.ShadowCredential(ctx)
	if err != nil {
		t.Fatalf("ShadowCredential() error = %v", err)
	}

	// Second caller was rejected with the same stale credential.
	if b.InvalidateIf(stale) {
		t.Error("InvalidateIf(stale) after renewal = true, want false")
	}

	got, err := b.ShadowCredential(ctx)
	if err != nil {
		t.Fatalf("ShadowCredential() error = %v", err)
	}
	if !got.ExpiresAt.Equal(renewed.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want renewed %v", got.ExpiresAt, renewed.ExpiresAt)
	}
	if dir.Calls() != 2 || fed.Calls() != 2 {
		t.Errorf("directory calls = %d, federator calls = %d, want 2 and 2", dir.Calls(), fed.Calls())
	}
}

func TestIdentityStringRedactsPassword(t *testing.T) {
	id := NewIdentity("user@example.com", "hunter2")
	s := id.String()

	if strings.Contains(s, "hunter2") {
		t.Errorf("String() leaked password: %s", s)
	}
	if !strings.Contains(s, "user@example.com") {
		t.Errorf("String() = %s, want username", s)
	}
}
