package conga

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// mockDirectory implements Directory for testing.
type mockDirectory struct {
	mu    sync.Mutex
	calls int
	token string
	err   error
}

func (m *mockDirectory) Authenticate(_ context.Context, _ Identity) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.token, nil
}

func (m *mockDirectory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockFederator implements Federator for testing.
type mockFederator struct {
	mu       sync.Mutex
	calls    int
	lifetime time.Duration
	now      func() time.Time
	err      error
	tokens   []string
}

func (m *mockFederator) Federate(_ context.Context, idToken string) (ShadowCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.tokens = append(m.tokens, idToken)
	if m.err != nil {
		return ShadowCredential{}, m.err
	}
	return ShadowCredential{
		IdentityID:      "eu-west-2:identity",
		AccessKeyID:     "AKIA" + idToken,
		SecretAccessKey: "secret",
		SessionToken:    "session",
		ExpiresAt:       m.now().Add(m.lifetime),
	}, nil
}

func (m *mockFederator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newTestBroker returns a broker with a fake clock and one-hour credentials.
func newTestBroker() (*CredentialBroker, *mockDirectory, *mockFederator, *fakeClock) {
	clock := newFakeClock()
	dir := &mockDirectory{token: "id-token"}
	fed := &mockFederator{lifetime: time.Hour, now: clock.Now}
	b := NewCredentialBroker(NewIdentity("user@example.com", "hunter2"), dir, fed)
	b.now = clock.Now
	return b, dir, fed, clock
}

// shadowCall records one transport call.
type shadowCall struct {
	Op         string
	Thing      string
	ShadowName string
	Payload    []byte
	AccessKey  string
}

// mockTransport implements ShadowTransport for testing.
type mockTransport struct {
	mu       sync.Mutex
	calls    []shadowCall
	document []byte

	// errs is consumed one per call; nil entries succeed.
	errs []error
}

func (m *mockTransport) next() error {
	if len(m.errs) == 0 {
		return nil
	}
	err := m.errs[0]
	m.errs = m.errs[1:]
	return err
}

func (m *mockTransport) GetShadow(_ context.Context, cred ShadowCredential, thing, shadowName string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, shadowCall{Op: "get", Thing: thing, ShadowName: shadowName, AccessKey: cred.AccessKeyID})
	if err := m.next(); err != nil {
		return nil, err
	}
	return m.document, nil
}

func (m *mockTransport) UpdateShadow(_ context.Context, cred ShadowCredential, thing, shadowName string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, shadowCall{Op: "update", Thing: thing, ShadowName: shadowName, Payload: payload, AccessKey: cred.AccessKeyID})
	return m.next()
}

func (m *mockTransport) Calls() []shadowCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]shadowCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// mockPlanLister implements planLister for testing.
type mockPlanLister struct {
	items []json.RawMessage
	err   error
	calls int
}

func (m *mockPlanLister) ListPlanItems(_ context.Context, _ string) ([]json.RawMessage, error) {
	m.calls++
	return m.items, m.err
}

// mockPatcher implements desiredPatcher for testing.
type mockPatcher struct {
	mu      sync.Mutex
	patches []patch
	err     error
}

type patch struct {
	Serial     string
	Fragment   []byte
	ShadowName string
}

func (m *mockPatcher) PatchDesired(_ context.Context, serial string, fragment any, shadowName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := json.Marshal(fragment)
	if err != nil {
		return err
	}
	m.patches = append(m.patches, patch{Serial: serial, Fragment: b, ShadowName: shadowName})
	return m.err
}

func (m *mockPatcher) Patches() []patch {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]patch, len(m.patches))
	copy(out, m.patches)
	return out
}

// staticPlans implements planFinder for testing.
type staticPlans map[string]Plan

func (s staticPlans) Find(name string) (Plan, bool) {
	p, ok := s[name]
	return p, ok
}
