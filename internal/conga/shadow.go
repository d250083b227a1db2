package conga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ServiceShadow is the named sub-shadow that carries command requests
// (start, return home, timed plans). Settings such as fan speed and water
// level are written to the classic, unnamed shadow.
const ServiceShadow = "service"

// maxShadowAttempts bounds a shadow operation: the first attempt plus one
// retry after an authorisation failure.
const maxShadowAttempts = 2

// ShadowTransport submits signed requests to the shadow service.
//
// shadowName is empty for the classic shadow. Implementations return
// ErrAuthorization when the service rejects the credentials, ErrNotFound when
// the thing or shadow does not exist, and ErrDeviceUnreachable for anything
// else.
type ShadowTransport interface {
	GetShadow(ctx context.Context, cred ShadowCredential, thingName, shadowName string) ([]byte, error)
	UpdateShadow(ctx context.Context, cred ShadowCredential, thingName, shadowName string, payload []byte) error
}

// shadowCredentialSource supplies shadow credentials.
// Satisfied by *CredentialBroker.
type shadowCredentialSource interface {
	ShadowCredential(ctx context.Context) (ShadowCredential, error)
	InvalidateIf(stale ShadowCredential) bool
}

// ShadowDocument is a decoded device shadow.
type ShadowDocument struct {
	Reported  map[string]any
	Desired   map[string]any
	Version   int64
	Timestamp int64
}

// shadowWire is the on-the-wire shadow document.
type shadowWire struct {
	State struct {
		Reported map[string]any `json:"reported"`
		Desired  map[string]any `json:"desired"`
	} `json:"state"`
	Version   int64 `json:"version"`
	Timestamp int64 `json:"timestamp"`
}

// desiredUpdate is the only document shape ever written: the fragment
// nested under state.desired. Reported state is never written.
type desiredUpdate struct {
	State desiredState `json:"state"`
}

type desiredState struct {
	Desired any `json:"desired"`
}

// ShadowClient reads and writes device shadows on behalf of one account.
//
// Thread Safety: All methods are safe for concurrent use.
type ShadowClient struct {
	credentials shadowCredentialSource
	transport   ShadowTransport
	logger      Logger
}

// NewShadowClient creates a ShadowClient.
func NewShadowClient(credentials shadowCredentialSource, transport ShadowTransport) *ShadowClient {
	return &ShadowClient{
		credentials: credentials,
		transport:   transport,
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (s *ShadowClient) SetLogger(logger Logger) {
	s.logger = logger
}

// GetShadow fetches and decodes the classic shadow of a device.
//
// Parameters:
//   - ctx: Context for cancellation
//   - serial: Device serial number, used as the thing name
//
// Returns:
//   - *ShadowDocument: Decoded document; Reported and Desired are never nil
//   - error: ErrNotFound, ErrAuthorization, ErrDeviceUnreachable or ErrInvalidResponse
func (s *ShadowClient) GetShadow(ctx context.Context, serial string) (*ShadowDocument, error) {
	if serial == "" {
		return nil, fmt.Errorf("%w: empty serial number", ErrNotFound)
	}

	var raw []byte
	err := s.withCredentials(ctx, "get", serial, func(cred ShadowCredential) error {
		var err error
		raw, err = s.transport.GetShadow(ctx, cred, serial, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	return decodeShadow(raw)
}

// PatchDesired writes fragment into the desired section of a device shadow.
//
// Parameters:
//   - ctx: Context for cancellation
//   - serial: Device serial number, used as the thing name
//   - fragment: Value marshalled as the desired state
//   - shadowName: Empty for the classic shadow, or ServiceShadow
//
// Returns:
//   - error: ErrNotFound, ErrAuthorization, ErrDeviceUnreachable or ErrInvalidCommand
func (s *ShadowClient) PatchDesired(ctx context.Context, serial string, fragment any, shadowName string) error {
	if serial == "" {
		return fmt.Errorf("%w: empty serial number", ErrNotFound)
	}

	payload, err := json.Marshal(desiredUpdate{State: desiredState{Desired: fragment}})
	if err != nil {
		return fmt.Errorf("%w: encoding desired state: %w", ErrInvalidCommand, err)
	}

	err = s.withCredentials(ctx, "update", serial, func(cred ShadowCredential) error {
		return s.transport.UpdateShadow(ctx, cred, serial, shadowName, payload)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("shadow desired state updated",
		"serial", serial,
		"shadow", shadowLabel(shadowName),
		"payload_size", len(payload))
	return nil
}

// withCredentials runs op with the current shadow credential. An
// authorisation failure invalidates the rejected credential and op runs
// once more with fresh credentials; a second failure is returned to the
// caller.
func (s *ShadowClient) withCredentials(ctx context.Context, action, serial string, op func(ShadowCredential) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxShadowAttempts; attempt++ {
		cred, err := s.credentials.ShadowCredential(ctx)
		if err != nil {
			return err
		}

		err = op(cred)
		if err == nil {
			return nil
		}

		lastErr = typed(err, ErrDeviceUnreachable)
		if !errors.Is(lastErr, ErrAuthorization) {
			return lastErr
		}

		s.logger.Warn("shadow request unauthorised",
			"action", action,
			"serial", serial,
			"attempt", attempt)
		s.credentials.InvalidateIf(cred)
	}
	return lastErr
}

// decodeShadow parses a raw shadow document.
func decodeShadow(raw []byte) (*ShadowDocument, error) {
	var wire shadowWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: shadow document: %w", ErrInvalidResponse, err)
	}

	doc := &ShadowDocument{
		Reported:  wire.State.Reported,
		Desired:   wire.State.Desired,
		Version:   wire.Version,
		Timestamp: wire.Timestamp,
	}
	if doc.Reported == nil {
		doc.Reported = map[string]any{}
	}
	if doc.Desired == nil {
		doc.Desired = map[string]any{}
	}
	return doc, nil
}

func shadowLabel(shadowName string) string {
	if shadowName == "" {
		return "classic"
	}
	return shadowName
}
