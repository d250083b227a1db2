package conga

import (
	"context"
	"errors"
	"net/http"
)

// FacadeOptions configures a DeviceFacade.
type FacadeOptions struct {
	// Identity is the account all credentials are derived from.
	Identity Identity

	// Directory authenticates Identity. Required.
	Directory Directory

	// Federator exchanges identity tokens for shadow credentials. Required.
	Federator Federator

	// Transport submits shadow requests. Required.
	Transport ShadowTransport

	// APIURL is the REST API base URL. Required.
	APIURL string

	// HTTPClient is used for REST calls. Optional.
	HTTPClient *http.Client

	// Logger receives component logs. Optional.
	Logger Logger
}

// DeviceFacade is the single entry point to one vacuum cloud account.
//
// Thread Safety: All methods are safe for concurrent use.
type DeviceFacade struct {
	broker     *CredentialBroker
	api        *APIClient
	shadows    *ShadowClient
	plans      *PlanRegistry
	dispatcher *CommandDispatcher
	logger     Logger
}

// NewDeviceFacade wires a facade from opts. No network calls are made.
//
// Returns:
//   - *DeviceFacade: Ready facade
//   - error: If a required option is missing
func NewDeviceFacade(opts FacadeOptions) (*DeviceFacade, error) {
	if opts.Identity.Username() == "" {
		return nil, errors.New("conga: identity username is required")
	}
	if opts.Directory == nil {
		return nil, errors.New("conga: directory is required")
	}
	if opts.Federator == nil {
		return nil, errors.New("conga: federator is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("conga: shadow transport is required")
	}
	if opts.APIURL == "" {
		return nil, errors.New("conga: api url is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	broker := NewCredentialBroker(opts.Identity, opts.Directory, opts.Federator)
	broker.SetLogger(logger)

	api := NewAPIClient(opts.APIURL, broker, opts.HTTPClient)
	api.SetLogger(logger)

	shadows := NewShadowClient(broker, opts.Transport)
	shadows.SetLogger(logger)

	plans := NewPlanRegistry(api)
	plans.SetLogger(logger)

	dispatcher := NewCommandDispatcher(shadows, plans)
	dispatcher.SetLogger(logger)

	return &DeviceFacade{
		broker:     broker,
		api:        api,
		shadows:    shadows,
		plans:      plans,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// ListDevices returns the vacuums registered to the account.
func (f *DeviceFacade) ListDevices(ctx context.Context) ([]Device, error) {
	return f.api.ListDevices(ctx)
}

// GetStatus fetches the shadow of serial and derives its status.
func (f *DeviceFacade) GetStatus(ctx context.Context, serial string) (Status, error) {
	doc, err := f.shadows.GetShadow(ctx, serial)
	if err != nil {
		return Status{}, err
	}
	return StatusFromShadow(doc), nil
}

// Shadow returns the raw decoded shadow document of serial.
func (f *DeviceFacade) Shadow(ctx context.Context, serial string) (*ShadowDocument, error) {
	return f.shadows.GetShadow(ctx, serial)
}

// Issue sends cmd to serial.
func (f *DeviceFacade) Issue(ctx context.Context, serial string, cmd Command) error {
	return f.dispatcher.Issue(ctx, serial, cmd)
}

// RefreshPlans reloads the plan cache from serial's plan listing.
func (f *DeviceFacade) RefreshPlans(ctx context.Context, serial string) []Plan {
	return f.plans.Refresh(ctx, serial)
}

// Plans returns the cached plans.
func (f *DeviceFacade) Plans() []Plan {
	return f.plans.Plans()
}

// PlanNames returns the cached plan names.
func (f *DeviceFacade) PlanNames() []string {
	return f.plans.Names()
}
