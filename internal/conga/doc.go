// Package conga implements the cloud client for Cecotec Conga robot vacuums.
//
// The vacuum cloud keeps one device shadow per robot: a JSON document with a
// "reported" half (owned by the device) and a "desired" half (written by
// clients, reconciled by the device). This package owns everything needed to
// read and write those documents:
//
//   - CredentialBroker: derives and caches the two credential classes
//     (REST bearer token, temporary federated shadow credentials)
//   - APIClient: device and plan listing over the REST API
//   - ShadowClient: shadow reads and partial desired-state writes
//   - PlanRegistry: cached, named cleaning plans
//   - CommandDispatcher: Command values to desired-state fragments
//   - DeviceFacade: the single entry point for collaborators
//
// # Architecture
//
//	┌──────────────┐     ┌──────────────┐     ┌──────────────────┐
//	│ DeviceFacade │────►│ Dispatcher   │────►│ ShadowClient     │──► shadow service
//	└──────┬───────┘     └──────┬───────┘     └────────┬─────────┘
//	       │                    ▼                      ▼
//	       │             ┌──────────────┐     ┌──────────────────┐
//	       └────────────►│ PlanRegistry │     │ CredentialBroker │──► directory, identity pool
//	                     └──────┬───────┘     └────────▲─────────┘
//	                            ▼                      │
//	                     ┌──────────────┐              │
//	                     │ APIClient    │──────────────┘──► REST API
//	                     └──────────────┘
//
// Transport to the directory, the identity pool and the shadow service is
// supplied through the Directory, Federator and ShadowTransport interfaces.
// The AWS implementations live in the cognito and iotshadow subpackages.
//
// # Errors
//
// Every failure is one of the sentinel errors in errors.go, so callers can
// tell "retry later" (ErrDeviceUnreachable) from "fix configuration"
// (ErrAuthentication, ErrFederation) from "bad input" (ErrPlanNotFound,
// ErrInvalidCommand):
//
//	if errors.Is(err, conga.ErrPlanNotFound) {
//	    // ask the user to refresh plans
//	}
//
// # Thread Safety
//
// All exported types are safe for concurrent use. Credential renewal is
// serialised per broker.
package conga
