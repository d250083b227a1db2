// Package account wires a configured cloud account into a DeviceFacade
// backed by Cognito and the IoT data plane.
package account

import (
	"net/http"

	"github.com/nerrad567/gray-logic-conga/internal/conga"
	"github.com/nerrad567/gray-logic-conga/internal/conga/cognito"
	"github.com/nerrad567/gray-logic-conga/internal/conga/iotshadow"
	"github.com/nerrad567/gray-logic-conga/internal/infrastructure/config"
)

// Open builds the facade for acct. No network calls are made; the first
// facade call authenticates.
//
// Parameters:
//   - cloud: Shared cloud endpoints and pool identifiers
//   - acct: Account credentials
//   - logger: Receives component logs; may be nil
//
// Returns:
//   - *conga.DeviceFacade: Ready facade
//   - error: If the options are incomplete
func Open(cloud config.CloudConfig, acct config.AccountConfig, logger conga.Logger) (*conga.DeviceFacade, error) {
	httpClient := &http.Client{Timeout: cloud.RequestTimeout}

	return conga.NewDeviceFacade(conga.FacadeOptions{
		Identity:   conga.NewIdentity(acct.Username, acct.Password),
		Directory:  cognito.NewDirectory(cloud.Region, cloud.UserPoolID, cloud.ClientID),
		Federator:  cognito.NewFederator(cloud.Region, cloud.IdentityPoolID, cloud.UserPoolID),
		Transport:  iotshadow.New(cloud.Region, cloud.IoTEndpoint, httpClient),
		APIURL:     cloud.APIURL,
		HTTPClient: httpClient,
		Logger:     logger,
	})
}
