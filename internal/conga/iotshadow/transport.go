package iotshadow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane/types"

	"github.com/nerrad567/gray-logic-conga/internal/conga"
)

// credentialSource is the provider name reported for per-call credentials.
const credentialSource = "CongaShadowCredential"

// DataPlaneAPI is the subset of the IoT data plane client used by Transport.
type DataPlaneAPI interface {
	GetThingShadow(ctx context.Context, params *iotdataplane.GetThingShadowInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.GetThingShadowOutput, error)
	UpdateThingShadow(ctx context.Context, params *iotdataplane.UpdateThingShadowInput, optFns ...func(*iotdataplane.Options)) (*iotdataplane.UpdateThingShadowOutput, error)
}

// Transport submits shadow requests to AWS IoT.
type Transport struct {
	api DataPlaneAPI
}

// New creates a Transport for the account-specific IoT data endpoint.
//
// Parameters:
//   - region: AWS region of the endpoint
//   - endpoint: Data endpoint host, with or without scheme
//   - httpClient: Optional HTTP client
func New(region, endpoint string, httpClient *http.Client) *Transport {
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	opts := iotdataplane.Options{
		Region:       region,
		BaseEndpoint: aws.String(endpoint),
	}
	if httpClient != nil {
		opts.HTTPClient = httpClient
	}
	return NewWithAPI(iotdataplane.New(opts))
}

// NewWithAPI creates a Transport using an existing client.
func NewWithAPI(api DataPlaneAPI) *Transport {
	return &Transport{api: api}
}

// GetShadow fetches a shadow document.
func (t *Transport) GetShadow(ctx context.Context, cred conga.ShadowCredential, thingName, shadowName string) ([]byte, error) {
	out, err := t.api.GetThingShadow(ctx, &iotdataplane.GetThingShadowInput{
		ThingName:  aws.String(thingName),
		ShadowName: optionalName(shadowName),
	}, withCredential(cred))
	if err != nil {
		return nil, mapError(err, thingName)
	}
	return out.Payload, nil
}

// UpdateShadow writes a shadow update document.
func (t *Transport) UpdateShadow(ctx context.Context, cred conga.ShadowCredential, thingName, shadowName string, payload []byte) error {
	_, err := t.api.UpdateThingShadow(ctx, &iotdataplane.UpdateThingShadowInput{
		ThingName:  aws.String(thingName),
		ShadowName: optionalName(shadowName),
		Payload:    payload,
	}, withCredential(cred))
	if err != nil {
		return mapError(err, thingName)
	}
	return nil
}

// withCredential signs a single call with cred.
func withCredential(cred conga.ShadowCredential) func(*iotdataplane.Options) {
	return func(o *iotdataplane.Options) {
		o.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     cred.AccessKeyID,
				SecretAccessKey: cred.SecretAccessKey,
				SessionToken:    cred.SessionToken,
				Source:          credentialSource,
				CanExpire:       true,
				Expires:         cred.ExpiresAt,
			}, nil
		})
	}
}

func optionalName(shadowName string) *string {
	if shadowName == "" {
		return nil
	}
	return aws.String(shadowName)
}

// mapError classifies a data plane error.
func mapError(err error, thingName string) error {
	var (
		unauthorized *types.UnauthorizedException
		notFound     *types.ResourceNotFoundException
		respErr      *awshttp.ResponseError
	)
	switch {
	case errors.As(err, &unauthorized):
		return fmt.Errorf("%w: %s: %w", conga.ErrAuthorization, thingName, err)
	case errors.As(err, &notFound):
		return fmt.Errorf("%w: %s: %w", conga.ErrNotFound, thingName, err)
	case errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusForbidden:
		return fmt.Errorf("%w: %s: %w", conga.ErrAuthorization, thingName, err)
	default:
		return fmt.Errorf("%w: %s: %w", conga.ErrDeviceUnreachable, thingName, err)
	}
}
