package cognito

import (
	"context"
	"errors"
	"fmt"
	"time"

	cognitosrp "github.com/alexrudd/cognito-srp/v4"
	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/aws/smithy-go"

	"github.com/nerrad567/gray-logic-conga/internal/conga"
)

// UserPoolAPI is the subset of the user pool client used by Directory.
type UserPoolAPI interface {
	InitiateAuth(ctx context.Context, params *cip.InitiateAuthInput, optFns ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	RespondToAuthChallenge(ctx context.Context, params *cip.RespondToAuthChallengeInput, optFns ...func(*cip.Options)) (*cip.RespondToAuthChallengeOutput, error)
}

// Directory authenticates accounts against a Cognito user pool.
type Directory struct {
	api      UserPoolAPI
	poolID   string
	clientID string
	now      func() time.Time
}

// NewDirectory creates a Directory for the given user pool and app client.
//
// Parameters:
//   - region: AWS region of the user pool
//   - poolID: User pool id, e.g. "eu-west-2_AbCdEf"
//   - clientID: App client id (no client secret)
func NewDirectory(region, poolID, clientID string) *Directory {
	client := cip.New(cip.Options{
		Region:      region,
		Credentials: aws.AnonymousCredentials{},
	})
	return NewDirectoryWithAPI(client, poolID, clientID)
}

// NewDirectoryWithAPI creates a Directory using an existing client.
func NewDirectoryWithAPI(api UserPoolAPI, poolID, clientID string) *Directory {
	return &Directory{
		api:      api,
		poolID:   poolID,
		clientID: clientID,
		now:      time.Now,
	}
}

// Authenticate runs the SRP flow for identity and returns its id token.
func (d *Directory) Authenticate(ctx context.Context, identity conga.Identity) (string, error) {
	csrp, err := cognitosrp.NewCognitoSRP(identity.Username(), identity.Password(), d.poolID, d.clientID, nil)
	if err != nil {
		return "", fmt.Errorf("%w: preparing srp: %w", conga.ErrAuthentication, err)
	}

	initOut, err := d.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow:       ciptypes.AuthFlowTypeUserSrpAuth,
		ClientId:       aws.String(csrp.GetClientId()),
		AuthParameters: csrp.GetAuthParams(),
	})
	if err != nil {
		return "", mapError(err, conga.ErrAuthentication)
	}
	if initOut.ChallengeName != ciptypes.ChallengeNameTypePasswordVerifier {
		return "", fmt.Errorf("%w: unexpected challenge %q", conga.ErrAuthentication, initOut.ChallengeName)
	}

	responses, err := csrp.PasswordVerifierChallenge(initOut.ChallengeParameters, d.now())
	if err != nil {
		return "", fmt.Errorf("%w: password verifier: %w", conga.ErrAuthentication, err)
	}

	out, err := d.api.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
		ChallengeName:      ciptypes.ChallengeNameTypePasswordVerifier,
		ChallengeResponses: responses,
		ClientId:           aws.String(csrp.GetClientId()),
	})
	if err != nil {
		return "", mapError(err, conga.ErrAuthentication)
	}
	if out.AuthenticationResult == nil || aws.ToString(out.AuthenticationResult.IdToken) == "" {
		return "", fmt.Errorf("%w: no id token in authentication result", conga.ErrAuthentication)
	}

	return aws.ToString(out.AuthenticationResult.IdToken), nil
}

// throttlingCodes are client-fault error codes that mean "retry later"
// rather than a rejected account.
var throttlingCodes = map[string]bool{
	"TooManyRequestsException": true,
	"LimitExceededException":   true,
	"ThrottlingException":      true,
}

// mapError classifies a Cognito error. Rejections by the service map to
// rejected; throttling and failures that never produced a service
// response map to conga.ErrDeviceUnreachable.
func mapError(err error, rejected error) error {
	var (
		notAuthorized *ciptypes.NotAuthorizedException
		userNotFound  *ciptypes.UserNotFoundException
		apiErr        smithy.APIError
	)
	switch {
	case errors.As(err, &notAuthorized), errors.As(err, &userNotFound):
		return fmt.Errorf("%w: %w", rejected, err)
	case errors.As(err, &apiErr):
		if throttlingCodes[apiErr.ErrorCode()] {
			return fmt.Errorf("%w: throttled: %w", conga.ErrDeviceUnreachable, err)
		}
		if apiErr.ErrorFault() == smithy.FaultClient {
			return fmt.Errorf("%w: %w", rejected, err)
		}
		return fmt.Errorf("%w: %w", conga.ErrDeviceUnreachable, err)
	default:
		return fmt.Errorf("%w: %w", conga.ErrDeviceUnreachable, err)
	}
}
