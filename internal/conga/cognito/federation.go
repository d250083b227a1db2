package cognito

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ci "github.com/aws/aws-sdk-go-v2/service/cognitoidentity"
	citypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentity/types"

	"github.com/nerrad567/gray-logic-conga/internal/conga"
)

// IdentityPoolAPI is the subset of the identity pool client used by
// Federator.
type IdentityPoolAPI interface {
	GetId(ctx context.Context, params *ci.GetIdInput, optFns ...func(*ci.Options)) (*ci.GetIdOutput, error)
	GetCredentialsForIdentity(ctx context.Context, params *ci.GetCredentialsForIdentityInput, optFns ...func(*ci.Options)) (*ci.GetCredentialsForIdentityOutput, error)
}

// Federator exchanges user pool id tokens for identity pool credentials.
type Federator struct {
	api            IdentityPoolAPI
	identityPoolID string
	provider       string
}

// NewFederator creates a Federator.
//
// Parameters:
//   - region: AWS region of both pools
//   - identityPoolID: Identity pool id, e.g. "eu-west-2:uuid"
//   - userPoolID: User pool that issued the id tokens
func NewFederator(region, identityPoolID, userPoolID string) *Federator {
	client := ci.New(ci.Options{
		Region:      region,
		Credentials: aws.AnonymousCredentials{},
	})
	return NewFederatorWithAPI(client, region, identityPoolID, userPoolID)
}

// NewFederatorWithAPI creates a Federator using an existing client.
func NewFederatorWithAPI(api IdentityPoolAPI, region, identityPoolID, userPoolID string) *Federator {
	return &Federator{
		api:            api,
		identityPoolID: identityPoolID,
		provider:       LoginProvider(region, userPoolID),
	}
}

// LoginProvider returns the identity pool login key for a user pool.
func LoginProvider(region, userPoolID string) string {
	return fmt.Sprintf("cognito-idp.%s.amazonaws.com/%s", region, userPoolID)
}

// Federate resolves the identity for idToken and fetches its temporary
// credentials.
func (f *Federator) Federate(ctx context.Context, idToken string) (conga.ShadowCredential, error) {
	logins := map[string]string{f.provider: idToken}

	idOut, err := f.api.GetId(ctx, &ci.GetIdInput{
		IdentityPoolId: aws.String(f.identityPoolID),
		Logins:         logins,
	})
	if err != nil {
		return conga.ShadowCredential{}, mapFederationError(err)
	}
	identityID := aws.ToString(idOut.IdentityId)
	if identityID == "" {
		return conga.ShadowCredential{}, fmt.Errorf("%w: empty identity id", conga.ErrFederation)
	}

	credOut, err := f.api.GetCredentialsForIdentity(ctx, &ci.GetCredentialsForIdentityInput{
		IdentityId: aws.String(identityID),
		Logins:     logins,
	})
	if err != nil {
		return conga.ShadowCredential{}, mapFederationError(err)
	}

	c := credOut.Credentials
	if c == nil || aws.ToString(c.AccessKeyId) == "" || c.Expiration == nil {
		return conga.ShadowCredential{}, fmt.Errorf("%w: incomplete credentials for %s", conga.ErrFederation, identityID)
	}

	return conga.ShadowCredential{
		IdentityID:      identityID,
		AccessKeyID:     aws.ToString(c.AccessKeyId),
		SecretAccessKey: aws.ToString(c.SecretKey),
		SessionToken:    aws.ToString(c.SessionToken),
		ExpiresAt:       *c.Expiration,
	}, nil
}

func mapFederationError(err error) error {
	var (
		notAuthorized *citypes.NotAuthorizedException
		notFound      *citypes.ResourceNotFoundException
	)
	if errors.As(err, &notAuthorized) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %w", conga.ErrFederation, err)
	}
	return mapError(err, conga.ErrFederation)
}
