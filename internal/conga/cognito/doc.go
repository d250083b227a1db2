// Package cognito implements the conga.Directory and conga.Federator
// interfaces against Amazon Cognito.
//
// Directory authentication uses the user pool's USER_SRP_AUTH flow, so the
// account password never leaves the process. Federation exchanges the
// resulting identity token for temporary credentials from the identity
// pool:
//
//	Identity --SRP--> user pool --IdToken--> identity pool --> ShadowCredential
//
// Both clients make unsigned requests; the identity token is the only
// authorisation either call needs.
//
// Errors:
//
// Service rejections are mapped onto the conga sentinel errors:
// NotAuthorizedException and UserNotFoundException become
// conga.ErrAuthentication (directory) or conga.ErrFederation (identity pool).
// Anything that never reached the service is conga.ErrDeviceUnreachable.
package cognito
