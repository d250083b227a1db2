// Package auth verifies the bearer tokens accepted by the bridge's HTTP API.
//
// Tokens are HS256 JWTs signed with a secret shared with Gray Logic Core
// (api.auth.jwt_secret). Core mints them for its users; congactl can mint
// one for local testing. The bridge never stores users or sessions: a
// token is valid when its signature and expiry check out, and its role
// decides what it may do.
//
// Roles form three tiers:
//   - viewer: read vacuum state, health and history
//   - operator: everything a viewer can do, plus send commands
//   - admin: everything an operator can do
package auth
