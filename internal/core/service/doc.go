// Package service implements the token lifecycle.
//
// Domain services contain the business rules and depend on storage only
// through the TokenStore interface:
//
//   - TokenService: issue, validate and revoke tokens; the only component
//     that decides what a token's state means
//   - TokenCleaner: an owned background handle that periodically deletes
//     expired and revoked records
//
// Both are safe for concurrent use. Time and randomness are injected so
// tests can drive expiry with a fake clock and force secret collisions.
package service
