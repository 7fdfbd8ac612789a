// Package domain defines the core domain models for tokenkeeper.
//
// Domain models are pure values without IO dependencies:
//
//   - Token: an issued credential record and its validity rules
//   - Secret and ID formats: generation, hashing, format checks
//   - Errors: DomainError and the stable error code taxonomy
package domain
