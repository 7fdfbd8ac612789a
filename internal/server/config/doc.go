// Package config defines the tokenkeeper server configuration.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Validation run before anything is opened
//   - sanitize.go: Masking of credentials for logs and config show
//   - storage.go: Mapping onto the storage backends
//
// Configuration is loaded via internal/infra/confloader from a YAML file
// and TOKENKEEPER_* environment variables.
package config
