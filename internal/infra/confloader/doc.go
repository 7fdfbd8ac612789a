// Package confloader loads layered configuration with koanf and watches
// the configuration file for changes.
//
// Priority (highest to lowest):
//
//  1. Environment variables (TOKENKEEPER_SECTION_KEY)
//  2. Configuration file (YAML)
//  3. Values already present in the target struct (defaults)
package confloader
