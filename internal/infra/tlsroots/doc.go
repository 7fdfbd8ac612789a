// Package tlsroots builds TLS configurations from PEM files.
//
//   - roots.go: Trust pools and client configs (system roots plus a CA file)
//   - watcher.go: A server key pair that reloads when its files change
package tlsroots
