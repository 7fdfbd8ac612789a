// Package buildinfo exposes version information injected at build time.
//
//	go build -ldflags "-X github.com/yndnr/tokenkeeper/internal/infra/buildinfo.Version=v1.0.0 \
//	  -X github.com/yndnr/tokenkeeper/internal/infra/buildinfo.Commit=abc123"
//
// Values not set by ldflags fall back to the module and VCS data the Go
// toolchain embeds in the binary.
package buildinfo
