// Package metric provides Prometheus metrics for tokenkeeper.
//
//   - prometheus.go: the registry, token and sweep instruments, HTTP handler
//   - collector.go: collectors that read live values on scrape
//
// Each Registry owns its prometheus.Registry; nothing is registered on the
// process-wide default registerer.
package metric
