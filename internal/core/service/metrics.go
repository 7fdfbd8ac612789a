package service

import "time"

// Metrics receives lifecycle events. *metric.Registry implements it.
type Metrics interface {
	TokenIssued()
	IssueRetried()
	TokenValidated(result string)
	TokenRevoked()
	SweepFinished(deleted, failed int, elapsed time.Duration, listed bool, at time.Time)
}

type nopMetrics struct{}

func (nopMetrics) TokenIssued() {}
func (nopMetrics) IssueRetried() {}
func (nopMetrics) TokenValidated(string) {}
func (nopMetrics) TokenRevoked() {}
func (nopMetrics) SweepFinished(int, int, time.Duration, bool, time.Time) {}
