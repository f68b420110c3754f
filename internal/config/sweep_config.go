package config

import "time"

type SweepConfig interface {
	GetSweepInterval() time.Duration
	GetTabTTL() time.Duration
}

type Sweep struct{}

var _ SweepConfig = Sweep{}

func (Sweep) GetSweepInterval() time.Duration {
	return time.Minute
}

// GetTabTTL bounds how long a tab record survives without activity. Tabs
// that crash without a deregister call are dropped after this window.
func (Sweep) GetTabTTL() time.Duration {
	return 24 * time.Hour
}
