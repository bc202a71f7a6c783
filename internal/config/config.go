// Package config provides configuration loading for the operator. Values
// not required by a given subcommand fall back to the built-in defaults
// documented per field; everything else must be set explicitly.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all operator configuration.
type Config struct {
	Reconciler   ReconcilerConfig   `yaml:"reconciler"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	Watch        WatchConfig        `yaml:"watch"`
	Audit        AuditConfig        `yaml:"audit"`
	MultiCluster MultiClusterConfig `yaml:"multiCluster"`
}

// ReconcilerConfig configures the DevOpsPolicy reconcile loop.
type ReconcilerConfig struct {
	RequeueIntervalSeconds      int `yaml:"requeueIntervalSeconds"`
	ErrorRequeueIntervalSeconds int `yaml:"errorRequeueIntervalSeconds"`
}

// RequeueInterval returns the normal requeue interval, defaulting to 30s.
func (r *ReconcilerConfig) RequeueInterval() time.Duration {
	if r.RequeueIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.RequeueIntervalSeconds) * time.Second
}

// ErrorRequeueInterval returns the post-error requeue interval, defaulting to 60s.
func (r *ReconcilerConfig) ErrorRequeueInterval() time.Duration {
	if r.ErrorRequeueIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(r.ErrorRequeueIntervalSeconds) * time.Second
}

// WebhookConfig configures the validating admission webhook server.
type WebhookConfig struct {
	ListenAddr  string `yaml:"listenAddr"`
	TLSCertPath string `yaml:"tlsCertPath"`
	TLSKeyPath  string `yaml:"tlsKeyPath"`
	MinSeverity string `yaml:"minSeverity"`
}

// WatchConfig configures the real-time watch aggregator and its leader lease.
type WatchConfig struct {
	ListenAddr           string `yaml:"listenAddr"`
	LeaseDurationSeconds int    `yaml:"leaseDurationSeconds"`
	RenewIntervalSeconds int    `yaml:"renewIntervalSeconds"`
}

// LeaseDuration returns the lease duration, defaulting to 15s.
func (w *WatchConfig) LeaseDuration() time.Duration {
	if w.LeaseDurationSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(w.LeaseDurationSeconds) * time.Second
}

// RenewInterval returns the lease renewal interval, defaulting to 5s.
func (w *WatchConfig) RenewInterval() time.Duration {
	if w.RenewIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(w.RenewIntervalSeconds) * time.Second
}

// AuditConfig configures PolicyAuditResult retention.
type AuditConfig struct {
	RetentionCount int `yaml:"retentionCount"`
}

// Retention returns the per-policy audit result retention count, defaulting to 10.
func (a *AuditConfig) Retention() int {
	if a.RetentionCount <= 0 {
		return 10
	}
	return a.RetentionCount
}

// MultiClusterConfig configures the multi-cluster analyze command.
type MultiClusterConfig struct {
	KubeconfigPath     string `yaml:"kubeconfigPath"`
	ConcurrentClusters int    `yaml:"concurrentClusters"`
}

// Concurrency returns the per-context evaluation concurrency, defaulting to 4.
func (m *MultiClusterConfig) Concurrency() int {
	if m.ConcurrentClusters <= 0 {
		return 4
	}
	return m.ConcurrentClusters
}

// Load reads configuration from a YAML file. A missing path is not an
// error: the caller runs with built-in defaults throughout.
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that any explicitly-set fields are in range. Unset
// fields (zero value) are left to their documented defaults.
func (c *Config) Validate() error {
	if c.Reconciler.RequeueIntervalSeconds < 0 {
		return fmt.Errorf("reconciler.requeueIntervalSeconds must be >= 0")
	}
	if c.Reconciler.ErrorRequeueIntervalSeconds < 0 {
		return fmt.Errorf("reconciler.errorRequeueIntervalSeconds must be >= 0")
	}
	if c.Watch.LeaseDurationSeconds < 0 {
		return fmt.Errorf("watch.leaseDurationSeconds must be >= 0")
	}
	if c.Watch.RenewIntervalSeconds < 0 {
		return fmt.Errorf("watch.renewIntervalSeconds must be >= 0")
	}
	if c.Watch.LeaseDurationSeconds > 0 && c.Watch.RenewIntervalSeconds > 0 &&
		c.Watch.RenewIntervalSeconds >= c.Watch.LeaseDurationSeconds {
		return fmt.Errorf("watch.renewIntervalSeconds must be less than watch.leaseDurationSeconds")
	}
	if c.Audit.RetentionCount < 0 {
		return fmt.Errorf("audit.retentionCount must be >= 0")
	}
	if c.MultiCluster.ConcurrentClusters < 0 {
		return fmt.Errorf("multiCluster.concurrentClusters must be >= 0")
	}
	return nil
}
