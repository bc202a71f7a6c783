// Package operrors classifies operator errors into the three tiers every
// caller (reconciler, webhook, CLI) needs to react to differently:
// transient (retry), configuration (surface to the user, do not retry),
// and fatal (stop the process).
package operrors

import (
	"errors"
	"fmt"
)

// Tier is the closed set of error classifications.
type Tier string

const (
	Transient     Tier = "transient"
	Configuration Tier = "configuration"
	Fatal         Tier = "fatal"
)

// Error wraps an underlying error with its operational tier.
type Error struct {
	Tier Tier
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("operrors: [%s] %s: %v", e.Tier, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewTransient wraps err as a retryable failure: API server timeouts,
// conflict errors, lease contention.
func NewTransient(op string, err error) error {
	return &Error{Tier: Transient, Op: op, Err: err}
}

// NewConfiguration wraps err as a non-retryable operator mistake: an invalid
// DevOpsPolicy spec, a malformed config file, an unparseable patch body.
func NewConfiguration(op string, err error) error {
	return &Error{Tier: Configuration, Op: op, Err: err}
}

// NewFatal wraps err as unrecoverable: the process should exit rather than
// keep serving with a broken dependency (no kube client, no listener).
func NewFatal(op string, err error) error {
	return &Error{Tier: Fatal, Op: op, Err: err}
}

// IsTransient reports whether err (or any error it wraps) is tagged transient.
func IsTransient(err error) bool { return tierIs(err, Transient) }

// IsConfiguration reports whether err (or any error it wraps) is tagged configuration.
func IsConfiguration(err error) bool { return tierIs(err, Configuration) }

// IsFatal reports whether err (or any error it wraps) is tagged fatal.
func IsFatal(err error) bool { return tierIs(err, Fatal) }

func tierIs(err error, tier Tier) bool {
	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr.Tier == tier
	}
	return false
}

// Sentinel configuration errors for policy and credential failures. No
// package in this module returns them; policy lookup and client setup
// report their own wrapped errors.
var (
	ErrPolicyNotFound  = errors.New("operrors: no DevOpsPolicy found for namespace")
	ErrInvalidPolicy   = errors.New("operrors: DevOpsPolicy spec failed validation")
	ErrNoKubeConfig    = errors.New("operrors: no in-cluster or kubeconfig credentials available")
)
