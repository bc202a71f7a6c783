// Package watchagg implements the real-time watch aggregator (§4.F): a
// single-writer leader election over a Lease, unconditional pod-event
// aggregation into per-namespace and cluster-wide health scores, and an
// HTTP surface exposing them as Prometheus gauges.
package watchagg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	coordinationv1 "k8s.io/api/coordination/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/google/uuid"
)

const (
	LeaseName      = "kube-devops-operator-watch"
	LeaseNamespace = "kube-system"
)

// HolderIdentity returns this process's lease identity: hostname plus a
// random suffix, so two replicas on the same node never collide (§9 open
// question 1).
func HolderIdentity() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// AcquireLease attempts to become (or remain) the lease holder: creates
// the lease if absent, or takes it over if the current holder's identity
// matches ours or its renew time has expired relative to duration.
func AcquireLease(ctx context.Context, client kubernetes.Interface, identity string, duration time.Duration) (bool, error) {
	lease, err := client.CoordinationV1().Leases(LeaseNamespace).Get(ctx, LeaseName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return createLease(ctx, client, identity, duration)
	}
	if err != nil {
		return false, fmt.Errorf("failed to get lease %s/%s: %w", LeaseNamespace, LeaseName, err)
	}

	if lease.Spec.HolderIdentity != nil && *lease.Spec.HolderIdentity == identity {
		return renewLease(ctx, client, lease, duration)
	}

	if leaseExpired(lease, duration) {
		return takeoverLease(ctx, client, lease, identity, duration)
	}

	return false, nil
}

func createLease(ctx context.Context, client kubernetes.Interface, identity string, duration time.Duration) (bool, error) {
	now := metav1.NowMicro()
	durationSeconds := int32(duration.Seconds())
	lease := &coordinationv1.Lease{
		ObjectMeta: metav1.ObjectMeta{Name: LeaseName, Namespace: LeaseNamespace},
		Spec: coordinationv1.LeaseSpec{
			HolderIdentity:       &identity,
			LeaseDurationSeconds: &durationSeconds,
			RenewTime:            &now,
		},
	}
	_, err := client.CoordinationV1().Leases(LeaseNamespace).Create(ctx, lease, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		// Lost the create race; someone else holds it now.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create lease %s/%s: %w", LeaseNamespace, LeaseName, err)
	}
	return true, nil
}

func renewLease(ctx context.Context, client kubernetes.Interface, lease *coordinationv1.Lease, duration time.Duration) (bool, error) {
	now := metav1.NowMicro()
	lease.Spec.RenewTime = &now
	durationSeconds := int32(duration.Seconds())
	lease.Spec.LeaseDurationSeconds = &durationSeconds
	_, err := client.CoordinationV1().Leases(LeaseNamespace).Update(ctx, lease, metav1.UpdateOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to renew lease %s/%s: %w", LeaseNamespace, LeaseName, err)
	}
	return true, nil
}

func takeoverLease(ctx context.Context, client kubernetes.Interface, lease *coordinationv1.Lease, identity string, duration time.Duration) (bool, error) {
	now := metav1.NowMicro()
	lease.Spec.HolderIdentity = &identity
	lease.Spec.RenewTime = &now
	durationSeconds := int32(duration.Seconds())
	lease.Spec.LeaseDurationSeconds = &durationSeconds
	_, err := client.CoordinationV1().Leases(LeaseNamespace).Update(ctx, lease, metav1.UpdateOptions{})
	if apierrors.IsConflict(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to take over lease %s/%s: %w", LeaseNamespace, LeaseName, err)
	}
	return true, nil
}

func leaseExpired(lease *coordinationv1.Lease, duration time.Duration) bool {
	if lease.Spec.RenewTime == nil {
		return true
	}
	return time.Since(lease.Spec.RenewTime.Time) > duration
}

// RunLeaseLoop acquires the lease and renews it every renewInterval until
// ctx is cancelled, invoking onAcquired/onLost on state transitions.
func RunLeaseLoop(ctx context.Context, client kubernetes.Interface, identity string, duration, renewInterval time.Duration, onAcquired, onLost func()) {
	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	held := false
	for {
		acquired, err := AcquireLease(ctx, client, identity, duration)
		if err != nil {
			slog.Error("lease renewal failed", "error", err)
		}
		if acquired && !held {
			held = true
			onAcquired()
		} else if !acquired && held {
			held = false
			onLost()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
