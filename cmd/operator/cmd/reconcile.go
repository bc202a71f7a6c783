package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/spf13/cobra"
	"github.com/stochasticquant/kube-devops-operator/internal/config"
	"github.com/stochasticquant/kube-devops-operator/internal/k8sclient"
	"github.com/stochasticquant/kube-devops-operator/internal/reconciler"
)

var reconcileScanInterval time.Duration

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run the DevOpsPolicy reconcile loop (§4.E) until shutdown",
	RunE:  runReconcile,
}

func init() {
	reconcileCmd.Flags().DurationVar(&reconcileScanInterval, "scan-interval", 5*time.Second,
		"how often to re-list DevOpsPolicy objects and check each one's requeue due time")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ConfigPath())
	if err != nil {
		return err
	}

	clients, err := k8sclient.New()
	if err != nil {
		return err
	}

	r := &reconciler.Reconciler{
		Typed:                clients.Typed,
		Dynamic:              clients.Dynamic,
		RequeueInterval:      cfg.Reconciler.RequeueInterval(),
		ErrorRequeueInterval: cfg.Reconciler.ErrorRequeueInterval(),
		AuditRetention:       cfg.Audit.Retention(),
	}

	slog.Info("reconciler starting", "scanInterval", reconcileScanInterval)

	nextDue := map[string]time.Time{}
	ticker := time.NewTicker(reconcileScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler shutting down")
			return nil
		case now := <-ticker.C:
			list, err := k8sclient.ListPolicies(ctx, clients.Dynamic)
			if err != nil {
				slog.Error("failed to list DevOpsPolicy objects", "error", err)
				continue
			}
			for i := range list.Items {
				obj := &list.Items[i]
				due, known := nextDue[string(obj.GetUID())]
				if known && now.Before(due) {
					continue
				}
				reconcileOne(ctx, r, obj, nextDue)
			}
		}
	}
}

func reconcileOne(ctx context.Context, r *reconciler.Reconciler, obj *unstructured.Unstructured, nextDue map[string]time.Time) {
	result, err := r.Reconcile(ctx, obj)
	if err != nil {
		slog.Error("reconcile failed", "policy", obj.GetName(), "namespace", obj.GetNamespace(), "error", err)
	}
	nextDue[string(obj.GetUID())] = time.Now().Add(result.RequeueAfter)
}
