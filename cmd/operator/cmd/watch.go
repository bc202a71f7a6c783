package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/spf13/cobra"
	"github.com/stochasticquant/kube-devops-operator/internal/config"
	"github.com/stochasticquant/kube-devops-operator/internal/k8sclient"
	"github.com/stochasticquant/kube-devops-operator/internal/watchagg"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the real-time watch aggregator with leader election (§4.F)",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
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

	identity := watchagg.HolderIdentity()
	agg := watchagg.NewAggregator()

	listenAddr := cfg.Watch.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8081"
	}

	server := &http.Server{Addr: listenAddr, Handler: watchagg.Handler()}
	go func() {
		slog.Info("watch aggregator metrics server starting", "addr", listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("watch aggregator metrics server failed", "error", err)
		}
	}()

	var watchCancel context.CancelFunc
	onAcquired := func() {
		slog.Info("watch aggregator acquired leadership", "identity", identity)
		watchagg.LeaderGauge.Set(1)
		var watchCtx context.Context
		watchCtx, watchCancel = context.WithCancel(ctx)
		go runPodWatch(watchCtx, clients, agg)
	}
	onLost := func() {
		slog.Info("watch aggregator lost leadership", "identity", identity)
		watchagg.LeaderGauge.Set(0)
		if watchCancel != nil {
			watchCancel()
		}
	}

	watchagg.RunLeaseLoop(ctx, clients.Typed, identity, cfg.Watch.LeaseDuration(), cfg.Watch.RenewInterval(), onAcquired, onLost)

	slog.Info("watch aggregator shutting down")
	return nil
}

// runPodWatch consumes the cluster-wide pod watch stream and feeds events
// into the aggregator until ctx is cancelled (leadership lost or shutdown).
// Every (re)connect relists pods first and feeds the snapshot through
// HandleRestarted (§4.F Event::Restarted), so a pod deleted while
// disconnected doesn't linger in the aggregator's state forever.
func runPodWatch(ctx context.Context, clients *k8sclient.Clients, agg *watchagg.Aggregator) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		list, err := clients.Typed.CoreV1().Pods("").List(ctx, metav1.ListOptions{})
		if err != nil {
			slog.Error("pod relist failed", "error", err)
			return
		}
		snapshot := make([]*corev1.Pod, len(list.Items))
		for i := range list.Items {
			snapshot[i] = &list.Items[i]
		}
		agg.HandleRestarted(snapshot)
		watchagg.UpdatePrometheusMetrics(agg)

		w, err := clients.Typed.CoreV1().Pods("").Watch(ctx, metav1.ListOptions{ResourceVersion: list.ResourceVersion})
		if err != nil {
			slog.Error("pod watch failed to start", "error", err)
			return
		}
		consumeWatch(ctx, w, agg)
	}
}

func consumeWatch(ctx context.Context, w watch.Interface, agg *watchagg.Aggregator) {
	defer w.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.ResultChan():
			if !ok {
				return
			}
			pod, ok := event.Object.(*corev1.Pod)
			if !ok {
				continue
			}
			switch event.Type {
			case watch.Added, watch.Modified:
				agg.HandleEvent(watchagg.EventApplied, pod)
			case watch.Deleted:
				agg.HandleEvent(watchagg.EventDeleted, pod)
			}
			watchagg.UpdatePrometheusMetrics(agg)
		}
	}
}
