package watchagg

import (
	"sync"

	corev1 "k8s.io/api/core/v1"

	"github.com/stochasticquant/kube-devops-operator/internal/governance"
	"github.com/stochasticquant/kube-devops-operator/internal/policy"
)

// EventKind is the set of pod watch events the aggregator reacts to.
type EventKind string

const (
	EventApplied   EventKind = "Applied"
	EventDeleted   EventKind = "Deleted"
	EventRestarted EventKind = "Restarted"
)

// NamespaceState holds the running, unconditional evaluation metrics for
// one namespace's pods.
type NamespaceState struct {
	Metrics policy.Metrics
}

// Aggregator tracks unconditional per-pod metrics, aggregated by
// namespace and cluster-wide, for real-time dashboarding (§4.F). It never
// consults a DevOpsPolicy: every check is always on, mirroring the watch
// loop's unconditional evaluation path.
type Aggregator struct {
	mu          sync.Mutex
	podMetrics  map[string]policy.Metrics // key: namespace/podName
	namespaces  map[string]*NamespaceState
	podEvents   uint64
	podsTracked uint64
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		podMetrics: map[string]policy.Metrics{},
		namespaces: map[string]*NamespaceState{},
	}
}

func podKey(namespace, name string) string { return namespace + "/" + name }

// HandleEvent updates the aggregator's state for a single pod event.
func (a *Aggregator) HandleEvent(kind EventKind, pod *corev1.Pod) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.podEvents++
	PodEventsTotal.Inc()

	if (kind == EventApplied || kind == EventRestarted) && governance.IsSystemNamespace(pod.Namespace) {
		return
	}

	key := podKey(pod.Namespace, pod.Name)
	ns := a.namespaceState(pod.Namespace)

	switch kind {
	case EventDeleted:
		if prev, ok := a.podMetrics[key]; ok {
			ns.Metrics.Subtract(prev)
			delete(a.podMetrics, key)
			a.podsTracked--
		}
	case EventApplied, EventRestarted:
		next := governance.EvaluatePodUnconditional(pod)
		if prev, ok := a.podMetrics[key]; ok {
			ns.Metrics.Subtract(prev)
		} else {
			a.podsTracked++
		}
		ns.Metrics.Add(next)
		a.podMetrics[key] = next
	}
}

// HandleRestarted replaces the aggregator's entire tracked state with pods,
// the relisted snapshot a watch reconnect delivers (§4.F Event::Restarted):
// clear both podMetrics and namespaces, then bulk-apply the snapshot so
// pods deleted while the watch was disconnected don't linger forever.
// System-namespace pods are filtered out, same as a single Applied event.
func (a *Aggregator) HandleRestarted(pods []*corev1.Pod) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.podEvents++
	PodEventsTotal.Inc()

	a.podMetrics = map[string]policy.Metrics{}
	a.namespaces = map[string]*NamespaceState{}
	a.podsTracked = 0

	for _, pod := range pods {
		if governance.IsSystemNamespace(pod.Namespace) {
			continue
		}
		key := podKey(pod.Namespace, pod.Name)
		ns := a.namespaceState(pod.Namespace)
		next := governance.EvaluatePodUnconditional(pod)
		ns.Metrics.Add(next)
		a.podMetrics[key] = next
		a.podsTracked++
	}
}

func (a *Aggregator) namespaceState(namespace string) *NamespaceState {
	ns, ok := a.namespaces[namespace]
	if !ok {
		ns = &NamespaceState{}
		a.namespaces[namespace] = ns
	}
	return ns
}

// NamespaceScore returns the health score for one namespace's current
// tracked pods.
func (a *Aggregator) NamespaceScore(namespace string) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	ns, ok := a.namespaces[namespace]
	if !ok {
		return 100
	}
	return governance.CalculateHealthScore(ns.Metrics)
}

// ClusterScore returns the unweighted mean of all tracked namespaces'
// scores (§4.F update_prometheus_metrics), or 100 if no namespace is
// tracked yet.
func (a *Aggregator) ClusterScore() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.namespaces) == 0 {
		return 100
	}

	var sum uint64
	for _, ns := range a.namespaces {
		sum += uint64(governance.CalculateHealthScore(ns.Metrics))
	}
	return uint32(sum / uint64(len(a.namespaces)))
}

// NamespaceScores returns a snapshot of every tracked namespace's score.
func (a *Aggregator) NamespaceScores() map[string]uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]uint32, len(a.namespaces))
	for ns, state := range a.namespaces {
		out[ns] = governance.CalculateHealthScore(state.Metrics)
	}
	return out
}

// PodEventsTotal returns the cumulative count of pod events processed.
func (a *Aggregator) PodEventsTotal() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.podEvents
}

// PodsTracked returns the current number of distinct pods tracked.
func (a *Aggregator) PodsTracked() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.podsTracked
}
