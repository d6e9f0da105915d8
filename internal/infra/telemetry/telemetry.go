package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hmcts/wa-task-management-api-sub002/internal/core/port"
)

// DefaultNamespace prefixes every collector exported by the service.
const DefaultNamespace = "wa"

// Register registers collector with reg. When an identical collector is already registered the
// existing one is returned so repeated wiring in tests and restarts stays idempotent.
func Register[T prometheus.Collector](reg prometheus.Registerer, collector T, name string) (T, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	if err := reg.Register(collector); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return collector, fmt.Errorf("register %s collector: %w", name, err)
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("existing %s collector has unexpected type %T", name, already.ExistingCollector)
		}
		return existing, nil
	}
	return collector, nil
}

// OperationMetrics counts task coordinator outcomes by operation.
type OperationMetrics struct {
	Operations *prometheus.CounterVec
}

// NewOperationMetrics registers wa_task_operations_total{operation,outcome} with reg.
func NewOperationMetrics(reg prometheus.Registerer, namespace string) (*OperationMetrics, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	operations, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "task",
		Name:      "operations_total",
		Help:      "Task operations partitioned by operation and outcome.",
	}, []string{"operation", "outcome"}), "task operations")
	if err != nil {
		return nil, err
	}

	return &OperationMetrics{Operations: operations}, nil
}

// RecordOperation implements port.OperationRecorder.
func (m *OperationMetrics) RecordOperation(operation, outcome string) {
	if m == nil || m.Operations == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
}

var _ port.OperationRecorder = (*OperationMetrics)(nil)
