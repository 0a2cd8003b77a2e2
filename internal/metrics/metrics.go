// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"

	"github.com/aiqx/core-service/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	stepCompletionsCounter   *prometheus.CounterVec
	statusTransitionsCounter *prometheus.CounterVec
	handoffMailCounter       *prometheus.CounterVec
	fileLockCounter          *prometheus.CounterVec
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		stepCompletionsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "use_case_step_completions_total",
				Help: "Total number of completed workflow steps by step.",
			},
			[]string{"step"},
		)

		statusTransitionsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "use_case_status_transitions_total",
				Help: "Total number of use case status writes by status.",
			},
			[]string{"status"},
		)

		handoffMailCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "use_case_handoff_mails_total",
				Help: "Total number of handoff notification attempts by result.",
			},
			[]string{"result"},
		)

		fileLockCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "use_case_file_locks_total",
				Help: "Total number of attachment lock requests by result.",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			stepCompletionsCounter,
			statusTransitionsCounter,
			handoffMailCounter,
			fileLockCounter,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, step := range domain.Steps() {
			stepCompletionsCounter.WithLabelValues(step.String())
		}

		for _, status := range []domain.Status{
			domain.StatusInEvaluation,
			domain.StatusUnderValidation,
			domain.StatusInImplementation,
			domain.StatusDeclined,
		} {
			statusTransitionsCounter.WithLabelValues(status.String())
		}

		for _, result := range []string{"ok", "error"} {
			handoffMailCounter.WithLabelValues(result)
			fileLockCounter.WithLabelValues(result)
		}
	})
}

func IncStepCompleted(step string) {
	Init()
	stepCompletionsCounter.WithLabelValues(step).Inc()
}

func IncStatusTransition(status string) {
	Init()
	statusTransitionsCounter.WithLabelValues(status).Inc()
}

func IncHandoffMail(result string) {
	Init()
	handoffMailCounter.WithLabelValues(result).Inc()
}

func IncFileLock(result string) {
	Init()
	fileLockCounter.WithLabelValues(result).Inc()
}
