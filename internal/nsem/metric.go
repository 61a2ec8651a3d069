// Copyright (c) 2018 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package nsem

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/jmtorrespalma/psem/internal/core"
)

// opMetric tracks counts and latencies for registry transactions. It creates
// three metric sets:
//   - a CounterVec with the given name and label "result"="all"/"failed",
//   - a SummaryVec with the given name + "_latency" for successful ops,
//   - a GaugeVec with the given name + "_pending" for in-flight ops.
//
// Registry transactions never suspend, so the latencies mostly measure lock
// contention on the table.
type opMetric struct {
	name      string
	counters  *prometheus.CounterVec
	latencies *prometheus.SummaryVec
	pending   *prometheus.GaugeVec
}

func newOpMetric(name string, labels ...string) *opMetric {
	labelsWithResult := append([]string{"result"}, labels...)
	return &opMetric{
		name:      name,
		counters:  promauto.NewCounterVec(prometheus.CounterOpts{Name: name}, labelsWithResult),
		latencies: promauto.NewSummaryVec(prometheus.SummaryOpts{Name: name + "_latency"}, labels),
		pending:   promauto.NewGaugeVec(prometheus.GaugeOpts{Name: name + "_pending"}, labels),
	}
}

// start marks that a new operation has started and begins measuring its latency.
func (m *opMetric) start(values ...string) *opMeasurer {
	om := &opMeasurer{opm: m, values: values}
	om.result("all") // this resets start, so set it below
	om.start = time.Now().UnixNano()
	om.opm.pending.WithLabelValues(values...).Inc()
	return om
}

// count returns how many ops finished with the given result.
func (m *opMetric) count(result string, values ...string) uint64 {
	valuesWithResult := append([]string{result}, values...)
	mtr := m.counters.WithLabelValues(valuesWithResult...)
	var value dto.Metric
	if mtr.Write(&value) != nil {
		return 0
	}
	return uint64(*value.Counter.Value)
}

// String returns a nice string with count and latency information for one op.
func (m *opMetric) String(values ...string) string {
	out := summaryString(m.latencies.WithLabelValues(values...))
	out += fmt.Sprintf(" / %d failed", m.count("failed", values...))
	return out
}

// opMeasurer is an internal type to enable some syntactic sugar.
type opMeasurer struct {
	start  int64
	opm    *opMetric
	values []string
}

// failed records that the transaction returned an error.
func (om *opMeasurer) failed() {
	om.result("failed")
}

func (om *opMeasurer) result(result string) {
	om.start = 0 // zero this so that end won't try to record latency
	valuesWithResult := append([]string{result}, om.values...)
	om.opm.counters.WithLabelValues(valuesWithResult...).Inc()
}

// end records the elapsed time since the opMeasurer was created.
func (om *opMeasurer) end() {
	if om.start != 0 {
		d := time.Duration(time.Now().UnixNano() - om.start)
		om.opm.latencies.WithLabelValues(om.values...).Observe(float64(d) / 1e9)
	}
	om.opm.pending.WithLabelValues(om.values...).Dec()
}

// endWithSemError calls failed if err is not core.NoError. It always calls end.
func (om *opMeasurer) endWithSemError(err *core.Error) {
	if *err != core.NoError {
		om.failed()
	}
	om.end()
}

func summaryString(obs prometheus.Observer) string {
	sum, ok := obs.(prometheus.Summary)
	if !ok {
		return ""
	}
	var value dto.Metric
	if sum.Write(&value) != nil || value.Summary == nil {
		return ""
	}
	out := fmt.Sprintf("Total count=%d;", *value.Summary.SampleCount)
	for _, q := range value.Summary.Quantile {
		out += fmt.Sprintf(" %gth=%.3f;", *q.Quantile*100, *q.Value)
	}
	return out[:len(out)-1]
}
