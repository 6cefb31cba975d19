// Package metrics exports receiver counters to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/fobrob/fobrob/demod"
	"github.com/fobrob/fobrob/packet"
)

const namespace = "fobrob"

type Metrics struct {
	Samples prometheus.Counter
	Clipped prometheus.Counter
	Dropped prometheus.Counter

	locks      prometheus.Counter
	lost       prometheus.Counter
	corrupt    prometheus.Counter
	mismatched prometheus.Counter
	delivered  prometheus.Counter

	packets *prometheus.CounterVec

	last demod.Stats
}

// New registers the receiver's metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		Samples: counter("samples_total", "Complex samples read from the source."),
		Clipped: counter("clipped_blocks_total", "Sample blocks with a component near full scale."),
		Dropped: counter("dropped_packets_total", "Packets dropped because the sinks fell behind."),

		locks:      counter("preamble_locks_total", "Preambles accepted by the demodulator."),
		lost:       counter("preamble_lost_total", "Preamble locks abandoned before the gap."),
		corrupt:    counter("corrupt_occurrences_total", "Packet occurrences with an invalid chip pair."),
		mismatched: counter("mismatched_repeats_total", "Valid repeats differing from the first occurrence."),
		delivered:  counter("delivered_packets_total", "Packets delivered by the demodulator."),

		packets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Packets passed to the sinks by command.",
		}, []string{"command"}),
	}
}

// Observe adds the demodulator events since the previous call.
func (m *Metrics) Observe(s demod.Stats) {
	m.locks.Add(float64(s.Locks - m.last.Locks))
	m.lost.Add(float64(s.Lost - m.last.Lost))
	m.corrupt.Add(float64(s.Corrupt - m.last.Corrupt))
	m.mismatched.Add(float64(s.Mismatched - m.last.Mismatched))
	m.delivered.Add(float64(s.Delivered - m.last.Delivered))
	m.last = s
}

func (m *Metrics) Packet(msg packet.Message) {
	m.packets.WithLabelValues(msg.CommandName()).Inc()
}

// Serve exposes g on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.WithField("addr", addr).Info("serving metrics")

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return errors.Wrap(err, "serving metrics")
	}
	return nil
}
