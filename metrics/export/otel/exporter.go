package otel

import (
	"context"
	"errors"
	"fmt"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// MetricsSource is read once per collection cycle. *goRecover.Engine
// satisfies it.
type MetricsSource interface {
	MetricsSnapshot() goRecover.MetricsSnapshot
	AuditDropped() uint64
	MailDropped() uint64
	MailFailed() uint64
}

type observedCounter struct {
	id         goRecover.MetricID
	instrument metric.Int64ObservableCounter
}

type observedHistogram struct {
	id      goRecover.MetricID
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

type queueCounter struct {
	instrument metric.Int64ObservableCounter
	read       func() uint64
}

type Exporter struct {
	source       MetricsSource
	registration metric.Registration
	counters     []observedCounter
	histograms   []observedHistogram
	queues       []queueCounter
}

// NewExporter registers one observable instrument per engine metric on
// meter. Histogram buckets are exposed as cumulative gauges named
// <name>_bucket_le_<bound>.
func NewExporter(meter metric.Meter, source MetricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exporter := &Exporter{
		source:     source,
		counters:   make([]observedCounter, 0, len(internaldefs.CounterDefs)),
		histograms: make([]observedHistogram, 0, len(internaldefs.HistogramDefs)),
	}

	observables := make([]metric.Observable, 0, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*9+3)

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", def.Name, err)
		}
		exporter.counters = append(exporter.counters, observedCounter{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := observedHistogram{id: def.ID}
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			name := def.Name + "_bucket_le_" + suffix
			ins, err := meter.Int64ObservableGauge(name, metric.WithDescription("Cumulative histogram bucket count."))
			if err != nil {
				return nil, fmt.Errorf("create histogram bucket gauge %s: %w", name, err)
			}
			h.buckets[i] = ins
			observables = append(observables, ins)
		}
		countName := def.Name + "_count"
		countIns, err := meter.Int64ObservableGauge(countName, metric.WithDescription("Histogram total sample count."))
		if err != nil {
			return nil, fmt.Errorf("create histogram count gauge %s: %w", countName, err)
		}
		h.count = countIns
		observables = append(observables, countIns)
		exporter.histograms = append(exporter.histograms, h)
	}

	for _, q := range []struct {
		name, help string
		read       func() uint64
	}{
		{internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, source.AuditDropped},
		{internaldefs.MailDroppedName, internaldefs.MailDroppedHelp, source.MailDropped},
		{internaldefs.MailFailedName, internaldefs.MailFailedHelp, source.MailFailed},
	} {
		ins, err := meter.Int64ObservableCounter(q.name, metric.WithDescription(q.help))
		if err != nil {
			return nil, fmt.Errorf("create observable counter %s: %w", q.name, err)
		}
		exporter.queues = append(exporter.queues, queueCounter{instrument: ins, read: q.read})
		observables = append(observables, ins)
	}

	registration, err := meter.RegisterCallback(exporter.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}

	exporter.registration = registration
	return exporter, nil
}

func (e *Exporter) observe(_ context.Context, observer metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()
	for _, c := range e.counters {
		observer.ObserveInt64(c.instrument, int64(snapshot.Counters[c.id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[h.id]))
		for i := range cumulative {
			observer.ObserveInt64(h.buckets[i], int64(cumulative[i]))
		}
		observer.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
	}
	for _, q := range e.queues {
		observer.ObserveInt64(q.instrument, int64(q.read()))
	}
	return nil
}

func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
