package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/wolfeidau/addonpack"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Build metrics
	BuildsTotal        metric.Int64Counter
	BuildErrorsTotal   metric.Int64Counter
	BuildWarningsTotal metric.Int64Counter
	BuildDuration      metric.Float64Histogram
	AddonsBuilt        metric.Int64Gauge

	// Watch metrics
	RebuildsTriggeredTotal metric.Int64Counter
	RebuildsSkippedTotal   metric.Int64Counter

	// Package metrics
	ArchiveBytes metric.Int64Histogram
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.BuildsTotal, _ = meter.Int64Counter(
		"addonpack.builds.total",
		metric.WithDescription("Total number of add-on builds"),
		metric.WithUnit("{build}"),
	)

	m.BuildErrorsTotal, _ = meter.Int64Counter(
		"addonpack.builds.errors.total",
		metric.WithDescription("Total number of failed add-on builds"),
		metric.WithUnit("{build}"),
	)

	m.BuildWarningsTotal, _ = meter.Int64Counter(
		"addonpack.builds.warnings.total",
		metric.WithDescription("Total number of build warnings, including rewrite mismatches"),
		metric.WithUnit("{warning}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"addonpack.builds.duration",
		metric.WithDescription("Duration of add-on builds"),
		metric.WithUnit("ms"),
	)

	m.AddonsBuilt, _ = meter.Int64Gauge(
		"addonpack.addons.built",
		metric.WithDescription("Number of add-ons compiled by the last build"),
		metric.WithUnit("{addon}"),
	)

	m.RebuildsTriggeredTotal, _ = meter.Int64Counter(
		"addonpack.watch.rebuilds.total",
		metric.WithDescription("Total number of rebuilds triggered by source changes"),
		metric.WithUnit("{build}"),
	)

	m.RebuildsSkippedTotal, _ = meter.Int64Counter(
		"addonpack.watch.rebuilds.skipped.total",
		metric.WithDescription("Total number of change batches deferred because a rebuild was running"),
		metric.WithUnit("{build}"),
	)

	m.ArchiveBytes, _ = meter.Int64Histogram(
		"addonpack.package.archive.size",
		metric.WithDescription("Size of packaged add-on archives"),
		metric.WithUnit("By"),
	)

	return m
}
