// Copyright © 2024 The ELPS authors

package cmd

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// logReporter is a tally reporter writing every reported value to the log.
type logReporter struct {
	log *logrus.Logger
}

var _ tally.StatsReporter = (*logReporter)(nil)

func newLogReporter(log *logrus.Logger) *logReporter {
	return &logReporter{log: log}
}

func (r *logReporter) entry(kind, name string, tags map[string]string) *logrus.Entry {
	fields := logrus.Fields{"metric": name, "kind": kind}
	for k, v := range tags {
		fields["tag."+k] = v
	}
	return r.log.WithFields(fields)
}

func (r *logReporter) ReportCounter(name string, tags map[string]string, value int64) {
	r.entry("counter", name, tags).WithField("value", value).Info("metric")
}

func (r *logReporter) ReportGauge(name string, tags map[string]string, value float64) {
	r.entry("gauge", name, tags).WithField("value", value).Info("metric")
}

func (r *logReporter) ReportTimer(name string, tags map[string]string, interval time.Duration) {
	r.entry("timer", name, tags).WithField("value", interval).Info("metric")
}

func (r *logReporter) ReportHistogramValueSamples(name string, tags map[string]string, _ tally.Buckets, lower, upper float64, samples int64) {
	r.entry("histogram", name, tags).WithFields(logrus.Fields{
		"lower":   lower,
		"upper":   upper,
		"samples": samples,
	}).Info("metric")
}

func (r *logReporter) ReportHistogramDurationSamples(name string, tags map[string]string, _ tally.Buckets, lower, upper time.Duration, samples int64) {
	r.entry("histogram", name, tags).WithFields(logrus.Fields{
		"lower":   lower,
		"upper":   upper,
		"samples": samples,
	}).Info("metric")
}

func (r *logReporter) Capabilities() tally.Capabilities { return logCapabilities{} }
func (r *logReporter) Flush()                           {}

type logCapabilities struct{}

func (logCapabilities) Reporting() bool { return true }
func (logCapabilities) Tagging() bool   { return true }

// logSpanExporter writes finished request spans to the log.
type logSpanExporter struct {
	log *logrus.Logger
}

var _ sdktrace.SpanExporter = (*logSpanExporter)(nil)

func newLogSpanExporter(log *logrus.Logger) *logSpanExporter {
	return &logSpanExporter{log: log}
}

func (e *logSpanExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		fields := logrus.Fields{
			"span":     s.Name(),
			"duration": s.EndTime().Sub(s.StartTime()),
			"status":   s.Status().Code.String(),
		}
		for _, kv := range s.Attributes() {
			fields[string(kv.Key)] = kv.Value.Emit()
		}
		e.log.WithFields(fields).Info("span")
	}
	return nil
}

func (e *logSpanExporter) Shutdown(context.Context) error { return nil }

// newTracerProvider returns a provider exporting spans to the log as they
// end.
func newTracerProvider(log *logrus.Logger) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(sdktrace.WithSyncer(newLogSpanExporter(log)))
}
