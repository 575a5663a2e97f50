package influx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	goTrust "github.com/MrEthical07/goTrust"
	"github.com/MrEthical07/goTrust/metrics/export/internaldefs"
)

const (
	Measurement = "gotrust"

	defaultPingTimeout = 5 * time.Second
)

var (
	ErrNilSource     = errors.New("nil metrics source")
	ErrNotHealthy    = errors.New("influxdb server not healthy")
	ErrNothingToPush = errors.New("metrics disabled")
)

// Source is what the exporter reads on every push.
type Source interface {
	MetricsSnapshot() goTrust.MetricsSnapshot
	AuditDropped() uint64
}

// PointWriter is satisfied by influxdb2's api.WriteAPIBlocking.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Config locates the bucket points are written to.
type Config struct {
	URL      string            `yaml:"url" toml:"url"`
	Token    string            `yaml:"token" toml:"token"`
	Org      string            `yaml:"org" toml:"org"`
	Bucket   string            `yaml:"bucket" toml:"bucket"`
	Interval time.Duration     `yaml:"interval" toml:"interval"`
	Tags     map[string]string `yaml:"tags" toml:"tags"`
}

// Exporter turns engine snapshots into InfluxDB points.
type Exporter struct {
	source Source
	writer PointWriter
	tags   map[string]string
	now    func() time.Time
	close  func()
}

// New builds an exporter over an existing writer. Tags are attached to every
// point.
func New(source Source, writer PointWriter, tags map[string]string) (*Exporter, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	return &Exporter{source: source, writer: writer, tags: tags, now: time.Now, close: func() {}}, nil
}

// Connect creates an InfluxDB client for cfg, checks the server answers a
// ping and returns an exporter writing through its blocking write API.
func Connect(ctx context.Context, cfg Config, source Source) (*Exporter, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	pctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	healthy, err := client.Ping(pctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb ping: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, ErrNotHealthy
	}

	exp, err := New(source, client.WriteAPIBlocking(cfg.Org, cfg.Bucket), cfg.Tags)
	if err != nil {
		client.Close()
		return nil, err
	}
	exp.close = client.Close
	return exp, nil
}

// Point builds the point for the current snapshot. It returns nil when the
// engine records no metrics.
func (e *Exporter) Point() *write.Point {
	snapshot := e.source.MetricsSnapshot()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(internaldefs.CounterDefs)+len(internaldefs.HistogramDefs)*9+1)
	for _, def := range internaldefs.CounterDefs {
		fields[fieldName(def.Name)] = snapshot.Counters[def.ID]
	}
	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		base := fieldName(def.Name)
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			fields[base+"_le_"+suffix] = cumulative[i]
		}
		fields[base+"_count"] = cumulative[len(cumulative)-1]
	}
	fields["audit_dropped"] = e.source.AuditDropped()

	return influxdb2.NewPoint(Measurement, e.tags, fields, e.now())
}

// Push writes one point for the current snapshot.
func (e *Exporter) Push(ctx context.Context) error {
	p := e.Point()
	if p == nil {
		return ErrNothingToPush
	}
	if err := e.writer.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("influxdb write: %w", err)
	}
	return nil
}

// Run pushes every interval until ctx is done. Push failures are logged and
// the loop continues.
func (e *Exporter) Run(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Push(ctx); err != nil && !errors.Is(err, ErrNothingToPush) && logger != nil {
				logger.WarnContext(ctx, "metrics push failed", "error", err)
			}
		}
	}
}

// Close releases the client created by Connect.
func (e *Exporter) Close() {
	if e != nil && e.close != nil {
		e.close()
	}
}

// fieldName drops the gotrust_ prefix and the _total suffix; the
// measurement already names the service.
func fieldName(metric string) string {
	return strings.TrimSuffix(strings.TrimPrefix(metric, "gotrust_"), "_total")
}
