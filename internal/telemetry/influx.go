package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"sbzdeck/internal/profile"
)

const (
	defaultPingTimeout   = 5 * time.Second
	defaultBatchSize     = 20
	defaultFlushInterval = 10000 // milliseconds
)

// ErrConnectionFailed is returned when InfluxDB cannot be reached at startup.
var ErrConnectionFailed = errors.New("telemetry: influxdb connection failed")

// InfluxOptions configures the InfluxDB writer.
type InfluxOptions struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// InfluxRecorder writes points through the non-blocking write API.
type InfluxRecorder struct {
	client influxdb2.Client
	writer pointWriter
	logger *zap.Logger
	now    func() time.Time
}

// ConnectInflux pings the server and starts the batching writer.
func ConnectInflux(opts InfluxOptions, logger *zap.Logger) (*InfluxRecorder, error) {
	client := influxdb2.NewClientWithOptions(opts.URL, opts.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(defaultBatchSize).
			SetFlushInterval(defaultFlushInterval))

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(opts.Org, opts.Bucket)
	r := newInfluxRecorder(writeAPI, logger)
	r.client = client

	go func() {
		for err := range writeAPI.Errors() {
			r.logger.Warn("InfluxDB write failed", zap.Error(err))
		}
	}()

	return r, nil
}

func newInfluxRecorder(w pointWriter, logger *zap.Logger) *InfluxRecorder {
	return &InfluxRecorder{writer: w, logger: logger.Named("telemetry"), now: time.Now}
}

// SwitchCompleted implements Recorder.
func (r *InfluxRecorder) SwitchCompleted(from *profile.Output, to profile.Output, err error, elapsed time.Duration) {
	fromTag := "unknown"
	if from != nil {
		fromTag = from.String()
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}

	r.writer.WritePoint(influxdb2.NewPoint("output_switch",
		map[string]string{"from": fromTag, "to": to.String(), "result": result},
		map[string]interface{}{
			"duration_ms": float64(elapsed) / float64(time.Millisecond),
			"success":     err == nil,
		},
		r.now()))
}

// VolumeObserved implements Recorder.
func (r *InfluxRecorder) VolumeObserved(output profile.Output, volume float32) {
	r.writer.WritePoint(influxdb2.NewPoint("output_volume",
		map[string]string{"output": output.String()},
		map[string]interface{}{"volume": float64(volume)},
		r.now()))
}

// Close flushes pending points and closes the client.
func (r *InfluxRecorder) Close() error {
	r.writer.Flush()
	if r.client != nil {
		r.client.Close()
	}
	return nil
}
