package telemetry

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sbzdeck/internal/profile"
)

type fakeWriter struct {
	points  []*write.Point
	flushed int
}

func (w *fakeWriter) WritePoint(p *write.Point) { w.points = append(w.points, p) }
func (w *fakeWriter) Flush()                    { w.flushed++ }

func lineProtocol(p *write.Point) string {
	return write.PointToLineProtocol(p, time.Nanosecond)
}

func TestInfluxRecorder(t *testing.T) {
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	newRecorder := func() (*InfluxRecorder, *fakeWriter) {
		w := &fakeWriter{}
		r := newInfluxRecorder(w, zap.NewNop())
		r.now = func() time.Time { return at }
		return r, w
	}

	t.Run("successful switch", func(t *testing.T) {
		r, w := newRecorder()
		from := profile.Headphones
		r.SwitchCompleted(&from, profile.Speakers, nil, 120*time.Millisecond)

		require.Len(t, w.points, 1)
		line := lineProtocol(w.points[0])
		assert.True(t, strings.HasPrefix(line, "output_switch,"), line)
		assert.Contains(t, line, "from=headphones")
		assert.Contains(t, line, "result=ok")
		assert.Contains(t, line, "to=speakers")
		assert.Contains(t, line, "duration_ms=120")
		assert.Contains(t, line, "success=true")
	})

	t.Run("failed switch from unknown output", func(t *testing.T) {
		r, w := newRecorder()
		r.SwitchCompleted(nil, profile.Headphones, errors.New("rejected"), time.Second)

		require.Len(t, w.points, 1)
		line := lineProtocol(w.points[0])
		assert.Contains(t, line, "from=unknown")
		assert.Contains(t, line, "result=failed")
		assert.Contains(t, line, "success=false")
	})

	t.Run("volume", func(t *testing.T) {
		r, w := newRecorder()
		r.VolumeObserved(profile.Speakers, 0.5)

		require.Len(t, w.points, 1)
		line := lineProtocol(w.points[0])
		assert.Contains(t, line, "output_volume,output=speakers volume=0.5")

		require.NoError(t, r.Close())
		assert.Equal(t, 1, w.flushed)
	})
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	r.SwitchCompleted(nil, profile.Speakers, nil, 0)
	r.VolumeObserved(profile.Speakers, 1)
}
