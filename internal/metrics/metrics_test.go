package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.Observe("claim", time.Now(), nil)
	r.Observe("claim", time.Now(), errors.New("nothing claimable"))
	r.Observe("accept", time.Now(), nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("claim", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("claim", ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues("accept", ResultOK)))
	assert.Equal(t, 2, testutil.CollectAndCount(r.duration))
}

func TestRecorder_CountTransfer(t *testing.T) {
	r := NewRecorder(nil)
	r.CountTransfer("fee")
	r.CountTransfer("fee")
	assert.Equal(t, 2.0, testutil.ToFloat64(r.volume.WithLabelValues("fee")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Observe("claim", time.Now(), nil)
		r.CountTransfer("claim")
	})
}
