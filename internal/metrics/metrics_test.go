package metrics

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveXRPC_IncrementsByLabel(t *testing.T) {
	c := xrpcRequestsTotal.WithLabelValues("com.atproto.server.getSession", "200")
	before := testutil.ToFloat64(c)

	ObserveXRPC("com.atproto.server.getSession", 200)
	ObserveXRPC("com.atproto.server.getSession", 200)

	assert.Equal(t, before+2, testutil.ToFloat64(c))
}

func TestObserveRefreshAndUpload(t *testing.T) {
	r := sessionRefreshTotal.WithLabelValues("ok")
	u := videoUploadsTotal.WithLabelValues("timed_out")
	rb, ub := testutil.ToFloat64(r), testutil.ToFloat64(u)

	ObserveRefresh("ok")
	ObserveUpload("timed_out")

	assert.Equal(t, rb+1, testutil.ToFloat64(r))
	assert.Equal(t, ub+1, testutil.ToFloat64(u))
}

func TestWriteSummary_OnlyOwnCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(videoUploadsTotal, collectors.NewGoCollector())
	ObserveUpload("completed")

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, reg))

	out := buf.String()
	assert.Contains(t, out, `gophsky_video_uploads_total{result="completed"} `)
	assert.NotContains(t, out, "go_goroutines")
}

func TestWriteSummary_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, prometheus.NewRegistry()))
	assert.Equal(t, "No requests recorded yet.\n", buf.String())
}

func TestWriteSummary_GatherError(t *testing.T) {
	g := prometheus.GathererFunc(func() ([]*dto.MetricFamily, error) { return nil, errors.New("boom") })
	assert.ErrorContains(t, WriteSummary(io.Discard, g), "gather metrics")
}
