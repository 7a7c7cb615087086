package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hubd/tree"
)

// New registers every metric on the default prometheus registry, so only
// one Registry may be constructed per test binary; every case below shares
// this one instance.
var reg = New()

func TestObserveMutationIncrementsCounterByKind(t *testing.T) {
	before := testutil.ToFloat64(reg.MutationsByKind.WithLabelValues("device_created"))
	reg.ObserveMutation(tree.EventDeviceCreated, 2)
	after := testutil.ToFloat64(reg.MutationsByKind.WithLabelValues("device_created"))
	assert.Equal(t, before+1, after)
}

func TestObserveMutationRecordsFanoutHistogram(t *testing.T) {
	var before, after dto.Metric
	require.NoError(t, reg.DispatchFanout.Write(&before))
	reg.ObserveMutation(tree.EventComponentSet, 5)
	require.NoError(t, reg.DispatchFanout.Write(&after))
	assert.Equal(t, before.GetHistogram().GetSampleCount()+1, after.GetHistogram().GetSampleCount())
}

func TestObserveMutationCoversEveryEventKind(t *testing.T) {
	kinds := []tree.EventKind{
		tree.EventExtAttached, tree.EventExtDetached,
		tree.EventDeviceCreated, tree.EventDeviceDeleted, tree.EventDeviceRenamed,
		tree.EventEntityRegistered, tree.EventComponentPut, tree.EventComponentSet,
		tree.EventGroupCreated, tree.EventGroupDeleted, tree.EventGroupRenamed,
		tree.EventGroupDeviceAdded, tree.EventGroupDeviceRemoved,
	}
	for _, k := range kinds {
		assert.NotPanics(t, func() { reg.ObserveMutation(k, 0) })
	}
}

func TestHandlerServesPrometheusExposition(t *testing.T) {
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
