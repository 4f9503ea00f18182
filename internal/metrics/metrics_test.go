package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, GetObjectsTransferred())
	require.NotNil(t, GetRemoteRunPolls())
}

func TestRecordTransfer(t *testing.T) {
	Init()
	before := testutil.ToFloat64(GetBytesTransferred().WithLabelValues(DirectionUpload))
	objs := testutil.ToFloat64(GetObjectsTransferred().WithLabelValues(DirectionUpload))

	RecordTransfer(DirectionUpload, 128)

	assert.Equal(t, before+128, testutil.ToFloat64(GetBytesTransferred().WithLabelValues(DirectionUpload)))
	assert.Equal(t, objs+1, testutil.ToFloat64(GetObjectsTransferred().WithLabelValues(DirectionUpload)))
}

func TestRecordRemoteRunAndPolls(t *testing.T) {
	Init()
	polls := testutil.ToFloat64(GetRemoteRunPolls())
	failed := testutil.ToFloat64(GetRemoteRuns().WithLabelValues("FAILED"))

	RecordPoll()
	RecordPoll()
	RecordRemoteRun("FAILED", 12*time.Second)

	assert.Equal(t, polls+2, testutil.ToFloat64(GetRemoteRunPolls()))
	assert.Equal(t, failed+1, testutil.ToFloat64(GetRemoteRuns().WithLabelValues("FAILED")))
}

func TestRecordTaskAndStorageEvent(t *testing.T) {
	Init()
	task := testutil.ToFloat64(GetTaskRuns().WithLabelValues("simple", "run_dataform", "success"))
	ignored := testutil.ToFloat64(GetStorageEvents().WithLabelValues("ignored"))

	RecordTask("simple", "run_dataform", "success")
	RecordStorageEvent("ignored")

	assert.Equal(t, task+1, testutil.ToFloat64(GetTaskRuns().WithLabelValues("simple", "run_dataform", "success")))
	assert.Equal(t, ignored+1, testutil.ToFloat64(GetStorageEvents().WithLabelValues("ignored")))
}
