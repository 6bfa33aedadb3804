package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBuild(nil)
	c.RecordBuild(nil)
	c.RecordBuild(errors.New("boom"))
	c.RecordStep(StepCompile, time.Now().Add(-time.Second))
	c.RecordLockWait(10 * time.Millisecond)
	c.RecordDownload()
	c.RecordWarning()

	var sb strings.Builder
	require.NoError(t, WriteText(&sb, reg))
	out := sb.String()

	assert.Contains(t, out, `rustwasm_builds_total{result="ok"} 2`)
	assert.Contains(t, out, `rustwasm_builds_total{result="error"} 1`)
	assert.Contains(t, out, `rustwasm_step_duration_seconds_count{step="compile"} 1`)
	assert.Contains(t, out, "rustwasm_lock_wait_seconds_count 1")
	assert.Contains(t, out, "rustwasm_tool_downloads_total 1")
	assert.Contains(t, out, "rustwasm_warnings_total 1")
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordBuild(nil)
		c.RecordStep(StepGlue, time.Now())
		c.RecordLockWait(time.Second)
		c.RecordDownload()
		c.RecordWarning()
	})
}

func TestDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}
