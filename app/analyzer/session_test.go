package analyzer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booq/types"
)

func TestRegistryUnknownIsIdle(t *testing.T) {
	r := NewRegistry()
	p := r.Progress("nope")
	assert.Equal(t, types.StatusIdle, p.Status)
	assert.Equal(t, 0, p.TotalPages)
	assert.False(t, r.Running("nope"))

	r.RequestStop("nope")
	assert.Equal(t, types.StatusIdle, r.Progress("nope").Status)
}

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	s, err := r.Begin("f1", 12)
	require.NoError(t, err)
	assert.True(t, r.Running("f1"))

	p := r.Progress("f1")
	assert.Equal(t, types.StatusAnalyzing, p.Status)
	assert.Equal(t, 12, p.TotalPages)

	r.Update(s, func(p *types.AnalysisProgress) {
		p.CurrentPage = 4
		p.Status = types.StatusCompleted
	})
	p = r.Progress("f1")
	assert.Equal(t, 4, p.CurrentPage)
	assert.Equal(t, types.StatusAnalyzing, p.Status)

	assert.False(t, r.Finish(s, types.StatusAnalyzing, "not terminal", 0))
	assert.True(t, r.Finish(s, types.StatusCompleted, "done", 9))
	p = r.Progress("f1")
	assert.Equal(t, types.StatusCompleted, p.Status)
	assert.Equal(t, 9, p.QuestionsFound)

	assert.False(t, r.Finish(s, types.StatusError, "late", 0))
	assert.Equal(t, types.StatusCompleted, r.Progress("f1").Status)

	r.End(s)
	assert.False(t, r.Running("f1"))
}

func TestRegistryRejectsStartWhileRunInFlight(t *testing.T) {
	r := NewRegistry()
	first, err := r.Begin("f1", 1)
	require.NoError(t, err)
	_, err = r.Begin("f1", 1)
	assert.ErrorIs(t, err, types.ErrAlreadyRunning)

	// stopped but not yet returned
	r.RequestStop("f1")
	assert.Equal(t, types.StatusStopped, r.Progress("f1").Status)
	_, err = r.Begin("f1", 1)
	assert.ErrorIs(t, err, types.ErrAlreadyRunning)

	r.End(first)
	second, err := r.Begin("f1", 1)
	require.NoError(t, err)
	assert.False(t, second.StopRequested())
	assert.True(t, first.StopRequested())

	// the old handle cannot touch the new session
	assert.False(t, r.Finish(first, types.StatusCompleted, "stale", 7))
	assert.Equal(t, types.StatusAnalyzing, r.Progress("f1").Status)
}

func TestRegistryStop(t *testing.T) {
	r := NewRegistry()
	s, err := r.Begin("f1", 5)
	require.NoError(t, err)

	r.RequestStop("f1")
	assert.True(t, s.StopRequested())
	assert.Equal(t, types.StatusStopped, r.Progress("f1").Status)

	assert.False(t, r.Finish(s, types.StatusCompleted, "done", 3))
	assert.Equal(t, types.StatusStopped, r.Progress("f1").Status)
}

func TestRegistryStopAll(t *testing.T) {
	r := NewRegistry()
	a, err := r.Begin("a", 1)
	require.NoError(t, err)
	b, err := r.Begin("b", 1)
	require.NoError(t, err)
	require.True(t, r.Finish(b, types.StatusCompleted, "done", 0))
	r.End(b)

	r.StopAll()
	assert.True(t, a.StopRequested())
	assert.False(t, b.StopRequested())
	assert.Equal(t, types.StatusStopped, r.Progress("a").Status)
	assert.Equal(t, types.StatusCompleted, r.Progress("b").Status)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	s, err := r.Begin("f1", 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := 1; page <= 100; page++ {
				r.Update(s, func(p *types.AnalysisProgress) { p.CurrentPage = page })
				_ = r.Progress("f1")
				_ = r.Running("f1")
				_ = s.StopRequested()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, types.StatusAnalyzing, r.Progress("f1").Status)
}
