package constitution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLapse(c *Constitution, epochs int) int {
	amnesties := 0
	for i := 0; i < epochs; i++ {
		if c.TickLapse() {
			amnesties++
			c.RecordAmnesty(1)
		}
	}
	return amnesties
}

func TestAmnestyBoundary(t *testing.T) {
	c := New(10, 1)
	require.NoError(t, c.EnterLapse(5, Semantic))
	assert.Equal(t, 0, runLapse(c, 9), "9 lapse epochs: no amnesty")
	assert.Equal(t, 1, runLapse(c, 1), "10th lapse epoch fires")
	assert.Equal(t, 10, c.LapseEpochCount())
}

func TestAmnestyDisabled(t *testing.T) {
	c := New(0, 1)
	require.NoError(t, c.EnterLapse(0, Semantic))
	assert.Equal(t, 0, runLapse(c, 100))
}

func TestTickOutsideLapse(t *testing.T) {
	c := New(1, 1)
	assert.False(t, c.TickLapse())
	assert.Equal(t, 0, c.LapseEpochCount())
}

func TestEpisodeRecoveryYield(t *testing.T) {
	c := New(10, 1)
	require.NoError(t, c.EnterLapse(10, Semantic))
	assert.Error(t, c.EnterLapse(11, Semantic))
	runLapse(c, 30)
	require.NoError(t, c.Recover(40))
	assert.Equal(t, HasAuthority, c.State())
	assert.Equal(t, 0, c.LapseEpochCount())
	assert.Error(t, c.Recover(41))

	for i := 0; i < 15; i++ {
		c.TickActive()
	}

	require.NoError(t, c.EnterLapse(60, Structural))
	runLapse(c, 2)
	require.NoError(t, c.Recover(62))
	c.TickActive()

	s := c.Stats()
	assert.Equal(t, 2, s.LapseCount)
	assert.Equal(t, 32, s.LapseEpochs)
	assert.Equal(t, 30, s.SemanticLapseEpochs)
	assert.Equal(t, 2, s.StructuralLapseEpochs)
	assert.Equal(t, 3, s.AmnestyEvents)
	assert.Equal(t, 3, s.StreakMassRemoved)
	assert.Equal(t, 2, s.Recoveries)
	assert.Equal(t, 1, s.StutterRecoveries)
	require.Len(t, s.RecoveryYields, 2)
	assert.InDelta(t, 0.5, s.RecoveryYields[0], 1e-9)
	assert.InDelta(t, 0.5, s.RecoveryYields[1], 1e-9)
	assert.InDelta(t, 0.5, s.MeanRecoveryYield, 1e-9)
}

func TestReclassify(t *testing.T) {
	c := New(0, 0)
	require.NoError(t, c.EnterLapse(0, Structural))
	c.TickLapse()
	c.Reclassify(Semantic)
	c.TickLapse()
	s := c.Stats()
	assert.Equal(t, 1, s.StructuralLapseEpochs)
	assert.Equal(t, 1, s.SemanticLapseEpochs)
	assert.Equal(t, Semantic, s.Episodes[0].Cause)
}

func TestClassifyLapse(t *testing.T) {
	assert.Equal(t, Semantic, ClassifyLapse(2))
	assert.Equal(t, Structural, ClassifyLapse(0))
}
