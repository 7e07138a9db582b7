package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stageFixture stages a tiny 2-step, 2-coin history with 1 preference slot.
func stageFixture(t *testing.T) *Stage {
	t.Helper()
	hlcs := []float64{
		// step 0: coin 0, coin 1
		10, 9, 9.5, 20, 18, 19,
		// step 1
		11, 10, 10.5, 21, 19, 20,
	}
	prefs := []int32{0, 1}
	stage, err := NewStage(hlcs, 2, 2, prefs, 1)
	require.NoError(t, err)
	return stage
}

func TestStageViews(t *testing.T) {
	stage := stageFixture(t)
	defer func() { _ = stage.Release() }()

	hlcs := stage.HLCs()
	assert.Equal(t, 2, hlcs.Steps())
	assert.Equal(t, 2, hlcs.Coins())
	assert.Equal(t, 10.0, hlcs.At(0, 0, HLCHigh))
	assert.Equal(t, 9.0, hlcs.At(0, 0, HLCLow))
	assert.Equal(t, 19.0, hlcs.At(0, 1, HLCClose))
	assert.Equal(t, 10.5, hlcs.At(1, 0, HLCClose))
	assert.Len(t, hlcs.Values(), 12)

	prefs := stage.Preferred()
	assert.Equal(t, int32(0), prefs.At(0, 0))
	assert.Equal(t, int32(1), prefs.At(1, 0))
}

func TestStageCopiesSource(t *testing.T) {
	hlcs := []float64{1, 2, 3}
	prefs := []int32{0}
	stage, err := NewStage(hlcs, 1, 1, prefs, 1)
	require.NoError(t, err)
	defer func() { _ = stage.Release() }()

	hlcs[0] = 99
	assert.Equal(t, 1.0, stage.HLCs().Values()[0])
}

func TestStageShapeValidation(t *testing.T) {
	tests := []struct {
		name  string
		hlcs  []float64
		steps int
		coins int
		prefs []int32
		slots int
	}{
		{"history too short", make([]float64, 5), 1, 2, make([]int32, 1), 1},
		{"preference too short", make([]float64, 6), 1, 2, make([]int32, 3), 1},
		{"zero steps", nil, 0, 2, nil, 1},
		{"zero coins", nil, 1, 0, nil, 1},
		{"zero slots", make([]float64, 6), 1, 2, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStage(tt.hlcs, tt.steps, tt.coins, tt.prefs, tt.slots)
			assert.Error(t, err)
		})
	}
}

func TestStageReleaseExactlyOnce(t *testing.T) {
	stage := stageFixture(t)

	require.NoError(t, stage.Release())

	err := stage.Release()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStageReleased)

	assert.Nil(t, stage.HLCs().Values())
	assert.Nil(t, stage.Preferred().Values())
}
