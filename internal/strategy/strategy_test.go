package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryKnowsItsStrategies(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []string{"bollinger_reversion", "range_breakout"}, reg.Names())

	s, err := reg.New("bollinger_reversion", nil)
	require.NoError(t, err)
	assert.Equal(t, "bollinger_reversion", s.Name())

	s, err = reg.New("range_breakout", map[string]float64{"entry_period": 5})
	require.NoError(t, err)
	assert.Equal(t, "range_breakout", s.Name())
}

func TestRegistryUnknownName(t *testing.T) {
	_, err := NewRegistry().New("martingale", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "martingale")
}

func TestFactoryParamValidation(t *testing.T) {
	_, err := NewBollingerReversion(map[string]float64{"period": 1})
	assert.Error(t, err)
	_, err = NewBollingerReversion(map[string]float64{"width": -1})
	assert.Error(t, err)
	_, err = NewRangeBreakout(map[string]float64{"qty": 0})
	assert.Error(t, err)
	_, err = NewRangeBreakout(map[string]float64{"exit_period": 0})
	assert.Error(t, err)
}

func TestParamFallsBackToDefault(t *testing.T) {
	assert.Equal(t, 20.0, param(nil, "period", 20))
	assert.Equal(t, 5.0, param(map[string]float64{"period": 5}, "period", 20))
}
