package lens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", ModeNone.String())
	assert.Equal(t, "all", ModeAll.String())
	assert.Equal(t, "mode(9)", Mode(9).String())
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  Mode
		err   bool
	}{
		{"all", ModeAll, false},
		{"ALL", ModeAll, false},
		{" none ", ModeNone, false},
		{"", ModeNone, true},
		{"some", ModeNone, true},
	}
	for _, tt := range tests {
		mode, err := ParseMode(tt.input)
		if tt.err {
			require.Error(t, err, tt.input)
		} else {
			require.NoError(t, err, tt.input)
			assert.Equal(t, tt.want, mode)
		}
	}
}

func TestModeRoundTrip(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{ModeNone, ModeAll} {
		parsed, err := ParseMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}
}

func TestOptionsDefaults(t *testing.T) {
	t.Parallel()

	var o Options
	o.applyDefaults()
	assert.Equal(t, DefaultCoroutineAlias, o.CoroutineAlias)
	assert.Equal(t, DefaultYieldIdent, o.YieldIdent)
	assert.Equal(t, DefaultHandleIdent, o.HandleIdent)
	assert.Equal(t, DefaultFacilityAlias, o.FacilityAlias)
	assert.Equal(t, DefaultFacilityImportPath, o.FacilityImportPath)

	custom := Options{CoroutineAlias: "Gen"}
	custom.applyDefaults()
	assert.Equal(t, "Gen", custom.CoroutineAlias)
	assert.Equal(t, DefaultYieldIdent, custom.YieldIdent)
}
