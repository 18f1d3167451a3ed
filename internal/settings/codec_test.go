package settings

import (
	"encoding/json"
	"math"
	"testing"

	"sbzdeck/internal/profile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("out of range integer is dropped alone", func(t *testing.T) {
		raw := []byte(`{
			"selected_parameters": {"Device Control": ["Bass"]},
			"profiles": {
				"headphones": {
					"volume": 0.5,
					"parameters": {"Device Control": {"Bass": 5000000000, "Treble": 2, "Loud": true}}
				},
				"speakers": {"volume": null, "parameters": {}}
			}
		}`)

		s, dropped, err := Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, []string{"profiles.headphones.parameters.Device Control.Bass"}, dropped)

		params := s.Headphones.Parameters
		_, ok := params.Get("Device Control", "Bass")
		assert.False(t, ok)
		treble, ok := params.Get("Device Control", "Treble")
		require.True(t, ok)
		assert.True(t, treble.Equal(profile.Int32(2)))
		loud, ok := params.Get("Device Control", "Loud")
		require.True(t, ok)
		assert.True(t, loud.Equal(profile.Bool(true)))

		require.NotNil(t, s.Headphones.Volume)
		assert.Equal(t, float32(0.5), *s.Headphones.Volume)
		assert.Nil(t, s.Speakers.Volume)
		assert.True(t, s.Selection.Contains("Device Control", "Bass"))
	})

	t.Run("numeric classification", func(t *testing.T) {
		raw := []byte(`{"profiles":{"speakers":{"parameters":{"F":{
			"neg": -5,
			"big": 3000000000,
			"tooSmall": -3000000000,
			"frac": 1.25,
			"text": "loud",
			"nested": {"x": 1},
			"nothing": null
		}}}}}`)

		s, dropped, err := Decode(raw)
		require.NoError(t, err)

		f := s.Speakers.Parameters["F"]
		assert.True(t, f["neg"].Equal(profile.Int32(-5)))
		assert.True(t, f["big"].Equal(profile.Uint32(3000000000)))
		assert.True(t, f["frac"].Equal(profile.Float(1.25)))
		assert.Len(t, f, 3)
		assert.Len(t, dropped, 4)
	})

	t.Run("camel case selection is accepted", func(t *testing.T) {
		s, _, err := Decode([]byte(`{"selectedParameters":{"EQ":["Band1"]}}`))
		require.NoError(t, err)
		assert.True(t, s.Selection.Contains("EQ", "Band1"))
	})

	t.Run("malformed selection entries are dropped", func(t *testing.T) {
		s, dropped, err := Decode([]byte(`{"selected_parameters":{"EQ":["Band1", 3],"X":"nope"}}`))
		require.NoError(t, err)
		assert.True(t, s.Selection.Contains("EQ", "Band1"))
		_, ok := s.Selection["X"]
		assert.False(t, ok)
		assert.Equal(t, []string{"selected_parameters.EQ[1]", "selected_parameters.X"}, dropped)
	})

	t.Run("empty and null give empty settings", func(t *testing.T) {
		for _, raw := range []string{"", "  ", "null", "{}"} {
			s, dropped, err := Decode([]byte(raw))
			require.NoError(t, err, raw)
			assert.Empty(t, dropped)
			assert.Empty(t, s.Selection)
			assert.NotNil(t, s.Headphones.Parameters)
			assert.Nil(t, s.Speakers.Volume)
		}
	})

	t.Run("non-object record fails", func(t *testing.T) {
		for _, raw := range []string{"[1,2]", "42", `{"profiles":`} {
			_, _, err := Decode([]byte(raw))
			assert.ErrorIs(t, err, ErrDecode, raw)
		}
	})
}

func TestEncode(t *testing.T) {
	v := float32(0.8)
	s := profile.Settings{
		Selection: profile.NewSelection(map[string][]string{"Device Control": {"Treble", "Bass"}}),
		Speakers: profile.Profile{
			Volume: &v,
			Parameters: profile.Parameters{"Device Control": {
				"Bass":    profile.Int32(3),
				"Output":  profile.Uint32(4000000000),
				"On":      profile.Bool(false),
				"Gain":    profile.Float(0.5),
				"Broken":  profile.Float(float32(math.Inf(1))),
				"Unknown": profile.Other(),
			}},
		},
	}

	data, err := Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"selected_parameters": {"Device Control": ["Bass", "Treble"]},
		"profiles": {
			"headphones": {"volume": null, "parameters": {}},
			"speakers": {
				"volume": 0.8,
				"parameters": {"Device Control": {"Bass": 3, "Output": 4000000000, "On": false, "Gain": 0.5}}
			}
		}
	}`, string(data))

	decoded, dropped, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, dropped)
	assert.True(t, decoded.Selection.Equal(s.Selection))

	out, ok := decoded.Speakers.Parameters.Get("Device Control", "Output")
	require.True(t, ok)
	assert.True(t, out.Equal(profile.Uint32(4000000000)))

	var record Record
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, []string{"Bass", "Treble"}, record.SelectedParameters["Device Control"])
}

func TestEncodeNonFiniteVolume(t *testing.T) {
	for name, volume := range map[string]float32{
		"nan":            float32(math.NaN()),
		"infinity":       float32(math.Inf(1)),
		"minus infinity": float32(math.Inf(-1)),
	} {
		t.Run(name, func(t *testing.T) {
			store := profile.NewStore()
			store.SetVolume(profile.Speakers, volume)
			store.MergeObserved(profile.Headphones, "Device Control", "Bass", profile.Int32(3))

			data, err := Marshal(store.Settings())
			require.NoError(t, err)

			var rec Record
			require.NoError(t, json.Unmarshal(data, &rec))
			assert.Nil(t, rec.Profiles.Speakers.Volume)
			assert.Equal(t, float64(3), rec.Profiles.Headphones.Parameters["Device Control"]["Bass"])
		})
	}
}

func TestIsBlank(t *testing.T) {
	for raw, want := range map[string]bool{
		``:                           true,
		`null`:                       true,
		` {} `:                       true,
		`{"selected_parameters":{}}`: false,
		`[]`:                         false,
		`not json`:                   false,
	} {
		assert.Equal(t, want, IsBlank([]byte(raw)), "raw %q", raw)
	}
}
