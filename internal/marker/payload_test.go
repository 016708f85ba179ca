package marker

import (
	"errors"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		want    ReferencePose
	}{
		{"generator default", "18,0,0", ReferencePose{SideCM: 18}},
		{"decimal reference", "6,1.25,-3.5", ReferencePose{SideCM: 6, RefXM: 1.25, RefYM: -3.5}},
		{"fractional side", "12.7,0,10", ReferencePose{SideCM: 12.7, RefYM: 10}},
		{"padded fields", " 18 , 2 ,3", ReferencePose{SideCM: 18, RefXM: 2, RefYM: 3}},
		{"exponent notation", "1.8e1,0,0", ReferencePose{SideCM: 18}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePayload(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePayloadRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		payload   string
		wantField string
	}{
		{"empty", "", ""},
		{"one field", "18", ""},
		{"two fields", "18,0", ""},
		{"four fields", "18,0,0,0", ""},
		{"semicolons", "18;0;0", ""},
		{"non numeric side", "abc,0,0", "side_cm"},
		{"non numeric x", "18,east,0", "ref_x_m"},
		{"non numeric y", "18,0,north", "ref_y_m"},
		{"empty y", "18,0,", "ref_y_m"},
		{"comma decimal separator", "18,0,5,5", ""},
		{"zero side", "0,0,0", "side_cm"},
		{"negative side", "-6,0,0", "side_cm"},
		{"nan side", "NaN,0,0", "side_cm"},
		{"infinite x", "18,Inf,0", "ref_x_m"},
		{"hex side", "0x12p0,0,0", "side_cm"},
		{"signed hex y", "18,0,-0X1p-1", "ref_y_m"},
		{"url", "https://example.com", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParsePayload(tt.payload)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPayload)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.wantField, perr.Field)
			assert.Equal(t, tt.payload, perr.Payload)
		})
	}
}

func TestParseErrorUnwrapsCause(t *testing.T) {
	_, err := ParsePayload("18,x,0")
	require.Error(t, err)
	assert.ErrorIs(t, err, strconv.ErrSyntax)
	assert.Contains(t, err.Error(), "ref_x_m")
}

func TestParseDetectionPayload(t *testing.T) {
	got, err := ParseDetectionPayload([]byte("18,1,2"))
	require.NoError(t, err)
	assert.Equal(t, ReferencePose{SideCM: 18, RefXM: 1, RefYM: 2}, got)

	_, err = ParseDetectionPayload([]byte{0xff, 0xfe, ','})
	assert.ErrorIs(t, err, ErrPayload)
}

func TestPayloadRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		want := ReferencePose{
			SideCM: 0.1 + rng.Float64()*100,
			RefXM:  (rng.Float64() - 0.5) * 200,
			RefYM:  (rng.Float64() - 0.5) * 200,
		}
		got, err := ParsePayload(FormatPayload(want))
		require.NoError(t, err)
		assert.InDelta(t, want.SideCM, got.SideCM, 1e-12)
		assert.InDelta(t, want.RefXM, got.RefXM, 1e-12)
		assert.InDelta(t, want.RefYM, got.RefYM, 1e-12)
	}
}

func TestFormatPayloadMatchesGenerator(t *testing.T) {
	assert.Equal(t, "18,0,0", FormatPayload(ReferencePose{SideCM: 18}))
	assert.Equal(t, "6,1.5,-2", FormatPayload(ReferencePose{SideCM: 6, RefXM: 1.5, RefYM: -2}))
}
