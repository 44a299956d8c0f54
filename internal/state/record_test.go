package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/threadwatch/internal/watch"
)

func TestEncodeShape(t *testing.T) {
	t.Parallel()

	data, err := Encode(37)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"last\": 37\n}", string(data))
}

func TestEncodeRejectsNegative(t *testing.T) {
	t.Parallel()

	_, err := Encode(-1)
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 37, 99999, 1 << 40} {
		data, err := Encode(n)
		require.NoError(t, err)
		got, err := Decode(data)
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		input     string
		want      int
		malformed bool
	}{
		{"compact", `{"last":12}`, 12, false},
		{"missing field", `{"other":1}`, 0, false},
		{"null field", `{"last":null}`, 0, false},
		{"empty", "", 0, true},
		{"not json", "last=4", 0, true},
		{"string value", `{"last":"4"}`, 0, true},
		{"fractional", `{"last":4.5}`, 0, true},
		{"negative", `{"last":-3}`, 0, true},
		{"array", `[1,2]`, 0, true},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Decode([]byte(tc.input))
			assert.Equal(t, tc.want, got)
			if tc.malformed {
				assert.ErrorIs(t, err, watch.ErrMalformedState)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
