package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floats(vs ...float64) []NullFloat {
	out := make([]NullFloat, len(vs))
	for i, v := range vs {
		out[i] = Float(v)
	}
	return out
}

func TestColumnMean(t *testing.T) {
	t.Run("ignores missing values", func(t *testing.T) {
		mean, ok := columnMean([]NullFloat{Float(50), {}, Float(9999)})
		require.True(t, ok)
		assert.InDelta(t, 5024.5, mean, 1e-9)
	})

	t.Run("no values", func(t *testing.T) {
		_, ok := columnMean([]NullFloat{{}, {}})
		assert.False(t, ok)
	})
}

func TestQuantile(t *testing.T) {
	tests := []struct {
		name     string
		values   []NullFloat
		p        float64
		expected float64
	}{
		{"median of odd count", floats(3, 1, 2), 0.5, 2},
		{"median interpolates", floats(1, 2, 3, 4), 0.5, 2.5},
		{"max at p=1", floats(4, 9, 1), 1, 9},
		{"min at p=0", floats(4, 9, 1), 0, 1},
		{"single value", floats(42), capQuantile, 42},
		{"skips missing", []NullFloat{Float(10), {}, Float(20)}, 0.5, 15},
		{"high percentile", floats(50, 5024.5, 9999), capQuantile, 5024.5 + 0.998*4974.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, ok := quantile(tt.values, tt.p)
			require.True(t, ok)
			assert.InDelta(t, tt.expected, q, 1e-6)
		})
	}

	t.Run("empty", func(t *testing.T) {
		_, ok := quantile(nil, 0.5)
		assert.False(t, ok)
	})
}

func TestRound2(t *testing.T) {
	assert.InDelta(t, 9989.05, round2(9989.051), 1e-9)
	assert.InDelta(t, 12.35, round2(12.3456), 1e-9)
	assert.InDelta(t, 0.0, round2(0.004), 1e-9)
	assert.InDelta(t, 7.0, round2(7), 1e-9)
}

func TestFloor2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.00899, 1.00},
		{9989.051, 9989.05},
		{0.29, 0.29},
		{7, 7},
		{0.004, 0},
	}
	for _, tt := range tests {
		got := floor2(tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, "floor2(%v)", tt.in)
		assert.LessOrEqual(t, got, tt.in)
	}
}

func TestNullFloat(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		assert.Equal(t, "", NullFloat{}.String())
		assert.Equal(t, "12.5", Float(12.5).String())
	})

	t.Run("json", func(t *testing.T) {
		b, err := Float(3.25).MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, "3.25", string(b))

		b, err = NullFloat{}.MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, "null", string(b))

		var n NullFloat
		require.NoError(t, n.UnmarshalJSON([]byte("null")))
		assert.False(t, n.Valid)
		require.NoError(t, n.UnmarshalJSON([]byte("7.5")))
		assert.Equal(t, Float(7.5), n)
	})

	t.Run("driver value", func(t *testing.T) {
		v, err := NullFloat{}.Value()
		require.NoError(t, err)
		assert.Nil(t, v)

		v, err = Float(1.5).Value()
		require.NoError(t, err)
		assert.Equal(t, 1.5, v)
	})
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected time.Time
		ok       bool
	}{
		{"crawler layout", "2024-05-01 10:15:30", time.Date(2024, 5, 1, 10, 15, 30, 0, time.UTC), true},
		{"fractional seconds", "2024-05-01 10:15:30.250", time.Date(2024, 5, 1, 10, 15, 30, 250_000_000, time.UTC), true},
		{"rfc3339 with offset", "2024-05-01T17:00:00+07:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"iso without zone", "2024-05-01T10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"minutes only", "2024-05-01 10:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"slashes", "2024/05/01 10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"date only", "2024-05-01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), true},
		{"padded", "  2024-05-01 10:00:00 ", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"empty", "", time.Time{}, false},
		{"garbage", "yesterday", time.Time{}, false},
		{"impossible date", "2024-13-45 10:00:00", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.raw)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.expected.Equal(got), "got %s", got)
				assert.Equal(t, time.UTC, got.Location())
			}
		})
	}
}

func TestSetClock(t *testing.T) {
	t.Run("set custom clock", func(t *testing.T) {
		fixedTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		SetClock(clockwork.NewFakeClockAt(fixedTime))
		defer SetClock(nil)

		assert.Equal(t, fixedTime, Now())
	})

	t.Run("reset to real clock", func(t *testing.T) {
		SetClock(clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
		SetClock(nil)

		assert.True(t, time.Since(Now()) < time.Second)
	})
}

func TestNullFloat_Scan(t *testing.T) {
	var n NullFloat
	require.NoError(t, n.Scan(nil))
	assert.False(t, n.Valid)

	require.NoError(t, n.Scan(42.5))
	assert.Equal(t, Float(42.5), n)

	require.NoError(t, n.Scan([]byte("7.25")))
	assert.Equal(t, Float(7.25), n)

	assert.Error(t, n.Scan("not a number"))
}
