package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLocation(t *testing.T) {
	tests := []struct {
		name    string
		tz      string
		want    *time.Location
		wantErr bool
	}{
		{name: "empty is UTC", tz: "", want: time.UTC},
		{name: "UTC", tz: "UTC", want: time.UTC},
		{name: "local", tz: "Local", want: time.Local},
		{name: "invalid", tz: "Invalid/Timezone", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := LoadLocation(tt.tz)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, loc)
		})
	}
}

func TestConvertTime(t *testing.T) {
	utc := time.Date(2025, 9, 13, 12, 0, 0, 0, time.UTC)

	out, err := ConvertTime(utc, "Asia/Kolkata")
	require.NoError(t, err)
	assert.True(t, out.Equal(utc), "same instant")
	_, offset := out.Zone()
	assert.Equal(t, 5*3600+30*60, offset)

	out, err = ConvertTime(utc, "Nowhere/Special")
	assert.Error(t, err)
	assert.True(t, out.Equal(utc))
}
