package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMaxBodySize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "", want: DefaultMaxBodySize},
		{in: "1048576", want: 1 << 20},
		{in: "1MB", want: 1 << 20},
		{in: "512kb", want: 512 << 10},
		{in: " 2 GB ", want: 2 << 30},
		{in: "100B", want: 100},
		{in: "0", wantErr: true},
		{in: "-5KB", wantErr: true},
		{in: "lots", wantErr: true},
		{in: "9999999999GB", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMaxBodySize(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
