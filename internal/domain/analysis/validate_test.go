package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stocksense/pkg/errors"
)

func TestValidateTicker(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "valid short", input: "F", want: "F"},
		{name: "valid long", input: "GOOGL", want: "GOOGL"},
		{name: "lowercase normalized", input: "aapl", want: "AAPL"},
		{name: "whitespace trimmed", input: "  msft ", want: "MSFT"},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
		{name: "too long", input: "ABCDEF", wantErr: true},
		{name: "digits rejected", input: "AB12", wantErr: true},
		{name: "punctuation rejected", input: "BRK.B", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateTicker(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrInvalidTicker))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
