package security

import (
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"

	"stockwatch/internal/errors"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{" aapl ", "AAPL", false},
		{"brk.b", "BRK.B", false},
		{"BRK-B", "BRK-B", false},
		{"^gspc", "^GSPC", false},
		{"eurusd=x", "EURUSD=X", false},
		{"", "", true},
		{"   ", "", true},
		{"AAPL;DROP", "", true},
		{"../etc", "", true},
		{"A B", "", true},
		{strings.Repeat("A", 17), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeSymbol(tt.input)
			if tt.wantErr {
				assert.Equal(t, true, errors.Is(err, errors.ErrInvalidInput))
				return
			}
			assert.Equal(t, nil, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeUserID(t *testing.T) {
	id, err := NormalizeUserID("  alice ")
	assert.Equal(t, nil, err)
	assert.Equal(t, "alice", id)

	for _, bad := range []string{"", "  ", "bob\x00", strings.Repeat("u", 129)} {
		_, err := NormalizeUserID(bad)
		assert.Equal(t, true, errors.Is(err, errors.ErrInvalidInput))
	}
}

func TestMaskCredential(t *testing.T) {
	assert.Equal(t, "", MaskCredential(""))
	assert.Equal(t, "***", MaskCredential("abc"))
	assert.Equal(t, "sk****", MaskCredential("sk-abc"))
	assert.Equal(t, "sk-t********7890", MaskCredential("sk-test-12347890"))
}
