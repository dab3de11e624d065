package language

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"en", "en"},
		{"EN", "en"},
		{"pt_br", "pt_br"},
		{"pt-BR", "pt_br"},
		{"pt-PT", "pt"},
		{"de-AT", "de"},
		{" es ", "es"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	for _, in := range []string{"", "xx-invalid-tag-!!", "qaa"} {
		_, err := Normalize(in)
		assert.Error(t, err, in)
	}
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("pt_br"))
	assert.False(t, IsSupported("pt-BR"))
}
