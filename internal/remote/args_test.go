package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"fs ls", []string{"fs", "ls"}},
		{`exec 'import main'`, []string{"exec", "import main"}},
		{`exec "print('x')"`, []string{"exec", "print('x')"}},
		{`a  '' b`, []string{"a", "", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := splitArgs(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := splitArgs(`exec 'oops`)
	assert.Error(t, err)
}

func TestKillPattern(t *testing.T) {
	assert.Equal(t, `python3 -u .*[F]ile\.py`, killPattern("/home/pi/File.py"))
	assert.Equal(t, `python3 -u .*[F]ile\.py`, killPattern(""))
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'/home/pi/File.py'`, shellQuote("/home/pi/File.py"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}
