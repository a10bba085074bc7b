package ml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/helmet-cv/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "classes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadClassNames(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    ClassNames
	}{
		{name: "names list", content: "names: [With Helmet, Without Helmet]\n", want: ClassNames{"With Helmet", "Without Helmet"}},
		{name: "names map", content: "nc: 2\nnames:\n  0: helmet\n  1: head\n", want: ClassNames{"helmet", "head"}},
		{name: "sparse map", content: "names:\n  1: no_helmet\n", want: ClassNames{"unknown", "no_helmet"}},
		{name: "classes list", content: "classes:\n  - helmet\n  - no-helmet\n", want: ClassNames{"helmet", "no-helmet"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadClassNames(writeFile(t, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadClassNamesErrors(t *testing.T) {
	_, err := LoadClassNames(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadClassNames(writeFile(t, "nc: 2\n"))
	assert.Error(t, err)

	_, err = LoadClassNames(writeFile(t, "names: [unterminated\n"))
	assert.Error(t, err)
}

func TestLoadClassNamesOrDefault(t *testing.T) {
	logger := zap.NewNop()

	assert.Equal(t, DefaultClassNames, LoadClassNamesOrDefault("", logger))
	assert.Equal(t, DefaultClassNames, LoadClassNamesOrDefault("/does/not/exist.yaml", logger))
	assert.Equal(t, ClassNames{"a"}, LoadClassNamesOrDefault(writeFile(t, "names: [a]\n"), logger))
}

func TestClassNamesLabel(t *testing.T) {
	names := ClassNames{"With Helmet", "Without Helmet", "person"}

	assert.Equal(t, models.LabelHelmet, names.Label(0))
	assert.Equal(t, models.LabelNoHelmet, names.Label(1))
	assert.Equal(t, models.LabelUnknown, names.Label(2))
	assert.Equal(t, models.LabelUnknown, names.Label(3))
	assert.Equal(t, models.LabelUnknown, names.Label(-1))
	assert.Equal(t, "unknown", names.Name(7))
}
