package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderDefaults(t *testing.T) {
	src, err := NewLoader("").Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultEndpoints, src.Endpoints)
	require.Len(t, src.Zones, len(DefaultZones))
	assert.Equal(t, "UTC", src.Zones[0].Label)
	assert.Equal(t, "São Paulo (BRT/BRST)", src.Zones[len(src.Zones)-1].Label)
}

func TestLoaderLoad(t *testing.T) {
	tmpDir := t.TempDir()
	yamlPath := filepath.Join(tmpDir, "sources.yaml")
	t.Setenv("LOOKUP_HOST", "ip.internal")

	yamlContent := `---
endpoints:
  - https://${LOOKUP_HOST}/raw
  - http://fallback.example/ip
zones:
  - label: Tokyo (JST)
    location: Asia/Tokyo
  - location: Europe/London
`

	err := os.WriteFile(yamlPath, []byte(yamlContent), 0o644)
	require.NoError(t, err)

	src, err := NewLoader(yamlPath).Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://ip.internal/raw", "http://fallback.example/ip"}, src.Endpoints)
	require.Len(t, src.Zones, 2)
	assert.Equal(t, "Tokyo (JST)", src.Zones[0].Label)
	assert.Equal(t, "Asia/Tokyo", src.Zones[0].Location.String())
	assert.Equal(t, "Europe/London", src.Zones[1].Label)
}

func TestLoaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown zone", "zones:\n  - label: Nowhere\n    location: Mars/Olympus_Mons\n"},
		{"duplicate label", "zones:\n  - {label: A, location: UTC}\n  - {label: A, location: Asia/Tokyo}\n"},
		{"bad endpoint", "endpoints:\n  - ftp://example.com/ip\n"},
		{"not yaml", "endpoints: [unterminated\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sources.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			_, err := NewLoader(path).Load()
			assert.Error(t, err)
		})
	}

	_, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	assert.Error(t, err)
}
