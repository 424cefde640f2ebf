package sources

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/factsync/internal/domain"
)

// Sources is the resolved, validated probe input.
type Sources struct {
	Endpoints []string
	Zones     []domain.Zone
}

// Loader handles loading and parsing of the optional sources.yaml
type Loader struct {
	filePath string
}

// NewLoader creates a new sources loader. An empty path means "use defaults".
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads the sources file (if any), fills in defaults and resolves every zone.
func (l *Loader) Load() (*Sources, error) {
	var file File
	if l.filePath != "" {
		data, err := os.ReadFile(l.filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read sources file: %w", err)
		}

		// ${VAR} references are expanded from the environment
		data = []byte(os.ExpandEnv(string(data)))

		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse sources yaml: %w", err)
		}
	}
	return Resolve(file)
}

// Resolve validates f, substituting defaults for empty sections.
func Resolve(f File) (*Sources, error) {
	endpoints := f.Endpoints
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints
	}
	specs := f.Zones
	if len(specs) == 0 {
		specs = DefaultZones
	}

	out := &Sources{
		Endpoints: make([]string, 0, len(endpoints)),
		Zones:     make([]domain.Zone, 0, len(specs)),
	}

	for _, raw := range endpoints {
		ep := strings.TrimSpace(raw)
		u, err := url.Parse(ep)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid lookup endpoint %q", raw)
		}
		out.Endpoints = append(out.Endpoints, ep)
	}

	seen := make(map[string]bool, len(specs))
	for _, z := range specs {
		label := strings.TrimSpace(z.Label)
		if label == "" {
			label = z.Location
		}
		if seen[label] {
			return nil, fmt.Errorf("duplicate zone label %q", label)
		}
		seen[label] = true

		loc, err := time.LoadLocation(z.Location)
		if err != nil {
			return nil, fmt.Errorf("unknown zone %q: %w", z.Location, err)
		}
		out.Zones = append(out.Zones, domain.Zone{Label: label, Location: loc})
	}

	return out, nil
}
