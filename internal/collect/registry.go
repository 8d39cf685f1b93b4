package collect

import (
	"embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Registry holds the configuration for all data sources.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// FetchConfig defines HTTP behavior for a source.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // Default: 30
	MaxRetries     int     `yaml:"max_retries,omitempty"`     // Default: 3
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`  // Requests per second, default: 1.0
}

// SelectorConfig drives the generic HTML strategy.
type SelectorConfig struct {
	Container string `yaml:"container,omitempty"` // CSS selector for the list item wrapper
	Link      string `yaml:"link,omitempty"`
	Title     string `yaml:"title,omitempty"`
	Deadline  string `yaml:"deadline,omitempty"`
	Budget    string `yaml:"budget,omitempty"`
	Synopsis  string `yaml:"synopsis,omitempty"`
}

// SourceConfig defines a single upstream funding portal.
type SourceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Enabled  bool   `yaml:"enabled"`
	Strategy string `yaml:"strategy"` // "api_horizon", "api_grants_gov", "html_generic"
	BaseURL  string `yaml:"base_url,omitempty"`
	Keyword  string `yaml:"keyword,omitempty"`
	MaxPages int    `yaml:"max_pages,omitempty"`

	Seeds []string `yaml:"seed_urls,omitempty"`

	Fetch     FetchConfig    `yaml:"fetch,omitempty"`
	Selectors SelectorConfig `yaml:"selectors,omitempty"`
}

// LoadRegistry loads the source registry. A non-empty path overrides the
// embedded default registry.
func LoadRegistry(path string) (*Registry, error) {
	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "collect: read registry %s", path)
		}
	} else {
		data, err = sourcesYAML.ReadFile("config/sources.yaml")
		if err != nil {
			return nil, eris.Wrap(err, "collect: read embedded registry")
		}
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, eris.Wrap(err, "collect: parse registry")
	}

	seen := make(map[string]struct{}, len(reg.Sources))
	for _, src := range reg.Sources {
		if src.ID == "" {
			return nil, eris.New("collect: registry entry missing id")
		}
		if _, dup := seen[src.ID]; dup {
			return nil, eris.Errorf("collect: duplicate source id %q", src.ID)
		}
		seen[src.ID] = struct{}{}
	}
	return &reg, nil
}

// Enabled returns the subset of sources with enabled=true.
func (r *Registry) Enabled() []SourceConfig {
	var out []SourceConfig
	for _, src := range r.Sources {
		if src.Enabled {
			out = append(out, src)
		}
	}
	return out
}

// Build constructs a collector for each enabled source.
func (r *Registry) Build() ([]Collector, error) {
	var collectors []Collector
	for _, src := range r.Enabled() {
		switch src.Strategy {
		case "api_horizon":
			collectors = append(collectors, NewHorizonCollector(src))
		case "api_grants_gov":
			collectors = append(collectors, NewGrantsGovCollector(src))
		case "html_generic":
			collectors = append(collectors, NewHTMLCollector(src))
		default:
			return nil, eris.Errorf("collect: unknown strategy %q for source %q", src.Strategy, src.ID)
		}
	}
	return collectors, nil
}
