package sources

import (
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	perr "recallwatch/internal/platform/errors"
	"recallwatch/internal/platform/logger"
)

// builder constructs one agency adapter from its resolved settings
type builder func(Settings, *Client) Adapter

// builtin agencies with their default settings.
// Rate limits default conservative; government endpoints throttle hard
var builtin = map[string]struct {
	make     builder
	defaults Settings
}{
	"cpsc": {
		make: newCPSC,
		defaults: Settings{
			BaseURL:    "https://www.saferproducts.gov/RestWebServices",
			Enabled:    true,
			RatePerSec: 2,
			Burst:      2,
			Timeout:    30 * time.Second,
			PageSize:   100,
		},
	},
	"fda": {
		make: newFDA,
		defaults: Settings{
			BaseURL:    "https://api.fda.gov",
			Enabled:    true,
			RatePerSec: 4,
			Burst:      4,
			Timeout:    30 * time.Second,
			PageSize:   100,
		},
	},
	"healthca": {
		make: newHealthCA,
		defaults: Settings{
			BaseURL:    "https://healthycanadians.gc.ca/recall-alert-rappel-avis/api",
			Enabled:    true,
			RatePerSec: 2,
			Burst:      2,
			Timeout:    30 * time.Second,
			PageSize:   50,
		},
	},
	"safetygate": {
		make: newSafetyGate,
		defaults: Settings{
			BaseURL:    "https://ec.europa.eu/safety-gate-alerts/public/api",
			Enabled:    true,
			RatePerSec: 1,
			Burst:      1,
			Timeout:    45 * time.Second,
			PageSize:   25,
		},
	},
	"accc": {
		make: newACCC,
		defaults: Settings{
			BaseURL:    "https://www.productsafety.gov.au/recalls",
			Enabled:    true,
			RatePerSec: 1,
			Burst:      1,
			Timeout:    30 * time.Second,
			PageSize:   20,
		},
	},
}

// overridesFile is the on-disk shape of the agency overrides YAML
type overridesFile struct {
	Agencies map[string]overrideEntry `yaml:"agencies"`
}

// overrideEntry uses pointers so absent keys keep defaults
type overrideEntry struct {
	BaseURL        *string  `yaml:"base_url"`
	Enabled        *bool    `yaml:"enabled"`
	RatePerSec     *float64 `yaml:"rate_per_sec"`
	Burst          *int     `yaml:"burst"`
	TimeoutSeconds *int     `yaml:"timeout_seconds"`
	PageSize       *int     `yaml:"page_size"`
}

// Registry holds the enabled agency adapters in deterministic name order
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

// NewRegistry builds the adapter set from builtin defaults plus an optional
// YAML overrides file. Unknown agency names or invalid values in the file
// fail construction; a misconfigured registry must not start an ingest
func NewRegistry(client *Client, overridesPath string) (*Registry, error) {
	ov := overridesFile{}
	if overridesPath != "" {
		raw, err := os.ReadFile(overridesPath)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "agency overrides read failed")
		}
		if err := yaml.Unmarshal(raw, &ov); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "agency overrides parse failed")
		}
		for name := range ov.Agencies {
			if _, ok := builtin[name]; !ok {
				return nil, perr.Newf(perr.ErrorCodeInvalidArgument, "agency overrides: unknown agency %q", name)
			}
		}
	}

	r := &Registry{adapters: make(map[string]Adapter, len(builtin))}
	for name, b := range builtin {
		s := b.defaults
		if e, ok := ov.Agencies[name]; ok {
			applyOverride(&s, e)
		}
		if err := validateSettings(name, s); err != nil {
			return nil, err
		}
		if !s.Enabled {
			logger.Named("sources").Info().Str("agency", name).Msg("agency disabled by overrides")
			continue
		}
		r.adapters[name] = b.make(s, client)
		r.order = append(r.order, name)
	}
	sort.Strings(r.order)
	return r, nil
}

func applyOverride(s *Settings, e overrideEntry) {
	if e.BaseURL != nil {
		s.BaseURL = *e.BaseURL
	}
	if e.Enabled != nil {
		s.Enabled = *e.Enabled
	}
	if e.RatePerSec != nil {
		s.RatePerSec = *e.RatePerSec
	}
	if e.Burst != nil {
		s.Burst = *e.Burst
	}
	if e.TimeoutSeconds != nil {
		s.Timeout = time.Duration(*e.TimeoutSeconds) * time.Second
	}
	if e.PageSize != nil {
		s.PageSize = *e.PageSize
	}
}

func validateSettings(name string, s Settings) error {
	switch {
	case s.BaseURL == "":
		return perr.Newf(perr.ErrorCodeInvalidArgument, "agency %s: base_url required", name)
	case s.RatePerSec <= 0:
		return perr.Newf(perr.ErrorCodeInvalidArgument, "agency %s: rate_per_sec must be positive", name)
	case s.Burst <= 0:
		return perr.Newf(perr.ErrorCodeInvalidArgument, "agency %s: burst must be positive", name)
	case s.Timeout <= 0:
		return perr.Newf(perr.ErrorCodeInvalidArgument, "agency %s: timeout must be positive", name)
	case s.PageSize <= 0:
		return perr.Newf(perr.ErrorCodeInvalidArgument, "agency %s: page_size must be positive", name)
	}
	return nil
}

// Names returns the enabled agency names in sorted order
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns the adapter for name, nil when unknown or disabled
func (r *Registry) Get(name string) Adapter { return r.adapters[name] }

// All returns the enabled adapters in name order
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.adapters[n])
	}
	return out
}

// Register adds or replaces an adapter. Tests and fixtures use this to
// inject fakes; production wiring relies on the builtin table
func (r *Registry) Register(a Adapter) {
	name := a.Name()
	if _, exists := r.adapters[name]; !exists {
		r.order = append(r.order, name)
		sort.Strings(r.order)
	}
	r.adapters[name] = a
}

// NewEmptyRegistry returns a registry with no adapters, for tests
func NewEmptyRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}
