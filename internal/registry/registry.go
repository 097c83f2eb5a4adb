// Package registry holds the per-signal persistence policy.
//
// Policy is loaded once at startup from a JSON descriptor keyed by
// arbitrary entry names; each entry carries the protocol fields the
// signal key is derived from plus its save mode. A signal absent from
// the registry is never persisted.
package registry

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/y-ookuma/uecs2influxdbV2/internal/errors"
	"github.com/y-ookuma/uecs2influxdbV2/internal/logging"
	"github.com/y-ookuma/uecs2influxdbV2/internal/uecs"
)

var log = logging.Component("registry")

// SaveMode is the persistence policy of one signal.
type SaveMode int

const (
	// SaveModeNone drops the signal without persisting it.
	SaveModeNone SaveMode = iota
	// SaveModeDelta persists the absolute difference against the prior
	// stored value.
	SaveModeDelta
	// SaveModeRound persists the value rounded to the nearest integer.
	SaveModeRound
	// SaveModeAggregate persists the raw value and marks the signal for
	// quadrant aggregation.
	SaveModeAggregate
)

// String returns the descriptor spelling of the mode.
func (m SaveMode) String() string {
	switch m {
	case SaveModeNone:
		return "none"
	case SaveModeDelta:
		return "diff"
	case SaveModeRound:
		return "round"
	case SaveModeAggregate:
		return "abc"
	default:
		return fmt.Sprintf("SaveMode(%d)", int(m))
	}
}

// parseSaveMode maps a descriptor savemode string to its policy. The
// descriptor uses "on"/"off" interchangeably for round mode.
func parseSaveMode(s string) (SaveMode, error) {
	switch s {
	case "", "none":
		return SaveModeNone, nil
	case "diff":
		return SaveModeDelta, nil
	case "on", "off":
		return SaveModeRound, nil
	case "abc":
		return SaveModeAggregate, nil
	default:
		return SaveModeNone, fmt.Errorf("unknown savemode %q", s)
	}
}

// Policy is the resolved persistence policy of one signal.
type Policy struct {
	Signal string
	Mode   SaveMode
}

// Persist reports whether readings for the signal are written at all.
func (p Policy) Persist() bool { return p.Mode != SaveModeNone }

// Delta reports whether the value is replaced by a delta before writing.
func (p Policy) Delta() bool { return p.Mode == SaveModeDelta }

// Round reports whether the value is rounded before writing.
func (p Policy) Round() bool { return p.Mode == SaveModeRound }

// Aggregate reports whether the signal participates in quadrant
// aggregation.
func (p Policy) Aggregate() bool { return p.Mode == SaveModeAggregate }

// descriptorEntry mirrors one entry of the JSON descriptor.
type descriptorEntry struct {
	Type     string `json:"type"`
	Room     string `json:"room"`
	Region   string `json:"region"`
	Order    string `json:"order"`
	SaveMode string `json:"savemode"`
}

// Registry maps canonical signal keys to their policies. It is built
// once at load time and read-only afterwards, so lookups need no lock.
type Registry struct {
	policies map[string]Policy
}

// Load reads the JSON descriptor at path and builds the registry.
// A missing file, malformed JSON, an entry with missing key fields or an
// unrecognized savemode all fail the load; policy errors are configuration
// errors and the daemon should not start on a bad descriptor.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigError("registry "+path, errors.ErrRegistryMissing)
		}
		return nil, errors.ConfigError("registry "+path, err)
	}
	return Parse(raw)
}

// Parse builds the registry from raw descriptor bytes.
func Parse(raw []byte) (*Registry, error) {
	var entries map[string]descriptorEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.ConfigError("registry", errors.ErrRegistryMalformed)
	}

	policies := make(map[string]Policy, len(entries))
	for name, e := range entries {
		if e.Type == "" || e.Room == "" || e.Region == "" || e.Order == "" {
			return nil, errors.ConfigError(
				fmt.Sprintf("registry entry %q", name), errors.ErrRegistryMalformed)
		}
		mode, err := parseSaveMode(e.SaveMode)
		if err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("registry entry %q", name), err)
		}
		signal := uecs.SignalKey(e.Type, e.Room, e.Region, e.Order)
		if prev, ok := policies[signal]; ok && prev.Mode != mode {
			// Duplicate key fields with conflicting modes: the stricter
			// delta policy wins, matching the precedence applied at
			// message time.
			log.Warn("conflicting savemode for signal",
				"signal", signal, "kept", prev.Mode.String(), "dropped", mode.String())
			if prev.Mode == SaveModeDelta {
				continue
			}
		}
		policies[signal] = Policy{Signal: signal, Mode: mode}
	}

	log.Info("registry loaded", "signals", len(policies))
	return &Registry{policies: policies}, nil
}

// Lookup returns the policy for a signal. A signal with no entry gets
// SaveModeNone, so unknown traffic is silently dropped.
func (r *Registry) Lookup(signal string) Policy {
	if p, ok := r.policies[signal]; ok {
		return p
	}
	return Policy{Signal: signal, Mode: SaveModeNone}
}

// AggregateKeys returns the signal keys marked for quadrant aggregation,
// in no particular order.
func (r *Registry) AggregateKeys() []string {
	keys := make([]string, 0, len(r.policies))
	for signal, p := range r.policies {
		if p.Aggregate() {
			keys = append(keys, signal)
		}
	}
	return keys
}

// Len returns the number of registered signals.
func (r *Registry) Len() int { return len(r.policies) }
