// Package pricing provides the (provider, model) -> rate table the worker
// pool's cost-calculation step consumes. The table is not a reproduction of
// any real provider's published pricing — it's a pluggable default,
// reloadable from a JSON file at startup or on demand (§6).
package pricing

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Rate is a pair of per-million-token rates.
type Rate struct {
	InputPerM  float64 `json:"input_per_m"`
	OutputPerM float64 `json:"output_per_m"`
}

// FallbackRate is used when (provider, model) has no table entry; the
// worker pool also records cost_uncertain=true in metadata when this path
// is taken (§4.3 step 2).
var FallbackRate = Rate{InputPerM: 1, OutputPerM: 2}

// defaultTable seeds a handful of well-known (provider, model) pairs so the
// core is useful out of the box without external configuration.
var defaultTable = map[string]Rate{
	"openai/gpt-4":             {InputPerM: 30, OutputPerM: 60},
	"openai/gpt-4-turbo":       {InputPerM: 10, OutputPerM: 30},
	"openai/gpt-3.5-turbo":     {InputPerM: 0.5, OutputPerM: 1.5},
	"anthropic/claude-3-opus":  {InputPerM: 15, OutputPerM: 75},
	"anthropic/claude-3-sonnet": {InputPerM: 3, OutputPerM: 15},
	"anthropic/claude-3-haiku": {InputPerM: 0.25, OutputPerM: 1.25},
	"cohere/command-r":         {InputPerM: 0.5, OutputPerM: 1.5},
}

// Table is a thread-safe, reloadable (provider, model) -> Rate lookup.
type Table struct {
	mu    sync.RWMutex
	rates map[string]Rate
}

// NewTable builds a Table seeded with the built-in defaults, optionally
// overridden by the JSON file at path (if non-empty).
func NewTable(path string) (*Table, error) {
	t := &Table{rates: cloneDefault()}
	if path != "" {
		if err := t.Reload(path); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func cloneDefault() map[string]Rate {
	out := make(map[string]Rate, len(defaultTable))
	for k, v := range defaultTable {
		out[k] = v
	}
	return out
}

// Reload replaces the table's contents with the JSON document at path — an
// object of "provider/model" -> {input_per_m, output_per_m}. The table's
// built-in defaults remain as a base, overridden per key by the file.
func (t *Table) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pricing table %s: %w", path, err)
	}

	var overrides map[string]Rate
	if err := json.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parse pricing table %s: %w", path, err)
	}

	merged := cloneDefault()
	for k, v := range overrides {
		merged[k] = v
	}

	t.mu.Lock()
	t.rates = merged
	t.mu.Unlock()
	return nil
}

// Lookup returns the rate for (provider, model), whether it was found, and
// falls back to FallbackRate when absent.
func (t *Table) Lookup(provider, model string) (Rate, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	key := provider + "/" + model
	if r, ok := t.rates[key]; ok {
		return r, true
	}
	return FallbackRate, false
}
