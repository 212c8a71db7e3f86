package pipeline

import (
	"gopkg.in/yaml.v3"
)

// DefaultOrder is the full ordered pass list: pre-flatten passes
// (Parallelize first, since it needs the structured KFor before
// FlattenCFG and every other pass assumes a single-threaded loop body),
// then flatten, SSA construction, and the loop-optimization passes.
var DefaultOrder = []string{
	"Parallelize",
	"EarlyConstFold",
	"MoveAlloca",
	"EarlyInline",
	"TCO",
	"Remerge",
	"TidyMemory",
	"Localize",
	"RaiseToFor",
	"FlattenCFG",
	"Mem2Reg",
	"RegularFold",
	"GVN",
	"GCM",
	"LICM",
	"LoopRotate",
	"ConstLoopUnroll",
	"SCEV",
	"Vectorize",
	"LoopDCE",
	"DCE",
}

// Config is the YAML-driven pipeline configuration: which passes run,
// in what order, and whether a trace hook is attached. The zero
// value runs every pass in DefaultOrder.
type Config struct {
	// Disabled names passes to skip; nil/empty runs everything in Order
	// (or DefaultOrder).
	Disabled []string `yaml:"disabled"`
	// Order overrides DefaultOrder when non-empty, letting a config pin a
	// custom sequence (e.g. for isolating one pass in a test fixture).
	Order []string `yaml:"order"`
	// Trace, if set, is called with (passName, module dump) after every
	// pass — backs the CLI's `-trace` flag. Not a YAML field: wired by
	// the CLI, not configuration data.
	Trace func(passName, dump string) `yaml:"-"`
}

func (c Config) enabled(name string) bool {
	for _, d := range c.Disabled {
		if d == name {
			return false
		}
	}
	return true
}

// DefaultConfig returns the zero-value configuration: every pass in
// DefaultOrder, enabled, no trace hook.
func DefaultConfig() Config { return Config{} }

// LoadConfig parses a YAML pipeline configuration document.
func LoadConfig(doc []byte) (Config, error) {
	var cfg Config
	if len(doc) == 0 {
		return DefaultConfig(), nil
	}
	if err := yaml.Unmarshal(doc, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
