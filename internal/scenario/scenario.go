// Package scenario loads working-memory snapshots from yaml files: a list of
// typed facts given as property maps. It exists for tooling that wants to
// feed an engine from disk; the engine itself never touches the filesystem.
package scenario

import (
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"rulekit/engine"
)

// FactDef is one fact in a scenario file.
type FactDef struct {
	Type  string         `yaml:"type"`
	Props map[string]any `yaml:"props"`
}

// File is a parsed scenario.
type File struct {
	Name  string    `yaml:"name"`
	Facts []FactDef `yaml:"facts"`
}

// Load parses a scenario file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read scenario %s", path)
	}
	return Parse(data)
}

// Parse parses scenario yaml.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse scenario yaml")
	}
	for i, fd := range f.Facts {
		if fd.Type == "" {
			return nil, errors.Newf("scenario fact %d has no type", i)
		}
	}
	return &f, nil
}

// Apply asserts every fact of the scenario into the engine, in file order,
// and returns the asserted facts.
func (f *File) Apply(e *engine.Engine) ([]*engine.Fact, error) {
	out := make([]*engine.Fact, 0, len(f.Facts))
	for i, fd := range f.Facts {
		fact, err := e.AssertNew(fd.Type, fd.Props)
		if err != nil {
			return out, errors.Wrapf(err, "assert scenario fact %d (%s)", i, fd.Type)
		}
		out = append(out, fact)
	}
	return out, nil
}
