package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed factorio.yaml
var factorioYAML []byte

// Default returns the built-in Factorio catalog.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(factorioYAML))
}

// DefaultDefinition returns the definition behind Default.
func DefaultDefinition() (*Definition, error) {
	return Decode(bytes.NewReader(factorioYAML))
}

// LoadFile reads and builds a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	cat, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// Load decodes a YAML definition and builds it.
func Load(r io.Reader) (*Catalog, error) {
	def, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return Build(def)
}

// Decode reads a YAML definition without validating it. Unknown keys are rejected.
func Decode(r io.Reader) (*Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty catalog definition")
		}
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}
	return &def, nil
}

// Encode writes def as YAML.
func Encode(w io.Writer, def *Definition) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(def); err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	return enc.Close()
}
