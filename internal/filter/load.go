package filter

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed rules/*.yaml
var rulesFS embed.FS

const (
	defaultRulesFile    = "rules/applied_email_filter.yaml"
	defaultOverrideFile = "rules/override_filter.yaml"
)

// Load decodes and validates a base rule document.
func Load(r io.Reader) (Document, error) {
	var doc Document
	if err := decode(r, &doc); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadOverride decodes and validates an override document.
func LoadOverride(r io.Reader) (OverrideDocument, error) {
	var doc OverrideDocument
	if err := decode(r, &doc); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func LoadFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule document: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func LoadOverrideFile(path string) (OverrideDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open override document: %w", err)
	}
	defer f.Close()
	return LoadOverride(f)
}

// Default returns the embedded base rule document.
func Default() Document {
	data, err := rulesFS.ReadFile(defaultRulesFile)
	if err != nil {
		panic(err)
	}
	doc, err := Load(bytes.NewReader(data))
	if err != nil {
		panic(fmt.Sprintf("embedded %s: %v", defaultRulesFile, err))
	}
	return doc
}

// DefaultOverride returns the embedded override document.
func DefaultOverride() OverrideDocument {
	data, err := rulesFS.ReadFile(defaultOverrideFile)
	if err != nil {
		panic(err)
	}
	doc, err := LoadOverride(bytes.NewReader(data))
	if err != nil {
		panic(fmt.Sprintf("embedded %s: %v", defaultOverrideFile, err))
	}
	return doc
}

func decode(r io.Reader, out any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
