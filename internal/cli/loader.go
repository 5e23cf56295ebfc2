// Package cli holds file loading and output formatting for the schemamap command.
package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/solatis/schemamap/internal/document"
	"github.com/solatis/schemamap/internal/types"
)

// MappingFile is the on-disk form of a mapping set. The file may also be a
// bare list of rules. JSON files are read through the same YAML decoder.
type MappingFile struct {
	Name  string           `yaml:"name" json:"name"`
	Rules types.MappingSet `yaml:"rules" json:"rules"`
}

// readInput reads path, or stdin for "-".
func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// LoadMappingSet reads a mapping file (YAML or JSON).
//
// Rules without ids are numbered from 1 when no rule carries an id. A missing
// kind is conditional when conditions are present, plain_text otherwise. A
// missing join is AND, or TERMINAL on the last condition.
func LoadMappingSet(path string) (*MappingFile, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}
	mf, err := DecodeMappingSet(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return mf, nil
}

// DecodeMappingSet decodes mapping file content.
func DecodeMappingSet(data []byte) (*MappingFile, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decode mapping file: %w", err)
	}

	mf := &MappingFile{}
	var err error
	if len(root.Content) > 0 {
		node := root.Content[0]
		switch node.Kind {
		case yaml.SequenceNode:
			err = node.Decode(&mf.Rules)
		case yaml.MappingNode:
			err = node.Decode(mf)
		default:
			err = fmt.Errorf("expected a list of rules or an object with rules")
		}
		if err != nil {
			return nil, fmt.Errorf("decode mapping file: %w", err)
		}
	}
	if mf.Rules == nil {
		mf.Rules = types.MappingSet{}
	}

	applyRuleDefaults(mf.Rules)
	return mf, nil
}

func applyRuleDefaults(set types.MappingSet) {
	numbered := false
	for _, r := range set {
		if r.ID != 0 {
			numbered = true
			break
		}
	}

	for i := range set {
		r := &set[i]
		if !numbered {
			r.ID = i + 1
		}
		if r.Kind == "" {
			r.Kind = types.KindPlainText
			if len(r.Conditions) > 0 {
				r.Kind = types.KindConditional
			}
		}
		for j := range r.Conditions {
			if r.Conditions[j].Join != "" {
				continue
			}
			if j == len(r.Conditions)-1 {
				r.Conditions[j].Join = types.JoinTerminal
			} else {
				r.Conditions[j].Join = types.JoinAnd
			}
		}
	}
}

// LoadDocument reads a JSON document, keeping property order.
func LoadDocument(path string) (*document.Object, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if len(data) > types.MaxDocumentSize {
		return nil, fmt.Errorf("%s: %w", path, types.ErrDocumentTooLarge)
	}
	doc, err := document.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// LoadRecord reads a JSON data record. An empty path is the empty record.
func LoadRecord(path string) (types.DataRecord, error) {
	if path == "" {
		return types.DataRecord{}, nil
	}
	data, err := readInput(path)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	if len(data) > types.MaxRecordSize {
		return nil, fmt.Errorf("%s: %w", path, types.ErrRecordTooLarge)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return types.DataRecord{}, nil
	}
	rec, err := types.DecodeDataRecord(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}
