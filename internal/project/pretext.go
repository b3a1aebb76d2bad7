package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MappingFileName is written by the PreTeXt builder into the output
// directory. It maps canonical source paths to the XML ids of the output
// pages generated from them.
const MappingFileName = "mapping.json"

// Mapping is the parsed PreTeXt source-to-ids table.
type Mapping map[string][]string

// LoadMapping reads <outputPath>/mapping.json.
func LoadMapping(outputPath string) (Mapping, error) {
	data, err := os.ReadFile(filepath.Join(outputPath, MappingFileName))
	if err != nil {
		return nil, fmt.Errorf("cannot read PreTeXt mapping: %w", err)
	}

	var m Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("cannot parse PreTeXt mapping: %w", err)
	}
	return m, nil
}

// IDsFor looks up the XML ids for a source file. The mapping stores
// canonical absolute paths; slash direction may differ from the running
// platform, so both spellings are tried.
func (m Mapping) IDsFor(sourceFile string) []string {
	abs, err := filepath.Abs(sourceFile)
	if err != nil {
		return nil
	}

	if ids, ok := m[abs]; ok {
		return ids
	}
	if ids, ok := m[filepath.ToSlash(abs)]; ok {
		return ids
	}
	return nil
}

// SourceFor is the reverse lookup: the source file whose output pages
// include the given XML id. Used by save_file requests from viewers.
func (m Mapping) SourceFor(xmlID string) (string, bool) {
	for src, ids := range m {
		for _, id := range ids {
			if id == xmlID {
				return src, true
			}
		}
	}
	return "", false
}

// PreTeXtOutputPath derives the expected output file for sourceFile from
// the mapping: the first id wins. Later ids name pages the source also
// contributed to, but the first is the page the file opens on.
func (c *Config) PreTeXtOutputPath(sourceFile string) (string, bool) {
	m, err := LoadMapping(c.OutputPath)
	if err != nil {
		return "", false
	}

	ids := m.IDsFor(sourceFile)
	if len(ids) == 0 {
		return "", false
	}
	return filepath.Join(c.OutputPath, ids[0]+c.HTMLExt), true
}
