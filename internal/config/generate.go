package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/helixml/codeframe/domain/cluster"
)

// GenerateFile is the YAML document accepted by `codeframe generate --config`.
//
//	category_id: 12
//	target_language: de
//	answer_ids: [1, 2, 3]
//	algorithm:
//	  min_cluster_size: 5
//	  hierarchy_preference: adaptive
type GenerateFile struct {
	CategoryID     int64          `yaml:"category_id"`
	AnswerIDs      []int64        `yaml:"answer_ids"`
	TargetLanguage string         `yaml:"target_language"`
	Algorithm      cluster.Config `yaml:"algorithm"`
}

// LoadGenerateFile reads and decodes a generate config file. Unknown keys
// are rejected so typos do not silently fall back to defaults.
func LoadGenerateFile(path string) (GenerateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GenerateFile{}, fmt.Errorf("read generate config: %w", err)
	}
	return ParseGenerateFile(data)
}

// ParseGenerateFile decodes a generate config document.
func ParseGenerateFile(data []byte) (GenerateFile, error) {
	var f GenerateFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return GenerateFile{}, fmt.Errorf("parse generate config: %w", err)
	}
	return f, nil
}
