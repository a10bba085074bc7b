package ml

import (
	"fmt"
	"os"
	"sort"

	"github.com/san-kum/helmet-cv/server/models"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ClassNames maps model class indices to raw class names.
type ClassNames []string

var DefaultClassNames = ClassNames{"helmet", "no_helmet"}

func (c ClassNames) Name(id int) string {
	if id < 0 || id >= len(c) {
		return string(models.LabelUnknown)
	}
	return c[id]
}

func (c ClassNames) Label(id int) models.Label {
	if id < 0 || id >= len(c) {
		return models.LabelUnknown
	}
	return models.NormalizeLabel(c[id])
}

// classFile accepts both the `names:` key of a dataset yaml (list or
// index map) and a bare `classes:` list.
type classFile struct {
	Names   yaml.Node `yaml:"names"`
	Classes []string  `yaml:"classes"`
}

func LoadClassNames(path string) (ClassNames, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read class file: %w", err)
	}

	var file classFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse class file: %w", err)
	}

	var names ClassNames
	switch file.Names.Kind {
	case yaml.SequenceNode:
		if err := file.Names.Decode(&names); err != nil {
			return nil, fmt.Errorf("failed to decode names list: %w", err)
		}
	case yaml.MappingNode:
		var indexed map[int]string
		if err := file.Names.Decode(&indexed); err != nil {
			return nil, fmt.Errorf("failed to decode names map: %w", err)
		}
		names = fromIndexMap(indexed)
	default:
		names = file.Classes
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("no class names found in %s", path)
	}
	return names, nil
}

// LoadClassNamesOrDefault falls back to DefaultClassNames when path is empty
// or unreadable.
func LoadClassNamesOrDefault(path string, logger *zap.Logger) ClassNames {
	if path == "" {
		return DefaultClassNames
	}
	names, err := LoadClassNames(path)
	if err != nil {
		logger.Warn("Using default class names", zap.String("path", path), zap.Error(err))
		return DefaultClassNames
	}
	logger.Info("Loaded class names", zap.Int("count", len(names)), zap.Strings("names", names))
	return names
}

func fromIndexMap(indexed map[int]string) ClassNames {
	keys := make([]int, 0, len(indexed))
	for k := range indexed {
		if k >= 0 {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Ints(keys)

	names := make(ClassNames, keys[len(keys)-1]+1)
	for i := range names {
		names[i] = string(models.LabelUnknown)
	}
	for _, k := range keys {
		names[k] = indexed[k]
	}
	return names
}
