package extract

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chetanft/courier-integration-sub002/internal/errdef"
)

// LoadRules reads an extraction rule file. Two layouts are accepted:
//
//	rules:
//	  - data.items
//	  - path: results
//
// or a bare sequence of the same entries. Paths are trimmed and empty
// entries dropped; an empty file yields the defaults.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read rules file %s", path)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "parse rules file %s", path)
	}
	return rules, nil
}

func ParseRules(data []byte) ([]Rule, error) {
	var doc struct {
		Rules []yaml.Node `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil || len(doc.Rules) == 0 {
		var bare []yaml.Node
		if bareErr := yaml.Unmarshal(data, &bare); bareErr == nil && len(bare) > 0 {
			doc.Rules = bare
		} else if err != nil {
			return nil, err
		}
	}
	if len(doc.Rules) == 0 {
		return DefaultRules(), nil
	}

	rules := make([]Rule, 0, len(doc.Rules))
	for _, node := range doc.Rules {
		rule, ok, err := decodeRuleNode(node)
		if err != nil {
			return nil, err
		}
		if ok {
			rules = append(rules, rule)
		}
	}
	if len(rules) == 0 {
		return DefaultRules(), nil
	}
	return rules, nil
}

func decodeRuleNode(node yaml.Node) (Rule, bool, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		path := strings.TrimSpace(node.Value)
		if path == "" {
			return Rule{}, false, nil
		}
		return Rule{Path: path}, true, nil
	case yaml.MappingNode:
		var rule Rule
		if err := node.Decode(&rule); err != nil {
			return Rule{}, false, err
		}
		rule.Path = strings.TrimSpace(rule.Path)
		if rule.Path == "" {
			return Rule{}, false, nil
		}
		return rule, true, nil
	default:
		return Rule{}, false, nil
	}
}

// RulesFromPaths builds a rule list from plain strings, skipping blanks.
func RulesFromPaths(paths ...string) []Rule {
	rules := make([]Rule, 0, len(paths))
	for _, p := range paths {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		rules = append(rules, Rule{Path: trimmed})
	}
	return rules
}
