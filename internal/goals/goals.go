// Package goals maps commitment tags to longer-term goals. The text feeds
// the {{goalsContext}} placeholder and the summary prompt.
package goals

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Goals holds goal lines keyed by lower-cased tag.
type Goals struct {
	byTag map[string][]string
}

type goalsFile struct {
	Goals map[string][]string `yaml:"goals"`
}

// Load reads a YAML file of the form:
//
//	goals:
//	  health:
//	    - Run a half marathon
//
// An empty path yields an empty set.
func Load(path string) (*Goals, error) {
	if strings.TrimSpace(path) == "" {
		return &Goals{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read goals file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes goals YAML.
func Parse(data []byte) (*Goals, error) {
	var raw goalsFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse goals YAML: %w", err)
	}
	g := &Goals{byTag: make(map[string][]string, len(raw.Goals))}
	for tag, lines := range raw.Goals {
		key := normalizeTag(tag)
		for _, line := range lines {
			if line = strings.TrimSpace(line); line != "" {
				g.byTag[key] = append(g.byTag[key], line)
			}
		}
	}
	return g, nil
}

// ForTags returns the goals relevant to tags as a bulleted list, one line
// per goal, de-duplicated and in tag order. Unknown tags are ignored.
func (g *Goals) ForTags(tags []string) string {
	if g == nil || len(g.byTag) == 0 {
		return ""
	}
	seen := make(map[string]bool)
	var lines []string
	for _, tag := range tags {
		for _, goal := range g.byTag[normalizeTag(tag)] {
			if seen[goal] {
				continue
			}
			seen[goal] = true
			lines = append(lines, "- "+goal)
		}
	}
	return strings.Join(lines, "\n")
}

// Tags lists the known tags in sorted order.
func (g *Goals) Tags() []string {
	if g == nil {
		return nil
	}
	tags := make([]string, 0, len(g.byTag))
	for tag := range g.byTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}
