// Package catalog provides the built-in Uniformat II element catalog used to
// seed the elements table.
package catalog

import (
	_ "embed"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/onyx-report/onyx-cli/internal/model"
)

//go:embed uniformat.yaml
var uniformatYAML []byte

type majorGroup struct {
	MajorGroup string  `yaml:"major_group"`
	Groups     []group `yaml:"groups"`
}

type group struct {
	Name     string  `yaml:"name"`
	Elements []entry `yaml:"elements"`
}

type entry struct {
	Name       string `yaml:"name"`
	Units      string `yaml:"units"`
	UsefulLife int    `yaml:"useful_life"`
}

// Load returns the embedded catalog in document order.
func Load() ([]model.Element, error) {
	return Parse(uniformatYAML)
}

// Parse decodes a catalog document. Each element's Code is the prefix of its
// individual element name ("B3010" for "B3010 - Roof Coverings"). Codes must
// be unique.
func Parse(data []byte) ([]model.Element, error) {
	var doc []majorGroup
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "catalog: parse")
	}

	var out []model.Element
	seen := make(map[string]bool)
	for _, mg := range doc {
		if mg.MajorGroup == "" {
			return nil, eris.New("catalog: major group without a name")
		}
		for _, g := range mg.Groups {
			for _, e := range g.Elements {
				code := Code(e.Name)
				if code == "" {
					return nil, eris.Errorf("catalog: element %q has no code", e.Name)
				}
				if seen[code] {
					return nil, eris.Errorf("catalog: duplicate element code %s", code)
				}
				seen[code] = true
				out = append(out, model.Element{
					Code:              code,
					MajorGroup:        mg.MajorGroup,
					GroupElement:      g.Name,
					IndividualElement: e.Name,
					Units:             e.Units,
					UsefulLife:        e.UsefulLife,
				})
			}
		}
	}
	return out, nil
}

// Code extracts the element code from a "CODE - Name" label.
func Code(label string) string {
	code, _, _ := strings.Cut(label, " - ")
	return strings.TrimSpace(code)
}

// MajorGroups returns the distinct major groups in catalog order.
func MajorGroups(elems []model.Element) []string {
	var out []string
	seen := make(map[string]bool)
	for _, e := range elems {
		if !seen[e.MajorGroup] {
			seen[e.MajorGroup] = true
			out = append(out, e.MajorGroup)
		}
	}
	return out
}
