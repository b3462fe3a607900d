package clients

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/reinkaoss/sifting-tool/internal/schema"
)

type registryFile struct {
	Clients []clientYAML `yaml:"clients"`
}

type clientYAML struct {
	Name   string `yaml:"name"`
	Layout Layout `yaml:"layout,omitempty"`
	Label  string `yaml:"label,omitempty"`
	// Criteria is decoded as a node so that mapping order survives.
	Criteria yaml.Node `yaml:"criteria"`
}

// Decode parses a registry document.
func Decode(data []byte) ([]Client, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	out := make([]Client, 0, len(f.Clients))
	for i, cy := range f.Clients {
		if strings.TrimSpace(cy.Name) == "" {
			return nil, fmt.Errorf("client %d: name is required", i+1)
		}
		crit, err := criteriaFromNode(&cy.Criteria)
		if err != nil {
			return nil, fmt.Errorf("client %q: %w", cy.Name, err)
		}
		out = append(out, Client{Name: cy.Name, Layout: cy.Layout, Label: cy.Label, Criteria: crit})
	}
	return out, nil
}

// Encode renders clients as a registry document.
func Encode(cs []Client) ([]byte, error) {
	f := registryFile{Clients: make([]clientYAML, len(cs))}
	for i, c := range cs {
		f.Clients[i] = clientYAML{
			Name:     c.Name,
			Layout:   c.Layout,
			Label:    c.Label,
			Criteria: criteriaNode(c.Criteria),
		}
	}
	b, err := yaml.Marshal(&f)
	if err != nil {
		return nil, fmt.Errorf("clients: encode: %w", err)
	}
	return b, nil
}

// DecodeCriteria parses a standalone criteria mapping, keeping its order.
func DecodeCriteria(data []byte) (schema.Criteria, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return schema.Criteria{}, fmt.Errorf("parse: %w", err)
	}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return criteriaFromNode(doc.Content[0])
	}
	return criteriaFromNode(&doc)
}

func criteriaFromNode(n *yaml.Node) (schema.Criteria, error) {
	var c schema.Criteria
	switch n.Kind {
	case 0:
		return c, nil
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return c, nil
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode || v.Kind != yaml.ScalarNode {
				return schema.Criteria{}, fmt.Errorf("criteria line %d: want text values", k.Line)
			}
			c.Set(k.Value, v.Value)
		}
		return c, nil
	}
	return schema.Criteria{}, fmt.Errorf("criteria line %d: want a mapping", n.Line)
}

func criteriaNode(c schema.Criteria) yaml.Node {
	n := yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range c.Keys {
		v := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c.Rubrics[k]}
		if strings.Contains(v.Value, "\n") {
			v.Style = yaml.LiteralStyle
		}
		n.Content = append(n.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			v,
		)
	}
	return n
}
