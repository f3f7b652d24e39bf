package wildcard

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// parseYAML turns a YAML wildcard document into lists.
//
// A top-level sequence becomes a single list named after the file. A
// mapping is flattened into namespaced lists, so
//
//	colors:
//	  warm: [red, orange]
//	  cool: [blue]
//
// in styles.yaml yields "styles/colors/warm" and "styles/colors/cool".
func parseYAML(name string, data []byte) ([]*List, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return []*List{NewList(name, nil)}, nil
	}

	var out []*List
	if err := collectYAML(name, doc.Content[0], &out); err != nil {
		return nil, err
	}
	return out, nil
}

func collectYAML(prefix string, n *yaml.Node, out *[]*List) error {
	switch n.Kind {
	case yaml.SequenceNode:
		entries := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: %s: sequence items must be scalars", item.Line, prefix)
			}
			if v := strings.TrimSpace(item.Value); v != "" {
				entries = append(entries, v)
			}
		}
		*out = append(*out, NewList(prefix, entries))
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := strings.Trim(n.Content[i].Value, "/")
			if key == "" {
				return fmt.Errorf("line %d: %s: empty key", n.Content[i].Line, prefix)
			}
			if err := collectYAML(prefix+"/"+key, n.Content[i+1], out); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		var entries []string
		if v := strings.TrimSpace(n.Value); v != "" {
			entries = []string{v}
		}
		*out = append(*out, NewList(prefix, entries))
	case yaml.AliasNode:
		return collectYAML(prefix, n.Alias, out)
	default:
		return fmt.Errorf("line %d: %s: unsupported node", n.Line, prefix)
	}
	return nil
}
