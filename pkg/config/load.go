package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load decodes the default config, then the user config, deep-merging the
// user tree over the default tree (user wins field-by-field) before a
// single strict-mode decode into Root. Per §9's Open Questions, unknown
// keys in either file are a load error rather than the Python original's
// silent skip.
func Load(defaultPath, userPath string) (*Root, error) {
	defaultNode, err := decodeNode(defaultPath)
	if err != nil {
		return nil, fmt.Errorf("config: default %s: %w", defaultPath, err)
	}

	merged := defaultNode
	if userPath != "" {
		if _, err := os.Stat(userPath); err == nil {
			userNode, err := decodeNode(userPath)
			if err != nil {
				return nil, fmt.Errorf("config: user %s: %w", userPath, err)
			}
			merged = mergeNodes(defaultNode, userNode)
		}
	}

	var root Root
	if merged != nil {
		if err := strictDecodeNode(merged, &root); err != nil {
			return nil, fmt.Errorf("config: merged tree: %w", err)
		}
	}
	root.clampRanges()
	return &root, nil
}

func decodeNode(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	return doc.Content[0], nil
}

// strictDecodeNode re-serializes the merged node tree and decodes it with
// KnownFields enabled, so unknown keys fail loudly rather than being
// silently dropped.
func strictDecodeNode(n *yaml.Node, out any) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	if err := enc.Encode(n); err != nil {
		return err
	}
	enc.Close()

	dec := yaml.NewDecoder(bytes.NewReader(buf.Bytes()))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// mergeNodes deep-merges b over a for mapping nodes; scalar and sequence
// nodes in b fully replace the corresponding node in a. Both inputs are
// assumed to be mapping nodes at the root (a YAML document's top level).
func mergeNodes(a, b *yaml.Node) *yaml.Node {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Kind != yaml.MappingNode || b.Kind != yaml.MappingNode {
		return b
	}

	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	index := map[string]int{} // key -> position in out.Content key slots

	appendPair := func(key, val *yaml.Node) {
		out.Content = append(out.Content, key, val)
		index[key.Value] = len(out.Content) - 2
	}

	for i := 0; i+1 < len(a.Content); i += 2 {
		appendPair(a.Content[i], a.Content[i+1])
	}

	for i := 0; i+1 < len(b.Content); i += 2 {
		key, val := b.Content[i], b.Content[i+1]
		if pos, ok := index[key.Value]; ok {
			existingVal := out.Content[pos+1]
			out.Content[pos+1] = mergeNodes(existingVal, val)
		} else {
			appendPair(key, val)
		}
	}
	return out
}
