package config

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is a YAML mapping addressed by path expressions. Key order and
// comments of the source are preserved across Marshal.
type Document struct {
	doc *yaml.Node
}

// ParseDocument parses data. An empty input yields an empty mapping.
func ParseDocument(data []byte) (*Document, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{newMapping()}}
	}
	if len(doc.Content) != 1 || resolve(doc.Content[0]).Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parsing yaml: document root is not a mapping")
	}
	return &Document{doc: &doc}, nil
}

func newMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func (d *Document) root() *yaml.Node {
	return resolve(d.doc.Content[0])
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

// mappingValue returns the value node of key in m, and its index in
// m.Content, or -1.
func mappingValue(m *yaml.Node, key string) (*yaml.Node, int) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1], i + 1
		}
	}
	return nil, -1
}

func (d *Document) lookup(segs []segment) *yaml.Node {
	n := d.root()
	for _, s := range segs {
		n = child(n, s)
		if n == nil {
			return nil
		}
	}
	return n
}

func child(n *yaml.Node, s segment) *yaml.Node {
	n = resolve(n)
	if n == nil {
		return nil
	}
	if s.isIndex {
		if n.Kind != yaml.SequenceNode || s.index >= len(n.Content) {
			return nil
		}
		return resolve(n.Content[s.index])
	}
	if n.Kind != yaml.MappingNode {
		return nil
	}
	v, _ := mappingValue(n, s.key)
	return resolve(v)
}

// Lookup returns the node at path, or nil when the path does not resolve.
func (d *Document) Lookup(path string) (*yaml.Node, error) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	return d.lookup(segs), nil
}

// Get decodes the value at path. ok is false when the path does not
// resolve.
func (d *Document) Get(path string) (value any, ok bool, err error) {
	n, err := d.Lookup(path)
	if err != nil || n == nil {
		return nil, false, err
	}
	if err := n.Decode(&value); err != nil {
		return nil, true, fmt.Errorf("decoding %s: %w", path, err)
	}
	return value, true, nil
}

func (d *Document) Has(path string) bool {
	n, err := d.Lookup(path)
	return err == nil && n != nil
}

// Keys returns the top-level keys in document order.
func (d *Document) Keys() []string {
	root := d.root()
	keys := make([]string, 0, len(root.Content)/2)
	for i := 0; i < len(root.Content); i += 2 {
		keys = append(keys, root.Content[i].Value)
	}
	return keys
}

// set replaces the value at segs. A missing final key is appended when it
// is top-level or createLeaf is set; any other missing step is an error.
func (d *Document) set(path string, segs []segment, value any, createLeaf bool) error {
	if len(segs) == 0 {
		return &InvalidPathError{Path: path, Reason: "cannot replace the document root"}
	}
	node, err := toNode(value)
	if err != nil {
		return fmt.Errorf("encoding value for %s: %w", path, err)
	}

	parent := d.lookup(segs[:len(segs)-1])
	if parent == nil {
		return &InvalidPathError{Path: path, Reason: "parent key does not exist"}
	}
	last := segs[len(segs)-1]

	if last.isIndex {
		if parent.Kind != yaml.SequenceNode {
			return &InvalidPathError{Path: path, Reason: "parent is not a list"}
		}
		if last.index >= len(parent.Content) {
			return &InvalidPathError{Path: path, Reason: fmt.Sprintf("index %d out of range", last.index)}
		}
		parent.Content[last.index] = node
		return nil
	}

	if parent.Kind != yaml.MappingNode {
		return &InvalidPathError{Path: path, Reason: "parent is not a mapping"}
	}
	if _, i := mappingValue(parent, last.key); i >= 0 {
		parent.Content[i] = node
		return nil
	}
	if len(segs) > 1 && !createLeaf {
		return &InvalidPathError{Path: path, Reason: "key does not exist and nested keys cannot be created"}
	}
	parent.Content = append(parent.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: last.key},
		node)
	return nil
}

// toNode encodes value. Nodes are deep-copied so that the document never
// shares structure with its caller.
func toNode(value any) (*yaml.Node, error) {
	if n, ok := value.(*yaml.Node); ok {
		return copyNode(n), nil
	}
	var n yaml.Node
	if err := n.Encode(value); err != nil {
		return nil, err
	}
	return &n, nil
}

func copyNode(n *yaml.Node) *yaml.Node {
	n = resolve(n)
	if n == nil {
		return nil
	}
	c := *n
	c.Content = make([]*yaml.Node, len(n.Content))
	for i, sub := range n.Content {
		c.Content[i] = copyNode(sub)
	}
	c.Anchor = ""
	return &c
}

// Marshal renders the document with a 4-space indent in block style.
func (d *Document) Marshal() ([]byte, error) {
	blockStyle(d.doc)
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(4)
	if err := enc.Encode(d.doc); err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func blockStyle(n *yaml.Node) {
	if n == nil {
		return
	}
	n.Style &^= yaml.FlowStyle
	for _, c := range n.Content {
		blockStyle(c)
	}
}
