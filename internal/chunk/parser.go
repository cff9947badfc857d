package chunk

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"

	kberrors "github.com/localkb/engine/internal/errors"
)

// Point is a row/column position in a source file (0-based).
type Point struct {
	Row    uint32
	Column uint32
}

// Node is a language-neutral view of one syntax node.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	HasError   bool
	Children   []*Node
}

// Tree is a parsed source file.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Parser wraps a tree-sitter parser bound to the language registry.
type Parser struct {
	parser   *sitter.Parser
	registry *LanguageRegistry
}

// NewParser returns a parser over the default registry.
func NewParser() *Parser {
	return NewParserWithRegistry(DefaultRegistry())
}

// NewParserWithRegistry returns a parser over a custom registry.
func NewParserWithRegistry(registry *LanguageRegistry) *Parser {
	return &Parser{parser: sitter.NewParser(), registry: registry}
}

// Parse parses source as language and returns the converted tree.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	grammar, ok := p.registry.Grammar(language)
	if !ok {
		return nil, kberrors.ParseError("unsupported language: "+language, nil)
	}
	p.parser.SetLanguage(grammar)
	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil || tsTree == nil {
		return nil, kberrors.ParseError("parse source", err)
	}
	return &Tree{
		Root:     convertNode(tsTree.RootNode()),
		Source:   source,
		Language: language,
	}, nil
}

// Close releases parser resources.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

func convertNode(tsNode *sitter.Node) *Node {
	if tsNode == nil {
		return nil
	}
	node := &Node{
		Type:       tsNode.Type(),
		StartByte:  tsNode.StartByte(),
		EndByte:    tsNode.EndByte(),
		StartPoint: Point{Row: tsNode.StartPoint().Row, Column: tsNode.StartPoint().Column},
		EndPoint:   Point{Row: tsNode.EndPoint().Row, Column: tsNode.EndPoint().Column},
		HasError:   tsNode.HasError(),
		Children:   make([]*Node, 0, int(tsNode.ChildCount())),
	}
	for i := uint32(0); i < tsNode.ChildCount(); i++ {
		if child := tsNode.Child(int(i)); child != nil {
			node.Children = append(node.Children, convertNode(child))
		}
	}
	return node
}

// Content returns the source text spanned by the node.
func (n *Node) Content(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// ChildByType returns the first direct child of the given type.
func (n *Node) ChildByType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

// DescendantByType returns the first node of the given type found
// depth-first, including n itself.
func (n *Node) DescendantByType(nodeType string) *Node {
	if n.Type == nodeType {
		return n
	}
	for _, child := range n.Children {
		if found := child.DescendantByType(nodeType); found != nil {
			return found
		}
	}
	return nil
}
