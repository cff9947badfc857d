package chunk

import (
	"context"
)

// SemanticChunker parses recognised languages with tree-sitter and
// emits one chunk per top-level semantic node. Unrecognised languages
// and parse failures fall back to window chunking.
type SemanticChunker struct {
	parser   *Parser
	registry *LanguageRegistry
	fallback *WindowChunker
}

var _ Chunker = (*SemanticChunker)(nil)

// NewSemanticChunker returns a chunker over the default registry.
func NewSemanticChunker() *SemanticChunker {
	registry := DefaultRegistry()
	return &SemanticChunker{
		parser:   NewParserWithRegistry(registry),
		registry: registry,
		fallback: NewWindowChunker(),
	}
}

// Close releases parser resources.
func (c *SemanticChunker) Close() {
	c.parser.Close()
}

// Chunk implements Chunker. When the walk yields no semantic nodes, a
// single whole-body Text chunk is emitted instead.
func (c *SemanticChunker) Chunk(ctx context.Context, path string, content []byte) ([]*Chunk, error) {
	if len(content) == 0 {
		return nil, nil
	}

	language := c.registry.LanguageForPath(path)
	if language == "" {
		return c.fallback.Chunk(ctx, path, content)
	}

	tree, err := c.parser.Parse(ctx, content, language)
	if err != nil {
		return c.fallback.Chunk(ctx, path, content)
	}

	cfg, _ := c.registry.Config(language)
	chunks := walkTopLevel(tree, cfg, language)
	if len(chunks) == 0 {
		return []*Chunk{wholeBodyChunk(content, language)}, nil
	}
	for i, ch := range chunks {
		ch.Seq = i
	}
	return chunks, nil
}

// walkTopLevel emits chunks for the root's semantic children, and for
// methods inside container nodes (Rust impl blocks).
func walkTopLevel(tree *Tree, cfg *LanguageConfig, language string) []*Chunk {
	var chunks []*Chunk
	siblings := tree.Root.Children
	for i, node := range siblings {
		if cfg.containerTypes[node.Type] {
			chunks = append(chunks, containerMethods(tree, cfg, node, language)...)
			continue
		}
		chunkType, ok := cfg.nodeTypes[node.Type]
		if !ok {
			continue
		}
		emit := buildChunk(tree, cfg, node, siblings, i, chunkType, "", language)
		if emit != nil {
			chunks = append(chunks, emit)
		}
	}
	return chunks
}

// containerMethods emits one Method chunk per function inside a
// container node, breadcrumbed with the container's type name.
func containerMethods(tree *Tree, cfg *LanguageConfig, container *Node, language string) []*Chunk {
	enclosing := containerTypeName(tree, container)
	body := container.ChildByType("declaration_list")
	if body == nil {
		body = container
	}
	var chunks []*Chunk
	for i, node := range body.Children {
		if _, ok := cfg.nodeTypes[node.Type]; !ok {
			continue
		}
		emit := buildChunk(tree, cfg, node, body.Children, i, TypeMethod, enclosing, language)
		if emit != nil {
			chunks = append(chunks, emit)
		}
	}
	return chunks
}

// containerTypeName extracts the implemented type's name from a Rust
// impl block ("impl Config" or "impl Trait for Config").
func containerTypeName(tree *Tree, container *Node) string {
	var last *Node
	for _, child := range container.Children {
		if child.Type == "type_identifier" || child.Type == "generic_type" {
			last = child
		}
		if child.Type == "declaration_list" {
			break
		}
	}
	if last == nil {
		return ""
	}
	if last.Type == "generic_type" {
		if id := last.ChildByType("type_identifier"); id != nil {
			return id.Content(tree.Source)
		}
	}
	return last.Content(tree.Source)
}

// buildChunk assembles one chunk: span text, trivia, breadcrumb,
// refined type, line range, and the content hash.
func buildChunk(tree *Tree, cfg *LanguageConfig, node *Node, siblings []*Node, index int, chunkType Type, enclosing, language string) *Chunk {
	target := node

	// Python decorated definitions wrap the real declaration.
	if node.Type == "decorated_definition" {
		if inner := node.ChildByType("class_definition"); inner != nil {
			chunkType = TypeClass
			target = inner
		} else if inner := node.ChildByType("function_definition"); inner != nil {
			target = inner
		}
	}

	// Go type declarations refine to struct or interface.
	if node.Type == "type_declaration" {
		if node.DescendantByType("interface_type") != nil {
			chunkType = TypeInterface
		} else if node.DescendantByType("struct_type") != nil {
			chunkType = TypeStruct
		}
	}

	name := nodeName(tree, target)
	if name == "" {
		return nil
	}

	breadcrumb := name
	if chunkType == TypeMethod {
		if enclosing == "" {
			enclosing = goReceiverType(tree, target)
		}
		if enclosing != "" {
			breadcrumb = enclosing + "::" + name
		}
	}

	content := node.Content(tree.Source)
	leading := leadingTrivia(tree, cfg, siblings, index)
	if language == "python" {
		if doc := pythonDocstring(tree, target); doc != "" {
			if leading != "" {
				leading += "\n"
			}
			leading += doc
		}
	}
	trailing := trailingTrivia(tree, cfg, siblings, index)

	return &Chunk{
		Hash:       HashChunk(content, leading, trailing),
		Content:    content,
		Leading:    leading,
		Trailing:   trailing,
		Type:       chunkType,
		Breadcrumb: breadcrumb,
		Language:   language,
		StartLine:  int(node.StartPoint.Row) + 1,
		EndLine:    int(node.EndPoint.Row) + 1,
		Pos:        int(node.StartByte),
	}
}

// nodeName finds the declared identifier of a semantic node.
func nodeName(tree *Tree, node *Node) string {
	for _, idType := range []string{
		"identifier", "field_identifier", "type_identifier",
		"property_identifier", "name",
	} {
		if id := node.ChildByType(idType); id != nil {
			return id.Content(tree.Source)
		}
	}
	// Go type_declaration nests the name inside a type_spec.
	if spec := node.ChildByType("type_spec"); spec != nil {
		if id := spec.ChildByType("type_identifier"); id != nil {
			return id.Content(tree.Source)
		}
	}
	return ""
}

// goReceiverType extracts the receiver type name of a Go method
// declaration, stripping any pointer.
func goReceiverType(tree *Tree, node *Node) string {
	recv := node.ChildByType("parameter_list")
	if recv == nil {
		return ""
	}
	if id := recv.DescendantByType("type_identifier"); id != nil {
		return id.Content(tree.Source)
	}
	return ""
}

// leadingTrivia collects comment siblings immediately preceding the
// node at index, contiguous line-wise.
func leadingTrivia(tree *Tree, cfg *LanguageConfig, siblings []*Node, index int) string {
	if index == 0 {
		return ""
	}
	expectedRow := siblings[index].StartPoint.Row
	var parts []string
	for i := index - 1; i >= 0; i-- {
		prev := siblings[i]
		if !cfg.commentTypes[prev.Type] {
			break
		}
		if prev.EndPoint.Row+1 < expectedRow {
			break
		}
		parts = append([]string{prev.Content(tree.Source)}, parts...)
		expectedRow = prev.StartPoint.Row
	}
	return joinLines(parts)
}

// trailingTrivia returns a comment sibling that begins on the node's
// final line.
func trailingTrivia(tree *Tree, cfg *LanguageConfig, siblings []*Node, index int) string {
	if index+1 >= len(siblings) {
		return ""
	}
	next := siblings[index+1]
	if cfg.commentTypes[next.Type] && next.StartPoint.Row == siblings[index].EndPoint.Row {
		return next.Content(tree.Source)
	}
	return ""
}

// pythonDocstring returns the docstring of a Python function or class
// body, if its first statement is a string expression.
func pythonDocstring(tree *Tree, node *Node) string {
	body := node.ChildByType("block")
	if body == nil || len(body.Children) == 0 {
		return ""
	}
	first := body.Children[0]
	if first.Type != "expression_statement" {
		return ""
	}
	if str := first.ChildByType("string"); str != nil {
		return str.Content(tree.Source)
	}
	return ""
}

func joinLines(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n"
		}
		out += p
	}
	return out
}

// wholeBodyChunk emits the single Text chunk used when a parse
// produced no semantic nodes.
func wholeBodyChunk(content []byte, language string) *Chunk {
	body := string(content)
	return &Chunk{
		Hash:      HashChunk(body, "", ""),
		Content:   body,
		Type:      TypeText,
		Language:  language,
		StartLine: 1,
		EndLine:   countLines(body),
		Pos:       0,
		Seq:       0,
	}
}

func countLines(s string) int {
	if s == "" {
		return 1
	}
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}
