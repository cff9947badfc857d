package chunk

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageConfig maps a grammar's node types onto chunk types and
// names the fields used to build breadcrumbs.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// nodeTypes maps a syntax-node type to the chunk Type it yields
	// when encountered at top level.
	nodeTypes map[string]Type

	// containerTypes are nodes whose children are walked for methods
	// rather than emitted whole (Rust impl blocks).
	containerTypes map[string]bool

	// commentTypes are node types treated as comment trivia.
	commentTypes map[string]bool
}

// LanguageRegistry holds the recognised languages, keyed by name and
// by file extension.
type LanguageRegistry struct {
	mu        sync.RWMutex
	configs   map[string]*LanguageConfig
	extToLang map[string]string
	grammars  map[string]*sitter.Language
}

// DefaultRegistry returns the registry with all built-in languages.
func DefaultRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:   make(map[string]*LanguageConfig),
		extToLang: make(map[string]string),
		grammars:  make(map[string]*sitter.Language),
	}
	r.registerGo()
	r.registerRust()
	r.registerPython()
	r.registerTypeScript()
	r.registerJavaScript()
	return r
}

func (r *LanguageRegistry) register(cfg *LanguageConfig, grammar *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Name] = cfg
	r.grammars[cfg.Name] = grammar
	for _, ext := range cfg.Extensions {
		r.extToLang[ext] = cfg.Name
	}
}

// LanguageForPath returns the registered language name for a file
// path, or "" when the extension is not recognised.
func (r *LanguageRegistry) LanguageForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.extToLang[ext]
}

// Config returns the configuration for a language name.
func (r *LanguageRegistry) Config(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	return cfg, ok
}

// Grammar returns the tree-sitter grammar for a language name.
func (r *LanguageRegistry) Grammar(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grammars[name]
	return g, ok
}

func (r *LanguageRegistry) registerGo() {
	r.register(&LanguageConfig{
		Name:       "go",
		Extensions: []string{".go"},
		nodeTypes: map[string]Type{
			"function_declaration": TypeFunction,
			"method_declaration":   TypeMethod,
			"type_declaration":     TypeStruct, // refined by inner type_spec
		},
		commentTypes: map[string]bool{"comment": true},
	}, golang.GetLanguage())
}

func (r *LanguageRegistry) registerRust() {
	r.register(&LanguageConfig{
		Name:       "rust",
		Extensions: []string{".rs"},
		nodeTypes: map[string]Type{
			"function_item": TypeFunction,
			"struct_item":   TypeStruct,
			"enum_item":     TypeEnum,
			"trait_item":    TypeInterface,
			"mod_item":      TypeModule,
		},
		containerTypes: map[string]bool{"impl_item": true},
		commentTypes:   map[string]bool{"line_comment": true, "block_comment": true},
	}, rust.GetLanguage())
}

func (r *LanguageRegistry) registerPython() {
	r.register(&LanguageConfig{
		Name:       "python",
		Extensions: []string{".py"},
		nodeTypes: map[string]Type{
			"function_definition":  TypeFunction,
			"class_definition":     TypeClass,
			"decorated_definition": TypeFunction, // refined by wrapped node
		},
		commentTypes: map[string]bool{"comment": true},
	}, python.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	nodeTypes := map[string]Type{
		"function_declaration":  TypeFunction,
		"class_declaration":     TypeClass,
		"interface_declaration": TypeInterface,
		"enum_declaration":      TypeEnum,
		"module":                TypeModule,
	}
	comments := map[string]bool{"comment": true}
	r.register(&LanguageConfig{
		Name:         "typescript",
		Extensions:   []string{".ts"},
		nodeTypes:    nodeTypes,
		commentTypes: comments,
	}, typescript.GetLanguage())
	r.register(&LanguageConfig{
		Name:         "tsx",
		Extensions:   []string{".tsx"},
		nodeTypes:    nodeTypes,
		commentTypes: comments,
	}, tsx.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	r.register(&LanguageConfig{
		Name:       "javascript",
		Extensions: []string{".js", ".jsx", ".mjs"},
		nodeTypes: map[string]Type{
			"function_declaration": TypeFunction,
			"class_declaration":    TypeClass,
		},
		commentTypes: map[string]bool{"comment": true},
	}, javascript.GetLanguage())
}
