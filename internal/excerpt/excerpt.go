// Package excerpt shrinks source files to fit prompt budgets.
package excerpt

import (
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// Marker is appended when text is cut.
const Marker = "...(truncated)"

// Head returns at most limit bytes of s, cut on a rune boundary, with Marker
// appended when anything was dropped.
func Head(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + Marker
}

// Tail returns the last limit bytes of s, cut on a rune boundary. truncated
// reports whether anything was dropped.
func Tail(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	start := len(s) - limit
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:], true
}

// Excerpt fits content into budget bytes. Go files over budget are first
// reduced to a declaration skeleton; anything still too long is cut.
func Excerpt(path, content string, budget int) string {
	if budget <= 0 || len(content) <= budget {
		return content
	}
	if filepath.Ext(path) == ".go" {
		if skel, err := GoSkeleton([]byte(content)); err == nil && skel != "" {
			content = skel
		}
	}
	return Head(content, budget)
}

var skeletonKinds = map[string]bool{
	"package_clause":       true,
	"import_declaration":   true,
	"type_declaration":     true,
	"const_declaration":    true,
	"var_declaration":      true,
	"function_declaration": true,
	"method_declaration":   true,
}

// GoSkeleton keeps the package clause, imports, type/const/var declarations
// and function signatures (bodies elided) of a Go file, with their doc
// comments.
func GoSkeleton(src []byte) (string, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return "", err
	}
	defer tree.Close()

	root := tree.RootNode()
	var parts []string
	var pendingDoc []string
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		kind := node.Type()

		if kind == "comment" {
			if len(pendingDoc) > 0 && i > 0 && node.StartPoint().Row-root.NamedChild(i-1).EndPoint().Row > 1 {
				pendingDoc = nil
			}
			pendingDoc = append(pendingDoc, node.Content(src))
			continue
		}
		if !skeletonKinds[kind] {
			pendingDoc = nil
			continue
		}

		text := node.Content(src)
		if kind == "function_declaration" || kind == "method_declaration" {
			if body := node.ChildByFieldName("body"); body != nil {
				text = strings.TrimSpace(string(src[node.StartByte():body.StartByte()])) + " { ... }"
			}
		}
		if len(pendingDoc) > 0 && node.StartPoint().Row-root.NamedChild(i-1).EndPoint().Row <= 1 {
			text = strings.Join(pendingDoc, "\n") + "\n" + text
		}
		pendingDoc = nil
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n"), nil
}
