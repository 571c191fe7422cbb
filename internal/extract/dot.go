package extract

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/graph/formats/dot"
	"gonum.org/v1/gonum/graph/formats/dot/ast"

	"github.com/vk/qorgraph/internal/attrgraph"
	"github.com/vk/qorgraph/internal/pipelineerr"
)

// ParseDOT parses a single-graph DOT document into an attributed graph and
// validates it. Node and edge defaults set with `node [...]` and `edge [...]`
// apply to the statements that follow them, up to the end of the enclosing
// subgraph.
func ParseDOT(doc string) (*attrgraph.Graph, error) {
	const op = "parse graph document"

	file, err := dot.ParseString(doc)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Extraction, op, err)
	}
	if len(file.Graphs) != 1 {
		return nil, pipelineerr.New(pipelineerr.Extraction, op, "expected one graph, found %d", len(file.Graphs))
	}

	b := &builder{g: attrgraph.New()}
	if err := b.stmts(file.Graphs[0].Stmts); err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Extraction, op, err)
	}
	if err := b.g.Validate(); err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Extraction, op, err)
	}
	return b.g, nil
}

type builder struct {
	g            *attrgraph.Graph
	nodeDefaults []*ast.Attr
	edgeDefaults []*ast.Attr
}

func (b *builder) stmts(stmts []ast.Stmt) error {
	for _, s := range stmts {
		switch s := s.(type) {
		case *ast.NodeStmt:
			b.g.AddNode(unquote(s.Node.ID), collect(b.nodeDefaults, s.Attrs))
		case *ast.EdgeStmt:
			if err := b.edge(s); err != nil {
				return err
			}
		case *ast.AttrStmt:
			switch s.Kind {
			case ast.NodeKind:
				b.nodeDefaults = append(b.nodeDefaults, s.Attrs...)
			case ast.EdgeKind:
				b.edgeDefaults = append(b.edgeDefaults, s.Attrs...)
			}
		case *ast.Subgraph:
			nodeDefaults, edgeDefaults := b.nodeDefaults, b.edgeDefaults
			if err := b.stmts(s.Stmts); err != nil {
				return err
			}
			b.nodeDefaults, b.edgeDefaults = nodeDefaults, edgeDefaults
		}
	}
	return nil
}

// edge expands a chain `a -> b -> c` into one edge per hop.
func (b *builder) edge(s *ast.EdgeStmt) error {
	from, err := vertexID(s.From)
	if err != nil {
		return err
	}
	for e := s.To; e != nil; e = e.To {
		to, err := vertexID(e.Vertex)
		if err != nil {
			return err
		}
		b.g.AddEdge(from, to, collect(b.edgeDefaults, s.Attrs))
		from = to
	}
	return nil
}

func vertexID(v ast.Vertex) (string, error) {
	n, ok := v.(*ast.Node)
	if !ok {
		return "", fmt.Errorf("unsupported edge endpoint %s", v)
	}
	return unquote(n.ID), nil
}

func collect(defaults, attrs []*ast.Attr) attrgraph.Attrs {
	var out attrgraph.Attrs
	for _, list := range [][]*ast.Attr{defaults, attrs} {
		for _, a := range list {
			out.Set(unquote(a.Key), unquote(a.Val))
		}
	}
	return out
}

// unquote strips DOT string quotes and resolves escaped quotes.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `\"`, `"`)
	}
	return s
}
