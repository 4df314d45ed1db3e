// Package main implements the pgdial documentation generator. It reads
// type definitions and comments from pkg/config and writes a reference
// for the pgdial.json file format, plus a Graphviz diagram of the
// connection handshake state machine.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/ast"
	"go/doc"
	"go/parser"
	"go/token"
	"os"
	"reflect"
	"strings"
	"text/template"

	"github.com/awalterschulze/gographviz"
)

// FieldDoc describes a JSON field in the configuration.
type FieldDoc struct {
	Name        string // JSON field name
	GoName      string // Go field name
	Type        string // Go type
	Required    bool
	Description string // Description from doc comment
}

// TypeDoc describes one configuration type.
type TypeDoc struct {
	Name        string
	Description string
	Fields      []FieldDoc
}

var (
	configPkg   = flag.String("config-pkg", "pkg/config", "path to config package")
	outConfig   = flag.String("out-config", "docs/config.md", "output file for the config reference")
	outDiagram  = flag.String("out-diagram", "docs/handshake.dot", "output file for the handshake diagram")
	diagramOnly = flag.Bool("diagram-only", false, "write only the handshake diagram")
)

func main() {
	flag.Parse()

	if err := writeDiagram(*outDiagram); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing diagram: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s\n", *outDiagram)
	if *diagramOnly {
		return
	}

	types, err := parseConfigPackage(*configPkg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing config package: %v\n", err)
		os.Exit(1)
	}
	if err := writeConfigReference(*outConfig, types); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config reference: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s\n", *outConfig)
}

// handshakeTransition is one edge of the startup state machine.
type handshakeTransition struct {
	from, to string
	label    string
}

// writeDiagram emits the startup state machine as a DOT digraph. The
// states and transitions mirror pkg/client's handshake loop.
func writeDiagram(path string) error {
	states := []string{
		"awaiting-auth-request",
		"authenticating",
		"awaiting-ready",
		"ready",
		"failed",
	}
	transitions := []handshakeTransition{
		{"awaiting-auth-request", "awaiting-ready", "AuthenticationOk"},
		{"awaiting-auth-request", "awaiting-auth-request", "CleartextPassword / MD5Password"},
		{"awaiting-auth-request", "authenticating", "SASL: SCRAM-SHA-256"},
		{"authenticating", "authenticating", "SASLContinue"},
		{"authenticating", "awaiting-ready", "SASLFinal verified"},
		{"awaiting-ready", "ready", "ReadyForQuery"},
		{"awaiting-auth-request", "failed", "ErrorResponse"},
		{"authenticating", "failed", "ErrorResponse"},
		{"awaiting-ready", "failed", "ErrorResponse"},
	}

	graph := gographviz.NewGraph()
	if err := graph.SetName("handshake"); err != nil {
		return err
	}
	if err := graph.SetDir(true); err != nil {
		return err
	}
	if err := graph.AddAttr("handshake", "rankdir", "LR"); err != nil {
		return err
	}

	for _, state := range states {
		attrs := map[string]string{
			"shape": "box",
			"style": "rounded",
			"label": fmt.Sprintf("%q", state),
		}
		if state == "ready" {
			attrs["style"] = `"rounded,bold"`
		}
		if state == "failed" {
			attrs["color"] = "red"
		}
		if err := graph.AddNode("handshake", fmt.Sprintf("%q", state), attrs); err != nil {
			return err
		}
	}
	for _, tr := range transitions {
		attrs := map[string]string{"label": fmt.Sprintf("%q", tr.label)}
		if err := graph.AddEdge(fmt.Sprintf("%q", tr.from), fmt.Sprintf("%q", tr.to), true, attrs); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(dirOf(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(graph.String()), 0o644)
}

func dirOf(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx > 0 {
		return path[:idx]
	}
	return "."
}

const configTemplate = `# pgdial.json reference

This file is generated from the doc comments in pkg/config. Do not edit
by hand; run ` + "`go run ./cmd/doc`" + ` instead.
{{range .}}
## {{.Name}}

{{.Description}}

| Field | Type | Required | Description |
|-------|------|----------|-------------|
{{- range .Fields}}
| ` + "`{{.Name}}`" + ` | {{.Type}} | {{if .Required}}yes{{else}}no{{end}} | {{oneline .Description}} |
{{- end}}
{{end}}`

func writeConfigReference(path string, types []TypeDoc) error {
	tmpl, err := template.New("config").Funcs(template.FuncMap{
		"oneline": func(s string) string {
			return strings.Join(strings.Fields(s), " ")
		},
	}).Parse(configTemplate)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, types); err != nil {
		return err
	}
	if err := os.MkdirAll(dirOf(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// parseConfigPackage extracts JSON-tagged struct types and their doc
// comments from the config package.
func parseConfigPackage(pkgPath string) ([]TypeDoc, error) {
	fset := token.NewFileSet()
	pkgs, err := parser.ParseDir(fset, pkgPath, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parsing package: %w", err)
	}

	var types []TypeDoc
	for _, pkg := range pkgs {
		docPkg := doc.New(pkg, pkgPath, doc.AllDecls)
		for _, t := range docPkg.Types {
			if td := extractTypeDoc(t); td != nil {
				types = append(types, *td)
			}
		}
	}

	// Config first, everything else in go/doc order.
	for i, t := range types {
		if t.Name == "Config" && i != 0 {
			types[0], types[i] = types[i], types[0]
			break
		}
	}
	return types, nil
}

func extractTypeDoc(t *doc.Type) *TypeDoc {
	if t.Decl.Tok != token.TYPE {
		return nil
	}
	for _, spec := range t.Decl.Specs {
		ts, ok := spec.(*ast.TypeSpec)
		if !ok {
			continue
		}
		st, ok := ts.Type.(*ast.StructType)
		if !ok {
			continue
		}
		if ts.Name.Name == "SecretCache" {
			continue
		}

		typeDoc := &TypeDoc{
			Name:        ts.Name.Name,
			Description: strings.TrimSpace(t.Doc),
		}
		for _, field := range st.Fields.List {
			if fd := extractFieldDoc(field); fd != nil {
				typeDoc.Fields = append(typeDoc.Fields, *fd)
			}
		}
		if len(typeDoc.Fields) > 0 {
			return typeDoc
		}
	}
	return nil
}

func extractFieldDoc(field *ast.Field) *FieldDoc {
	if field.Tag == nil {
		return nil
	}
	tag := reflect.StructTag(strings.Trim(field.Tag.Value, "`"))
	jsonTag := tag.Get("json")
	if jsonTag == "" || jsonTag == "-" {
		return nil
	}

	parts := strings.Split(jsonTag, ",")
	jsonName := parts[0]
	if jsonName == "" {
		return nil
	}
	required := true
	for _, part := range parts[1:] {
		if part == "omitempty" || part == "omitzero" {
			required = false
		}
	}

	goName := ""
	if len(field.Names) > 0 {
		goName = field.Names[0].Name
	}

	docComment := ""
	if field.Doc != nil {
		docComment = strings.TrimSpace(field.Doc.Text())
	} else if field.Comment != nil {
		docComment = strings.TrimSpace(field.Comment.Text())
	}

	return &FieldDoc{
		Name:        jsonName,
		GoName:      goName,
		Type:        formatType(field.Type),
		Required:    required,
		Description: docComment,
	}
}

func formatType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + formatType(t.X)
	case *ast.ArrayType:
		return "[]" + formatType(t.Elt)
	case *ast.MapType:
		return "map[" + formatType(t.Key) + "]" + formatType(t.Value)
	case *ast.SelectorExpr:
		return formatType(t.X) + "." + t.Sel.Name
	default:
		return "unknown"
	}
}
