package scriptruntime

import (
	"fmt"
	"go/ast"
	"go/build/constraint"
	"go/parser"
	"go/token"
	"strings"
)

// Param is one declared parameter of a script callable.
// Type is the JSON Schema type the Go type accepts, or empty for any value.
type Param struct {
	Name string
	Type string
}

// prepareSource strips build constraints and adds a package clause when the
// script has none.
func prepareSource(source string) string {
	lines := strings.Split(source, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if constraint.IsGoBuild(line) || constraint.IsPlusBuild(line) {
			continue
		}
		kept = append(kept, line)
	}
	src := strings.Join(kept, "\n")

	if !hasPackageClause(src) {
		src = "package main\n\n" + src
	}
	return src
}

func hasPackageClause(src string) bool {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		return strings.HasPrefix(trimmed, "package ")
	}
	return false
}

// introspect parses src and returns the declared parameters of the top-level
// function name, in declaration order.
func introspect(name, src string) ([]Param, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, name+".go", src, parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if file.Name.Name != "main" {
		return nil, fmt.Errorf("%w: script must be in package main, got %s", ErrUnsupportedSignature, file.Name.Name)
	}

	var decl *ast.FuncDecl
	for _, d := range file.Decls {
		fn, ok := d.(*ast.FuncDecl)
		if ok && fn.Recv == nil && fn.Name.Name == name {
			decl = fn
			break
		}
	}
	if decl == nil {
		return nil, fmt.Errorf("%w: func %s", ErrCallableNotFound, name)
	}
	if decl.Type.TypeParams != nil && len(decl.Type.TypeParams.List) > 0 {
		return nil, fmt.Errorf("%w: %s is generic", ErrUnsupportedSignature, name)
	}

	var params []Param
	for _, field := range decl.Type.Params.List {
		if _, variadic := field.Type.(*ast.Ellipsis); variadic {
			return nil, fmt.Errorf("%w: %s is variadic", ErrUnsupportedSignature, name)
		}
		if len(field.Names) == 0 {
			return nil, fmt.Errorf("%w: %s has unnamed parameters", ErrUnsupportedSignature, name)
		}
		jsonType := jsonTypeOf(field.Type)
		for _, ident := range field.Names {
			params = append(params, Param{Name: ident.Name, Type: jsonType})
		}
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("%w: %s must declare the execution-context parameter", ErrUnsupportedSignature, name)
	}

	return params, nil
}

// jsonTypeOf maps a Go type expression onto the JSON Schema type it accepts.
func jsonTypeOf(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		switch t.Name {
		case "int", "int8", "int16", "int32", "int64",
			"uint", "uint8", "uint16", "uint32", "uint64", "byte", "rune":
			return "integer"
		case "float32", "float64":
			return "number"
		case "string":
			return "string"
		case "bool":
			return "boolean"
		}
	case *ast.MapType:
		return "object"
	case *ast.ArrayType:
		return "array"
	}
	return ""
}
