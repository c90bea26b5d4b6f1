// Package parser converts YAML/JSON plot definitions into AST types.
package parser

import (
	"errors"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/i64-plotter/pkg/ast"
	"github.com/lemonberrylabs/i64-plotter/pkg/expr"
	"github.com/lemonberrylabs/i64-plotter/pkg/runtime"
	"github.com/lemonberrylabs/i64-plotter/pkg/types"
)

// MaxSourceSize is the maximum plot definition size in bytes (16 KB).
const MaxSourceSize = 16 * 1024

// ParseError represents an error encountered while parsing a plot
// definition.
type ParseError struct {
	Message  string
	Location string // e.g., "x" or "range.from"
	Err      error  // underlying expression error, if any
}

func (e *ParseError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("parse error at %s: %s", e.Location, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PlotError implements types.Tagged. Expression errors keep the tags of the
// expression error; everything else is an invalid argument.
func (e *ParseError) PlotError() *types.PlotError {
	tags := []string{types.TagInvalidArgument}
	var pe *expr.ParseError
	if errors.As(e.Err, &pe) {
		tags = append(tags, types.TagParseError, pe.Kind.String())
	}
	extra := map[string]interface{}{}
	if e.Location != "" {
		extra["location"] = e.Location
	}
	return &types.PlotError{Message: e.Error(), Tags: tags, Extra: extra, Err: e}
}

// Parse parses a YAML or JSON plot definition into an AST Plot.
func Parse(source []byte) (*ast.Plot, error) {
	if len(source) > MaxSourceSize {
		return nil, &ParseError{Message: fmt.Sprintf("plot source size %d exceeds maximum %d bytes", len(source), MaxSourceSize)}
	}

	var raw yaml.Node
	if err := yaml.Unmarshal(source, &raw); err != nil {
		return nil, &ParseError{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}

	// The root node is a document node containing the actual content
	if raw.Kind != yaml.DocumentNode || len(raw.Content) == 0 {
		return nil, &ParseError{Message: "empty plot definition"}
	}

	root := raw.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Message: "plot definition must be a mapping"}
	}

	p := &ast.Plot{Range: runtime.DefaultRange()}
	seen := make(map[string]bool)
	var hasX, hasY bool

	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		val := resolve(root.Content[i+1])

		if seen[key] {
			return nil, &ParseError{Message: fmt.Sprintf("duplicate key '%s'", key), Location: key}
		}
		seen[key] = true

		switch key {
		case "x":
			s, err := expression(val, key)
			if err != nil {
				return nil, err
			}
			p.X, hasX = s, true
		case "y":
			s, err := expression(val, key)
			if err != nil {
				return nil, err
			}
			p.Y, hasY = s, true
		case "description":
			if val.Kind != yaml.ScalarNode {
				return nil, &ParseError{Message: "description must be a string", Location: key}
			}
			p.Description = val.Value
		case "range":
			r, err := parseRange(val)
			if err != nil {
				return nil, err
			}
			p.Range, p.HasRange = r, true
		default:
			return nil, &ParseError{Message: fmt.Sprintf("unknown key '%s' in plot definition", key)}
		}
	}

	if !hasX {
		return nil, &ParseError{Message: "plot must have 'x'"}
	}
	if !hasY {
		return nil, &ParseError{Message: "plot must have 'y'"}
	}

	var err error
	if p.XExpr, err = expr.Compile(p.X); err != nil {
		return nil, &ParseError{Message: err.Error(), Location: "x", Err: err}
	}
	if p.YExpr, err = expr.Compile(p.Y); err != nil {
		return nil, &ParseError{Message: err.Error(), Location: "y", Err: err}
	}

	return p, nil
}

// expression extracts the text of an expression node. Numeric scalars are
// taken as written, so `x: 10` is the hex constant 0x10.
func expression(node *yaml.Node, loc string) (string, error) {
	if node.Kind != yaml.ScalarNode || node.Tag == "!!null" {
		return "", &ParseError{Message: "expression must be a string", Location: loc}
	}
	return node.Value, nil
}

// parseRange parses a {from, to} mapping or a [from, to] sequence.
func parseRange(node *yaml.Node) (runtime.Range, error) {
	r := runtime.DefaultRange()

	switch node.Kind {
	case yaml.SequenceNode:
		if len(node.Content) != 2 {
			return r, &ParseError{Message: "range must be a two-element sequence [from, to]", Location: "range"}
		}
		var err error
		if r.From, err = intFromNode(resolve(node.Content[0]), "range[0]"); err != nil {
			return r, err
		}
		if r.To, err = intFromNode(resolve(node.Content[1]), "range[1]"); err != nil {
			return r, err
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			loc := "range." + key
			var err error
			switch key {
			case "from":
				r.From, err = intFromNode(resolve(node.Content[i+1]), loc)
			case "to":
				r.To, err = intFromNode(resolve(node.Content[i+1]), loc)
			default:
				err = &ParseError{Message: fmt.Sprintf("unknown key '%s' in range", key), Location: "range"}
			}
			if err != nil {
				return r, err
			}
		}
	default:
		return r, &ParseError{Message: "range must be a mapping or sequence", Location: "range"}
	}

	if err := r.Validate(); err != nil {
		return r, &ParseError{Message: types.AsPlotError(err).Message, Location: "range"}
	}
	return r, nil
}

// intFromNode extracts a decimal integer from a scalar node.
func intFromNode(node *yaml.Node, loc string) (int64, error) {
	if node.Kind != yaml.ScalarNode || (node.Tag != "!!int" && node.Tag != "") {
		return 0, &ParseError{Message: "range bound must be an integer", Location: loc}
	}
	n, err := strconv.ParseInt(node.Value, 10, 64)
	if err != nil {
		return 0, &ParseError{Message: fmt.Sprintf("invalid range bound %q", node.Value), Location: loc}
	}
	return n, nil
}

func resolve(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}
