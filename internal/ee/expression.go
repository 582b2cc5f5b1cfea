package ee

import (
	"errors"
	"sort"
	"strconv"
)

var ErrNilNode = errors.New("expression node is nil")

type kind int

const (
	kindConstant kind = iota
	kindInvocation
	kindArray
	kindDictionary
	kindArgument
	kindFunction
)

// Node is one vertex of a server-side computation graph. Nodes are immutable
// once built and may be shared between several parents.
type Node struct {
	kind   kind
	value  any
	name   string
	args   Args
	items  []*Node
	params []string
	body   *Node
}

// Args are the named arguments of a function invocation. Nil entries are
// dropped when encoding, which is how optional arguments are left out.
type Args map[string]*Node

func Constant(v any) *Node {
	return &Node{kind: kindConstant, value: v}
}

func Invoke(name string, args Args) *Node {
	return &Node{kind: kindInvocation, name: name, args: args}
}

func Array(items ...*Node) *Node {
	return &Node{kind: kindArray, items: items}
}

func Dictionary(values map[string]*Node) *Node {
	return &Node{kind: kindDictionary, args: values}
}

// Argument references a parameter of the enclosing Function.
func Argument(name string) *Node {
	return &Node{kind: kindArgument, name: name}
}

func Function(params []string, body *Node) *Node {
	return &Node{kind: kindFunction, params: params, body: body}
}

// FunctionName returns the invoked server function, or "" when n is not an
// invocation.
func (n *Node) FunctionName() string {
	if n == nil || n.kind != kindInvocation {
		return ""
	}
	return n.name
}

// Arg returns the named argument of an invocation.
func (n *Node) Arg(name string) *Node {
	if n == nil {
		return nil
	}
	return n.args[name]
}

// Value returns the payload of a constant node.
func (n *Node) Value() any {
	if n == nil || n.kind != kindConstant {
		return nil
	}
	return n.value
}

// Body returns the body of a function definition.
func (n *Node) Body() *Node {
	if n == nil {
		return nil
	}
	return n.body
}

func (n *Node) children() []*Node {
	var out []*Node
	for _, key := range sortedKeys(n.args) {
		if child := n.args[key]; child != nil {
			out = append(out, child)
		}
	}
	out = append(out, n.items...)
	if n.body != nil {
		out = append(out, n.body)
	}
	return out
}

// Expression is the wire form of a computation graph: a flat table of values
// and the key of the result.
type Expression struct {
	Result string         `json:"result"`
	Values map[string]any `json:"values"`
}

// Encode flattens root into an Expression. Subgraphs referenced from more
// than one parent are emitted once and shared through valueReference, except
// when they depend on a function argument.
func Encode(root *Node) (*Expression, error) {
	if root == nil {
		return nil, ErrNilNode
	}
	e := &encoder{
		refs:   make(map[*Node]int),
		free:   make(map[*Node]map[string]struct{}),
		ids:    make(map[*Node]string),
		values: make(map[string]any),
	}
	e.count(root)

	v := e.encode(root)
	if ref, ok := v["valueReference"].(string); ok {
		return &Expression{Result: ref, Values: e.values}, nil
	}
	key := e.next()
	e.values[key] = v
	return &Expression{Result: key, Values: e.values}, nil
}

type encoder struct {
	refs   map[*Node]int
	free   map[*Node]map[string]struct{}
	ids    map[*Node]string
	values map[string]any
}

func (e *encoder) next() string {
	return strconv.Itoa(len(e.values))
}

func (e *encoder) count(n *Node) {
	e.refs[n]++
	if e.refs[n] > 1 {
		return
	}
	for _, child := range n.children() {
		e.count(child)
	}
}

// freeArguments lists the argument names used under n that no function
// inside n binds.
func (e *encoder) freeArguments(n *Node) map[string]struct{} {
	if set, ok := e.free[n]; ok {
		return set
	}
	set := make(map[string]struct{})
	switch n.kind {
	case kindArgument:
		set[n.name] = struct{}{}
	case kindFunction:
		for name := range e.freeArguments(n.body) {
			set[name] = struct{}{}
		}
		for _, p := range n.params {
			delete(set, p)
		}
	default:
		for _, child := range n.children() {
			for name := range e.freeArguments(child) {
				set[name] = struct{}{}
			}
		}
	}
	e.free[n] = set
	return set
}

func (e *encoder) shareable(n *Node) bool {
	if n.kind == kindConstant || n.kind == kindArgument {
		return false
	}
	return e.refs[n] > 1 && len(e.freeArguments(n)) == 0
}

func (e *encoder) encode(n *Node) map[string]any {
	if !e.shareable(n) {
		return e.encodeNode(n)
	}
	if id, ok := e.ids[n]; ok {
		return map[string]any{"valueReference": id}
	}
	v := e.encodeNode(n)
	id := e.next()
	e.ids[n] = id
	e.values[id] = v
	return map[string]any{"valueReference": id}
}

func (e *encoder) encodeNode(n *Node) map[string]any {
	switch n.kind {
	case kindInvocation:
		args := make(map[string]any, len(n.args))
		for _, key := range sortedKeys(n.args) {
			if child := n.args[key]; child != nil {
				args[key] = e.encode(child)
			}
		}
		return map[string]any{"functionInvocationValue": map[string]any{
			"functionName": n.name,
			"arguments":    args,
		}}
	case kindArray:
		items := make([]any, 0, len(n.items))
		for _, child := range n.items {
			items = append(items, e.encode(child))
		}
		return map[string]any{"arrayValue": map[string]any{"values": items}}
	case kindDictionary:
		values := make(map[string]any, len(n.args))
		for _, key := range sortedKeys(n.args) {
			if child := n.args[key]; child != nil {
				values[key] = e.encode(child)
			}
		}
		return map[string]any{"dictionaryValue": map[string]any{"values": values}}
	case kindArgument:
		return map[string]any{"argumentReference": n.name}
	case kindFunction:
		body := e.encode(n.body)
		id, ok := body["valueReference"].(string)
		if !ok {
			id = e.next()
			e.values[id] = body
		}
		params := n.params
		if params == nil {
			params = []string{}
		}
		return map[string]any{"functionDefinitionValue": map[string]any{
			"argumentNames": params,
			"body":          id,
		}}
	default:
		return map[string]any{"constantValue": n.value}
	}
}

func sortedKeys(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
