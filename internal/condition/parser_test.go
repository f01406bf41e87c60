package condition

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_Precedence(t *testing.T) {
	expr, err := NewParser("source > 1 + 2 * 3 && !target").Parse()
	require.NoError(t, err)

	and, ok := expr.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, TokenAnd, and.Op)

	gt, ok := and.Left.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, TokenGt, gt.Op)

	plus, ok := gt.Right.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, TokenPlus, plus.Op)
	assert.Equal(t, TokenStar, plus.Right.(*BinaryExpr).Op)

	not, ok := and.Right.(*UnaryExpr)
	require.True(t, ok)
	assert.Equal(t, TokenNot, not.Op)
}

func TestParser_Postfix(t *testing.T) {
	expr, err := NewParser("source.ports.some(p => target.includes(p))").Parse()
	require.NoError(t, err)

	call, ok := expr.(*CallExpr)
	require.True(t, ok)
	assert.Equal(t, "some", call.Method)
	require.Len(t, call.Args, 1)

	lam, ok := call.Args[0].(*LambdaExpr)
	require.True(t, ok)
	assert.Equal(t, "p", lam.Param)

	mem, ok := call.Object.(*MemberExpr)
	require.True(t, ok)
	assert.Equal(t, "ports", mem.Property)

	expr, err = NewParser(`source["max-res"][0]`).Parse()
	require.NoError(t, err)
	idx, ok := expr.(*IndexExpr)
	require.True(t, ok)
	assert.IsType(t, &IndexExpr{}, idx.Object)
}

func TestParser_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"dangling operator", "source >"},
		{"unclosed paren", "(source"},
		{"free function", "eval(source)"},
		{"assignment", "source = 1"},
		{"trailing token", "source target"},
		{"bare lambda", "x => x"},
		{"member of nothing", "source."},
		{"too deep", strings.Repeat("(", MaxDepth+1) + "source" + strings.Repeat(")", MaxDepth+1)},
		{"too many negations", strings.Repeat("!", MaxDepth+1) + "source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(tt.input).Parse()
			assert.Error(t, err)
		})
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "bound names", input: "source === target"},
		{name: "lambda parameter in scope", input: "source.some(p => target.includes(p))"},
		{name: "unknown identifier", input: "process.exit === 1", wantErr: "unknown identifier"},
		{name: "lambda parameter out of scope", input: "source.some(p => p) && p", wantErr: "unknown identifier"},
		{name: "disallowed method", input: "source.explode()", wantErr: "not allowed"},
		{name: "constructor call", input: "source.constructor()", wantErr: "not allowed"},
		{name: "wrong arity", input: "source.includes()", wantErr: "argument"},
		{name: "some without lambda", input: "source.some(target)", wantErr: "expects a lambda"},
		{name: "lambda where value expected", input: "source.includes(x => x)", wantErr: "only allowed"},
		{name: "shadowing", input: "source.some(target => target)", wantErr: "shadows"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := NewParser(tt.input).Parse()
			require.NoError(t, err)
			err = Check(expr)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
