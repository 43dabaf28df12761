package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeModel(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const decoupledModel = `{
	"category": "decoupled",
	"conditional": {"allowed": false},
	"inter-loop-dependency": {"allowed": true, "type": "BackwardInst"},
	"address_generator": {"control": "affine", "max_nested_level": 3},
	"generic_instructions": ["add", "sub", "mul", "icmp", "load", "store"],
	"custom_instructions": ["FMA"]
}`

func TestParseDecoupledModel(t *testing.T) {
	m, err := Parse(writeModel(t, decoupledModel), nil)
	require.NoError(t, err)
	assert.Equal(t, Decoupled, m.Category)
	assert.Equal(t, CondNo, m.Conditional)
	assert.Equal(t, DepBackwardInst, m.InterLoop)
	require.NotNil(t, m.AG)
	affine, ok := m.AG.(*AffineAG)
	require.True(t, ok)
	assert.Equal(t, 3, affine.MaxNests)
	assert.NotNil(t, m.InstMap.FindByOpcode("add"))
	assert.NotNil(t, m.InstMap.FindByOpcode("FMA"))
}

func TestParseMissingCategory(t *testing.T) {
	_, err := Parse(writeModel(t, `{"conditional": {"allowed": false}}`), nil)
	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, MissingKey, me.Kind)
	assert.Equal(t, "category", me.Key)
}

func TestParseInvalidCategory(t *testing.T) {
	body := `{
		"category": "hybrid",
		"conditional": {"allowed": false},
		"inter-loop-dependency": {"allowed": false},
		"generic_instructions": [],
		"custom_instructions": []
	}`
	_, err := Parse(writeModel(t, body), nil)
	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, InvalidValue, me.Kind)
	assert.Equal(t, "category", me.Key)
	assert.Equal(t, "hybrid", me.Value)
	assert.Equal(t, []string{"time-multiplexed", "decoupled"}, me.Permitted)
}

func TestDisallowedConditionalIgnoresType(t *testing.T) {
	body := `{
		"category": "time-multiplexed",
		"conditional": {"allowed": false, "type": "TriState"},
		"inter-loop-dependency": {"allowed": false},
		"generic_instructions": ["add"],
		"custom_instructions": []
	}`
	m, err := Parse(writeModel(t, body), nil)
	require.NoError(t, err)
	assert.Equal(t, CondNo, m.Conditional)
}

func TestParseUnknownOpcode(t *testing.T) {
	body := `{
		"category": "time-multiplexed",
		"conditional": {"allowed": false},
		"inter-loop-dependency": {"allowed": false},
		"generic_instructions": ["madd"],
		"custom_instructions": []
	}`
	_, err := Parse(writeModel(t, body), nil)
	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, InvalidValue, me.Kind)
	assert.Equal(t, "madd", me.Value)
	assert.Contains(t, me.Permitted, "add")
}

func TestParseMissingTypeWhenAllowed(t *testing.T) {
	body := `{
		"category": "time-multiplexed",
		"conditional": {"allowed": true},
		"inter-loop-dependency": {"allowed": false},
		"generic_instructions": [],
		"custom_instructions": []
	}`
	_, err := Parse(writeModel(t, body), nil)
	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, MissingKey, me.Kind)
	assert.Equal(t, "type", me.Key)
	assert.Equal(t, "conditional", me.Region)
}

func TestParseNonPositiveMaxNest(t *testing.T) {
	body := `{
		"category": "decoupled",
		"conditional": {"allowed": false},
		"inter-loop-dependency": {"allowed": false},
		"address_generator": {"control": "affine", "max_nested_level": 0},
		"generic_instructions": [],
		"custom_instructions": []
	}`
	_, err := Parse(writeModel(t, body), nil)
	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, InvalidValue, me.Kind)
	assert.Equal(t, "max_nested_level", me.Key)
}

func TestParseBothSidesWarns(t *testing.T) {
	body := `{
		"category": "time-multiplexed",
		"conditional": {"allowed": false},
		"inter-loop-dependency": {"allowed": false},
		"generic_instructions": ["mul"],
		"custom_instructions": [],
		"instruction_map": [
			{"inst": "mul", "map": "shift", "lhs": {"ConstantInt": 2}, "rhs": {"ConstantInt": 4}}
		]
	}`
	var warnings []string
	warnf := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}
	m, err := Parse(writeModel(t, body), warnf)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "right hand side")
	// the default mul entry must have been displaced
	e := m.InstMap.FindByOpcode("mul")
	require.NotNil(t, e)
	assert.Equal(t, "shift", e.MapName())
}

func TestParseMapEntryForUnknownInst(t *testing.T) {
	body := `{
		"category": "time-multiplexed",
		"conditional": {"allowed": false},
		"inter-loop-dependency": {"allowed": false},
		"generic_instructions": [],
		"custom_instructions": [],
		"instruction_map": [{"inst": "add", "map": "add2"}]
	}`
	_, err := Parse(writeModel(t, body), nil)
	require.Error(t, err)
	var me *Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, InvalidValue, me.Kind)
}

func TestParseUnknownFlag(t *testing.T) {
	body := `{
		"category": "time-multiplexed",
		"conditional": {"allowed": false},
		"inter-loop-dependency": {"allowed": false},
		"generic_instructions": ["fadd"],
		"custom_instructions": [],
		"instruction_map": [{"inst": "fadd", "map": "fadd", "flags": ["speedy"]}]
	}`
	_, err := Parse(writeModel(t, body), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "speedy")
}

func TestModelRoundTrip(t *testing.T) {
	m, err := Parse(writeModel(t, decoupledModel), nil)
	require.NoError(t, err)

	out, err := json.Marshal(m)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "roundtrip.json")
	require.NoError(t, os.WriteFile(path, out, 0o644))

	m2, err := Parse(path, nil)
	require.NoError(t, err)
	assert.Equal(t, m.Category, m2.Category)
	assert.Equal(t, m.Conditional, m2.Conditional)
	assert.Equal(t, m.InterLoop, m2.InterLoop)
	require.IsType(t, &AffineAG{}, m2.AG)
	assert.Equal(t, m.AG.(*AffineAG).MaxNests, m2.AG.(*AffineAG).MaxNests)
}

func TestEqualDouble(t *testing.T) {
	assert.True(t, EqualDouble(1.0, 1.0))
	assert.True(t, EqualDouble(0.1+0.2, 0.3))
	assert.False(t, EqualDouble(1.0, 1.0001))
	// symmetry
	assert.Equal(t, EqualDouble(3.5, 3.5000001), EqualDouble(3.5000001, 3.5))
}
