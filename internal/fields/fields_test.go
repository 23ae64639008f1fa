package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"flowbridge/internal/errors"
	"flowbridge/internal/schema"
	"flowbridge/pkg/records"
)

func people() *schema.Descriptor {
	return schema.MustNew(
		schema.Field{Name: "name", Class: "string"},
		schema.Field{Name: "age", Class: "int"},
	)
}

func wide() *schema.Descriptor {
	return schema.MustNew(
		schema.Field{Name: "a"}, schema.Field{Name: "b"}, schema.Field{Name: "c"},
		schema.Field{Name: "d"}, schema.Field{Name: "e"},
	)
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Selector
		wantErr bool
	}{
		{"", All(), false},
		{"*", All(), false},
		{"age", Names("age"), false},
		{" name , age ", Names("name", "age"), false},
		{"0,-1", Positions(0, -1), false},
		{"name,1", Selector{}, true},
		{"a,,b", Selector{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve(t *testing.T) {
	d := wide()
	tests := []struct {
		name string
		sel  Selector
		want []int
	}{
		{"all", All(), []int{0, 1, 2, 3, 4}},
		{"names keep caller order", Names("d", "a"), []int{3, 0}},
		{"negative positions", Positions(-1, 0, -2), []int{4, 0, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.sel.Resolve(d)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	d := wide()
	var ufe *errors.UnknownFieldError
	var dup *errors.DuplicateFieldError

	_, err := Names("middlename").Resolve(d)
	assert.True(t, errors.As(err, &ufe))

	_, err = Positions(5).Resolve(d)
	assert.True(t, errors.As(err, &ufe))
	_, err = Positions(-6).Resolve(d)
	assert.True(t, errors.As(err, &ufe))

	_, err = Names("a", "a").Resolve(d)
	assert.True(t, errors.As(err, &dup))
	_, err = Positions(0, -5).Resolve(d)
	assert.True(t, errors.As(err, &dup))
}

func TestSelector_YAML(t *testing.T) {
	var v struct {
		A Selector `yaml:"a"`
		B Selector `yaml:"b"`
		C Selector `yaml:"c"`
		D Selector `yaml:"d"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: [name, age]\nb: \"*\"\nc: [0, -1]\nd: age\n"), &v))
	assert.Equal(t, Names("name", "age"), v.A)
	assert.True(t, v.B.IsAll())
	assert.Equal(t, Positions(0, -1), v.C)
	assert.Equal(t, Names("age"), v.D)
}

/*
TestProjector_AllIsIdentity checks apply(r) == r for the "all" selection over
records of the schema's arity.
*/
func TestProjector_AllIsIdentity(t *testing.T) {
	p, err := NewProjector(people(), All())
	require.NoError(t, err)
	assert.True(t, p.Identity())
	assert.True(t, p.Schema().Equal(people()))

	for _, r := range []records.Record{
		records.Of("Alice", int32(30)),
		records.Of(nil, nil),
		records.Of("", int32(-1)),
	} {
		assert.Equal(t, r, p.Apply(r))
		dst := make(records.Record, 2)
		assert.Equal(t, r, p.ApplyInto(dst, r))
	}
}

func TestProjector_Subset(t *testing.T) {
	p, err := NewProjector(wide(), Names("c", "a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, p.Schema().Names())

	full := records.Of(1, 2, 3, 4, 5)
	assert.Equal(t, records.Of(3, 1), p.Apply(full))

	dst := make(records.Record, 2)
	p.ApplyInto(dst, full)
	assert.Equal(t, records.Of(3, 1), dst)
}

func TestProjector_UnknownFieldFailsAtBuild(t *testing.T) {
	_, err := NewProjector(people(), Names("middlename"))
	var ufe *errors.UnknownFieldError
	require.True(t, errors.As(err, &ufe))
	assert.Equal(t, "middlename", ufe.Field)
}

func outputs(names ...string) *schema.Descriptor {
	fs := make([]schema.Field, len(names))
	for i, n := range names {
		fs[i] = schema.Field{Name: n}
	}
	return schema.MustNew(fs...)
}

/*
TestMerger_ReplaceReturnsOutput checks apply(original, out) == out no matter
what the original holds.
*/
func TestMerger_ReplaceReturnsOutput(t *testing.T) {
	m, err := NewMerger(wide(), []int{1}, outputs("x", "y"), Replace)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, m.Schema().Names())

	out := records.Of("x1", "y1")
	for _, orig := range []records.Record{records.Of(1, 2, 3, 4, 5), records.Of(nil, nil, nil, nil, nil), nil} {
		got, err := m.Apply(orig, out)
		require.NoError(t, err)
		assert.Equal(t, out, got)
	}
}

/*
TestMerger_SwapProperty checks that positions outside the argument set pass
through and argument positions take the output values in argument order.
*/
func TestMerger_SwapProperty(t *testing.T) {
	args := []int{3, 1}
	m, err := NewMerger(wide(), args, outputs("D", "B"), Swap)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "B", "c", "D", "e"}, m.Schema().Names())

	orig := records.Of("a", "b", "c", "d", "e")
	out := records.Of("out0", "out1")
	got, err := m.Apply(orig, out)
	require.NoError(t, err)

	inArgs := map[int]int{3: 0, 1: 1}
	for pos := range orig {
		if slot, ok := inArgs[pos]; ok {
			assert.Equal(t, out[slot], got[pos], "pos %d", pos)
		} else {
			assert.Equal(t, orig[pos], got[pos], "pos %d", pos)
		}
	}
	assert.Equal(t, records.Of("a", "b", "c", "d", "e"), orig, "original must not be mutated")
}

func TestMerger_SwapArityMismatch(t *testing.T) {
	_, err := NewMerger(people(), []int{1}, outputs("x", "y"), Swap)
	var ame *errors.ArityMismatchError
	require.True(t, errors.As(err, &ame))
	assert.Equal(t, 1, ame.Want)
	assert.Equal(t, 2, ame.Got)
}

func TestMerger_AppendKeepsRemainderOrder(t *testing.T) {
	d := people()
	p, err := NewProjector(d, Names("name"))
	require.NoError(t, err)
	m, err := NewMerger(d, p.Positions(), outputs("greeting"), Append)
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "greeting"}, m.Schema().Names())
	assert.Equal(t, "int", m.Schema().ClassAt(0))

	got, err := m.Apply(records.Of("Bob", 40), records.Of("Hello, Bob"))
	require.NoError(t, err)
	assert.Equal(t, records.Of(40, "Hello, Bob"), got)
}

func TestMerger_Errors(t *testing.T) {
	var dup *errors.DuplicateFieldError
	_, err := NewMerger(people(), []int{0}, outputs("age"), Append)
	assert.True(t, errors.As(err, &dup), "append must not produce duplicate names")

	m, err := NewMerger(people(), []int{1}, outputs("age"), Swap)
	require.NoError(t, err)
	_, err = m.Apply(records.Of("Alice", 30), records.Of(31, 32))
	var ame *errors.ArityMismatchError
	assert.True(t, errors.As(err, &ame))
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"REPLACE": Replace, "append": Append, " swap ": Swap, "results": Replace} {
		got, err := ParsePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePolicy("merge")
	assert.Error(t, err)

	var v struct {
		P Policy `yaml:"p"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("p: swap"), &v))
	assert.Equal(t, Swap, v.P)
}
