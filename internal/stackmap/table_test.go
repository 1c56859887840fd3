package stackmap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/classforge/classforge/internal/bytesink"
)

func encode(t *testing.T, init []Type, frames ...Frame) []byte {
	t.Helper()
	tbl := New(init)
	for _, f := range frames {
		require.NoError(t, tbl.Add(f.Addr, f.Locals, f.Stack))
	}
	var buf bytesink.Buffer
	tbl.WriteTo(&buf)
	return buf.Bytes()
}

func TestTable_WriteTo(t *testing.T) {
	str := Object(9)
	tests := []struct {
		name     string
		init     []Type
		frames   []Frame
		expected []byte
	}{
		{
			name:     "same_frame uses the address as the first delta",
			init:     []Type{Int},
			frames:   []Frame{{Addr: 5, Locals: []Type{Int}}},
			expected: []byte{0, 1, 5},
		},
		{
			name: "later deltas are offset by one",
			init: []Type{Int},
			frames: []Frame{
				{Addr: 5, Locals: []Type{Int}},
				{Addr: 10, Locals: []Type{Int}},
			},
			expected: []byte{0, 2, 5, 4},
		},
		{
			name:     "same_frame_extended",
			frames:   []Frame{{Addr: 64}},
			expected: []byte{0, 1, 251, 0, 64},
		},
		{
			name:     "same_locals_1_stack_item",
			frames:   []Frame{{Addr: 3, Stack: []Type{str}}},
			expected: []byte{0, 1, 64 + 3, TagObject, 0, 9},
		},
		{
			name:     "same_locals_1_stack_item_extended",
			frames:   []Frame{{Addr: 300, Stack: []Type{Long}}},
			expected: []byte{0, 1, 247, 1, 44, TagLong},
		},
		{
			name:     "append",
			init:     []Type{Int},
			frames:   []Frame{{Addr: 2, Locals: []Type{Int, Long, str}}},
			expected: []byte{0, 1, 253, 0, 2, TagLong, TagObject, 0, 9},
		},
		{
			name:     "chop",
			init:     []Type{Int, Float, Double},
			frames:   []Frame{{Addr: 7, Locals: []Type{Int}}},
			expected: []byte{0, 1, 249, 0, 7},
		},
		{
			name:   "full_frame when locals change and the stack is not empty",
			init:   []Type{Int},
			frames: []Frame{{Addr: 1, Locals: []Type{Float}, Stack: []Type{Int, Int}}},
			expected: []byte{0, 1, 255, 0, 1,
				0, 1, TagFloat,
				0, 2, TagInt, TagInt},
		},
		{
			name:   "full_frame when more than three locals are appended",
			frames: []Frame{{Addr: 0, Locals: []Type{Int, Int, Int, Int}}},
			expected: []byte{0, 1, 255, 0, 0,
				0, 4, TagInt, TagInt, TagInt, TagInt,
				0, 0},
		},
		{
			name:   "uninitialized carries an offset",
			frames: []Frame{{Addr: 9, Locals: []Type{UninitThis}, Stack: []Type{Uninitialized(4), Uninitialized(4)}}},
			expected: []byte{0, 1, 255, 0, 9,
				0, 1, TagUninitThis,
				0, 2, TagUninitialized, 0, 4, TagUninitialized, 0, 4},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, encode(t, tc.init, tc.frames...))
		})
	}
}

func TestTable_MergeIdempotent(t *testing.T) {
	f := Frame{Addr: 12, Locals: []Type{Int, Object(3)}, Stack: []Type{Long}}
	once := encode(t, nil, f)
	twice := encode(t, nil, f, f)
	require.Equal(t, once, twice)
}

func TestTable_AddErrors(t *testing.T) {
	tbl := New(nil)
	require.NoError(t, tbl.Add(4, nil, []Type{Int}))

	err := tbl.Add(4, nil, []Type{Float})
	require.ErrorIs(t, err, ErrStackMismatch)

	err = tbl.Add(3, nil, nil)
	require.ErrorIs(t, err, ErrOutOfOrder)
	require.Equal(t, 1, tbl.Len())

	tbl.Reset()
	require.Equal(t, 0, tbl.Len())
}

func TestTable_AddMergesLocals(t *testing.T) {
	tbl := New(nil)
	require.NoError(t, tbl.Add(4, []Type{Int, Float, Object(2)}, nil))
	require.NoError(t, tbl.Add(4, []Type{Int, Int}, nil))
	require.Equal(t, []Type{Int}, tbl.Frames()[0].Locals)
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []Type
		expected []Type
	}{
		{name: "equal", a: []Type{Int, Long}, b: []Type{Int, Long}, expected: []Type{Int, Long}},
		{name: "prefix", a: []Type{Int, Long}, b: []Type{Int}, expected: []Type{Int}},
		{name: "mismatch demotes to top", a: []Type{Int, Float, Int}, b: []Type{Object(1), Float, Int}, expected: []Type{Top, Float, Int}},
		{name: "wide mismatch ends the list", a: []Type{Int, Long, Int}, b: []Type{Int, Float, Int}, expected: []Type{Int}},
		{name: "trailing top trimmed", a: []Type{Int, Float}, b: []Type{Int, Int}, expected: []Type{Int}},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, Merge(tc.a, tc.b))
		})
	}
}
