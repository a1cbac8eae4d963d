package pool

import (
	"fmt"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/momentics/hioload-taskpool/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct{ x, y int }

func TestNewEnvelope_Binding(t *testing.T) {
	var got string
	var sum int

	tests := map[string]struct {
		fn      any
		args    []any
		want    string
		wantErr bool
	}{
		"plain func": {
			fn:   func() { got = "plain" },
			want: "plain",
		},
		"task": {
			fn:   api.TaskFunc(func() { got = "task" }),
			want: "task",
		},
		"bound args": {
			fn:   func(s string, n int) { got = fmt.Sprintf("%s%d", s, n) },
			args: []any{"n=", 7},
			want: "n=7",
		},
		"results are discarded": {
			fn:   func(n int) error { got = fmt.Sprint(n); return nil },
			args: []any{3},
			want: "3",
		},
		"variadic": {
			fn: func(prefix string, ns ...int) {
				sum = 0
				for _, n := range ns {
					sum += n
				}
				got = fmt.Sprintf("%s%d", prefix, sum)
			},
			args: []any{"sum=", 1, 2, 3},
			want: "sum=6",
		},
		"variadic with no extras": {
			fn:   func(prefix string, ns ...int) { got = fmt.Sprintf("%s%d", prefix, len(ns)) },
			args: []any{"len="},
			want: "len=0",
		},
		"nil for pointer": {
			fn:   func(p *point) { got = fmt.Sprint(p == nil) },
			args: []any{nil},
			want: "true",
		},
		"value into interface": {
			fn:   func(v fmt.Stringer) { got = v.String() },
			args: []any{api.ErrCodeSend},
			want: "send",
		},
		"struct copied at bind time": {
			fn:   func(p point) { got = fmt.Sprint(p.x + p.y) },
			args: []any{point{2, 3}},
			want: "5",
		},
		"nil task":            {fn: nil, wantErr: true},
		"nil func value":      {fn: (func())(nil), wantErr: true},
		"not a function":      {fn: 42, wantErr: true},
		"too few args":        {fn: func(int, int) {}, args: []any{1}, wantErr: true},
		"too many args":       {fn: func(int) {}, args: []any{1, 2}, wantErr: true},
		"plain func with arg": {fn: func() {}, args: []any{1}, wantErr: true},
		"task with arg":       {fn: api.TaskFunc(func() {}), args: []any{1}, wantErr: true},
		"wrong type":          {fn: func(int) {}, args: []any{"x"}, wantErr: true},
		"nil for int":         {fn: func(int) {}, args: []any{nil}, wantErr: true},
		"wrong variadic type": {fn: func(...int) {}, args: []any{1, "x"}, wantErr: true},
		"variadic too few":    {fn: func(string, ...int) {}, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got = ""
			e, err := newEnvelope(tc.fn, tc.args...)
			if tc.wantErr {
				require.Error(t, err)
				assert.Nil(t, e)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, e.name)
			e.invoke()
			e.release()
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEnvelopeTable_ClaimOnce(t *testing.T) {
	var tbl envelopeTable

	e, err := newEnvelope(func() {})
	require.NoError(t, err)
	ticket := tbl.put(e)
	assert.Equal(t, 1, tbl.len())

	claimed, ok := tbl.claim(ticket)
	require.True(t, ok)
	assert.Same(t, e, claimed)
	assert.Equal(t, 0, tbl.len())

	_, ok = tbl.claim(ticket)
	assert.False(t, ok)
	_, ok = tbl.claim(ticket + 100)
	assert.False(t, ok)
}

func TestEnvelopeTable_TicketsAreDistinct(t *testing.T) {
	var tbl envelopeTable
	seen := make(map[uint64]bool)
	for i := 0; i < 100; i++ {
		e, err := newEnvelope(func() {})
		require.NoError(t, err)
		ticket := tbl.put(e)
		require.False(t, seen[ticket], "ticket %d reused", ticket)
		seen[ticket] = true
	}
	assert.Equal(t, 100, tbl.len())
	assert.Equal(t, 100, tbl.discard())
	assert.Equal(t, 0, tbl.len())
	assert.Equal(t, 0, tbl.discard())
}

func TestServerChannel_DecodeAcrossReads(t *testing.T) {
	var sc serverChannel
	buf := make([]byte, 3*ticketSize)
	for i := 0; i < 3; i++ {
		encodeTicket(buf[i*ticketSize:], uint64(1000+i))
	}

	// 5 bytes, then 13 bytes, then the rest.
	out := sc.decode(buf[:5], nil)
	assert.Empty(t, out)
	out = sc.decode(buf[5:18], out)
	assert.Equal(t, []uint64{1000, 1001}, out)
	out = sc.decode(buf[18:], out[:0])
	assert.Equal(t, []uint64{1002}, out)
	assert.Empty(t, sc.partial)
}

func TestNewEndpointPath(t *testing.T) {
	dir := t.TempDir()
	re := regexp.MustCompile(`^\d+\.\d+\.\d{6}\.sock$`)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		p := NewEndpointPath(dir)
		assert.Equal(t, dir, filepath.Dir(p))
		assert.Regexp(t, re, filepath.Base(p))
		require.False(t, seen[p], "duplicate endpoint %s", p)
		seen[p] = true
	}
}

func TestObjectPool_ResetsOnPut(t *testing.T) {
	type buf struct{ b []byte }
	resets := 0
	op := newObjectPool(
		func() *buf { return &buf{} },
		func(v *buf) { v.b = nil; resets++ },
	)

	v := op.get()
	v.b = []byte("task")
	op.put(v)
	assert.Equal(t, 1, resets)
	assert.Nil(t, v.b)
	assert.Nil(t, op.get().b)
}

func TestEnvelope_ReleaseClearsBinding(t *testing.T) {
	e, err := newEnvelope(func(s string) {}, "x")
	require.NoError(t, err)
	e.release()
	assert.Nil(t, e.fn)
	assert.Empty(t, e.name)
}
