package reactor

import (
	"testing"

	"github.com/momentics/hioload-taskpool/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSlotTable_InsertLookupRelease(t *testing.T) {
	tbl := newSlotTable(2)

	a := tbl.insert(10, api.KindListener, "a")
	b := tbl.insert(11, api.KindChannel, "b")
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, tbl.len())

	s, ok := tbl.lookup(b)
	require.True(t, ok)
	assert.Equal(t, 11, s.fd)
	assert.Equal(t, api.KindChannel, s.kind)
	assert.Equal(t, "b", s.value)

	released, ok := tbl.release(a)
	require.True(t, ok)
	assert.Equal(t, 10, released.fd)
	assert.Equal(t, 1, tbl.len())

	_, ok = tbl.lookup(a)
	assert.False(t, ok, "released tag must stop resolving")
	_, ok = tbl.release(a)
	assert.False(t, ok, "double release must be rejected")
}

func TestSlotTable_ReuseBumpsGeneration(t *testing.T) {
	tbl := newSlotTable(1)

	first := tbl.insert(3, api.KindChannel, nil)
	_, ok := tbl.release(first)
	require.True(t, ok)

	second := tbl.insert(4, api.KindChannel, nil)
	idx1, gen1 := splitTag(first)
	idx2, gen2 := splitTag(second)
	assert.Equal(t, idx1, idx2, "freed slot is recycled")
	assert.Equal(t, gen1+1, gen2)

	_, ok = tbl.lookup(first)
	assert.False(t, ok, "stale tag must not resolve to the new registration")
	s, ok := tbl.lookup(second)
	require.True(t, ok)
	assert.Equal(t, 4, s.fd)
}

func TestSlotTable_FIFOReuse(t *testing.T) {
	tbl := newSlotTable(4)
	tags := make([]api.Tag, 3)
	for i := range tags {
		tags[i] = tbl.insert(i, api.KindChannel, nil)
	}
	tbl.release(tags[2])
	tbl.release(tags[0])

	next := tbl.insert(7, api.KindChannel, nil)
	idx, _ := splitTag(next)
	want, _ := splitTag(tags[2])
	assert.Equal(t, want, idx, "oldest released slot is reused first")
}

func TestSlotTable_UnknownTag(t *testing.T) {
	tbl := newSlotTable(1)
	_, ok := tbl.lookup(makeTag(42, 0))
	assert.False(t, ok)
	_, ok = tbl.release(makeTag(42, 0))
	assert.False(t, ok)
}
