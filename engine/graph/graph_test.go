package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splashmapping/splash/common"
)

func newTestObject() *BaseObject {
	obj := &BaseObject{}
	obj.Init(nil, "test", CategoryOther, PriorityNoRender)
	return obj
}

func TestAttributeSetGetRoundTrip(t *testing.T) {
	obj := newTestObject()
	var stored common.Values
	obj.AddAttribute("position", "nn", func(args common.Values) bool {
		stored = args
		return true
	}, nil).Doc("position of the thing")

	require.True(t, obj.SetAttribute("position", common.Values{common.I(10), common.I(20)}))
	assert.Len(t, stored, 2)

	got, ok := obj.GetAttribute("position")
	require.True(t, ok)
	assert.True(t, got.Equal(common.Values{common.I(10), common.I(20)}))

	assert.Equal(t, "position of the thing", obj.DescribeAttribute("position"))
}

func TestAttributeArityAndKinds(t *testing.T) {
	obj := newTestObject()
	obj.AddAttribute("mixed", "ns", func(common.Values) bool { return true }, nil)

	// Wrong arity.
	assert.False(t, obj.SetAttribute("mixed", common.Values{common.I(1)}))
	assert.False(t, obj.SetAttribute("mixed", common.Values{common.I(1), common.S("x"), common.I(2)}))
	// 's' only accepts strings.
	assert.False(t, obj.SetAttribute("mixed", common.Values{common.I(1), common.I(2)}))
	// 'n' accepts any numeric.
	assert.True(t, obj.SetAttribute("mixed", common.Values{common.R(1.5), common.S("x")}))
	assert.True(t, obj.SetAttribute("mixed", common.Values{common.B(true), common.S("x")}))
	// 'n' rejects strings.
	assert.False(t, obj.SetAttribute("mixed", common.Values{common.S("1"), common.S("x")}))
}

func TestAttributeSetterFailureKeepsStored(t *testing.T) {
	obj := newTestObject()
	accept := true
	obj.AddAttribute("gate", "n", func(common.Values) bool { return accept }, nil)

	require.True(t, obj.SetAttribute("gate", common.Values{common.I(1)}))
	accept = false
	assert.False(t, obj.SetAttribute("gate", common.Values{common.I(2)}))

	got, _ := obj.GetAttribute("gate")
	assert.True(t, got.Equal(common.Values{common.I(1)}))
}

func TestUnknownAttribute(t *testing.T) {
	obj := newTestObject()
	assert.False(t, obj.SetAttribute("nope", common.Values{}))
	_, ok := obj.GetAttribute("nope")
	assert.False(t, ok)
}

func TestNameRegistryUniqueness(t *testing.T) {
	reg := NewNameRegistry()
	require.True(t, reg.RegisterName("cam1"))
	assert.False(t, reg.RegisterName("cam1"))
	reg.UnregisterName("cam1")
	assert.True(t, reg.RegisterName("cam1"))

	a := reg.GenerateName("window")
	b := reg.GenerateName("window")
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "window_")
}

func TestNameRegistryIDsIncrease(t *testing.T) {
	reg := NewNameRegistry()
	first := reg.NextID()
	second := reg.NextID()
	assert.Greater(t, second, first)
}

func TestBufferTimestampMonotonic(t *testing.T) {
	var b BufferBase
	b.Init(nil, "buffer", CategoryImage, PriorityMedia)

	b.SetTimestamp(100)
	assert.Equal(t, int64(100), b.Timestamp())

	// An older stamp never replaces a newer one.
	b.SetTimestamp(50)
	assert.Equal(t, int64(100), b.Timestamp())

	b.BumpTimestamp()
	first := b.Timestamp()
	assert.Greater(t, first, int64(100))
	time.Sleep(time.Millisecond)
	b.BumpTimestamp()
	assert.GreaterOrEqual(t, b.Timestamp(), first)
}

func TestLinkRelationOnly(t *testing.T) {
	a := newTestObject()
	a.SetName("a")
	b := newTestObject()
	b.SetName("b")

	require.True(t, b.TryLink(a))
	assert.Equal(t, []string{"a"}, b.LinkedObjects())

	// Linking twice is idempotent.
	require.True(t, b.TryLink(a))
	assert.Len(t, b.LinkedObjects(), 1)

	b.TryUnlink(a)
	assert.Empty(t, b.LinkedObjects())
}

func TestObjectTasksRunOnce(t *testing.T) {
	obj := newTestObject()
	count := 0
	obj.AddTask(func() { count++ })
	obj.AddTask(func() { count++ })
	obj.RunTasks()
	obj.RunTasks()
	assert.Equal(t, 2, count)
}
