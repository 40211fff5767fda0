package root

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/graph"
)

// pump drains a root's task queue in the background until the returned
// stop function is called, standing in for the owning thread's tick.
func pump(r *Root) func() {
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				r.RunTasks()
				time.Sleep(time.Millisecond)
			}
		}
	}()
	return func() { close(stop) }
}

func newPair(t *testing.T, a, b string) (*Root, *Root) {
	t.Helper()
	ra, err := NewRoot(a, true, zerolog.Nop())
	require.NoError(t, err)
	rb, err := NewRoot(b, false, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, ra.ConnectTo(b, "inproc://"+b))
	require.NoError(t, rb.ConnectTo(a, "inproc://"+a))
	t.Cleanup(func() {
		ra.Close()
		rb.Close()
	})
	return ra, rb
}

func TestRegistryInvariants(t *testing.T) {
	r, err := NewRoot("reg_root", true, zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	a := &graph.BaseObject{}
	a.Init(r, "test", graph.CategoryOther, graph.PriorityNoRender)
	require.True(t, r.AddObject("a", a))

	// Names are unique within the root.
	b := &graph.BaseObject{}
	b.Init(r, "test", graph.CategoryOther, graph.PriorityNoRender)
	assert.False(t, r.AddObject("a", b))

	got, ok := r.GetObject("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.Name())

	r.RemoveObject("a")
	_, ok = r.GetObject("a")
	assert.False(t, ok)
}

func TestObjectsInsertionOrder(t *testing.T) {
	r, err := NewRoot("order_root", true, zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	for _, name := range []string{"c", "a", "b"} {
		obj := &graph.BaseObject{}
		obj.Init(r, "test", graph.CategoryOther, graph.PriorityNoRender)
		require.True(t, r.AddObject(name, obj))
	}
	var names []string
	for _, obj := range r.Objects() {
		names = append(names, obj.Name())
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

func TestSendMessageLocalEnqueue(t *testing.T) {
	r, err := NewRoot("local_root", true, zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	var hit atomic.Bool
	r.AddAttribute("probe", "", func(common.Values) bool {
		hit.Store(true)
		return true
	}, nil)

	r.SendMessage("local_root", "probe", common.Values{})
	assert.False(t, hit.Load(), "message must be deferred to the next tick")
	r.RunTasks()
	assert.True(t, hit.Load())
}

func TestSendMessageCrossRoot(t *testing.T) {
	ra, rb := newPair(t, "cross_a", "cross_b")
	stop := pump(rb)
	defer stop()

	var got atomic.Int64
	rb.AddAttribute("value", "n", func(args common.Values) bool {
		got.Store(args[0].AsInt())
		return true
	}, nil)

	ra.SendMessage("cross_b", "value", common.Values{common.I(41)})
	assert.Eventually(t, func() bool { return got.Load() == 41 }, time.Second, time.Millisecond)
}

func TestSendMessageWithAnswer(t *testing.T) {
	ra, rb := newPair(t, "ask_a", "ask_b")
	stopA := pump(ra)
	defer stopA()
	stopB := pump(rb)
	defer stopB()

	rb.AddAttribute("frameRate", "n", func(common.Values) bool { return true }, func() common.Values {
		return common.Values{common.I(60)}
	})

	answer := ra.SendMessageWithAnswer("ask_b", "frameRate", common.Values{common.I(60)}, time.Second)
	require.Len(t, answer, 1)
	assert.Equal(t, int64(60), answer[0].AsInt())
}

func TestSendMessageWithAnswerTimeout(t *testing.T) {
	ra, _ := newPair(t, "timeout_a", "timeout_b")
	// The peer never pumps its tasks, so no answer comes back.
	start := time.Now()
	answer := ra.SendMessageWithAnswer("timeout_b", "whatever", common.Values{}, 50*time.Millisecond)
	assert.Empty(t, answer)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPeriodicTaskNonReentrant(t *testing.T) {
	r, err := NewRoot("periodic_root", true, zerolog.Nop())
	require.NoError(t, err)
	defer r.Close()

	var entered atomic.Int32
	block := make(chan struct{})
	r.AddPeriodicTask("slow", func() {
		entered.Add(1)
		<-block
	}, 0)

	go r.RunPeriodicTasks()
	assert.Eventually(t, func() bool { return entered.Load() == 1 }, time.Second, time.Millisecond)

	// The previous invocation has not returned: the tick is skipped.
	r.RunPeriodicTasks()
	assert.Equal(t, int32(1), entered.Load())

	close(block)
	assert.Eventually(t, func() bool {
		r.RunPeriodicTasks()
		return entered.Load() >= 2
	}, time.Second, time.Millisecond)
}

func TestBufferDispatchToObject(t *testing.T) {
	ra, rb := newPair(t, "buf_a", "buf_b")

	img := &testBuffer{}
	img.Init(rb, "testbuffer", graph.CategoryImage, graph.PriorityMedia)
	require.True(t, rb.AddObject("img1", img))

	payload := common.ResizableArrayFrom([]byte{9, 8, 7})
	require.NoError(t, ra.SendBuffer("buf_b", &graph.Serialized{
		Name: "img1", Timestamp: 42, Data: payload,
	}))

	assert.Eventually(t, func() bool { return img.Timestamp() == 42 }, time.Second, time.Millisecond)
	assert.Equal(t, []byte{9, 8, 7}, img.content)
}

// testBuffer is a minimal buffer object for dispatch tests.
type testBuffer struct {
	graph.BufferBase
	content []byte
}

func (b *testBuffer) Serialize() *graph.Serialized {
	return &graph.Serialized{
		Name:      b.Name(),
		Timestamp: b.Timestamp(),
		Data:      common.ResizableArrayFrom(b.content),
	}
}

func (b *testBuffer) Deserialize(s *graph.Serialized) error {
	b.RW.Lock()
	b.content = append([]byte(nil), s.Data.Data()...)
	b.RW.Unlock()
	b.SetTimestamp(s.Timestamp)
	return nil
}
