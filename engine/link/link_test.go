package link

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/graph"
)

func TestMessageFramingRoundTrip(t *testing.T) {
	args := common.Values{
		common.I(-7),
		common.R(3.25),
		common.S("héllo"),
		common.B(true),
		common.Buf([]byte{0, 1, 2}),
		common.Seq(common.Values{common.I(1), common.S("nested")}),
	}
	frame := EncodeMessage("cam1", "position", args)
	dest, attr, decoded, err := DecodeMessage(frame)
	require.NoError(t, err)
	assert.Equal(t, "cam1", dest)
	assert.Equal(t, "position", attr)
	require.Len(t, decoded, len(args))
	assert.True(t, decoded.Equal(args))
	// Declared type tags survive the wire.
	assert.Equal(t, common.ValueBuffer, decoded[4].Type())
	assert.Equal(t, common.ValueValues, decoded[5].Type())
}

func TestMessageFramingRejectsCorruption(t *testing.T) {
	frame := EncodeMessage("a", "b", common.Values{common.I(1)})
	_, _, _, err := DecodeMessage(frame[:len(frame)-3])
	assert.ErrorIs(t, err, ErrMalformedFrame)

	_, _, _, err = DecodeMessage(append(frame, 0xff))
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestBufferFramingRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	s := &graph.Serialized{
		Name:      "img1",
		Timestamp: 123456789,
		Data:      common.ResizableArrayFrom(payload),
	}
	decoded, err := DecodeBuffer(EncodeBuffer(s))
	require.NoError(t, err)
	assert.Equal(t, "img1", decoded.Name)
	assert.Equal(t, int64(123456789), decoded.Timestamp)
	assert.Equal(t, payload, decoded.Data.Data())
}

func TestInprocMessageDelivery(t *testing.T) {
	var mu sync.Mutex
	var got []string

	receiver, err := NewLink("recv_msg", func(dest, attr string, args common.Values) {
		mu.Lock()
		got = append(got, dest+"/"+attr)
		mu.Unlock()
	}, nil, zerolog.Nop())
	require.NoError(t, err)
	defer receiver.Close()

	sender, err := NewLink("send_msg", nil, nil, zerolog.Nop())
	require.NoError(t, err)
	defer sender.Close()

	require.NoError(t, sender.ConnectTo("recv_msg", "inproc://recv_msg"))
	require.NoError(t, sender.SendMessage("recv_msg", "cam1", "fov", common.Values{common.R(50.0)}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == "cam1/fov"
	}, time.Second, 5*time.Millisecond)
}

func TestBufferBackpressureOverflow(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var received []int64

	receiver, err := NewLink("recv_buf", nil, func(s *graph.Serialized) {
		mu.Lock()
		received = append(received, s.Timestamp)
		mu.Unlock()
		<-release // hold the input loop so the channel fills
	}, zerolog.Nop())
	require.NoError(t, err)
	defer receiver.Close()

	sender, err := NewLink("send_buf", nil, nil, zerolog.Nop())
	require.NoError(t, err)
	defer sender.Close()
	require.NoError(t, sender.ConnectTo("recv_buf", "inproc://recv_buf"))

	makeBuf := func(ts int64) *graph.Serialized {
		return &graph.Serialized{
			Name:      "img1",
			Timestamp: ts,
			Data:      common.ResizableArrayFrom([]byte{1, 2, 3}),
		}
	}

	// One frame is pulled by the (blocked) handler, BufferHWM fill the
	// queue; the surplus must time out with ErrLinkOverflow within the
	// backpressure deadline.
	overflows := 0
	start := time.Now()
	for i := 0; i < BufferHWM+4; i++ {
		if err := sender.SendBuffer("recv_buf", makeBuf(int64(i+1))); err != nil {
			require.True(t, errors.Is(err, ErrLinkOverflow))
			overflows++
		}
	}
	assert.Greater(t, overflows, 0)
	assert.Less(t, time.Since(start), time.Duration(BufferHWM+5)*BufferSendTimeout+time.Second)

	// Releasing the handler drains the queued frames, in order.
	close(release)
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, int64(1), received[0])
	assert.Equal(t, int64(2), received[1])
	mu.Unlock()
}

func TestEmptyBufferSendIsNoOp(t *testing.T) {
	sender, err := NewLink("send_empty", nil, nil, zerolog.Nop())
	require.NoError(t, err)
	defer sender.Close()

	empty := &graph.Serialized{Name: "x", Data: common.NewResizableArray[byte](0)}
	assert.NoError(t, sender.SendBuffer("anyone", empty))
	assert.NoError(t, sender.SendBuffer("anyone", nil))
}

func TestTransportMismatchRejected(t *testing.T) {
	receiver, err := NewLink("recv_mix", nil, nil, zerolog.Nop())
	require.NoError(t, err)
	defer receiver.Close()

	sender, err := NewLink("send_mix", nil, nil, zerolog.Nop())
	require.NoError(t, err)
	defer sender.Close()

	require.NoError(t, sender.ConnectTo("recv_mix", "inproc://recv_mix"))
	err = sender.ConnectTo("recv_mix", "ipc:///tmp/splash-test-recv_mix")
	assert.ErrorIs(t, err, ErrTransportMismatch)
}

func TestParseURI(t *testing.T) {
	scheme, addr, err := ParseURI("inproc://scene1")
	require.NoError(t, err)
	assert.Equal(t, "inproc", scheme)
	assert.Equal(t, "scene1", addr)

	_, _, err = ParseURI("tcp://somewhere")
	assert.Error(t, err)
	_, _, err = ParseURI("garbage")
	assert.Error(t, err)
}
