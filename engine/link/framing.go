package link

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/graph"
)

// ErrMalformedFrame is returned when a frame cannot be decoded. The Link
// drops such a frame with a warning and keeps the connection; the stream
// is never resynchronized by scanning, and no connection is reopened.
var ErrMalformedFrame = errors.New("link: malformed frame")

// Value kind tags on the wire.
const (
	tagInteger = byte('i')
	tagReal    = byte('r')
	tagString  = byte('s')
	tagBoolean = byte('b')
	tagBuffer  = byte('B')
	tagValues  = byte('v')
)

// appendString appends a length-prefixed UTF-8 string.
func appendString(frame []byte, s string) []byte {
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(s)))
	return append(frame, s...)
}

func readString(frame []byte) (string, []byte, error) {
	if len(frame) < 4 {
		return "", nil, ErrMalformedFrame
	}
	n := binary.LittleEndian.Uint32(frame)
	frame = frame[4:]
	if uint32(len(frame)) < n {
		return "", nil, ErrMalformedFrame
	}
	return string(frame[:n]), frame[n:], nil
}

func appendValue(frame []byte, v common.Value) []byte {
	switch v.Type() {
	case common.ValueInteger:
		frame = append(frame, tagInteger)
		frame = binary.LittleEndian.AppendUint64(frame, uint64(v.AsInt()))
	case common.ValueReal:
		frame = append(frame, tagReal)
		frame = binary.LittleEndian.AppendUint64(frame, math.Float64bits(v.AsFloat()))
	case common.ValueString:
		frame = append(frame, tagString)
		frame = appendString(frame, v.AsString())
	case common.ValueBoolean:
		frame = append(frame, tagBoolean)
		if v.AsBool() {
			frame = append(frame, 1)
		} else {
			frame = append(frame, 0)
		}
	case common.ValueBuffer:
		frame = append(frame, tagBuffer)
		buf := v.AsBuffer()
		frame = binary.LittleEndian.AppendUint32(frame, uint32(len(buf)))
		frame = append(frame, buf...)
	case common.ValueValues:
		frame = append(frame, tagValues)
		seq := v.AsValues()
		frame = binary.LittleEndian.AppendUint32(frame, uint32(len(seq)))
		for _, sub := range seq {
			frame = appendValue(frame, sub)
		}
	}
	return frame
}

func readValue(frame []byte) (common.Value, []byte, error) {
	if len(frame) < 1 {
		return common.Value{}, nil, ErrMalformedFrame
	}
	tag := frame[0]
	frame = frame[1:]
	switch tag {
	case tagInteger:
		if len(frame) < 8 {
			return common.Value{}, nil, ErrMalformedFrame
		}
		v := common.I(int64(binary.LittleEndian.Uint64(frame)))
		return v, frame[8:], nil
	case tagReal:
		if len(frame) < 8 {
			return common.Value{}, nil, ErrMalformedFrame
		}
		v := common.R(math.Float64frombits(binary.LittleEndian.Uint64(frame)))
		return v, frame[8:], nil
	case tagString:
		s, rest, err := readString(frame)
		if err != nil {
			return common.Value{}, nil, err
		}
		return common.S(s), rest, nil
	case tagBoolean:
		if len(frame) < 1 {
			return common.Value{}, nil, ErrMalformedFrame
		}
		return common.B(frame[0] != 0), frame[1:], nil
	case tagBuffer:
		if len(frame) < 4 {
			return common.Value{}, nil, ErrMalformedFrame
		}
		n := binary.LittleEndian.Uint32(frame)
		frame = frame[4:]
		if uint32(len(frame)) < n {
			return common.Value{}, nil, ErrMalformedFrame
		}
		buf := make([]byte, n)
		copy(buf, frame[:n])
		return common.Buf(buf), frame[n:], nil
	case tagValues:
		if len(frame) < 4 {
			return common.Value{}, nil, ErrMalformedFrame
		}
		count := binary.LittleEndian.Uint32(frame)
		frame = frame[4:]
		seq := make(common.Values, 0, count)
		for i := uint32(0); i < count; i++ {
			var sub common.Value
			var err error
			sub, frame, err = readValue(frame)
			if err != nil {
				return common.Value{}, nil, err
			}
			seq = append(seq, sub)
		}
		return common.Seq(seq), frame, nil
	default:
		return common.Value{}, nil, ErrMalformedFrame
	}
}

// EncodeMessage frames an attribute-set message: destination name,
// attribute name, arity, then tagged arguments.
func EncodeMessage(dest, attr string, args common.Values) []byte {
	frame := make([]byte, 0, 64)
	frame = appendString(frame, dest)
	frame = appendString(frame, attr)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(args)))
	for _, v := range args {
		frame = appendValue(frame, v)
	}
	return frame
}

// DecodeMessage parses an attribute-set frame.
func DecodeMessage(frame []byte) (dest, attr string, args common.Values, err error) {
	dest, frame, err = readString(frame)
	if err != nil {
		return "", "", nil, err
	}
	attr, frame, err = readString(frame)
	if err != nil {
		return "", "", nil, err
	}
	if len(frame) < 4 {
		return "", "", nil, ErrMalformedFrame
	}
	arity := binary.LittleEndian.Uint32(frame)
	frame = frame[4:]
	args = make(common.Values, 0, arity)
	for i := uint32(0); i < arity; i++ {
		var v common.Value
		v, frame, err = readValue(frame)
		if err != nil {
			return "", "", nil, err
		}
		args = append(args, v)
	}
	if len(frame) != 0 {
		return "", "", nil, ErrMalformedFrame
	}
	return dest, attr, args, nil
}

// EncodeBuffer frames a serialized buffer: destination name, timestamp,
// payload length, payload bytes.
func EncodeBuffer(s *graph.Serialized) []byte {
	payload := s.Data.Data()
	frame := make([]byte, 0, 16+len(s.Name)+len(payload))
	frame = appendString(frame, s.Name)
	frame = binary.LittleEndian.AppendUint64(frame, uint64(s.Timestamp))
	frame = binary.LittleEndian.AppendUint64(frame, uint64(len(payload)))
	return append(frame, payload...)
}

// DecodeBuffer parses a serialized-buffer frame.
func DecodeBuffer(frame []byte) (*graph.Serialized, error) {
	name, frame, err := readString(frame)
	if err != nil {
		return nil, err
	}
	if len(frame) < 16 {
		return nil, ErrMalformedFrame
	}
	ts := int64(binary.LittleEndian.Uint64(frame))
	length := binary.LittleEndian.Uint64(frame[8:])
	frame = frame[16:]
	if uint64(len(frame)) != length {
		return nil, ErrMalformedFrame
	}
	return &graph.Serialized{
		Name:      name,
		Timestamp: ts,
		Data:      common.ResizableArrayFrom(frame),
	}, nil
}
