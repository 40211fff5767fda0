package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueCoercion(t *testing.T) {
	v := I(42)
	assert.Equal(t, int64(42), v.AsInt())
	assert.Equal(t, 42.0, v.AsFloat())
	assert.Equal(t, "42", v.AsString())
	assert.True(t, v.AsBool())

	r := R(3.5)
	assert.Equal(t, int64(3), r.AsInt())
	assert.Equal(t, "3.5", r.AsString())

	s := S("2.25")
	assert.Equal(t, 2.25, s.AsFloat())
	assert.Equal(t, int64(2), s.AsInt())

	b := B(true)
	assert.Equal(t, int64(1), b.AsInt())
	assert.Equal(t, "true", b.AsString())
}

func TestValueTypeTagPreserved(t *testing.T) {
	assert.Equal(t, ValueInteger, I(1).Type())
	assert.Equal(t, ValueReal, R(1.0).Type())
	assert.Equal(t, ValueString, S("x").Type())
	assert.Equal(t, ValueBoolean, B(false).Type())
	assert.Equal(t, ValueBuffer, Buf([]byte{1}).Type())
	assert.Equal(t, ValueValues, Seq(Values{I(1)}).Type())
}

func TestValueEqualityAfterCoercion(t *testing.T) {
	assert.True(t, I(1).Equal(R(1.0)))
	assert.True(t, I(1).Equal(B(true)))
	assert.False(t, I(1).Equal(R(1.5)))
	assert.True(t, S("a").Equal(S("a")))
	assert.False(t, S("a").Equal(S("b")))
	assert.True(t, Buf([]byte{1, 2}).Equal(Buf([]byte{1, 2})))
}

func TestSequenceEquality(t *testing.T) {
	a := Seq(Values{I(1), S("x"), Seq(Values{R(2.0)})})
	b := Seq(Values{R(1.0), S("x"), Seq(Values{I(2)})})
	assert.True(t, a.Equal(b))

	c := Seq(Values{I(1)})
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(I(1)))
}

func TestValuesClone(t *testing.T) {
	buf := []byte{1, 2, 3}
	orig := Values{Buf(buf), Seq(Values{I(5)})}
	clone := orig.Clone()

	buf[0] = 99
	assert.Equal(t, byte(1), clone[0].AsBuffer()[0])
	assert.Equal(t, int64(5), clone[1].AsValues()[0].AsInt())
}
