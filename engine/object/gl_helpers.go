package object

import (
	"strconv"

	"github.com/go-gl/gl/v4.5-core/gl"
)

func bindTexture(unit, id uint32) {
	gl.ActiveTexture(gl.TEXTURE0 + unit)
	gl.BindTexture(gl.TEXTURE_2D, id)
}

func texUniformName(i int) string {
	return "_tex" + strconv.Itoa(i)
}
