package camera

import (
	"github.com/splashmapping/splash/common"
)

// registerAttributes wires the pose, intrinsics and color-calibration
// slots. The color attributes are written back by the calibrator at the
// end of a successful run.
func (c *Camera) registerAttributes() {
	c.AddAttribute("eye", "nnn", func(args common.Values) bool {
		for i := 0; i < 3; i++ {
			c.eye[i] = float32(args[i].AsFloat())
		}
		return true
	}, func() common.Values {
		return common.Values{common.R(c.eye[0]), common.R(c.eye[1]), common.R(c.eye[2])}
	}).Doc("Position of the camera")

	c.AddAttribute("target", "nnn", func(args common.Values) bool {
		for i := 0; i < 3; i++ {
			c.target[i] = float32(args[i].AsFloat())
		}
		return true
	}, func() common.Values {
		return common.Values{common.R(c.target[0]), common.R(c.target[1]), common.R(c.target[2])}
	}).Doc("Point the camera is directed at")

	c.AddAttribute("up", "nnn", func(args common.Values) bool {
		for i := 0; i < 3; i++ {
			c.up[i] = float32(args[i].AsFloat())
		}
		return true
	}, func() common.Values {
		return common.Values{common.R(c.up[0]), common.R(c.up[1]), common.R(c.up[2])}
	}).Doc("Up vector of the camera")

	c.AddAttribute("fov", "n", func(args common.Values) bool {
		v := float32(args[0].AsFloat())
		if v <= 0 {
			return false
		}
		c.fov = v * 3.14159265 / 180.0
		return true
	}, func() common.Values {
		return common.Values{common.R(c.fov * 180.0 / 3.14159265)}
	}).Doc("Vertical field of view, in degrees")

	c.AddAttribute("size", "nn", func(args common.Values) bool {
		w, h := int32(args[0].AsInt()), int32(args[1].AsInt())
		if w <= 0 || h <= 0 {
			return false
		}
		c.size = [2]int32{w, h}
		return true
	}, func() common.Values {
		return common.Values{common.I(c.size[0]), common.I(c.size[1])}
	}).Doc("Render size of the camera, in pixels")

	c.AddAttribute("near", "n", func(args common.Values) bool {
		c.near = float32(args[0].AsFloat())
		return true
	}, func() common.Values {
		return common.Values{common.R(c.near)}
	}).Doc("Near clipping plane")

	c.AddAttribute("far", "n", func(args common.Values) bool {
		c.far = float32(args[0].AsFloat())
		return true
	}, func() common.Values {
		return common.Values{common.R(c.far)}
	}).Doc("Far clipping plane")

	c.AddAttribute("hide", "n", func(args common.Values) bool {
		c.hide = args[0].AsBool()
		return true
	}, func() common.Values {
		return common.Values{common.B(c.hide)}
	}).Doc("Hide the objects seen by this camera").NotSavable()

	c.AddAttribute("flashBG", "n", func(args common.Values) bool {
		c.flashBG = args[0].AsBool()
		return true
	}, func() common.Values {
		return common.Values{common.B(c.flashBG)}
	}).Doc("Flash the camera background to white").NotSavable()

	c.AddAttribute("clearColor", "nnnn", func(args common.Values) bool {
		for i := 0; i < 4; i++ {
			c.clearColor[i] = float32(args[i].AsFloat())
		}
		return true
	}, func() common.Values {
		return common.Values{common.R(c.clearColor[0]), common.R(c.clearColor[1]),
			common.R(c.clearColor[2]), common.R(c.clearColor[3])}
	}).Doc("Clear color of the camera framebuffer").NotSavable()

	c.AddAttribute("brightness", "n", func(args common.Values) bool {
		c.brightness = float32(args[0].AsFloat())
		return true
	}, func() common.Values {
		return common.Values{common.R(c.brightness)}
	}).Doc("Output brightness of the camera")

	c.AddAttribute("colorTemperature", "n", func(args common.Values) bool {
		c.colorTemperature = float32(args[0].AsFloat())
		return true
	}, func() common.Values {
		return common.Values{common.R(c.colorTemperature)}
	}).Doc("Output color temperature, in kelvin")

	c.AddAttribute("activateColorLUT", "n", func(args common.Values) bool {
		c.activateColorLUT = args[0].AsBool()
		return true
	}, func() common.Values {
		return common.Values{common.B(c.activateColorLUT)}
	}).Doc("Apply the color lookup table computed by the calibration")

	c.AddAttribute("colorLUTSize", "n", func(args common.Values) bool {
		v := int32(args[0].AsInt())
		if v <= 0 {
			return false
		}
		c.colorLUTSize = v
		return true
	}, func() common.Values {
		return common.Values{common.I(c.colorLUTSize)}
	}).Doc("Number of entries per channel in the color lookup table")

	c.AddAttribute("colorLUT", "", func(args common.Values) bool {
		if c.colorLUTSize > 0 && len(args) != int(c.colorLUTSize)*3 {
			return false
		}
		lut := make([]float32, len(args))
		for i, v := range args {
			lut[i] = float32(v.AsFloat())
		}
		c.colorLUT = lut
		return true
	}, func() common.Values {
		out := make(common.Values, len(c.colorLUT))
		for i, v := range c.colorLUT {
			out[i] = common.R(v)
		}
		return out
	}).Doc("Color lookup table, R then G then B entries")

	c.AddAttribute("colorMixMatrix", "", func(args common.Values) bool {
		if len(args) != 9 {
			return false
		}
		m := make([]float32, 9)
		for i, v := range args {
			m[i] = float32(v.AsFloat())
		}
		c.colorMixMatrix = m
		return true
	}, func() common.Values {
		out := make(common.Values, len(c.colorMixMatrix))
		for i, v := range c.colorMixMatrix {
			out[i] = common.R(v)
		}
		return out
	}).Doc("3x3 color mixing matrix, column-major")

	c.AddAttribute("whitePoint", "nnn", func(args common.Values) bool {
		for i := 0; i < 3; i++ {
			c.whitePoint[i] = float32(args[i].AsFloat())
		}
		return true
	}, func() common.Values {
		return common.Values{common.R(c.whitePoint[0]), common.R(c.whitePoint[1]), common.R(c.whitePoint[2])}
	}).Doc("Measured RGB white point of the projector")

	c.AddAttribute("colorSamples", "n", func(args common.Values) bool {
		c.colorSamples = args[0].AsInt()
		return true
	}, func() common.Values {
		return common.Values{common.I(c.colorSamples)}
	}).Doc("Number of samples taken along each response curve")

	c.AddAttribute("colorCurves", "", func(args common.Values) bool {
		c.colorCurves = args.Clone()
		return true
	}, func() common.Values {
		return c.colorCurves
	}).Doc("Sampled per-channel response curves of the projector")
}
