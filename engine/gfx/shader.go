package gfx

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.5-core/gl"
)

// Shader wraps one linked GL program with a uniform-location cache.
type Shader struct {
	program  uint32
	uniforms map[string]int32
	valid    bool
}

// NewShader compiles and links a vertex+fragment program.
func NewShader(vertexSrc, fragmentSrc string) (*Shader, error) {
	s := &Shader{uniforms: make(map[string]int32)}

	vert, err := compile(gl.VERTEX_SHADER, vertexSrc)
	if err != nil {
		return nil, err
	}
	frag, err := compile(gl.FRAGMENT_SHADER, fragmentSrc)
	if err != nil {
		gl.DeleteShader(vert)
		return nil, err
	}

	s.program = gl.CreateProgram()
	gl.AttachShader(s.program, vert)
	gl.AttachShader(s.program, frag)
	gl.LinkProgram(s.program)
	gl.DeleteShader(vert)
	gl.DeleteShader(frag)

	var status int32
	gl.GetProgramiv(s.program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		defer gl.DeleteProgram(s.program)
		return nil, fmt.Errorf("%w: program link failed: %s", ErrResource, programLog(s.program))
	}
	s.valid = true
	return s, nil
}

func compile(kind uint32, src string) (uint32, error) {
	shader := gl.CreateShader(kind)
	csources, free := gl.Strs(src + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("%w: shader compile failed: %s", ErrResource, log)
	}
	return shader, nil
}

func programLog(program uint32) string {
	var logLength int32
	gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
	log := strings.Repeat("\x00", int(logLength+1))
	gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
	return log
}

// Valid reports whether the program linked.
func (s *Shader) Valid() bool { return s.valid }

// Activate binds the program.
func (s *Shader) Activate() { gl.UseProgram(s.program) }

// Deactivate unbinds any program.
func (s *Shader) Deactivate() { gl.UseProgram(0) }

func (s *Shader) location(name string) int32 {
	if loc, ok := s.uniforms[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(s.program, gl.Str(name+"\x00"))
	s.uniforms[name] = loc
	return loc
}

// SetInt sets an integer uniform.
func (s *Shader) SetInt(name string, v int32) { gl.Uniform1i(s.location(name), v) }

// SetFloat sets a float uniform.
func (s *Shader) SetFloat(name string, v float32) { gl.Uniform1f(s.location(name), v) }

// SetVec3 sets a vec3 uniform.
func (s *Shader) SetVec3(name string, x, y, z float32) { gl.Uniform3f(s.location(name), x, y, z) }

// SetVec4 sets a vec4 uniform.
func (s *Shader) SetVec4(name string, x, y, z, w float32) {
	gl.Uniform4f(s.location(name), x, y, z, w)
}

// SetIVec4 sets an ivec4 uniform.
func (s *Shader) SetIVec4(name string, x, y, z, w int32) {
	gl.Uniform4i(s.location(name), x, y, z, w)
}

// SetMat3 sets a 3x3 matrix uniform from a column-major slice.
func (s *Shader) SetMat3(name string, m []float32) {
	gl.UniformMatrix3fv(s.location(name), 1, false, &m[0])
}

// SetMat4 sets a 4x4 matrix uniform from a column-major slice.
func (s *Shader) SetMat4(name string, m []float32) {
	gl.UniformMatrix4fv(s.location(name), 1, false, &m[0])
}

// SetFloatArray sets a float array uniform, for color LUTs.
func (s *Shader) SetFloatArray(name string, vals []float32) {
	if len(vals) == 0 {
		return
	}
	gl.Uniform1fv(s.location(name), int32(len(vals)), &vals[0])
}

// Destroy releases the program.
func (s *Shader) Destroy() {
	if s.program != 0 {
		gl.DeleteProgram(s.program)
		s.program = 0
		s.valid = false
	}
}
