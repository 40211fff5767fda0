package gfx

// GLSL sources for the built-in programs. Vertex layout is shared across
// all geometry: location 0 position (vec4), 1 texture coordinates (vec2),
// 2 normal (vec4), 3 annexe (vec4, x = blending accumulator).

// VertexSourceObject transforms geometry and forwards the blending annexe.
const VertexSourceObject = `#version 450 core

layout(location = 0) in vec4 _vertex;
layout(location = 1) in vec2 _texcoord;
layout(location = 2) in vec4 _normal;
layout(location = 3) in vec4 _annexe;

uniform mat4 _modelViewProjectionMatrix;
uniform mat4 _normalMatrix;

out VertexData
{
    vec4 position;
    vec2 texCoord;
    vec4 normal;
    vec4 annexe;
} vertexOut;

void main()
{
    vertexOut.position = _modelViewProjectionMatrix * vec4(_vertex.xyz, 1.0);
    vertexOut.texCoord = _texcoord;
    vertexOut.normal = _normalMatrix * vec4(_normal.xyz, 0.0);
    vertexOut.annexe = _annexe;
    gl_Position = vertexOut.position;
}
`

// FragmentSourceObject samples the object texture, applies vertex blending
// and the per-projector color correction chain.
const FragmentSourceObject = `#version 450 core

in VertexData
{
    vec4 position;
    vec2 texCoord;
    vec4 normal;
    vec4 annexe;
} vertexIn;

uniform sampler2D _tex0;
uniform int _textureCount;
uniform int _texYCbCr;
uniform int _activateVertexBlending;
uniform float _blackLevel;
uniform float _brightness;
uniform vec3 _colorBalance;
uniform int _activateColorLUT;
uniform int _colorLUTSize;
uniform float _colorLUT[768];
uniform mat3 _colorMixMatrix;

layout(location = 0) out vec4 fragColor;

vec3 yCbCrToRgb(vec2 raw, vec2 uv)
{
    // Interleaved YUYV: luma in x, chroma shared by pixel pairs in y.
    float y = raw.x;
    float cbcr = raw.y;
    float cb = mix(cbcr, 0.5, step(0.5, fract(uv.x * 0.5)));
    float cr = mix(0.5, cbcr, step(0.5, fract(uv.x * 0.5)));
    vec3 rgb;
    rgb.r = y + 1.402 * (cr - 0.5);
    rgb.g = y - 0.344 * (cb - 0.5) - 0.714 * (cr - 0.5);
    rgb.b = y + 1.772 * (cb - 0.5);
    return rgb;
}

void main()
{
    vec4 color = vec4(0.0, 0.0, 0.0, 1.0);
    if (_textureCount > 0)
    {
        vec4 raw = texture(_tex0, vertexIn.texCoord);
        if (_texYCbCr != 0)
            color = vec4(yCbCrToRgb(raw.rg, vertexIn.texCoord), 1.0);
        else
            color = raw;
    }

    if (_activateVertexBlending != 0 && vertexIn.annexe.x > 0.0)
        color.rgb = color.rgb / vertexIn.annexe.x;

    if (_activateColorLUT != 0 && _colorLUTSize > 0)
    {
        int last = _colorLUTSize - 1;
        int r = clamp(int(color.r * float(last)), 0, last);
        int g = clamp(int(color.g * float(last)), 0, last);
        int b = clamp(int(color.b * float(last)), 0, last);
        color.r = _colorLUT[r];
        color.g = _colorLUT[_colorLUTSize + g];
        color.b = _colorLUT[_colorLUTSize * 2 + b];
        color.rgb = _colorMixMatrix * color.rgb;
    }

    color.rgb = color.rgb * _colorBalance * _brightness;
    color.rgb = max(color.rgb, vec3(_blackLevel));
    fragColor = color;
}
`

// VertexSourceQuad is the shared fullscreen-quad vertex stage for windows,
// warps and filters.
const VertexSourceQuad = `#version 450 core

layout(location = 0) in vec4 _vertex;
layout(location = 1) in vec2 _texcoord;

out vec2 texCoord;

void main()
{
    texCoord = _texcoord;
    gl_Position = vec4(_vertex.xy, 0.0, 1.0);
}
`

// FragmentSourceWindow composites up to four input textures into the swap
// chain following the window layout, with the swap-test override color.
const FragmentSourceWindow = `#version 450 core

in vec2 texCoord;

uniform sampler2D _tex0;
uniform sampler2D _tex1;
uniform sampler2D _tex2;
uniform sampler2D _tex3;
uniform int _textureCount;
uniform ivec4 _layout;
uniform int _swapTest;
uniform vec4 _swapTestColor;
uniform float _gamma;

layout(location = 0) out vec4 fragColor;

vec4 sampleLayer(int index, vec2 uv)
{
    if (index == 1) return texture(_tex1, uv);
    if (index == 2) return texture(_tex2, uv);
    if (index == 3) return texture(_tex3, uv);
    return texture(_tex0, uv);
}

void main()
{
    if (_swapTest != 0)
    {
        fragColor = _swapTestColor;
        return;
    }

    int count = max(_textureCount, 1);
    float width = 1.0 / float(count);
    int slot = clamp(int(texCoord.x / width), 0, count - 1);
    vec2 uv = vec2(texCoord.x / width - float(slot), texCoord.y);
    if (count == 1)
        uv = texCoord;
    fragColor = sampleLayer(_layout[slot], uv);
    fragColor.rgb = pow(fragColor.rgb, vec3(1.0 / _gamma));
}
`

// FragmentSourceWarp samples the camera output through the deformed
// lattice coordinates computed on the CPU and baked into the patch mesh
// UVs.
const FragmentSourceWarp = `#version 450 core

in vec2 texCoord;

uniform sampler2D _tex0;
uniform int _showControlLattice;

layout(location = 0) out vec4 fragColor;

void main()
{
    fragColor = texture(_tex0, texCoord);
    if (_showControlLattice != 0)
        fragColor.rgb = mix(fragColor.rgb, vec3(1.0, 0.0, 0.0), 0.3);
}
`

// FragmentSourceFilter is the default passthrough filter with the basic
// color controls exposed by the filter object.
const FragmentSourceFilter = `#version 450 core

in vec2 texCoord;

uniform sampler2D _tex0;
uniform float _brightness;
uniform float _contrast;
uniform float _saturation;
uniform float _invertChannels;

layout(location = 0) out vec4 fragColor;

void main()
{
    vec4 color = texture(_tex0, texCoord);
    color.rgb = (color.rgb - 0.5) * _contrast + 0.5;
    float luma = dot(color.rgb, vec3(0.299, 0.587, 0.114));
    color.rgb = mix(vec3(luma), color.rgb, _saturation);
    color.rgb = color.rgb * _brightness;
    if (_invertChannels > 0.5)
        color.rgb = color.bgr;
    fragColor = color;
}
`
