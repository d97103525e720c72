package native

import (
	_ "embed"
	"encoding/binary"
	"fmt"

	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/flat.wgsl
var flatShaderSource string

//go:embed shaders/textured.wgsl
var texturedShaderSource string

// shaderSource validates wgsl with naga and returns the module source to hand
// to the device. When spirv is set the naga output is used instead of WGSL.
func shaderSource(wgsl string, spirv bool) (hal.ShaderSource, error) {
	if wgsl == "" {
		return hal.ShaderSource{}, fmt.Errorf("%w: empty source", ErrShader)
	}
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return hal.ShaderSource{}, fmt.Errorf("%w: %w", ErrShader, err)
	}
	if !spirv {
		return hal.ShaderSource{WGSL: wgsl}, nil
	}
	return hal.ShaderSource{SPIRV: spirvWords(spirvBytes)}, nil
}

// spirvWords reinterprets little-endian SPIR-V bytes as 32-bit words.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

// createShader compiles wgsl into a shader module.
func createShader(dev hal.Device, label, wgsl string, spirv bool) (hal.ShaderModule, error) {
	src, err := shaderSource(wgsl, spirv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	return dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: src,
	})
}
