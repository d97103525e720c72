package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gg2d/device"
)

// viewportUniformSize is the byte size of the Viewport uniform: vec2 size
// padded to 16 bytes.
const viewportUniformSize = 16

// pipelineSet owns the render pipelines shared by every frame.
type pipelineSet struct {
	dev hal.Device

	flatShader     hal.ShaderModule
	texturedShader hal.ShaderModule

	flatLayout     hal.BindGroupLayout
	texturedLayout hal.BindGroupLayout

	flatPipeLayout     hal.PipelineLayout
	texturedPipeLayout hal.PipelineLayout

	// flat is indexed by device.Primitive.
	flat     [3]hal.RenderPipeline
	textured hal.RenderPipeline

	sampler hal.Sampler
}

func newPipelineSet(dev hal.Device, format gputypes.TextureFormat, spirv bool) (*pipelineSet, error) {
	ps := &pipelineSet{dev: dev}
	if err := ps.create(format, spirv); err != nil {
		ps.destroy()
		return nil, err
	}
	return ps, nil
}

func (ps *pipelineSet) create(format gputypes.TextureFormat, spirv bool) error {
	var err error
	if ps.flatShader, err = createShader(ps.dev, "gg2d_flat_shader", flatShaderSource, spirv); err != nil {
		return fmt.Errorf("compile flat shader: %w", err)
	}
	if ps.texturedShader, err = createShader(ps.dev, "gg2d_textured_shader", texturedShaderSource, spirv); err != nil {
		return fmt.Errorf("compile textured shader: %w", err)
	}

	viewportEntry := gputypes.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: gputypes.ShaderStageVertex,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
	ps.flatLayout, err = ps.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "gg2d_flat_layout",
		Entries: []gputypes.BindGroupLayoutEntry{viewportEntry},
	})
	if err != nil {
		return fmt.Errorf("create flat bind group layout: %w", err)
	}

	// Binding 0: viewport uniform, 1: texture, 2: sampler.
	ps.texturedLayout, err = ps.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "gg2d_textured_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			viewportEntry,
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    2,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create textured bind group layout: %w", err)
	}

	ps.flatPipeLayout, err = ps.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "gg2d_flat_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{ps.flatLayout},
	})
	if err != nil {
		return fmt.Errorf("create flat pipeline layout: %w", err)
	}
	ps.texturedPipeLayout, err = ps.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "gg2d_textured_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{ps.texturedLayout},
	})
	if err != nil {
		return fmt.Errorf("create textured pipeline layout: %w", err)
	}

	ps.sampler, err = ps.dev.CreateSampler(&hal.SamplerDescriptor{
		Label:        "gg2d_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return fmt.Errorf("create sampler: %w", err)
	}

	topologies := [...]gputypes.PrimitiveTopology{
		device.PrimitivePoint:    gputypes.PrimitiveTopologyPointList,
		device.PrimitiveLine:     gputypes.PrimitiveTopologyLineList,
		device.PrimitiveTriangle: gputypes.PrimitiveTopologyTriangleList,
	}
	for kind, topology := range topologies {
		label := fmt.Sprintf("gg2d_flat_%s_pipeline", device.Primitive(kind))
		ps.flat[kind], err = ps.renderPipeline(label, ps.flatPipeLayout, ps.flatShader, flatVertexLayout(), topology, format)
		if err != nil {
			return err
		}
	}
	ps.textured, err = ps.renderPipeline("gg2d_textured_pipeline", ps.texturedPipeLayout, ps.texturedShader,
		texturedVertexLayout(), gputypes.PrimitiveTopologyTriangleList, format)
	return err
}

func (ps *pipelineSet) renderPipeline(
	label string,
	layout hal.PipelineLayout,
	shader hal.ShaderModule,
	buffers []gputypes.VertexBufferLayout,
	topology gputypes.PrimitiveTopology,
	format gputypes.TextureFormat,
) (hal.RenderPipeline, error) {
	premulBlend := gputypes.BlendStatePremultiplied()
	pipeline, err := ps.dev.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
			Buffers:    buffers,
		},
		Fragment: &hal.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    format,
					Blend:     &premulBlend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: topology,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	return pipeline, nil
}

// forDraw returns the hal pipeline for a draw of kind under the logical
// pipeline p.
func (ps *pipelineSet) forDraw(p device.Pipeline, kind device.Primitive) hal.RenderPipeline {
	if p == device.PipelineTextured {
		return ps.textured
	}
	return ps.flat[kind]
}

// destroy releases all pipeline resources in reverse creation order.
func (ps *pipelineSet) destroy() {
	if ps.textured != nil {
		ps.dev.DestroyRenderPipeline(ps.textured)
		ps.textured = nil
	}
	for i, p := range ps.flat {
		if p != nil {
			ps.dev.DestroyRenderPipeline(p)
			ps.flat[i] = nil
		}
	}
	if ps.sampler != nil {
		ps.dev.DestroySampler(ps.sampler)
		ps.sampler = nil
	}
	if ps.texturedPipeLayout != nil {
		ps.dev.DestroyPipelineLayout(ps.texturedPipeLayout)
		ps.texturedPipeLayout = nil
	}
	if ps.flatPipeLayout != nil {
		ps.dev.DestroyPipelineLayout(ps.flatPipeLayout)
		ps.flatPipeLayout = nil
	}
	if ps.texturedLayout != nil {
		ps.dev.DestroyBindGroupLayout(ps.texturedLayout)
		ps.texturedLayout = nil
	}
	if ps.flatLayout != nil {
		ps.dev.DestroyBindGroupLayout(ps.flatLayout)
		ps.flatLayout = nil
	}
	if ps.texturedShader != nil {
		ps.dev.DestroyShaderModule(ps.texturedShader)
		ps.texturedShader = nil
	}
	if ps.flatShader != nil {
		ps.dev.DestroyShaderModule(ps.flatShader)
		ps.flatShader = nil
	}
}

// flatVertexLayout describes device.ColorVertex.
func flatVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: device.ColorVertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0}, // position
				{Format: gputypes.VertexFormatFloat32x4, Offset: 8, ShaderLocation: 1}, // color
			},
		},
	}
}

// texturedVertexLayout describes device.TexturedVertex.
func texturedVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: device.TexturedVertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0}, // position
				{Format: gputypes.VertexFormatFloat32x2, Offset: 8, ShaderLocation: 1}, // uv
			},
		},
	}
}
