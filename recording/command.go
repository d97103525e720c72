package recording

import (
	"bytes"
	"encoding/binary"

	"github.com/gogpu/gg2d/device"
)

// CommandType identifies the type of a recorded command.
type CommandType uint8

const (
	CmdSetViewport     CommandType = iota // Set client coordinate space
	CmdSetPipeline                        // Activate a pipeline
	CmdSetVertexBuffer                    // Bind a vertex buffer
	CmdSetTexture                         // Bind a texture
	CmdDraw                               // Draw primitives
	CmdCommit                             // Submit the stream
)

// commandTypeNames maps CommandType values to their string representation.
var commandTypeNames = [...]string{
	CmdSetViewport:     "SetViewport",
	CmdSetPipeline:     "SetPipeline",
	CmdSetVertexBuffer: "SetVertexBuffer",
	CmdSetTexture:      "SetTexture",
	CmdDraw:            "Draw",
	CmdCommit:          "Commit",
}

// String returns the string representation of a CommandType.
func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// Command is implemented by every recorded command.
type Command interface {
	// Type returns the CommandType for this command.
	Type() CommandType
}

// SetViewportCommand records CommandStream.SetViewport.
type SetViewportCommand struct {
	Width, Height float32
}

// Type implements Command.
func (SetViewportCommand) Type() CommandType { return CmdSetViewport }

// SetPipelineCommand records CommandStream.SetPipeline.
type SetPipelineCommand struct {
	Pipeline device.Pipeline
}

// Type implements Command.
func (SetPipelineCommand) Type() CommandType { return CmdSetPipeline }

// SetVertexBufferCommand records CommandStream.SetVertexBuffer.
type SetVertexBufferCommand struct {
	// Buffer is the bound buffer's label.
	Buffer string
	// Length is the number of valid bytes.
	Length int
	// Data is a copy of the valid bytes at bind time.
	Data []byte
}

// Type implements Command.
func (SetVertexBufferCommand) Type() CommandType { return CmdSetVertexBuffer }

// ColorVertices decodes Data as flat-pipeline vertices.
func (c SetVertexBufferCommand) ColorVertices() []device.ColorVertex {
	return decode[device.ColorVertex](c.Data, device.ColorVertexStride)
}

// TexturedVertices decodes Data as textured-pipeline vertices.
func (c SetVertexBufferCommand) TexturedVertices() []device.TexturedVertex {
	return decode[device.TexturedVertex](c.Data, device.TexturedVertexStride)
}

func decode[V any](data []byte, stride int) []V {
	out := make([]V, len(data)/stride)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, out); err != nil {
		return nil
	}
	return out
}

// SetTextureCommand records CommandStream.SetTexture.
type SetTextureCommand struct {
	// Texture is the bound texture's label.
	Texture string
}

// Type implements Command.
func (SetTextureCommand) Type() CommandType { return CmdSetTexture }

// DrawCommand records CommandStream.DrawPrimitives.
type DrawCommand struct {
	Kind  device.Primitive
	Start int
	Count int
}

// Type implements Command.
func (DrawCommand) Type() CommandType { return CmdDraw }

// CommitCommand records CommandStream.Commit.
type CommitCommand struct{}

// Type implements Command.
func (CommitCommand) Type() CommandType { return CmdCommit }
