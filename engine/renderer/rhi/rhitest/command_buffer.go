package rhitest

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
)

type Op int

const (
	OpBeginRenderPass Op = iota
	OpEndRenderPass
	OpSetViewport
	OpSetScissor
	OpBindPipeline
	OpBindVertexBuffer
	OpBindIndexBuffer
	OpBindDescriptorSet
	OpDrawIndexed
)

type Command struct {
	Op             Op
	Framebuffer    int
	Clear          rhi.ClearValues
	Viewport       rhi.Viewport
	DynamicOffsets []uint32
	IndexCount     uint32
	Pipeline       *Pipeline
	Buffer         *Buffer
}

type CommandBuffer struct {
	dev       *Device
	recording bool
	inFlight  *submission
	freed     bool

	Commands   []Command
	Recordings int
}

func (c *CommandBuffer) checkIdle(what string) {
	if c.inFlight != nil {
		c.dev.violate("%s of a command buffer the device is executing", what)
	}
}

func (c *CommandBuffer) Reset() error {
	c.checkIdle("reset")
	c.Commands = nil
	c.recording = false
	return nil
}

func (c *CommandBuffer) Begin() error {
	c.checkIdle("begin")
	if c.recording {
		return errors.New("command buffer already recording")
	}
	c.Commands = nil
	c.recording = true
	c.Recordings++
	return nil
}

func (c *CommandBuffer) End() error {
	if !c.recording {
		return errors.New("command buffer not recording")
	}
	c.recording = false
	return nil
}

func (c *CommandBuffer) push(cmd Command) {
	if !c.recording {
		c.dev.violate("command recorded outside Begin/End")
	}
	c.Commands = append(c.Commands, cmd)
}

func (c *CommandBuffer) BeginRenderPass(framebuffer int, clear rhi.ClearValues) {
	c.push(Command{Op: OpBeginRenderPass, Framebuffer: framebuffer, Clear: clear})
}

func (c *CommandBuffer) EndRenderPass() {
	c.push(Command{Op: OpEndRenderPass})
}

func (c *CommandBuffer) SetViewport(viewport rhi.Viewport) {
	c.push(Command{Op: OpSetViewport, Viewport: viewport})
}

func (c *CommandBuffer) SetScissor(width, height uint32) {
	c.push(Command{Op: OpSetScissor, Viewport: rhi.Viewport{Width: float32(width), Height: float32(height)}})
}

func (c *CommandBuffer) BindPipeline(pipeline rhi.Pipeline) {
	c.push(Command{Op: OpBindPipeline, Pipeline: pipeline.(*Pipeline)})
}

func (c *CommandBuffer) BindVertexBuffer(buffer rhi.DeviceBuffer) {
	c.push(Command{Op: OpBindVertexBuffer, Buffer: buffer.(*Buffer)})
}

func (c *CommandBuffer) BindIndexBuffer(buffer rhi.DeviceBuffer, indexType rhi.IndexType) {
	c.push(Command{Op: OpBindIndexBuffer, Buffer: buffer.(*Buffer)})
}

func (c *CommandBuffer) BindDescriptorSet(pipeline rhi.Pipeline, set rhi.DescriptorSet, dynamicOffsets ...uint32) {
	ds := set.(*DescriptorSet)
	if ds.destroyed {
		c.dev.violate("bind of a destroyed descriptor set")
	}
	if ds.Dynamic != (len(dynamicOffsets) == 1) {
		c.dev.violate("descriptor set bound with %d dynamic offsets", len(dynamicOffsets))
	}
	for _, off := range dynamicOffsets {
		align := c.dev.limits.MinUniformBufferOffsetAlignment
		if align > 0 && uint64(off)%align != 0 {
			c.dev.violate("dynamic offset %d not aligned to %d", off, align)
		}
		if uint64(off)+ds.Range > uint64(len(ds.Buffer.data)) {
			c.dev.violate("dynamic offset %d with range %d overruns buffer of %d bytes", off, ds.Range, len(ds.Buffer.data))
		}
	}
	offsets := append([]uint32(nil), dynamicOffsets...)
	c.push(Command{Op: OpBindDescriptorSet, Pipeline: pipeline.(*Pipeline), Buffer: ds.Buffer, DynamicOffsets: offsets})
}

func (c *CommandBuffer) DrawIndexed(indexCount uint32) {
	c.push(Command{Op: OpDrawIndexed, IndexCount: indexCount})
}

func (c *CommandBuffer) Free() {
	if c.freed {
		c.dev.violate("command buffer freed twice")
		return
	}
	c.checkIdle("free")
	c.freed = true
	c.dev.live.CommandBuffers--
}

// DynamicOffsets lists the offsets of every descriptor set bind, in order.
func (c *CommandBuffer) DynamicOffsets() []uint32 {
	var out []uint32
	for _, cmd := range c.Commands {
		if cmd.Op == OpBindDescriptorSet {
			out = append(out, cmd.DynamicOffsets...)
		}
	}
	return out
}

// Count returns how many commands of the given kind were recorded.
func (c *CommandBuffer) Count(op Op) int {
	n := 0
	for _, cmd := range c.Commands {
		if cmd.Op == op {
			n++
		}
	}
	return n
}

// referenced is every buffer the recorded stream reads.
func (c *CommandBuffer) referenced() []*Buffer {
	seen := make(map[*Buffer]bool)
	var out []*Buffer
	for _, cmd := range c.Commands {
		if cmd.Buffer != nil && !seen[cmd.Buffer] {
			seen[cmd.Buffer] = true
			out = append(out, cmd.Buffer)
		}
	}
	return out
}
