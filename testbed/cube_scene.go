package testbed

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/monkey/engine/app"
	"github.com/spaghettifunk/monkey/engine/core"
	"github.com/spaghettifunk/monkey/engine/math"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
)

const (
	VertexShaderAsset   = "shaders/cube.vert.spv"
	FragmentShaderAsset = "shaders/cube.frag.spv"
)

// cubeScene is the part both render modes share: one cube mesh, a pipeline
// built from the cube shaders and one uniform buffer per frame slot holding
// instances MVP records.
type cubeScene struct {
	name       string
	dynamic    bool
	instances  int
	halfExtent float32

	ctx      *app.Context
	fences   *rhi.FenceManager
	slots    *rhi.FrameSlotTable
	cycle    *rhi.FrameCycle
	pipeline rhi.Pipeline
	sets     []rhi.DescriptorSet

	vertices   *rhi.AlignedBuffer
	indices    *rhi.AlignedBuffer
	indexCount uint32
	clear      rhi.ClearValues
}

func newCubeScene(name string, dynamic bool, instances int, halfExtent float32) *cubeScene {
	return &cubeScene{
		name:       name,
		dynamic:    dynamic,
		instances:  instances,
		halfExtent: halfExtent,
	}
}

func (s *cubeScene) ready() bool {
	return s.cycle != nil
}

func (s *cubeScene) init(ctx *app.Context) (err error) {
	if s.ctx != nil {
		return errors.Wrapf(core.ErrInvalidState, "mode %s already initialized", s.name)
	}
	s.ctx = ctx
	defer func() {
		if err != nil {
			err = errors.CombineErrors(err, s.destroy())
		}
	}()

	s.clear = ctx.Config.ClearValues()
	s.fences = rhi.NewFenceManager(ctx.Device, ctx.Config.FenceManagerConfig())
	s.slots = rhi.NewFrameSlotTable(ctx.Device, s.fences, rhi.BufferLayout{
		Name:          "mvp",
		Usage:         rhi.BufferUsageUniform,
		RecordSize:    math.MVPRecordSize,
		InstanceCount: s.instances,
	})

	if err := s.createMesh(); err != nil {
		return err
	}
	if s.pipeline, err = s.loadPipeline(); err != nil {
		return err
	}
	if err := s.slots.Initialize(ctx.Swapchain.ImageCount()); err != nil {
		return err
	}
	if err := s.createDescriptorSets(); err != nil {
		return err
	}
	s.cycle = rhi.NewFrameCycle(ctx.Swapchain, ctx.Queue, s.fences, s.slots, ctx.Config.CycleConfig())

	core.LogInfo("mode %s ready: %d frame slots, %d instances, uniform stride %d bytes",
		s.name, s.slots.Len(), s.instances, s.slots.Slot(0).Buffer(0).Stride())
	return nil
}

// createMesh uploads the cube once. Mesh buffers are never written again, so
// every slot shares them.
func (s *cubeScene) createMesh() error {
	vertices, indices := math.CubeGeometry(s.halfExtent)

	vb, err := rhi.NewAlignedBuffer(s.ctx.Device, rhi.BufferUsageVertex, math.Vertex3DSize, len(vertices))
	if err != nil {
		return errors.Wrap(err, "cube vertex buffer")
	}
	s.vertices = vb
	for i := range vertices {
		if err := vb.WriteInstance(i, rhi.RawRecord(math.EncodeVertices(vertices[i:i+1]))); err != nil {
			return err
		}
	}
	if err := vb.Flush(); err != nil {
		return err
	}

	ib, err := rhi.NewAlignedBuffer(s.ctx.Device, rhi.BufferUsageIndex, 2, len(indices))
	if err != nil {
		return errors.Wrap(err, "cube index buffer")
	}
	s.indices = ib
	for i := range indices {
		if err := ib.WriteInstance(i, rhi.RawRecord(math.EncodeIndices(indices[i:i+1]))); err != nil {
			return err
		}
	}
	s.indexCount = uint32(len(indices))
	return ib.Flush()
}

func (s *cubeScene) loadPipeline() (rhi.Pipeline, error) {
	vert, err := s.ctx.Assets.LoadAsset(VertexShaderAsset)
	if err != nil {
		return nil, err
	}
	frag, err := s.ctx.Assets.LoadAsset(FragmentShaderAsset)
	if err != nil {
		return nil, err
	}
	return s.ctx.Device.CreatePipeline(&rhi.PipelineDesc{
		Name:           s.name,
		VertexShader:   vert.Data,
		FragmentShader: frag.Data,
		VertexStride:   math.Vertex3DSize,
		Attributes: []rhi.VertexAttribute{
			{Location: 0, Format: rhi.VertexFormatFloat3, Offset: 0},
			{Location: 1, Format: rhi.VertexFormatFloat4, Offset: math.Vertex3DColourOffset},
		},
		DynamicUniform: s.dynamic,
	})
}

// createDescriptorSets binds one record of every slot buffer. Dynamic sets
// move over the buffer with per draw offsets.
func (s *cubeScene) createDescriptorSets() error {
	s.sets = make([]rhi.DescriptorSet, 0, s.slots.Len())
	for i := 0; i < s.slots.Len(); i++ {
		set, err := s.ctx.Device.CreateDescriptorSet(s.pipeline, s.slots.Slot(i).Buffer(0).Native(), math.MVPRecordSize)
		if err != nil {
			return errors.Wrapf(err, "descriptor set of frame slot %d", i)
		}
		s.sets = append(s.sets, set)
	}
	return nil
}

func (s *cubeScene) destroyDescriptorSets() {
	for _, set := range s.sets {
		set.Destroy()
	}
	s.sets = nil
}

// draw runs one frame. fill writes the records of the frame into the slot
// buffer, which is then flushed in one go.
func (s *cubeScene) draw(fill func(buffer *rhi.AlignedBuffer) error) error {
	if !s.ready() {
		return errors.Wrapf(core.ErrInvalidState, "mode %s drawn before init", s.name)
	}
	return s.cycle.Draw(func(slot *rhi.FrameSlot, imageIndex uint32) error {
		buffer := slot.Buffer(0)
		if err := fill(buffer); err != nil {
			return err
		}
		if err := buffer.Flush(); err != nil {
			return err
		}
		if slot.Recorded() {
			return nil
		}
		return s.record(slot, imageIndex)
	})
}

func (s *cubeScene) record(slot *rhi.FrameSlot, imageIndex uint32) error {
	width, height := s.ctx.Swapchain.Width(), s.ctx.Swapchain.Height()
	buffer := slot.Buffer(0)
	set := s.sets[slot.Index]

	cmd := slot.CommandBuffer
	if err := cmd.Begin(); err != nil {
		return err
	}
	cmd.BeginRenderPass(int(imageIndex), s.clear)
	cmd.SetViewport(rhi.Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1})
	cmd.SetScissor(width, height)
	cmd.BindPipeline(s.pipeline)
	cmd.BindVertexBuffer(s.vertices.Native())
	cmd.BindIndexBuffer(s.indices.Native(), rhi.IndexTypeUint16)

	if s.dynamic {
		for i := 0; i < s.instances; i++ {
			offset, err := buffer.DynamicOffset(i)
			if err != nil {
				return err
			}
			cmd.BindDescriptorSet(s.pipeline, set, offset)
			cmd.DrawIndexed(s.indexCount)
		}
	} else {
		cmd.BindDescriptorSet(s.pipeline, set)
		cmd.DrawIndexed(s.indexCount)
	}

	cmd.EndRenderPass()
	if err := cmd.End(); err != nil {
		return err
	}
	slot.MarkRecorded()
	return nil
}

// resize rebuilds the slots for a swapchain the engine already recreated. The
// image count may have changed.
func (s *cubeScene) resize(ctx *app.Context) error {
	if !s.ready() {
		return errors.Wrapf(core.ErrInvalidState, "mode %s resized before init", s.name)
	}
	s.ctx = ctx
	if err := s.slots.Teardown(); err != nil {
		return err
	}
	s.destroyDescriptorSets()
	if err := s.slots.Initialize(ctx.Swapchain.ImageCount()); err != nil {
		return err
	}
	if err := s.createDescriptorSets(); err != nil {
		return err
	}
	s.cycle.SetSwapchain(ctx.Swapchain)
	core.LogDebug("mode %s resized to %dx%d with %d frame slots", s.name, ctx.Swapchain.Width(), ctx.Swapchain.Height(), s.slots.Len())
	return nil
}

// reloadShaders swaps the pipeline for one built from the current shader
// files. The old pipeline stays in use when the new one fails to build.
func (s *cubeScene) reloadShaders() error {
	if !s.ready() {
		return nil
	}
	if err := s.ctx.Device.WaitIdle(); err != nil {
		return err
	}
	pipeline, err := s.loadPipeline()
	if err != nil {
		return errors.Wrapf(err, "reload shaders of mode %s", s.name)
	}
	s.destroyDescriptorSets()
	s.pipeline.Destroy()
	s.pipeline = pipeline
	if err := s.createDescriptorSets(); err != nil {
		return err
	}
	s.slots.InvalidateAll()
	core.LogInfo("mode %s: shaders reloaded", s.name)
	return nil
}

func isSceneShader(name string) bool {
	return name == VertexShaderAsset || name == FragmentShaderAsset
}

// destroy drains every slot before any buffer is freed. Calling it again is a
// no-op.
func (s *cubeScene) destroy() error {
	var err error
	if s.slots != nil {
		err = errors.CombineErrors(err, s.slots.Teardown())
	}
	s.destroyDescriptorSets()
	if s.pipeline != nil {
		s.pipeline.Destroy()
		s.pipeline = nil
	}
	if s.vertices != nil {
		s.vertices.Destroy()
		s.vertices = nil
	}
	if s.indices != nil {
		s.indices.Destroy()
		s.indices = nil
	}
	if s.fences != nil {
		err = errors.CombineErrors(err, s.fences.Destroy())
		s.fences = nil
	}
	s.slots = nil
	s.cycle = nil
	s.ctx = nil
	return err
}
