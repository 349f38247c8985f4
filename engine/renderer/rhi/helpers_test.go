package rhi_test

import (
	"testing"

	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi/rhitest"
)

const (
	recordSize = 192
	alignment  = 256
	instances  = 125
)

type harness struct {
	dev       *rhitest.Device
	swapchain *rhitest.Swapchain
	fences    *rhi.FenceManager
	slots     *rhi.FrameSlotTable
	cycle     *rhi.FrameCycle
	pipeline  rhi.Pipeline
	sets      []rhi.DescriptorSet
	frame     byte
}

func newHarness(t *testing.T, images int, config rhi.CycleConfig) *harness {
	t.Helper()
	h := &harness{dev: rhitest.NewDevice(alignment)}
	h.swapchain = rhitest.NewSwapchain(h.dev, images, 800, 600)
	h.fences = rhi.NewFenceManager(h.dev, rhi.FenceManagerConfig{PoolSize: 4})
	h.slots = rhi.NewFrameSlotTable(h.dev, h.fences, rhi.BufferLayout{
		Name:          "mvp",
		Usage:         rhi.BufferUsageUniform,
		RecordSize:    recordSize,
		InstanceCount: instances,
	})
	if err := h.slots.Initialize(images); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var err error
	h.pipeline, err = h.dev.CreatePipeline(&rhi.PipelineDesc{
		Name:           "test",
		VertexShader:   []byte{1},
		FragmentShader: []byte{1},
		DynamicUniform: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < h.slots.Len(); i++ {
		set, err := h.dev.CreateDescriptorSet(h.pipeline, h.slots.Slot(i).Buffer(0).Native(), recordSize)
		if err != nil {
			t.Fatal(err)
		}
		h.sets = append(h.sets, set)
	}
	h.cycle = rhi.NewFrameCycle(h.swapchain, h.dev.Queue(), h.fences, h.slots, config)
	return h
}

// record writes every instance, flushes, and records the slot command
// buffer the first time the slot is used.
func (h *harness) record(slot *rhi.FrameSlot, imageIndex uint32) error {
	h.frame++
	buffer := slot.Buffer(0)
	for i := 0; i < instances; i++ {
		rec := make(rhi.RawRecord, recordSize)
		rec[0] = byte(i)
		rec[1] = h.frame
		if err := buffer.WriteInstance(i, rec); err != nil {
			return err
		}
	}
	if err := buffer.Flush(); err != nil {
		return err
	}
	if slot.Recorded() {
		return nil
	}

	cmd := slot.CommandBuffer
	if err := cmd.Begin(); err != nil {
		return err
	}
	cmd.BeginRenderPass(int(imageIndex), rhi.ClearValues{Depth: 1})
	cmd.BindPipeline(h.pipeline)
	for i := 0; i < instances; i++ {
		offset, err := buffer.DynamicOffset(i)
		if err != nil {
			return err
		}
		cmd.BindDescriptorSet(h.pipeline, h.sets[slot.Index], offset)
		cmd.DrawIndexed(36)
	}
	cmd.EndRenderPass()
	if err := cmd.End(); err != nil {
		return err
	}
	slot.MarkRecorded()
	return nil
}

func (h *harness) close(t *testing.T) {
	t.Helper()
	if err := h.slots.Teardown(); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	for _, s := range h.sets {
		s.Destroy()
	}
	h.pipeline.Destroy()
	if err := h.fences.Destroy(); err != nil {
		t.Fatalf("fences.Destroy: %v", err)
	}
	if live := h.dev.Live(); live != (rhitest.Counts{}) {
		t.Fatalf("leaked device objects: %+v", live)
	}
	h.dev.AssertClean(t)
}

// submitEmpty submits an empty command buffer guarded by f.
func submitEmpty(t *testing.T, dev *rhitest.Device, fm *rhi.FenceManager, f *rhi.Fence) {
	t.Helper()
	cmd, _ := dev.AllocateCommandBuffer()
	_ = cmd.Begin()
	_ = cmd.End()
	if err := dev.Queue().Submit(cmd, nil, nil, f.Native()); err != nil {
		t.Fatal(err)
	}
	if err := fm.Submitted(f, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		dev.CompleteAll()
		cmd.Free()
	})
}
