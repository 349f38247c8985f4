package testbed

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/monkey/engine/app"
	"github.com/spaghettifunk/monkey/engine/math"
	"github.com/spaghettifunk/monkey/engine/renderer/components"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
)

const UniformBufferName = "uniform_buffer"

// UniformBufferMode draws a single cube reading a plain uniform buffer. Each
// frame slot owns its own copy of the buffer and its own fence.
type UniformBufferMode struct {
	scene  *cubeScene
	record math.MVPRecord
}

func NewUniformBufferMode() *UniformBufferMode {
	camera := components.NewCamera()
	camera.SetPosition(mgl32.Vec3{0, 0, 30})
	record := math.NewMVPRecord()
	record.View = camera.GetView()
	return &UniformBufferMode{
		scene:  newCubeScene(UniformBufferName, false, 1, 5),
		record: record,
	}
}

func (m *UniformBufferMode) Name() string {
	return UniformBufferName
}

func (m *UniformBufferMode) PreInit(cfg *app.Config) error {
	if cfg.Window.Title == "" {
		cfg.Window.Title = "Uniform Buffer"
	}
	return nil
}

func (m *UniformBufferMode) Init(ctx *app.Context) error {
	if err := m.scene.init(ctx); err != nil {
		return errors.Wrapf(err, "init mode %s", UniformBufferName)
	}
	m.updateProjection()
	return nil
}

func (m *UniformBufferMode) updateProjection() {
	swapchain := m.scene.ctx.Swapchain
	m.record.Projection = math.Perspective(60, swapchain.Width(), swapchain.Height(), 0.01, 3000)
}

func (m *UniformBufferMode) Loop(time, delta float64) error {
	if !m.scene.ready() {
		return nil
	}
	return m.scene.draw(func(buffer *rhi.AlignedBuffer) error {
		return buffer.WriteInstance(0, &m.record)
	})
}

func (m *UniformBufferMode) Resized(ctx *app.Context) error {
	if err := m.scene.resize(ctx); err != nil {
		return err
	}
	m.updateProjection()
	return nil
}

func (m *UniformBufferMode) AssetChanged(name string) error {
	if !isSceneShader(name) {
		return nil
	}
	return m.scene.reloadShaders()
}

func (m *UniformBufferMode) Exist() error {
	return m.scene.destroy()
}
