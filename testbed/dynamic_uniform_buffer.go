package testbed

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/monkey/engine/app"
	"github.com/spaghettifunk/monkey/engine/core"
	"github.com/spaghettifunk/monkey/engine/math"
	"github.com/spaghettifunk/monkey/engine/renderer/components"
	"github.com/spaghettifunk/monkey/engine/renderer/rhi"
)

const (
	DynamicUniformBufferName = "dynamic_uniform_buffer"

	// CubeSize cubes per grid edge.
	CubeSize    = 5
	CubeCount   = CubeSize * CubeSize * CubeSize
	CubeSpacing = 50
)

// DynamicUniformBufferMode draws a grid of spinning cubes. Every cube reads its
// MVP record from one slice of a single uniform buffer per frame slot,
// selected with a dynamic offset at draw time.
type DynamicUniformBufferMode struct {
	scene *cubeScene

	transforms []*math.Transform
	records    []math.MVPRecord
	// pinned instances were set by UpdateUniformBuffers and are not animated.
	pinned []bool
	camera *components.Camera
}

func NewDynamicUniformBufferMode() *DynamicUniformBufferMode {
	m := &DynamicUniformBufferMode{
		scene:      newCubeScene(DynamicUniformBufferName, true, CubeCount, 8),
		transforms: make([]*math.Transform, CubeCount),
		records:    make([]math.MVPRecord, CubeCount),
		pinned:     make([]bool, CubeCount),
		camera:     dynamicCamera(),
	}
	for i, position := range math.GridPositions(CubeSize, CubeSpacing) {
		m.transforms[i] = math.TransformFromPosition(position)
		m.records[i] = math.NewMVPRecord()
		m.records[i].Model = m.transforms[i].GetLocal()
		m.records[i].View = m.camera.GetView()
	}
	return m
}

// dynamicCamera backs the camera 300 units away from the grid and orbits it 30
// degrees above the grid, still facing the origin.
func dynamicCamera() *components.Camera {
	camera := components.NewCamera()
	camera.SetPosition(mgl32.Vec3{5, 5, 300})
	camera.Pitch(mgl32.DegToRad(-30))
	return camera
}

func (m *DynamicUniformBufferMode) Name() string {
	return DynamicUniformBufferName
}

func (m *DynamicUniformBufferMode) PreInit(cfg *app.Config) error {
	if cfg.Window.Title == "" {
		cfg.Window.Title = "Dynamic Uniform Buffer"
	}
	return nil
}

func (m *DynamicUniformBufferMode) Init(ctx *app.Context) error {
	if err := m.scene.init(ctx); err != nil {
		return errors.Wrapf(err, "init mode %s", DynamicUniformBufferName)
	}
	m.updateProjection()
	return nil
}

func (m *DynamicUniformBufferMode) updateProjection() {
	swapchain := m.scene.ctx.Swapchain
	projection := math.Perspective(60, swapchain.Width(), swapchain.Height(), 0.01, 3000)
	for i := range m.records {
		if !m.pinned[i] {
			m.records[i].Projection = projection
		}
	}
}

// UpdateUniformBuffers replaces the record of one cube. The record reaches the
// device with the next drawn frame and the cube stops being animated.
func (m *DynamicUniformBufferMode) UpdateUniformBuffers(instanceIndex int, record math.MVPRecord) error {
	if instanceIndex < 0 || instanceIndex >= len(m.records) {
		return errors.Wrapf(core.ErrOutOfBounds, "cube %d of %d", instanceIndex, len(m.records))
	}
	m.records[instanceIndex] = record
	m.pinned[instanceIndex] = true
	return nil
}

// Record returns the host copy of a cube's MVP record.
func (m *DynamicUniformBufferMode) Record(instanceIndex int) (math.MVPRecord, error) {
	if instanceIndex < 0 || instanceIndex >= len(m.records) {
		return math.MVPRecord{}, errors.Wrapf(core.ErrOutOfBounds, "cube %d of %d", instanceIndex, len(m.records))
	}
	return m.records[instanceIndex], nil
}

func (m *DynamicUniformBufferMode) animate(delta float64) {
	d := float32(delta)
	for i, transform := range m.transforms {
		if m.pinned[i] {
			continue
		}
		transform.Rotate(mgl32.Vec3{float32(i) * d, 90 * d, float32(i) * d})
		m.records[i].Model = transform.GetLocal()
	}
}

func (m *DynamicUniformBufferMode) Loop(time, delta float64) error {
	if !m.scene.ready() {
		return nil
	}
	m.animate(delta)
	return m.scene.draw(func(buffer *rhi.AlignedBuffer) error {
		for i := range m.records {
			if err := buffer.WriteInstance(i, &m.records[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *DynamicUniformBufferMode) Resized(ctx *app.Context) error {
	if err := m.scene.resize(ctx); err != nil {
		return err
	}
	m.updateProjection()
	return nil
}

func (m *DynamicUniformBufferMode) AssetChanged(name string) error {
	if !isSceneShader(name) {
		return nil
	}
	return m.scene.reloadShaders()
}

func (m *DynamicUniformBufferMode) Exist() error {
	return m.scene.destroy()
}
