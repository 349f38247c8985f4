package math

import (
	"encoding/binary"
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// MVPRecordSize is the size of the uniform block read by the cube shaders:
// three column-major 4x4 float matrices.
const MVPRecordSize = 3 * 16 * 4

// MVPRecord is the per-object uniform block.
type MVPRecord struct {
	Model      mgl32.Mat4
	View       mgl32.Mat4
	Projection mgl32.Mat4
}

func NewMVPRecord() MVPRecord {
	return MVPRecord{
		Model:      mgl32.Ident4(),
		View:       mgl32.Ident4(),
		Projection: mgl32.Ident4(),
	}
}

func (r *MVPRecord) RecordSize() int {
	return MVPRecordSize
}

// Encode writes the record in the std140 layout, little endian.
func (r *MVPRecord) Encode(dst []byte) {
	putMat4(dst[0:64], r.Model)
	putMat4(dst[64:128], r.View)
	putMat4(dst[128:192], r.Projection)
}

func putMat4(dst []byte, m mgl32.Mat4) {
	for i, f := range m {
		binary.LittleEndian.PutUint32(dst[i*4:], stdmath.Float32bits(f))
	}
}

// vulkanClip maps GL clip space to Vulkan's: Y points down and depth is [0, 1].
var vulkanClip = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// Perspective builds a Vulkan projection from a vertical field of view in
// degrees and the framebuffer size. A zero height yields a square aspect.
func Perspective(fovDegrees float32, width, height uint32, near, far float32) mgl32.Mat4 {
	aspect := float32(1)
	if height != 0 {
		aspect = float32(width) / float32(height)
	}
	return vulkanClip.Mul4(mgl32.Perspective(mgl32.DegToRad(fovDegrees), aspect, near, far))
}

/**
 * @brief Represents the transform of an object in the world.
 * Rotation is kept as accumulated euler angles in degrees.
 */
type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Vec3
	IsDirty  bool
	Local    mgl32.Mat4
}

func TransformFromPosition(position mgl32.Vec3) *Transform {
	return &Transform{
		Position: position,
		IsDirty:  true,
		Local:    mgl32.Ident4(),
	}
}

// Rotate appends the given angles, in degrees, around the X, Y and Z axes.
func (t *Transform) Rotate(degrees mgl32.Vec3) {
	t.Rotation = t.Rotation.Add(degrees)
	t.IsDirty = true
}

func (t *Transform) SetPosition(position mgl32.Vec3) {
	t.Position = position
	t.IsDirty = true
}

func (t *Transform) GetLocal() mgl32.Mat4 {
	if t == nil {
		return mgl32.Ident4()
	}
	if t.IsDirty {
		r := mgl32.HomogRotate3DY(mgl32.DegToRad(t.Rotation.Y()))
		r = r.Mul4(mgl32.HomogRotate3DX(mgl32.DegToRad(t.Rotation.X())))
		r = r.Mul4(mgl32.HomogRotate3DZ(mgl32.DegToRad(t.Rotation.Z())))
		t.Local = mgl32.Translate3D(t.Position.X(), t.Position.Y(), t.Position.Z()).Mul4(r)
		t.IsDirty = false
	}
	return t.Local
}
