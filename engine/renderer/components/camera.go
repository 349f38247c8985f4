package components

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/monkey/engine/math"
)

// 89 degrees, keeps the camera away from gimbal lock.
const pitchLimit = float32(1.55334306)

/**
 * @brief Represents a camera placed in the world. The view is rebuilt
 * lazily the first time it is read after a change.
 */
type Camera struct {
	/**
	 * @brief The position of this camera, before the rotation is applied.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated when needed.
	 */
	Position mgl32.Vec3
	/**
	 * @brief The rotation of this camera using Euler angles (pitch, yaw, roll)
	 * in radians. The rotation turns the camera about the world origin.
	 */
	EulerRotation mgl32.Vec3
	/** @brief Internal flag used to determine when the view matrix needs to be rebuilt. */
	IsDirty bool
	/**
	 * @brief The view matrix of this camera.
	 * NOTE: IMPORTANT: Do not get this directly, use GetView() instead.
	 */
	ViewMatrix mgl32.Mat4
}

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = mgl32.Vec3{}
	c.Position = mgl32.Vec3{}
	c.IsDirty = false
	c.ViewMatrix = mgl32.Ident4()
}

func (c *Camera) GetPosition() mgl32.Vec3 {
	return c.Position
}

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.Position = position
	c.IsDirty = true
}

func (c *Camera) GetEulerRotation() mgl32.Vec3 {
	return c.EulerRotation
}

func (c *Camera) SetEulerRotation(rotation mgl32.Vec3) {
	c.EulerRotation = rotation
	c.IsDirty = true
}

func (c *Camera) GetView() mgl32.Mat4 {
	if c.IsDirty {
		rotation := mgl32.AnglesToQuat(c.EulerRotation.X(), c.EulerRotation.Y(), c.EulerRotation.Z(), mgl32.XYZ).Mat4()
		translation := mgl32.Translate3D(c.Position.X(), c.Position.Y(), c.Position.Z())

		c.ViewMatrix = rotation.Mul4(translation).Inv()
		c.IsDirty = false
	}
	return c.ViewMatrix
}

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation[1] += amount
	c.IsDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation[0] = math.Clamp(c.EulerRotation[0]+amount, -pitchLimit, pitchLimit)
	c.IsDirty = true
}
