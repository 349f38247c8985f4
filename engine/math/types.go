package math

import "github.com/go-gl/mathgl/mgl32"

/**
 * @brief Represents a single vertex in 3D space.
 */
type Vertex3D struct {
	/** @brief The position of the vertex */
	Position mgl32.Vec3
	/** @brief The colour of the vertex. */
	Colour mgl32.Vec4
}

// Vertex3DSize is the packed size of a Vertex3D in a vertex buffer.
const Vertex3DSize = (3 + 4) * 4

// Vertex3DColourOffset is the byte offset of the colour attribute.
const Vertex3DColourOffset = 3 * 4

/**
 * @brief Represents the extents of a 2d object.
 */
type Extents2D struct {
	/** @brief The minimum extents of the object. */
	Min mgl32.Vec2
	/** @brief The maximum extents of the object. */
	Max mgl32.Vec2
}
