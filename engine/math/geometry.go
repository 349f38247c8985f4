package math

import (
	"encoding/binary"
	stdmath "math"

	"github.com/go-gl/mathgl/mgl32"
)

// GridPositions lays out size*size*size points, spacing apart, centered on the
// origin. The point for (x, y, z) is stored at x*size*size + y*size + z.
func GridPositions(size int, spacing float32) []mgl32.Vec3 {
	if size <= 0 {
		return nil
	}
	half := float32(size) * spacing / 2
	positions := make([]mgl32.Vec3, 0, size*size*size)
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			for z := 0; z < size; z++ {
				positions = append(positions, mgl32.Vec3{
					-half + spacing/2 + float32(x)*spacing,
					-half + spacing/2 + float32(y)*spacing,
					-half + spacing/2 + float32(z)*spacing,
				})
			}
		}
	}
	return positions
}

// CubeGeometry returns the 24 vertices and 36 indices of an axis aligned cube
// with the given half extent. Each face gets its own colour.
func CubeGeometry(halfExtent float32) ([]Vertex3D, []uint16) {
	e := halfExtent
	faces := []struct {
		corners [4]mgl32.Vec3
		colour  mgl32.Vec4
	}{
		// +Z
		{[4]mgl32.Vec3{{-e, -e, e}, {e, -e, e}, {e, e, e}, {-e, e, e}}, mgl32.Vec4{1, 0, 0, 1}},
		// -Z
		{[4]mgl32.Vec3{{e, -e, -e}, {-e, -e, -e}, {-e, e, -e}, {e, e, -e}}, mgl32.Vec4{0, 1, 0, 1}},
		// +X
		{[4]mgl32.Vec3{{e, -e, e}, {e, -e, -e}, {e, e, -e}, {e, e, e}}, mgl32.Vec4{0, 0, 1, 1}},
		// -X
		{[4]mgl32.Vec3{{-e, -e, -e}, {-e, -e, e}, {-e, e, e}, {-e, e, -e}}, mgl32.Vec4{1, 1, 0, 1}},
		// +Y
		{[4]mgl32.Vec3{{-e, e, e}, {e, e, e}, {e, e, -e}, {-e, e, -e}}, mgl32.Vec4{0, 1, 1, 1}},
		// -Y
		{[4]mgl32.Vec3{{-e, -e, -e}, {e, -e, -e}, {e, -e, e}, {-e, -e, e}}, mgl32.Vec4{1, 0, 1, 1}},
	}

	vertices := make([]Vertex3D, 0, 24)
	indices := make([]uint16, 0, 36)
	for _, f := range faces {
		base := uint16(len(vertices))
		for _, c := range f.corners {
			vertices = append(vertices, Vertex3D{Position: c, Colour: f.colour})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return vertices, indices
}

// EncodeVertices packs vertices into the interleaved layout the pipelines use.
func EncodeVertices(vertices []Vertex3D) []byte {
	out := make([]byte, len(vertices)*Vertex3DSize)
	for i, v := range vertices {
		dst := out[i*Vertex3DSize:]
		for j, f := range v.Position {
			binary.LittleEndian.PutUint32(dst[j*4:], stdmath.Float32bits(f))
		}
		for j, f := range v.Colour {
			binary.LittleEndian.PutUint32(dst[Vertex3DColourOffset+j*4:], stdmath.Float32bits(f))
		}
	}
	return out
}

func EncodeIndices(indices []uint16) []byte {
	out := make([]byte, len(indices)*2)
	for i, idx := range indices {
		binary.LittleEndian.PutUint16(out[i*2:], idx)
	}
	return out
}
