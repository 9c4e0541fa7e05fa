package shadeops

import (
	"math"

	"github.com/AlexMWells/OpenShadingLanguage/pkg/oso"
)

// Matrix is a 4x4 row-major transform applied to row vectors (p' = p M).
type Matrix [16]float32

// Identity is the identity transform.
var Identity = Matrix{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// Scale returns a matrix scaling by s.
func Scale(s float32) Matrix {
	m := Identity
	m[0], m[5], m[10] = s, s, s
	return m
}

// Translate returns a matrix translating by (x, y, z).
func Translate(x, y, z float32) Matrix {
	m := Identity
	m[12], m[13], m[14] = x, y, z
	return m
}

// Mul returns a*b.
func (a Matrix) Mul(b Matrix) Matrix {
	var r Matrix
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var s float32
			for k := 0; k < 4; k++ {
				s += a[i*4+k] * b[k*4+j]
			}
			r[i*4+j] = s
		}
	}
	return r
}

// Transpose returns the transpose of a.
func (a Matrix) Transpose() Matrix {
	var r Matrix
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			r[j*4+i] = a[i*4+j]
		}
	}
	return r
}

// Determinant returns det(a).
func (a Matrix) Determinant() float32 {
	inv, det := a.cofactors()
	_ = inv
	return det
}

// Inverse returns the inverse of a, or the zero matrix when a is singular.
func (a Matrix) Inverse() Matrix {
	inv, det := a.cofactors()
	if det == 0 {
		return Matrix{}
	}
	for i := range inv {
		inv[i] /= det
	}
	return inv
}

// cofactors returns the adjugate of a and its determinant.
func (a Matrix) cofactors() (Matrix, float32) {
	m := a
	var inv Matrix
	inv[0] = m[5]*m[10]*m[15] - m[5]*m[11]*m[14] - m[9]*m[6]*m[15] + m[9]*m[7]*m[14] + m[13]*m[6]*m[11] - m[13]*m[7]*m[10]
	inv[4] = -m[4]*m[10]*m[15] + m[4]*m[11]*m[14] + m[8]*m[6]*m[15] - m[8]*m[7]*m[14] - m[12]*m[6]*m[11] + m[12]*m[7]*m[10]
	inv[8] = m[4]*m[9]*m[15] - m[4]*m[11]*m[13] - m[8]*m[5]*m[15] + m[8]*m[7]*m[13] + m[12]*m[5]*m[11] - m[12]*m[7]*m[9]
	inv[12] = -m[4]*m[9]*m[14] + m[4]*m[10]*m[13] + m[8]*m[5]*m[14] - m[8]*m[6]*m[13] - m[12]*m[5]*m[10] + m[12]*m[6]*m[9]
	inv[1] = -m[1]*m[10]*m[15] + m[1]*m[11]*m[14] + m[9]*m[2]*m[15] - m[9]*m[3]*m[14] - m[13]*m[2]*m[11] + m[13]*m[3]*m[10]
	inv[5] = m[0]*m[10]*m[15] - m[0]*m[11]*m[14] - m[8]*m[2]*m[15] + m[8]*m[3]*m[14] + m[12]*m[2]*m[11] - m[12]*m[3]*m[10]
	inv[9] = -m[0]*m[9]*m[15] + m[0]*m[11]*m[13] + m[8]*m[1]*m[15] - m[8]*m[3]*m[13] - m[12]*m[1]*m[11] + m[12]*m[3]*m[9]
	inv[13] = m[0]*m[9]*m[14] - m[0]*m[10]*m[13] - m[8]*m[1]*m[14] + m[8]*m[2]*m[13] + m[12]*m[1]*m[10] - m[12]*m[2]*m[9]
	inv[2] = m[1]*m[6]*m[15] - m[1]*m[7]*m[14] - m[5]*m[2]*m[15] + m[5]*m[3]*m[14] + m[13]*m[2]*m[7] - m[13]*m[3]*m[6]
	inv[6] = -m[0]*m[6]*m[15] + m[0]*m[7]*m[14] + m[4]*m[2]*m[15] - m[4]*m[3]*m[14] - m[12]*m[2]*m[7] + m[12]*m[3]*m[6]
	inv[10] = m[0]*m[5]*m[15] - m[0]*m[7]*m[13] - m[4]*m[1]*m[15] + m[4]*m[3]*m[13] + m[12]*m[1]*m[7] - m[12]*m[3]*m[5]
	inv[14] = -m[0]*m[5]*m[14] + m[0]*m[6]*m[13] + m[4]*m[1]*m[14] - m[4]*m[2]*m[13] - m[12]*m[1]*m[6] + m[12]*m[2]*m[5]
	inv[3] = -m[1]*m[6]*m[11] + m[1]*m[7]*m[10] + m[5]*m[2]*m[11] - m[5]*m[3]*m[10] - m[9]*m[2]*m[7] + m[9]*m[3]*m[6]
	inv[7] = m[0]*m[6]*m[11] - m[0]*m[7]*m[10] - m[4]*m[2]*m[11] + m[4]*m[3]*m[10] + m[8]*m[2]*m[7] - m[8]*m[3]*m[6]
	inv[11] = -m[0]*m[5]*m[11] + m[0]*m[7]*m[9] + m[4]*m[1]*m[11] - m[4]*m[3]*m[9] - m[8]*m[1]*m[7] + m[8]*m[3]*m[5]
	inv[15] = m[0]*m[5]*m[10] - m[0]*m[6]*m[9] - m[4]*m[1]*m[10] + m[4]*m[2]*m[9] + m[8]*m[1]*m[6] - m[8]*m[2]*m[5]
	det := m[0]*inv[0] + m[1]*inv[4] + m[2]*inv[8] + m[3]*inv[12]
	return inv, det
}

// TransformPoint applies m to a point, with perspective divide.
func (m Matrix) TransformPoint(p [3]float32) [3]float32 {
	var r [3]float32
	for j := 0; j < 3; j++ {
		r[j] = p[0]*m[j] + p[1]*m[4+j] + p[2]*m[8+j] + m[12+j]
	}
	w := p[0]*m[3] + p[1]*m[7] + p[2]*m[11] + m[15]
	if w != 0 && w != 1 {
		for j := range r {
			r[j] /= w
		}
	}
	return r
}

// TransformVector applies the linear part of m.
func (m Matrix) TransformVector(v [3]float32) [3]float32 {
	var r [3]float32
	for j := 0; j < 3; j++ {
		r[j] = v[0]*m[j] + v[1]*m[4+j] + v[2]*m[8+j]
	}
	return r
}

// TransformNormal applies the inverse transpose of m.
func (m Matrix) TransformNormal(n [3]float32) [3]float32 {
	return m.Inverse().Transpose().TransformVector(n)
}

// Attribute is a renderer-provided value.
type Attribute struct {
	Type    oso.TypeSpec
	Ints    []int32
	Floats  []float32
	Strings []string
}

// Renderer is the renderer-side service used by kernels at shading time.
type Renderer interface {
	// Matrix returns the transform from the named space to common space at
	// the given time.
	Matrix(space string, time float32) (Matrix, bool)
	// Attribute returns the named attribute of object ("" for the object
	// being shaded) as seen by one lane.
	Attribute(object, name string, lane int) (Attribute, bool)
	// RaytypeBit returns the bit of the named ray type, or 0.
	RaytypeBit(name string) int32
}

// Raytypes is the ray type bit table of StaticRenderer.
var Raytypes = map[string]int32{
	"camera":     1,
	"shadow":     2,
	"diffuse":    4,
	"glossy":     8,
	"reflection": 16,
	"refraction": 32,
	"volume":     64,
}

// StaticRenderer serves fixed spaces and attributes.
type StaticRenderer struct {
	Spaces     map[string]Matrix
	Attributes map[string]Attribute // keyed by "object:name" or "name"
}

// NewStaticRenderer returns a renderer knowing the common, world, camera,
// object and shader spaces, all set to identity except camera, which is
// a unit translation along z.
func NewStaticRenderer() *StaticRenderer {
	return &StaticRenderer{
		Spaces: map[string]Matrix{
			"common": Identity,
			"world":  Identity,
			"object": Identity,
			"shader": Identity,
			"camera": Translate(0, 0, 1),
		},
		Attributes: map[string]Attribute{},
	}
}

// Matrix implements Renderer.
func (r *StaticRenderer) Matrix(space string, _ float32) (Matrix, bool) {
	m, ok := r.Spaces[space]
	return m, ok
}

// Attribute implements Renderer.
func (r *StaticRenderer) Attribute(object, name string, _ int) (Attribute, bool) {
	if object != "" {
		a, ok := r.Attributes[object+":"+name]
		return a, ok
	}
	a, ok := r.Attributes[name]
	return a, ok
}

// RaytypeBit implements Renderer.
func (r *StaticRenderer) RaytypeBit(name string) int32 { return Raytypes[name] }

// fromTo builds the transform from space from to space to.
func fromTo(r Renderer, from, to string, time float32) (Matrix, bool) {
	m1, ok := spaceToCommon(r, from, time)
	if !ok {
		return Matrix{}, false
	}
	m2, ok := spaceToCommon(r, to, time)
	if !ok {
		return Matrix{}, false
	}
	return m1.Mul(m2.Inverse()), true
}

func spaceToCommon(r Renderer, space string, time float32) (Matrix, bool) {
	if space == "common" {
		return Identity, true
	}
	return r.Matrix(space, time)
}

func radians(deg float32) float32 { return deg * math.Pi / 180 }
