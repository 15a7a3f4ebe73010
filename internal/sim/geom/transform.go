package geom

// Transform is a rigid pose: rotate, then translate.
type Transform struct {
	Pos Vec3 `json:"pos"`
	Rot Quat `json:"rot"`
}

func IdentityTransform() Transform { return Transform{Rot: Identity()} }

// Point maps a local point into the parent space.
func (t Transform) Point(local Vec3) Vec3 { return t.Pos.Add(t.Rot.Rotate(local)) }

// Vector maps a local direction/offset (no translation).
func (t Transform) Vector(local Vec3) Vec3 { return t.Rot.Rotate(local) }

// InversePoint maps a parent-space point into local space.
func (t Transform) InversePoint(p Vec3) Vec3 { return t.Rot.Inverse().Rotate(p.Sub(t.Pos)) }

// Compose returns the parent-space pose of a frame given relative to t.
func (t Transform) Compose(local Transform) Transform {
	return Transform{Pos: t.Point(local.Pos), Rot: t.Rot.Mul(local.Rot).Normalize()}
}

// RotateAround rotates t about a world pivot and axis.
func (t Transform) RotateAround(pivot, axis Vec3, deg float64) Transform {
	q := AxisAngle(axis, deg)
	return Transform{
		Pos: pivot.Add(q.Rotate(t.Pos.Sub(pivot))),
		Rot: q.Mul(t.Rot).Normalize(),
	}
}

// AABB is an axis-aligned box; Min <= Max componentwise.
type AABB struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

func Box(min, max Vec3) AABB { return AABB{Min: min.Min(max), Max: min.Max(max)} }

// UnitBoxAt is the fallback volume for a piece without renderables.
func UnitBoxAt(p Vec3) AABB {
	h := Vec3{0.5, 0.5, 0.5}
	return AABB{Min: p.Sub(h), Max: p.Add(h)}
}

func (b AABB) Center() Vec3 { return b.Min.Add(b.Max).Scale(0.5) }
func (b AABB) Size() Vec3   { return b.Max.Sub(b.Min) }

func (b AABB) Union(o AABB) AABB { return AABB{Min: b.Min.Min(o.Min), Max: b.Max.Max(o.Max)} }

// Scaled keeps the center and multiplies the size by f.
func (b AABB) Scaled(f float64) AABB {
	c := b.Center()
	h := b.Size().Scale(0.5 * f)
	return AABB{Min: c.Sub(h), Max: c.Add(h)}
}

// Intersects counts touching faces as intersecting.
func (b AABB) Intersects(o AABB) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

// Transformed returns the world AABB enclosing the 8 transformed corners of b.
func (b AABB) Transformed(t Transform) AABB {
	var out AABB
	for i := 0; i < 8; i++ {
		c := Vec3{b.Min.X, b.Min.Y, b.Min.Z}
		if i&1 != 0 {
			c.X = b.Max.X
		}
		if i&2 != 0 {
			c.Y = b.Max.Y
		}
		if i&4 != 0 {
			c.Z = b.Max.Z
		}
		p := t.Point(c)
		if i == 0 {
			out = AABB{Min: p, Max: p}
			continue
		}
		out.Min = out.Min.Min(p)
		out.Max = out.Max.Max(p)
	}
	return out
}
