package geom

import "math"

// Quat is a unit rotation quaternion.
type Quat struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func Identity() Quat { return Quat{W: 1} }

func FromArray4(a [4]float64) Quat { return Quat{W: a[0], X: a[1], Y: a[2], Z: a[3]} }

func (q Quat) Array() [4]float64 { return [4]float64{q.W, q.X, q.Y, q.Z} }

// AxisAngle builds a rotation of deg degrees about axis. Positive angles about Up turn
// Forward toward Right.
func AxisAngle(axis Vec3, deg float64) Quat {
	axis = axis.Normalize()
	half := deg * math.Pi / 360
	s := math.Sin(half)
	return Quat{W: math.Cos(half), X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s}
}

func Yaw(deg float64) Quat { return AxisAngle(Up, deg) }

// Euler composes yaw (Y), pitch (X) and roll (Z), applied roll first.
func Euler(pitchDeg, yawDeg, rollDeg float64) Quat {
	return Yaw(yawDeg).Mul(AxisAngle(Right, pitchDeg)).Mul(AxisAngle(Forward, rollDeg))
}

// Mul returns q*o: rotate by o, then by q.
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
	}
}

func (q Quat) Conjugate() Quat { return Quat{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z} }

// Inverse assumes a unit quaternion.
func (q Quat) Inverse() Quat { return q.Conjugate() }

func (q Quat) Normalize() Quat {
	n := math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
	if n == 0 {
		return Identity()
	}
	return Quat{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}
}

func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{q.X, q.Y, q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

func (q Quat) Forward() Vec3 { return q.Rotate(Forward) }

// YawDeg is the heading of the rotated forward vector in the XZ plane.
func (q Quat) YawDeg() float64 {
	f := q.Forward()
	return math.Atan2(f.X, f.Z) * 180 / math.Pi
}

// ApproxEqual treats q and -q as the same rotation.
func (q Quat) ApproxEqual(o Quat, eps float64) bool {
	d := math.Abs(q.W*o.W + q.X*o.X + q.Y*o.Y + q.Z*o.Z)
	return 1-d <= eps
}
