package orbit

import "math"

// Общие константы.
const (
	// EarthRadiusKm — средний радиус Земли, км (сферическая модель).
	EarthRadiusKm = 6371.0

	// Deg2Rad — коэффициент перевода градусов в радианы.
	Deg2Rad = math.Pi / 180.0

	// Rad2Deg — коэффициент перевода радианов в градусы.
	Rad2Deg = 180.0 / math.Pi
)

// NormalizeDeg приводит угол в градусах к диапазону [0, 360).
// Используется на всех выходных углах, чтобы дрейф при повторных
// вызовах не накапливался.
func NormalizeDeg(deg float64) float64 {
	m := math.Mod(deg, 360.0)
	if m < 0 {
		m += 360.0
	}
	return m
}

// ECIPosition представляет позицию спутника в инерциальной системе ECI.
// Координаты в километрах.
type ECIPosition struct {
	X float64 // X координата, км.
	Y float64 // Y координата, км.
	Z float64 // Z координата, км.
}

// Magnitude возвращает расстояние от центра Земли в километрах.
func (pos ECIPosition) Magnitude() float64 {
	return math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
}

// Altitude возвращает приблизительную высоту над поверхностью Земли
// в километрах (сферическая модель).
func (pos ECIPosition) Altitude() float64 {
	return pos.Magnitude() - EarthRadiusKm
}

// perifocalToECI переводит положение из перифокальной плоскости орбиты
// в ECI. Перифокальный вектор (r·cos ν, r·sin ν, 0) поворачивается
// последовательностью 3-1-3: Rz(Ω) · Rx(i) · Rz(ω).
// Все углы в радианах, радиус в километрах.
func perifocalToECI(rKm, nu, inc, raan, argp float64) ECIPosition {
	xPF := rKm * math.Cos(nu)
	yPF := rKm * math.Sin(nu)

	cosRAAN, sinRAAN := math.Cos(raan), math.Sin(raan)
	cosInc, sinInc := math.Cos(inc), math.Sin(inc)
	cosArgP, sinArgP := math.Cos(argp), math.Sin(argp)

	// Элементы композиции Rz(Ω)·Rx(i)·Rz(ω); третий столбец не нужен,
	// перифокальная z-компонента всегда нулевая.
	r11 := cosRAAN*cosArgP - sinRAAN*sinArgP*cosInc
	r12 := -cosRAAN*sinArgP - sinRAAN*cosArgP*cosInc
	r21 := sinRAAN*cosArgP + cosRAAN*sinArgP*cosInc
	r22 := -sinRAAN*sinArgP + cosRAAN*cosArgP*cosInc
	r31 := sinArgP * sinInc
	r32 := cosArgP * sinInc

	return ECIPosition{
		X: r11*xPF + r12*yPF,
		Y: r21*xPF + r22*yPF,
		Z: r31*xPF + r32*yPF,
	}
}
