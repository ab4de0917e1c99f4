package geo

import "math"

// Средний радиус Земли в метрах (сферическое приближение WGS-84).
const EarthRadiusM = 6371000.0

// Decision — решение геопроверки прибытия.
type Decision string

const (
	DecisionAutoApproved Decision = "auto_approved"
	DecisionNeedsStaff   Decision = "requires_staff_confirmation"
)

// Verification — результат проверки прибытия клиента.
type Verification struct {
	DistanceMeters float64
	Decision       Decision
}

// DistanceMeters возвращает расстояние по большой окружности между двумя
// точками (формула гаверсинуса). Координаты — градусы со знаком.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180.0
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c
}

// VerifyArrival считает расстояние от клиента до салона и принимает решение:
// автоподтверждение, если расстояние в пределах радиуса и заявленная точность
// координат не хуже допустимой; иначе требуется подтверждение сотрудника.
// Побочных эффектов нет.
func VerifyArrival(custLat, custLng, locLat, locLng, accuracyM, autoRadiusM, maxAccuracyM float64) Verification {
	dist := DistanceMeters(custLat, custLng, locLat, locLng)
	v := Verification{DistanceMeters: dist, Decision: DecisionNeedsStaff}
	if dist <= autoRadiusM && accuracyM <= maxAccuracyM {
		v.Decision = DecisionAutoApproved
	}
	return v
}
