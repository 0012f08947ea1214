package orbit

import "time"

// ExpandEpochYear разворачивает двухзначный год эпохи TLE в четырёхзначный.
// Окно по конвенции формата: 57-99 -> 19xx, 00-56 -> 20xx,
// то есть допустимые эпохи лежат в 1957-2056 годах.
func ExpandEpochYear(yy int) int {
	if yy >= 100 {
		return yy // уже четырёхзначный
	}
	if yy >= 57 {
		return 1900 + yy
	}
	return 2000 + yy
}

// EpochTime преобразует эпоху TLE (год + день года с дробной частью)
// в абсолютное время UTC.
// dayOfYear = 1.0 означает начало 1 января, 1.5 — полдень 1 января.
func EpochTime(year int, dayOfYear float64) time.Time {
	base := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration((dayOfYear - 1) * 24 * float64(time.Hour)))
}

// ElapsedSince возвращает число секунд между эпохой элементов и моментом t.
// Отрицательное значение означает момент до эпохи.
func (el *OrbitalElements) ElapsedSince(t time.Time) float64 {
	return t.Sub(el.Epoch).Seconds()
}
