// Package orbit реализует разбор TLE и кеплеровское прогнозирование положения спутников.
package orbit

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Ошибки парсинга TLE
var (
	ErrMalformedRecord   = errors.New("malformed TLE record")
	ErrInvalidLineNumber = errors.New("invalid TLE line number")
	ErrLineTooShort      = errors.New("TLE line too short")
	ErrInvalidAlpha5     = errors.New("invalid Alpha-5 NORAD ID format")
	ErrInvalidElements   = errors.New("invalid orbital elements")
)

// alpha5Map маппинг букв Alpha-5 формата на числовые префиксы.
// Alpha-5 используется для NORAD ID > 99999 (например, Starlink).
// Буквы I и O не используются (путаются с 1 и 0).
// A=10, B=11, ..., H=17, J=18, ..., N=22, P=23, ..., Z=33
var alpha5Map = map[byte]int{
	'A': 10, 'B': 11, 'C': 12, 'D': 13, 'E': 14, 'F': 15, 'G': 16, 'H': 17,
	'J': 18, 'K': 19, 'L': 20, 'M': 21, 'N': 22,
	'P': 23, 'Q': 24, 'R': 25, 'S': 26, 'T': 27, 'U': 28, 'V': 29, 'W': 30,
	'X': 31, 'Y': 32, 'Z': 33,
}

// OrbitalElements представляет набор орбитальных элементов одного спутника,
// извлечённый из TLE записи. Формат описан:
// https://celestrak.org/NORAD/documentation/tle-fmt.php
//
// Набор создаётся один раз при парсинге и далее не изменяется: пропагатор
// читает элементы и порождает новые состояния, не трогая исходную запись.
type OrbitalElements struct {
	Name           string    // Имя спутника (из строки-названия, если есть)
	NoradID        int       // NORAD каталожный номер (с поддержкой Alpha-5)
	Classification string    // Классификация: U=Unclassified, C=Classified, S=Secret
	IntlDesignator string    // Международное обозначение (COSPAR ID): YYnnnAAA
	EpochYear      int       // Год эпохи (4 цифры, окно 1957-2056)
	EpochDay       float64   // День года эпохи с дробной частью (1.0 = начало 1 января)
	Epoch          time.Time // Эпоха элементов (UTC)

	InclinationDeg      float64 // Наклонение орбиты (градусы, [0, 360))
	RAANDeg             float64 // Долгота восходящего узла (градусы, [0, 360))
	Eccentricity        float64 // Эксцентриситет (безразмерный, [0, 1))
	ArgPerigeeDeg       float64 // Аргумент перигея (градусы, [0, 360))
	MeanAnomalyDeg      float64 // Средняя аномалия на эпоху (градусы, [0, 360))
	MeanMotionRevPerDay float64 // Среднее движение (оборотов/день, > 0)

	// Контрольные цифры строк: читаются, но НЕ проверяются.
	// Отбраковка по checksum вне рамок парсера; -1 если символ не цифра.
	Line1Checksum int
	Line2Checksum int

	Line1 string // Оригинальная Line 1
	Line2 string // Оригинальная Line 2
}

// RecordError описывает ошибку разбора одной записи внутри батча.
// Батч при этом не прерывается: ошибочная запись пропускается,
// а ошибка накапливается рядом с успешно разобранными элементами.
type RecordError struct {
	Record int    // Порядковый номер записи во входном тексте (с 1)
	Name   string // Имя спутника из строки-названия, если была
	Line   string // Строка, на которой запись сломалась
	Err    error  // Причина
}

// Error реализует интерфейс error.
func (e *RecordError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("record %d (%s): %v", e.Record, e.Name, e.Err)
	}
	return fmt.Sprintf("record %d: %v", e.Record, e.Err)
}

// Unwrap возвращает причину ошибки.
func (e *RecordError) Unwrap() error {
	return e.Err
}

// Константы формата TLE
const (
	// TLELineLength минимальная длина элементной строки:
	// 68 символов данных + контрольная цифра.
	TLELineLength = 69
)

// Колоночная раскладка полей TLE (индексы байтов, полуинтервалы [lo, hi)).
// Нумерация колонок в комментариях — по спецификации формата (с 1).
const (
	colNoradID   = 2  // Line1/Line2 cols 3-7: каталожный номер
	colNoradEnd  = 7  //
	colEpochYear = 18 // Line1 cols 19-20: две цифры года
	colEpochDay  = 20 // Line1 cols 21-32: день года с дробной частью
	colEpochEnd  = 32 //
	colIncl      = 8  // Line2 cols 9-16: наклонение (градусы)
	colInclEnd   = 16 //
	colRAAN      = 17 // Line2 cols 18-25: RAAN (градусы)
	colRAANEnd   = 25 //
	colEcc       = 26 // Line2 cols 27-33: эксцентриситет без "0."
	colEccEnd    = 33 //
	colArgP      = 34 // Line2 cols 35-42: аргумент перигея (градусы)
	colArgPEnd   = 42 //
	colMeanAnom  = 43 // Line2 cols 44-51: средняя аномалия (градусы)
	colMeanEnd   = 51 //
	colMeanMot   = 52 // Line2 cols 53-63: среднее движение (об/день)
	colMeanMotE  = 63 //
	colChecksum  = 68 // Line1/Line2 col 69: контрольная цифра
)

// Parse разбирает сырой TLE текст с одной или несколькими записями.
// Каждая запись — две фиксированные по колонкам строки, опционально
// с предшествующей строкой-названием. Пустые строки игнорируются.
//
// Парсер не прерывает батч на ошибочной записи: возвращаются и успешно
// разобранные элементы (в порядке входа), и список ошибок по записям.
func Parse(text string) ([]*OrbitalElements, []*RecordError) {
	var (
		parsed []*OrbitalElements
		errs   []*RecordError
		record int
		name   string
		line1  string
	)

	fail := func(line string, err error) {
		record++
		errs = append(errs, &RecordError{
			Record: record,
			Name:   name,
			Line:   line,
			Err:    err,
		})
		name, line1 = "", ""
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		switch {
		case line[0] == '1':
			if line1 != "" {
				// Предыдущая запись осталась без Line 2.
				prev := line1
				fail(prev, fmt.Errorf("%w: missing Line 2", ErrMalformedRecord))
			}
			line1 = line

		case line[0] == '2':
			if line1 == "" {
				fail(line, fmt.Errorf("%w: Line 2 without Line 1", ErrMalformedRecord))
				continue
			}

			record++
			el, err := parseRecord(name, line1, line)
			if err != nil {
				errs = append(errs, &RecordError{
					Record: record,
					Name:   name,
					Line:   badLine(line1, line, err),
					Err:    err,
				})
			} else {
				parsed = append(parsed, el)
			}
			name, line1 = "", ""

		default:
			if line1 != "" {
				prev := line1
				fail(prev, fmt.Errorf("%w: missing Line 2", ErrMalformedRecord))
			}
			// Строка-название следующей записи.
			name = line
		}
	}

	// Хвост входа: Line 1 без пары.
	if line1 != "" {
		fail(line1, fmt.Errorf("%w: missing Line 2", ErrMalformedRecord))
	}

	return parsed, errs
}

// badLine выбирает строку для отчёта об ошибке: Line 1 для ошибок первой
// строки, иначе Line 2.
func badLine(line1, line2 string, err error) string {
	if strings.Contains(err.Error(), "Line 1") {
		return line1
	}
	return line2
}

// parseRecord разбирает одну пару строк TLE в набор элементов.
func parseRecord(name, line1, line2 string) (*OrbitalElements, error) {
	if len(line1) < TLELineLength {
		return nil, fmt.Errorf("%w: Line 1 length %d, need %d", ErrLineTooShort, len(line1), TLELineLength)
	}
	if len(line2) < TLELineLength {
		return nil, fmt.Errorf("%w: Line 2 length %d, need %d", ErrLineTooShort, len(line2), TLELineLength)
	}

	if line1[0] != '1' {
		return nil, fmt.Errorf("%w: Line 1 starts with %c, expected 1", ErrInvalidLineNumber, line1[0])
	}
	if line2[0] != '2' {
		return nil, fmt.Errorf("%w: Line 2 starts with %c, expected 2", ErrInvalidLineNumber, line2[0])
	}

	el := &OrbitalElements{
		Name:  name,
		Line1: line1,
		Line2: line2,
	}

	if err := parseLine1(el, line1); err != nil {
		return nil, fmt.Errorf("Line 1: %w", err)
	}
	if err := parseLine2(el, line2); err != nil {
		return nil, fmt.Errorf("Line 2: %w", err)
	}

	// Инварианты элементов: e в [0, 1), n > 0. Эксцентриситет из цифр
	// "0.ddddddd" всегда меньше единицы, но проверяем оба явно.
	if el.Eccentricity < 0 || el.Eccentricity >= 1 {
		return nil, fmt.Errorf("%w: eccentricity %v outside [0, 1)", ErrInvalidElements, el.Eccentricity)
	}
	if el.MeanMotionRevPerDay <= 0 {
		return nil, fmt.Errorf("%w: mean motion %v rev/day, must be positive", ErrInvalidElements, el.MeanMotionRevPerDay)
	}

	return el, nil
}

// parseLine1 извлекает данные из Line 1.
// Формат Line 1:
//
//	Col  1      Line Number (1)
//	Col  3-7    Satellite Number (NORAD ID, поддерживает Alpha-5)
//	Col  8      Classification (U/C/S)
//	Col 10-17   International Designator
//	Col 19-32   Epoch (YY + DDD.DDDDDDDD)
//	Col 69      Checksum (читается, не проверяется)
//
// Производные среднего движения и BSTAR (cols 34-61) парсеру не нужны:
// кеплеровская модель их не использует.
func parseLine1(el *OrbitalElements, line string) error {
	var err error

	// NORAD ID (cols 3-7) с поддержкой Alpha-5 формата
	el.NoradID, err = parseNoradID(strings.TrimSpace(line[colNoradID:colNoradEnd]))
	if err != nil {
		return fmt.Errorf("NORAD ID: %w", err)
	}

	// Classification (col 8)
	el.Classification = string(line[7])

	// International Designator (cols 10-17)
	el.IntlDesignator = strings.TrimSpace(line[9:17])

	// Epoch (cols 19-32): YY + DDD.DDDDDDDD
	yearStr := line[colEpochYear:colEpochDay]
	year, err := strconv.Atoi(strings.TrimSpace(yearStr))
	if err != nil {
		return fmt.Errorf("epoch year %q: %w", yearStr, err)
	}

	dayStr := strings.TrimSpace(line[colEpochDay:colEpochEnd])
	day, err := strconv.ParseFloat(dayStr, 64)
	if err != nil {
		return fmt.Errorf("epoch day %q: %w", dayStr, err)
	}

	el.EpochYear = ExpandEpochYear(year)
	el.EpochDay = day
	el.Epoch = EpochTime(el.EpochYear, day)

	// Контрольная цифра (col 69): только читаем.
	el.Line1Checksum = readChecksum(line)

	return nil
}

// parseLine2 извлекает данные из Line 2.
// Формат Line 2:
//
//	Col  1      Line Number (2)
//	Col  3-7    Satellite Number (NORAD ID)
//	Col  9-16   Inclination (degrees)
//	Col 18-25   RAAN (degrees)
//	Col 27-33   Eccentricity (подразумевается "0." перед цифрами)
//	Col 35-42   Argument of Perigee (degrees)
//	Col 44-51   Mean Anomaly (degrees)
//	Col 53-63   Mean Motion (revs/day)
//	Col 69      Checksum (читается, не проверяется)
//
// Углы на выходе нормализуются в [0, 360); на входе допускается любой
// вещественный диапазон.
func parseLine2(el *OrbitalElements, line string) error {
	incl, err := fieldFloat(line, colIncl, colInclEnd, "inclination")
	if err != nil {
		return err
	}
	el.InclinationDeg = NormalizeDeg(incl)

	raan, err := fieldFloat(line, colRAAN, colRAANEnd, "RAAN")
	if err != nil {
		return err
	}
	el.RAANDeg = NormalizeDeg(raan)

	// Эксцентриситет (cols 27-33): в TLE хранится без десятичной точки,
	// цифры интерпретируются как "0.<digits>".
	eccStr := strings.TrimSpace(line[colEcc:colEccEnd])
	ecc, err := strconv.ParseFloat("0."+eccStr, 64)
	if err != nil {
		return fmt.Errorf("eccentricity %q: %w", eccStr, err)
	}
	el.Eccentricity = ecc

	argp, err := fieldFloat(line, colArgP, colArgPEnd, "argument of perigee")
	if err != nil {
		return err
	}
	el.ArgPerigeeDeg = NormalizeDeg(argp)

	meanAnom, err := fieldFloat(line, colMeanAnom, colMeanEnd, "mean anomaly")
	if err != nil {
		return err
	}
	el.MeanAnomalyDeg = NormalizeDeg(meanAnom)

	el.MeanMotionRevPerDay, err = fieldFloat(line, colMeanMot, colMeanMotE, "mean motion")
	if err != nil {
		return err
	}

	el.Line2Checksum = readChecksum(line)

	return nil
}

// fieldFloat извлекает вещественное поле по фиксированным колонкам.
// lo, hi — байтовые индексы полуинтервала; в сообщении об ошибке
// колонки приводятся в нумерации спецификации (с 1).
func fieldFloat(line string, lo, hi int, what string) (float64, error) {
	s := strings.TrimSpace(line[lo:hi])
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s (cols %d-%d) %q: %w", what, lo+1, hi, s, err)
	}
	return v, nil
}

// readChecksum читает контрольную цифру (col 69) без проверки.
// Возвращает -1, если символ не является цифрой.
func readChecksum(line string) int {
	c := line[colChecksum]
	if c < '0' || c > '9' {
		return -1
	}
	return int(c - '0')
}

// parseNoradID парсит NORAD ID с поддержкой Alpha-5 формата.
// Стандартный формат: 5 цифр (00001-99999)
// Alpha-5 формат: буква + 4 цифры (A0000-Z9999 = 100000-339999)
func parseNoradID(s string) (int, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidAlpha5)
	}

	firstChar := s[0]

	if firstChar >= 'A' && firstChar <= 'Z' {
		prefix, ok := alpha5Map[firstChar]
		if !ok {
			return 0, fmt.Errorf("%w: invalid letter %c (I and O not allowed)", ErrInvalidAlpha5, firstChar)
		}

		if len(s) < 5 {
			return 0, fmt.Errorf("%w: too short", ErrInvalidAlpha5)
		}

		rest, err := strconv.Atoi(s[1:5])
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidAlpha5, err)
		}

		// Alpha-5: prefix * 10000 + rest
		// A0000 = 10 * 10000 + 0 = 100000
		// Z9999 = 33 * 10000 + 9999 = 339999
		return prefix*10000 + rest, nil
	}

	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid NORAD ID: %w", err)
	}

	return id, nil
}

// Identifier возвращает уникальный ключ спутника внутри батча:
// имя из строки-названия, либо каталожный номер.
func (el *OrbitalElements) Identifier() string {
	if el.Name != "" {
		return el.Name
	}
	return strconv.Itoa(el.NoradID)
}

// OrbitalPeriod возвращает орбитальный период в минутах.
func (el *OrbitalElements) OrbitalPeriod() float64 {
	if el.MeanMotionRevPerDay == 0 {
		return 0
	}
	return 1440.0 / el.MeanMotionRevPerDay // 1440 минут в сутках
}

// SemiMajorAxisKm возвращает большую полуось орбиты в километрах,
// выведенную из среднего движения по третьему закону Кеплера:
// a = (μ / n²)^(1/3), n — среднее движение в рад/с.
func (el *OrbitalElements) SemiMajorAxisKm() float64 {
	return semiMajorAxisKm(el.MeanMotionRevPerDay, DefaultMuKm3S2)
}

// Apogee возвращает высоту апогея в километрах над поверхностью Земли.
func (el *OrbitalElements) Apogee() float64 {
	return el.SemiMajorAxisKm()*(1+el.Eccentricity) - EarthRadiusKm
}

// Perigee возвращает высоту перигея в километрах над поверхностью Земли.
func (el *OrbitalElements) Perigee() float64 {
	return el.SemiMajorAxisKm()*(1-el.Eccentricity) - EarthRadiusKm
}

// Age возвращает возраст набора элементов (время с эпохи).
func (el *OrbitalElements) Age() time.Duration {
	return time.Since(el.Epoch)
}

// IsStale возвращает true если набор старше указанного количества дней.
func (el *OrbitalElements) IsStale(maxAgeDays float64) bool {
	ageDays := el.Age().Hours() / 24
	return ageDays > maxAgeDays
}

// String возвращает запись в 3-line формате.
func (el *OrbitalElements) String() string {
	if el.Name != "" {
		return fmt.Sprintf("%s\n%s\n%s", el.Name, el.Line1, el.Line2)
	}
	return fmt.Sprintf("%s\n%s", el.Line1, el.Line2)
}

// semiMajorAxisKm выводит большую полуось (км) из среднего движения
// (об/день) для заданного гравитационного параметра μ (км³/с²).
func semiMajorAxisKm(meanMotionRevPerDay, mu float64) float64 {
	n := meanMotionRevPerDay * 2 * math.Pi / secondsPerDay // рад/с
	if n == 0 {
		return 0
	}
	return math.Pow(mu/(n*n), 1.0/3.0)
}
