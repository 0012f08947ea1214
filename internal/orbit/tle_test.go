package orbit

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"
)

// makeTLELine добавляет корректную контрольную сумму к строке TLE
// (68 символов без checksum). Сумма считается по Modulo-10: цифры
// плюс единица за каждый минус. Парсер её не проверяет, но фикстуры
// держим честными.
func makeTLELine(line68 string) string {
	if len(line68) != 68 {
		panic(fmt.Sprintf("line must be 68 chars, got %d", len(line68)))
	}

	sum := 0
	for i := 0; i < len(line68); i++ {
		c := line68[i]
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}

	return line68 + strconv.Itoa(sum%10)
}

// Эталонные TLE для тестов (с автоматически рассчитанными контрольными суммами).
var (
	// ISS (ZARYA) - 3-line формат.
	issLine1 = makeTLELine("1 25544U 98067A   24001.50000000  .00016717  00000-0  10270-3 0  999")
	issLine2 = makeTLELine("2 25544  51.6400 247.4627 0006703 130.5360 325.0288 15.4981557142340")
	issTLE   = "ISS (ZARYA)\n" + issLine1 + "\n" + issLine2

	// Hubble Space Telescope - 2-line формат.
	hstLine1 = makeTLELine("1 20580U 90037B   24001.50000000  .00001234  00000-0  56789-4 0  999")
	hstLine2 = makeTLELine("2 20580  28.4700 120.3456 0002567  45.1234 315.0000 15.0987654312345")
	hstTLE   = hstLine1 + "\n" + hstLine2

	// Meteor-M2 - 3-line формат.
	meteorLine1 = makeTLELine("1 40069U 14037A   24001.50000000  .00000123  00000-0  12345-4 0  999")
	meteorLine2 = makeTLELine("2 40069  98.5200  45.6789 0001234 123.4567 236.7890 14.2098765432109")
	meteorTLE   = "METEOR-M2\n" + meteorLine1 + "\n" + meteorLine2
)

// TestParse_ThreeLine проверяет поколоночный разбор 3-line записи.
// Значения сверяются с литералами фикстуры поле-в-поле.
func TestParse_ThreeLine(t *testing.T) {
	parsed, errs := Parse(issTLE)
	if len(errs) != 0 {
		t.Fatalf("Parse() errors = %v, want none", errs)
	}
	if len(parsed) != 1 {
		t.Fatalf("Parse() returned %d records, want 1", len(parsed))
	}

	el := parsed[0]

	if el.Name != "ISS (ZARYA)" {
		t.Errorf("Name = %q, want %q", el.Name, "ISS (ZARYA)")
	}
	if el.Identifier() != "ISS (ZARYA)" {
		t.Errorf("Identifier() = %q, want %q", el.Identifier(), "ISS (ZARYA)")
	}
	if el.NoradID != 25544 {
		t.Errorf("NoradID = %d, want %d", el.NoradID, 25544)
	}
	if el.Classification != "U" {
		t.Errorf("Classification = %q, want %q", el.Classification, "U")
	}
	if el.IntlDesignator != "98067A" {
		t.Errorf("IntlDesignator = %q, want %q", el.IntlDesignator, "98067A")
	}

	fields := []struct {
		name string
		got  float64
		want float64
	}{
		{"InclinationDeg", el.InclinationDeg, 51.6400},
		{"RAANDeg", el.RAANDeg, 247.4627},
		{"Eccentricity", el.Eccentricity, 0.0006703},
		{"ArgPerigeeDeg", el.ArgPerigeeDeg, 130.5360},
		{"MeanAnomalyDeg", el.MeanAnomalyDeg, 325.0288},
		{"MeanMotionRevPerDay", el.MeanMotionRevPerDay, 15.49815571},
		{"EpochDay", el.EpochDay, 1.50000000},
	}
	for _, f := range fields {
		if math.Abs(f.got-f.want) > 1e-9 {
			t.Errorf("%s = %.9f, want %.9f", f.name, f.got, f.want)
		}
	}

	if el.EpochYear != 2024 {
		t.Errorf("EpochYear = %d, want %d", el.EpochYear, 2024)
	}
	wantEpoch := time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)
	if !el.Epoch.Equal(wantEpoch) {
		t.Errorf("Epoch = %v, want %v", el.Epoch, wantEpoch)
	}

	// Контрольные цифры читаются в поля как есть.
	wantCS1 := int(issLine1[68] - '0')
	wantCS2 := int(issLine2[68] - '0')
	if el.Line1Checksum != wantCS1 {
		t.Errorf("Line1Checksum = %d, want %d", el.Line1Checksum, wantCS1)
	}
	if el.Line2Checksum != wantCS2 {
		t.Errorf("Line2Checksum = %d, want %d", el.Line2Checksum, wantCS2)
	}
}

// TestParse_TwoLine проверяет 2-line формат без строки-названия.
func TestParse_TwoLine(t *testing.T) {
	parsed, errs := Parse(hstTLE)
	if len(errs) != 0 {
		t.Fatalf("Parse() errors = %v, want none", errs)
	}
	if len(parsed) != 1 {
		t.Fatalf("Parse() returned %d records, want 1", len(parsed))
	}

	el := parsed[0]
	if el.Name != "" {
		t.Errorf("Name = %q, want empty", el.Name)
	}
	if el.Identifier() != "20580" {
		t.Errorf("Identifier() = %q, want %q", el.Identifier(), "20580")
	}
	if el.NoradID != 20580 {
		t.Errorf("NoradID = %d, want %d", el.NoradID, 20580)
	}
}

// TestParse_MultipleRecords проверяет сохранение порядка записей.
func TestParse_MultipleRecords(t *testing.T) {
	text := issTLE + "\n\n" + hstTLE + "\n" + meteorTLE + "\n"

	parsed, errs := Parse(text)
	if len(errs) != 0 {
		t.Fatalf("Parse() errors = %v, want none", errs)
	}
	if len(parsed) != 3 {
		t.Fatalf("Parse() returned %d records, want 3", len(parsed))
	}

	wantIDs := []int{25544, 20580, 40069}
	for i, want := range wantIDs {
		if parsed[i].NoradID != want {
			t.Errorf("parsed[%d].NoradID = %d, want %d", i, parsed[i].NoradID, want)
		}
	}
}

// TestParse_BatchPartialFailure проверяет частичный батч: обрезанная
// вторая запись даёт ровно одну ошибку с её индексом, записи 1 и 3
// разбираются как обычно.
func TestParse_BatchPartialFailure(t *testing.T) {
	truncated := hstLine2[:40] // Line 2 короче минимума
	text := issTLE + "\n" + hstLine1 + "\n" + truncated + "\n" + meteorTLE

	parsed, errs := Parse(text)

	if len(parsed) != 2 {
		t.Fatalf("Parse() returned %d records, want 2", len(parsed))
	}
	if parsed[0].NoradID != 25544 || parsed[1].NoradID != 40069 {
		t.Errorf("parsed NORAD IDs = %d, %d, want 25544, 40069", parsed[0].NoradID, parsed[1].NoradID)
	}

	if len(errs) != 1 {
		t.Fatalf("Parse() returned %d errors, want 1: %v", len(errs), errs)
	}
	if errs[0].Record != 2 {
		t.Errorf("RecordError.Record = %d, want 2", errs[0].Record)
	}
	if !errors.Is(errs[0], ErrLineTooShort) {
		t.Errorf("RecordError cause = %v, want ErrLineTooShort", errs[0].Err)
	}
}

// TestParse_Malformed проверяет структурные ошибки отдельных записей.
func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantErr  error
		wantRec  int
		wantGood int
	}{
		{
			name:     "Line 2 without Line 1",
			text:     issLine2,
			wantErr:  ErrMalformedRecord,
			wantRec:  1,
			wantGood: 0,
		},
		{
			name:     "Line 1 without Line 2",
			text:     "SAT-X\n" + issLine1,
			wantErr:  ErrMalformedRecord,
			wantRec:  1,
			wantGood: 0,
		},
		{
			name:     "Line 1 without Line 2 then valid record",
			text:     hstLine1 + "\n" + issTLE,
			wantErr:  ErrMalformedRecord,
			wantRec:  1,
			wantGood: 1,
		},
		{
			name:     "short Line 1",
			text:     issLine1[:30] + "\n" + issLine2,
			wantErr:  ErrLineTooShort,
			wantRec:  1,
			wantGood: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, errs := Parse(tt.text)
			if len(parsed) != tt.wantGood {
				t.Errorf("parsed %d records, want %d", len(parsed), tt.wantGood)
			}
			if len(errs) == 0 {
				t.Fatal("Parse() returned no errors")
			}
			if !errors.Is(errs[0], tt.wantErr) {
				t.Errorf("error = %v, want %v", errs[0], tt.wantErr)
			}
			if errs[0].Record != tt.wantRec {
				t.Errorf("Record = %d, want %d", errs[0].Record, tt.wantRec)
			}
			if errs[0].Line == "" {
				t.Error("RecordError.Line is empty, want offending line content")
			}
		})
	}
}

// TestParse_ChecksumNotValidated: запись с заведомо неверной контрольной
// цифрой разбирается как обычно, а цифра читается в поле как есть.
func TestParse_ChecksumNotValidated(t *testing.T) {
	bad1 := issLine1[:68] + "0"
	if bad1 == issLine1 {
		bad1 = issLine1[:68] + "1"
	}
	text := "ISS (ZARYA)\n" + bad1 + "\n" + issLine2

	parsed, errs := Parse(text)
	if len(errs) != 0 {
		t.Fatalf("Parse() errors = %v, want none (checksum must not be validated)", errs)
	}
	if len(parsed) != 1 {
		t.Fatalf("Parse() returned %d records, want 1", len(parsed))
	}

	want := int(bad1[68] - '0')
	if parsed[0].Line1Checksum != want {
		t.Errorf("Line1Checksum = %d, want %d", parsed[0].Line1Checksum, want)
	}
}

// TestParse_InvalidElements проверяет отбраковку записи с нулевым
// средним движением.
func TestParse_InvalidElements(t *testing.T) {
	line2 := makeTLELine("2 25544  51.6400 247.4627 0006703 130.5360 325.0288 00.0000000042340")
	text := issLine1 + "\n" + line2

	parsed, errs := Parse(text)
	if len(parsed) != 0 {
		t.Fatalf("Parse() returned %d records, want 0", len(parsed))
	}
	if len(errs) != 1 {
		t.Fatalf("Parse() returned %d errors, want 1", len(errs))
	}
	if !errors.Is(errs[0], ErrInvalidElements) {
		t.Errorf("error = %v, want ErrInvalidElements", errs[0])
	}
}

// TestParse_NegativeAnglesNormalized: углы принимаются в любом диапазоне,
// на выходе нормализуются в [0, 360).
func TestParse_NegativeAnglesNormalized(t *testing.T) {
	line2 := makeTLELine("2 25544  51.6400 -47.4627 0006703 -30.5360 -25.0288 15.4981557142340")
	text := issLine1 + "\n" + line2

	parsed, errs := Parse(text)
	if len(errs) != 0 {
		t.Fatalf("Parse() errors = %v, want none", errs)
	}

	el := parsed[0]
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"RAANDeg", el.RAANDeg, 312.5373},
		{"ArgPerigeeDeg", el.ArgPerigeeDeg, 329.4640},
		{"MeanAnomalyDeg", el.MeanAnomalyDeg, 334.9712},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-9 {
			t.Errorf("%s = %.6f, want %.6f", c.name, c.got, c.want)
		}
		if c.got < 0 || c.got >= 360 {
			t.Errorf("%s = %.6f outside [0, 360)", c.name, c.got)
		}
	}
}

// TestParseNoradID_Alpha5 проверяет Alpha-5 формат каталожных номеров.
func TestParseNoradID_Alpha5(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"25544", 25544, false},
		{"A0000", 100000, false},
		{"B1234", 111234, false},
		{"Z9999", 339999, false},
		{"I0000", 0, true}, // I не используется
		{"O0000", 0, true}, // O не используется
		{"A12", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseNoradID(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseNoradID(%q) expected error, got %d", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseNoradID(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseNoradID(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

// TestExpandEpochYear проверяет окно двухзначного года 1957-2056.
func TestExpandEpochYear(t *testing.T) {
	tests := []struct {
		yy   int
		want int
	}{
		{57, 1957},
		{99, 1999},
		{0, 2000},
		{24, 2024},
		{56, 2056},
	}

	for _, tt := range tests {
		if got := ExpandEpochYear(tt.yy); got != tt.want {
			t.Errorf("ExpandEpochYear(%d) = %d, want %d", tt.yy, got, tt.want)
		}
	}
}

// TestEpochTime проверяет перевод дня года с дробной частью в UTC.
func TestEpochTime(t *testing.T) {
	tests := []struct {
		year int
		day  float64
		want time.Time
	}{
		{2024, 1.0, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)},
		{2024, 1.5, time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)},
		{2024, 32.25, time.Date(2024, time.February, 1, 6, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got := EpochTime(tt.year, tt.day)
		if !got.Equal(tt.want) {
			t.Errorf("EpochTime(%d, %v) = %v, want %v", tt.year, tt.day, got, tt.want)
		}
	}
}

// TestOrbitalElements_Derived проверяет производные величины для МКС.
func TestOrbitalElements_Derived(t *testing.T) {
	parsed, errs := Parse(issTLE)
	if len(errs) != 0 || len(parsed) != 1 {
		t.Fatalf("Parse() = %d records, %d errors", len(parsed), len(errs))
	}
	el := parsed[0]

	period := el.OrbitalPeriod()
	if period < 92 || period > 94 {
		t.Errorf("OrbitalPeriod() = %.3f min, want ~92.9", period)
	}

	a := el.SemiMajorAxisKm()
	if a < 6700 || a > 6900 {
		t.Errorf("SemiMajorAxisKm() = %.1f, want ~6796", a)
	}

	if el.Apogee() <= el.Perigee() {
		t.Errorf("Apogee() = %.1f must exceed Perigee() = %.1f", el.Apogee(), el.Perigee())
	}
}

// TestOrbitalElements_String проверяет обратную сборку 3-line формата.
func TestOrbitalElements_String(t *testing.T) {
	parsed, _ := Parse(issTLE)
	got := parsed[0].String()
	if got != issTLE {
		t.Errorf("String() =\n%s\nwant\n%s", got, issTLE)
	}

	parsed, _ = Parse(hstTLE)
	got = parsed[0].String()
	if got != hstTLE {
		t.Errorf("String() без имени =\n%s\nwant\n%s", got, hstTLE)
	}

	// round-trip: текст из String() разбирается в те же элементы.
	again, errs := Parse(got)
	if len(errs) != 0 || len(again) != 1 {
		t.Fatalf("re-Parse(String()) = %d records, %d errors", len(again), len(errs))
	}
	if again[0].NoradID != 20580 {
		t.Errorf("re-parsed NoradID = %d, want 20580", again[0].NoradID)
	}
}

// TestParse_WhitespaceOnly: пустой вход не даёт ни записей, ни ошибок.
func TestParse_WhitespaceOnly(t *testing.T) {
	for _, text := range []string{"", "\n\n", "   \n\t\n"} {
		parsed, errs := Parse(text)
		if len(parsed) != 0 || len(errs) != 0 {
			t.Errorf("Parse(%q) = %d records, %d errors, want 0, 0", text, len(parsed), len(errs))
		}
	}
}

// TestRecordError_Message: в сообщении есть индекс записи и имя.
func TestRecordError_Message(t *testing.T) {
	text := "BROKEN SAT\n" + issLine1[:30] + "\n" + issLine2
	_, errs := Parse(text)
	if len(errs) != 1 {
		t.Fatalf("Parse() returned %d errors, want 1", len(errs))
	}

	msg := errs[0].Error()
	if !strings.Contains(msg, "record 1") || !strings.Contains(msg, "BROKEN SAT") {
		t.Errorf("Error() = %q, want record index and satellite name", msg)
	}
}
