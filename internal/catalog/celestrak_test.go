package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
)

// makeTLELine добавляет корректную контрольную сумму Modulo-10
// к строке TLE (68 символов без checksum).
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

// Тестовые TLE данные с корректными контрольными суммами.
var (
	testISSLine1    = makeTLELine("1 25544U 98067A   24001.50000000  .00016717  00000-0  10270-3 0  999")
	testISSLine2    = makeTLELine("2 25544  51.6400 247.4627 0006703 130.5360 325.0288 15.4981557142340")
	testMeteorLine1 = makeTLELine("1 40069U 14037A   24001.50000000  .00000123  00000-0  12345-4 0  999")
	testMeteorLine2 = makeTLELine("2 40069  98.5200  45.6789 0001234 123.4567 236.7890 14.2098765432109")

	testISSTLE = "ISS (ZARYA)\n" + testISSLine1 + "\n" + testISSLine2

	testGroupData = testISSTLE + "\n" +
		"METEOR-M2\n" + testMeteorLine1 + "\n" + testMeteorLine2
)

// TestClient_FetchByNoradID тестирует загрузку TLE по NORAD ID.
func TestClient_FetchByNoradID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "CATNR=25544") {
			http.NotFound(w, r)
			return
		}
		if !strings.Contains(r.URL.RawQuery, "FORMAT=TLE") {
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(testISSTLE))
	}))
	defer server.Close()

	client := NewClient(
		WithBaseURL(server.URL),
		WithRateLimit(0), // Отключаем rate limit для тестов
	)

	el, err := client.FetchByNoradID(context.Background(), 25544)
	if err != nil {
		t.Fatalf("FetchByNoradID() error = %v", err)
	}

	if el.NoradID != 25544 {
		t.Errorf("NoradID = %d, want 25544", el.NoradID)
	}
	if el.Name != "ISS (ZARYA)" {
		t.Errorf("Name = %q, want %q", el.Name, "ISS (ZARYA)")
	}
}

// TestClient_FetchByNoradID_NotFound тестирует ответ "No GP data found".
func TestClient_FetchByNoradID_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("No GP data found"))
	}))
	defer server.Close()

	client := NewClient(
		WithBaseURL(server.URL),
		WithRateLimit(0),
		WithMaxRetries(0),
	)

	_, err := client.FetchByNoradID(context.Background(), 99999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("FetchByNoradID() error = %v, want ErrNotFound", err)
	}
}

// TestClient_FetchGroup тестирует загрузку группы спутников.
func TestClient_FetchGroup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "GROUP=stations") {
			http.NotFound(w, r)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(testGroupData))
	}))
	defer server.Close()

	client := NewClient(
		WithBaseURL(server.URL),
		WithRateLimit(0),
	)

	result, err := client.FetchGroup(context.Background(), GroupStations)
	if err != nil {
		t.Fatalf("FetchGroup() error = %v", err)
	}

	if len(result.Elements) != 2 {
		t.Fatalf("FetchGroup() returned %d elements, want 2", len(result.Elements))
	}
	if len(result.Skipped) != 0 {
		t.Errorf("FetchGroup() skipped = %v, want none", result.Skipped)
	}
	if result.Elements[0].NoradID != 25544 || result.Elements[1].NoradID != 40069 {
		t.Errorf("NORAD IDs = %d, %d, want 25544, 40069",
			result.Elements[0].NoradID, result.Elements[1].NoradID)
	}
}

// TestClient_FetchGroup_PartialBatch: побитая запись в группе не валит
// загрузку — она попадает в Skipped.
func TestClient_FetchGroup_PartialBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(testISSTLE + "\nBROKEN\n" + testMeteorLine1[:30] + "\n" + testMeteorLine2))
	}))
	defer server.Close()

	client := NewClient(
		WithBaseURL(server.URL),
		WithRateLimit(0),
	)

	result, err := client.FetchGroup(context.Background(), GroupStations)
	if err != nil {
		t.Fatalf("FetchGroup() error = %v", err)
	}

	if len(result.Elements) != 1 {
		t.Errorf("FetchGroup() returned %d elements, want 1", len(result.Elements))
	}
	if len(result.Skipped) == 0 {
		t.Error("FetchGroup() Skipped пуст, want хотя бы одну запись")
	}
}

// TestClient_Retry: ошибки 5xx повторяются, успешный ответ завершает цикл.
func TestClient_Retry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(testISSTLE))
	}))
	defer server.Close()

	client := NewClient(
		WithBaseURL(server.URL),
		WithRateLimit(0),
		WithMaxRetries(2),
	)

	el, err := client.FetchByNoradID(context.Background(), 25544)
	if err != nil {
		t.Fatalf("FetchByNoradID() error = %v", err)
	}
	if el.NoradID != 25544 {
		t.Errorf("NoradID = %d, want 25544", el.NoradID)
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2", calls.Load())
	}
}

// TestClient_NotFoundNoRetry: 404 не повторяется.
func TestClient_NotFoundNoRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(
		WithBaseURL(server.URL),
		WithRateLimit(0),
		WithMaxRetries(3),
	)

	_, err := client.FetchByNoradID(context.Background(), 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("FetchByNoradID() error = %v, want ErrNotFound", err)
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1 (no retries on 404)", calls.Load())
	}
}

// TestIsValidGroup проверяет справочник групп.
func TestIsValidGroup(t *testing.T) {
	if !IsValidGroup("stations") {
		t.Error(`IsValidGroup("stations") = false, want true`)
	}
	if IsValidGroup("no-such-group") {
		t.Error(`IsValidGroup("no-such-group") = true, want false`)
	}
	if len(AvailableGroupNames()) != len(AvailableGroups()) {
		t.Error("AvailableGroupNames() и AvailableGroups() разной длины")
	}
}
