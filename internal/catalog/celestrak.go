// Package catalog хранит разобранные наборы орбитальных элементов и
// умеет пополнять их из Celestrak с файловым кешем на случай недоступности.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/art-injener/orbitviz-go/internal/orbit"
)

// Константы Celestrak API
const (
	// CelestrakBaseURL базовый URL Celestrak GP API.
	CelestrakBaseURL = "https://celestrak.org/NORAD/elements/gp.php"

	// DefaultRateLimit минимальный интервал между запросами (рекомендация Celestrak).
	DefaultRateLimit = 2 * time.Second

	// DefaultTimeout таймаут HTTP запроса.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries количество повторных попыток.
	DefaultMaxRetries = 3
)

// Ошибки Celestrak клиента
var (
	ErrNotFound    = errors.New("satellite not found")
	ErrRateLimited = errors.New("rate limited (429)")
	ErrServerError = errors.New("server error")
)

// Group предустановленная группа спутников Celestrak.
type Group string

// Группы, которые умеет загружать приложение.
const (
	GroupStations Group = "stations" // МКС и связанные
	GroupWeather  Group = "weather"  // Метеорологические
	GroupAmateur  Group = "amateur"  // Радиолюбительские
	GroupCubesat  Group = "cubesat"  // CubeSat
	GroupStarlink Group = "starlink" // Starlink
	GroupGPS      Group = "gps-ops"  // GPS операционные
	GroupScience  Group = "science"  // Научные
	GroupGeo      Group = "geo"      // Геостационарные
	GroupActive   Group = "active"   // Все активные спутники
	GroupNew      Group = "tle-new"  // Последние запуски
)

// AvailableGroups возвращает список всех предустановленных групп.
func AvailableGroups() []Group {
	return []Group{
		GroupStations, GroupWeather, GroupAmateur, GroupCubesat,
		GroupStarlink, GroupGPS, GroupScience, GroupGeo,
		GroupActive, GroupNew,
	}
}

// AvailableGroupNames возвращает имена групп строками.
func AvailableGroupNames() []string {
	groups := AvailableGroups()
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, string(g))
	}
	return names
}

// IsValidGroup сообщает, известна ли группа.
func IsValidGroup(name string) bool {
	for _, g := range AvailableGroups() {
		if string(g) == name {
			return true
		}
	}
	return false
}

// FetchResult результат загрузки: разобранные элементы плюс ошибки
// отдельных записей. Побитые записи не валят всю группу.
type FetchResult struct {
	Elements []*orbit.OrbitalElements
	Skipped  []*orbit.RecordError
}

// Client HTTP клиент для загрузки TLE с Celestrak.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	rateLimit   time.Duration
	maxRetries  int
	lastRequest time.Time
	mu          sync.Mutex
}

// ClientOption функция настройки клиента.
type ClientOption func(*Client)

// WithHTTPClient устанавливает кастомный HTTP клиент.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimit устанавливает интервал между запросами.
func WithRateLimit(d time.Duration) ClientOption {
	return func(c *Client) {
		c.rateLimit = d
	}
}

// WithMaxRetries устанавливает количество повторных попыток.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBaseURL устанавливает базовый URL (для тестирования).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// NewClient создаёт новый клиент Celestrak.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		baseURL:    CelestrakBaseURL,
		rateLimit:  DefaultRateLimit,
		maxRetries: DefaultMaxRetries,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchGroup загружает и разбирает TLE группы спутников.
func (c *Client) FetchGroup(ctx context.Context, group Group) (*FetchResult, error) {
	url := fmt.Sprintf("%s?GROUP=%s&FORMAT=TLE", c.baseURL, group)

	data, err := c.fetch(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching group %s", group)
	}

	elements, skipped := orbit.Parse(data)
	return &FetchResult{Elements: elements, Skipped: skipped}, nil
}

// FetchByNoradID загружает TLE одного спутника по NORAD ID.
func (c *Client) FetchByNoradID(ctx context.Context, noradID int) (*orbit.OrbitalElements, error) {
	url := fmt.Sprintf("%s?CATNR=%d&FORMAT=TLE", c.baseURL, noradID)

	data, err := c.fetch(ctx, url)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching NORAD ID %d", noradID)
	}

	elements, skipped := orbit.Parse(data)
	if len(elements) == 0 {
		if len(skipped) > 0 {
			return nil, errors.Wrapf(ErrNotFound, "NORAD ID %d: %v", noradID, skipped[0])
		}
		return nil, errors.Wrapf(ErrNotFound, "NORAD ID %d", noradID)
	}

	return elements[0], nil
}

// fetch выполняет HTTP запрос с rate limiting и retry.
func (c *Client) fetch(ctx context.Context, url string) (string, error) {
	c.waitForRateLimit()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		data, err := c.doRequest(ctx, url)
		if err == nil {
			return data, nil
		}

		lastErr = err

		// Не повторяем при 404
		if errors.Is(err, ErrNotFound) {
			return "", err
		}
	}

	return "", errors.Wrapf(lastErr, "after %d retries", c.maxRetries)
}

// waitForRateLimit ждёт соблюдения rate limit.
func (c *Client) waitForRateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastRequest)
	if elapsed < c.rateLimit {
		time.Sleep(c.rateLimit - elapsed)
	}
	c.lastRequest = time.Now()
}

// doRequest выполняет один HTTP запрос.
func (c *Client) doRequest(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "creating request")
	}

	req.Header.Set("User-Agent", "OrbitViz/1.0 (https://github.com/art-injener/orbitviz-go)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "executing request")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// OK
	case http.StatusNotFound:
		return "", ErrNotFound
	case http.StatusTooManyRequests:
		return "", ErrRateLimited
	default:
		if resp.StatusCode >= 500 {
			return "", errors.Wrapf(ErrServerError, "status %d", resp.StatusCode)
		}
		return "", errors.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "reading response")
	}

	// Celestrak возвращает "No GP data found" при отсутствии данных
	if string(body) == "No GP data found" {
		return "", ErrNotFound
	}

	return string(body), nil
}
