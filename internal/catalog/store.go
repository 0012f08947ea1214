package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/art-injener/orbitviz-go/internal/orbit"
)

const (
	cacheMetaFilename = "cache_meta.json"
	tleCacheExtension = ".tle"
)

// ErrLoadGroupFailed ошибка при загрузке группы TLE.
var ErrLoadGroupFailed = errors.New("failed to load TLE group")

// Store реализует in-memory каталог орбитальных элементов с индексами
// и файловым кешем. Наборы элементов неизменяемы: обновление группы
// заменяет записи целиком, пропагация их не трогает.
type Store struct {
	mu sync.RWMutex

	// Основное хранилище: NORAD ID -> элементы
	catalog map[int]*orbit.OrbitalElements

	// Индекс по группам: group name -> []NORAD ID
	byGroup map[string][]int

	// Индекс по именам (lowercase): name -> []NORAD ID
	byName map[string][]int

	// Зависимости
	client *Client
	config *Config
	logger *slog.Logger

	// Background updater control
	stopCh chan struct{}
	doneCh chan struct{}
}

// CacheMeta содержит метаданные файлового кеша.
type CacheMeta struct {
	Groups map[string]CacheGroupMeta `json:"groups"`
}

// CacheGroupMeta метаданные группы в кеше.
type CacheGroupMeta struct {
	UpdatedAt time.Time `json:"updated_at"`
	Count     int       `json:"count"`
}

// StoreOption функция настройки Store.
type StoreOption func(*Store)

// WithLogger логгер для Store.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClient устанавливает клиент Celestrak.
func WithClient(client *Client) StoreOption {
	return func(s *Store) {
		s.client = client
	}
}

// NewStore создаёт новый Store с указанной конфигурацией.
func NewStore(cfg *Config, opts ...StoreOption) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Store{
		catalog: make(map[int]*orbit.OrbitalElements),
		byGroup: make(map[string][]int),
		byName:  make(map[string][]int),
		config:  cfg,
		client:  NewClient(),
		logger:  slog.Default(),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start запускает Store: загружает элементы и запускает автообновление.
func (s *Store) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting catalog store",
		"groups", s.config.Groups,
		"update_interval", s.config.UpdateInterval,
	)

	// Загрузка всех настроенных групп
	if err := s.LoadAllGroups(ctx); err != nil {
		s.logger.WarnContext(ctx, "initial catalog load had errors", "error", err)
		// Не возвращаем ошибку — можем работать с частичными данными
	}

	// Запуск фонового обновления
	go s.startUpdater(ctx)

	return nil
}

// Stop останавливает фоновое обновление и освобождает ресурсы.
func (s *Store) Stop() {
	s.logger.Info("stopping catalog store")
	close(s.stopCh)
	<-s.doneCh
	s.logger.Info("catalog store stopped")
}

// Get возвращает элементы по NORAD ID.
func (s *Store) Get(noradID int) (*orbit.OrbitalElements, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	el, ok := s.catalog[noradID]
	return el, ok
}

// GetByGroup возвращает все элементы указанной группы.
func (s *Store) GetByGroup(group string) []*orbit.OrbitalElements {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, ok := s.byGroup[strings.ToLower(group)]
	if !ok {
		return nil
	}

	out := make([]*orbit.OrbitalElements, 0, len(ids))
	for _, id := range ids {
		if el, exists := s.catalog[id]; exists {
			out = append(out, el)
		}
	}
	return out
}

// GetByName возвращает элементы по имени (case-insensitive, частичное совпадение).
func (s *Store) GetByName(name string) []*orbit.OrbitalElements {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lowerName := strings.ToLower(name)
	var out []*orbit.OrbitalElements

	// Точное совпадение по индексу
	if ids, ok := s.byName[lowerName]; ok {
		for _, id := range ids {
			if el, exists := s.catalog[id]; exists {
				out = append(out, el)
			}
		}
		return out
	}

	// Частичное совпадение (поиск по всем именам)
	for _, el := range s.catalog {
		if strings.Contains(strings.ToLower(el.Name), lowerName) {
			out = append(out, el)
		}
	}
	return out
}

// GetAll возвращает все элементы каталога.
func (s *Store) GetAll() []*orbit.OrbitalElements {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Collect(maps.Values(s.catalog))
}

// Add добавляет элементы в каталог и обновляет индексы.
// Существующая запись с тем же NORAD ID заменяется.
func (s *Store) Add(el *orbit.OrbitalElements) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.addInternal(el, "")
}

// AddWithGroup добавляет элементы с указанием группы.
func (s *Store) AddWithGroup(el *orbit.OrbitalElements, group string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.addInternal(el, group)
}

// Count возвращает количество записей в каталоге.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.catalog)
}

// StaleCount возвращает количество устаревших записей.
func (s *Store) StaleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, el := range s.catalog {
		if el.IsStale(s.config.MaxAgeDays) {
			count++
		}
	}
	return count
}

// Groups возвращает список всех групп в каталоге.
func (s *Store) Groups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Collect(maps.Keys(s.byGroup))
}

// GroupCount возвращает количество записей в указанной группе.
func (s *Store) GroupCount(group string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.byGroup[strings.ToLower(group)])
}

// LoadAllGroups загружает все настроенные группы.
func (s *Store) LoadAllGroups(ctx context.Context) error {
	var lastErr error

	for _, group := range s.config.Groups {
		if err := s.LoadGroup(ctx, group); err != nil {
			s.logger.WarnContext(ctx, "failed to load group",
				"group", group,
				"error", err,
			)
			lastErr = err
		}
	}

	s.logger.InfoContext(ctx, "loaded satellite groups",
		"total_count", s.Count(),
		"groups", s.Groups(),
	)

	return lastErr
}

// LoadGroup загружает элементы указанной группы.
// Стратегия: сначала Celestrak (свежие данные), при ошибке — fallback
// на файловый кеш. После успешной загрузки с Celestrak — сохраняем в кеш.
// Побитые записи внутри группы пропускаются с предупреждением в логе,
// группа при этом считается загруженной.
func (s *Store) LoadGroup(ctx context.Context, group string) error {
	s.logger.DebugContext(ctx, "loading satellite group", "group", group)

	var elements []*orbit.OrbitalElements
	fromCache := false

	result, err := s.client.FetchGroup(ctx, Group(group))
	if err != nil {
		s.logger.WarnContext(ctx, "failed to fetch from Celestrak, trying cache",
			"group", group,
			"error", err,
		)

		// Fallback на файловый кеш
		elements, err = s.loadGroupFromCache(group)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to load from cache",
				"group", group,
				"error", err,
			)
			return errors.Wrapf(ErrLoadGroupFailed, "%s (celestrak and cache both failed)", group)
		}
		fromCache = true
		s.logger.InfoContext(ctx, "loaded satellite group from cache",
			"group", group,
			"count", len(elements),
		)
	} else {
		elements = result.Elements
		s.logSkipped(ctx, group, result.Skipped)

		// Успешно загрузили с Celestrak — сохраняем в кеш
		if saveErr := s.saveGroupToCache(group, elements); saveErr != nil {
			s.logger.WarnContext(ctx, "failed to save to cache",
				"group", group,
				"error", saveErr,
			)
		}
	}

	s.mu.Lock()
	for _, el := range elements {
		s.addInternal(el, group)
	}
	s.mu.Unlock()

	if !fromCache {
		s.logger.InfoContext(ctx, "loaded satellite group from Celestrak",
			"group", group,
			"count", len(elements),
		)
	}

	return nil
}

// logSkipped пишет в лог записи, отброшенные парсером.
func (s *Store) logSkipped(ctx context.Context, group string, skipped []*orbit.RecordError) {
	for _, recErr := range skipped {
		s.logger.WarnContext(ctx, "skipped malformed TLE record",
			"group", group,
			"record", recErr.Record,
			"name", recErr.Name,
			"error", recErr.Err,
		)
	}
}

// addInternal добавляет элементы без блокировки
func (s *Store) addInternal(el *orbit.OrbitalElements, group string) {
	if el == nil {
		return
	}

	s.catalog[el.NoradID] = el

	// Обновляем индекс по группе
	if group != "" {
		s.addToIndex(s.byGroup, strings.ToLower(group), el.NoradID)
	}

	// Обновляем индекс по имени
	if el.Name != "" {
		s.addToIndex(s.byName, strings.ToLower(el.Name), el.NoradID)
	}
}

// addToIndex добавляет ID в индекс, избегая дубликатов.
func (s *Store) addToIndex(index map[string][]int, key string, id int) {
	ids := index[key]
	if slices.Contains(ids, id) {
		return // Уже есть
	}
	index[key] = append(ids, id)
}

// startUpdater запускает фоновое обновление каталога.
func (s *Store) startUpdater(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "updater stopped by context")
			return
		case <-s.stopCh:
			s.logger.InfoContext(ctx, "updater stopped by stop signal")
			return
		case <-ticker.C:
			s.logger.InfoContext(ctx, "starting scheduled catalog update")
			if err := s.LoadAllGroups(ctx); err != nil {
				s.logger.WarnContext(ctx, "scheduled catalog update had errors", "error", err)
			}
		}
	}
}

// loadCacheMeta загружает метаданные кеша.
func (s *Store) loadCacheMeta() (*CacheMeta, error) {
	metaPath := filepath.Join(s.config.CacheDir, cacheMetaFilename)

	data, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &CacheMeta{Groups: make(map[string]CacheGroupMeta)}, nil
		}
		return nil, errors.Wrap(err, "reading cache meta")
	}

	var meta CacheMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrap(err, "parsing cache meta")
	}

	if meta.Groups == nil {
		meta.Groups = make(map[string]CacheGroupMeta)
	}

	return &meta, nil
}

// saveCacheMeta сохраняет метаданные кеша.
func (s *Store) saveCacheMeta(meta *CacheMeta) error {
	// Создаём директорию кеша если не существует
	if err := os.MkdirAll(s.config.CacheDir, 0750); err != nil {
		return errors.Wrap(err, "creating cache dir")
	}

	metaPath := filepath.Join(s.config.CacheDir, cacheMetaFilename)

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling cache meta")
	}

	if err := os.WriteFile(metaPath, data, 0600); err != nil {
		return errors.Wrap(err, "writing cache meta")
	}

	return nil
}

// loadGroupFromCache загружает элементы группы из файлового кеша.
func (s *Store) loadGroupFromCache(group string) ([]*orbit.OrbitalElements, error) {
	cachePath := filepath.Join(s.config.CacheDir, strings.ToLower(group)+tleCacheExtension)

	data, err := os.ReadFile(cachePath)
	if err != nil {
		return nil, errors.Wrap(err, "reading cache file")
	}

	elements, skipped := orbit.Parse(string(data))
	s.logSkipped(context.Background(), group, skipped)

	if len(elements) == 0 && len(skipped) > 0 {
		return nil, errors.Errorf("cache file for %s contains no valid records", group)
	}

	return elements, nil
}

// saveGroupToCache сохраняет элементы группы в файловый кеш.
// Содержимое пишется в 3-line формате из оригинальных строк TLE,
// так что кеш всегда пригоден для повторного парсинга.
func (s *Store) saveGroupToCache(group string, elements []*orbit.OrbitalElements) error {
	// Создаём директорию кеша если не существует
	if err := os.MkdirAll(s.config.CacheDir, 0750); err != nil {
		return errors.Wrap(err, "creating cache dir")
	}

	cachePath := filepath.Join(s.config.CacheDir, strings.ToLower(group)+tleCacheExtension)

	var builder strings.Builder
	for _, el := range elements {
		builder.WriteString(el.String())
		builder.WriteString("\n")
	}

	if err := os.WriteFile(cachePath, []byte(builder.String()), 0600); err != nil {
		return errors.Wrap(err, "writing cache file")
	}

	// Обновляем метаданные
	meta, err := s.loadCacheMeta()
	if err != nil {
		s.logger.Warn("failed to load cache meta", "error", err)
		meta = &CacheMeta{Groups: make(map[string]CacheGroupMeta)}
	}

	meta.Groups[strings.ToLower(group)] = CacheGroupMeta{
		UpdatedAt: time.Now(),
		Count:     len(elements),
	}

	if err := s.saveCacheMeta(meta); err != nil {
		s.logger.Warn("failed to save cache meta", "error", err)
	}

	return nil
}
