package orbit

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Ошибки кеплеровской пропагации.
var (
	ErrNilElements       = errors.New("orbital elements are nil")
	ErrInvalidStep       = errors.New("step must be positive")
	ErrConvergenceFailed = errors.New("Kepler solver did not converge")
)

// Параметры пропагатора по умолчанию.
const (
	// DefaultMuKm3S2 — стандартный гравитационный параметр Земли, км³/с².
	DefaultMuKm3S2 = 398600.4418

	// DefaultToleranceRad — порог сходимости метода Ньютона-Рафсона, радианы.
	DefaultToleranceRad = 1e-8

	// DefaultMaxIterations — бюджет итераций солвера.
	DefaultMaxIterations = 50

	secondsPerDay = 86400.0
)

// PropagatorConfig содержит численные параметры пропагатора.
// Константы вынесены в явную конфигурацию, чтобы тесты могли
// детерминированно провоцировать отказ сходимости.
type PropagatorConfig struct {
	// MuKm3S2 гравитационный параметр центрального тела, км³/с².
	MuKm3S2 float64

	// ToleranceRad порог сходимости по |ΔE|, радианы.
	ToleranceRad float64

	// MaxIterations максимальное число итераций Ньютона-Рафсона.
	MaxIterations int
}

// DefaultPropagatorConfig возвращает конфигурацию со значениями по умолчанию.
func DefaultPropagatorConfig() PropagatorConfig {
	return PropagatorConfig{
		MuKm3S2:       DefaultMuKm3S2,
		ToleranceRad:  DefaultToleranceRad,
		MaxIterations: DefaultMaxIterations,
	}
}

// Validate заполняет нулевые поля значениями по умолчанию.
func (c *PropagatorConfig) Validate() {
	if c.MuKm3S2 <= 0 {
		c.MuKm3S2 = DefaultMuKm3S2
	}
	if c.ToleranceRad <= 0 {
		c.ToleranceRad = DefaultToleranceRad
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
}

// ConvergenceError сообщает об исчерпании бюджета итераций солвера.
// Несошедшееся значение никогда не возвращается молча: вызов
// завершается этой ошибкой с последней невязкой и числом итераций.
type ConvergenceError struct {
	NoradID        int     // Спутник, на котором сломался солвер
	ElapsedSeconds float64 // Время от эпохи, с
	Residual       float64 // |E - e·sin(E) - M| на последней итерации, рад
	Iterations     int     // Израсходованный бюджет
}

// Error реализует интерфейс error.
func (e *ConvergenceError) Error() string {
	return fmt.Sprintf(
		"Kepler solver did not converge for NORAD %d at t=%+.3fs: residual %.3e rad after %d iterations",
		e.NoradID, e.ElapsedSeconds, e.Residual, e.Iterations,
	)
}

// Unwrap позволяет errors.Is(err, ErrConvergenceFailed).
func (e *ConvergenceError) Unwrap() error {
	return ErrConvergenceFailed
}

// SampleError описывает отказ пропагации одной точки при выборке траектории.
// Остальные точки выборки при этом не отбрасываются.
type SampleError struct {
	Time           time.Time // Момент отказа
	ElapsedSeconds float64   // Время от эпохи, с
	Err            error     // Причина
}

// Error реализует интерфейс error.
func (e *SampleError) Error() string {
	return fmt.Sprintf("sample at %s (t=%+.1fs): %v", e.Time.UTC().Format(time.RFC3339), e.ElapsedSeconds, e.Err)
}

// Unwrap возвращает причину ошибки.
func (e *SampleError) Unwrap() error {
	return e.Err
}

// PropagatedState представляет состояние спутника на заданное время
// от эпохи. Порождается заново на каждый запрос и нигде не кешируется.
type PropagatedState struct {
	ElapsedSeconds float64 // Время от эпохи, с

	MeanAnomalyDeg      float64 // Средняя аномалия, [0, 360)
	EccentricAnomalyDeg float64 // Эксцентрическая аномалия (выход солвера), [0, 360)
	TrueAnomalyDeg      float64 // Истинная аномалия, [0, 360)
	RadiusKm            float64 // Радиус-вектор r = a·(1 - e·cos E), км

	Position ECIPosition // Позиция в ECI, км

	Iterations int // Число итераций солвера (диагностика)
}

// Propagator выполняет чисто двухтельное (кеплеровское) прогнозирование
// положения спутника. Вековые возмущения J2/J4 по RAAN сознательно
// не моделируются. Propagator не имеет разделяемого изменяемого
// состояния: один и тот же экземпляр безопасно вызывать конкурентно.
type Propagator struct {
	el  OrbitalElements // копия исходных элементов
	cfg PropagatorConfig

	// Производные величины, посчитанные один раз в конструкторе.
	nRadPerSec float64 // среднее движение, рад/с
	nDegPerSec float64 // среднее движение, град/с
	aKm        float64 // большая полуось, км
}

// NewPropagator создаёт Propagator с конфигурацией по умолчанию.
func NewPropagator(el *OrbitalElements) (*Propagator, error) {
	return NewPropagatorWithConfig(el, DefaultPropagatorConfig())
}

// NewPropagatorWithConfig создаёт Propagator с указанной конфигурацией.
// Элементы проверяются защитно, даже если их уже валидировал парсер:
// эксцентриситет вне [0, 1) или неположительное среднее движение
// дают ErrInvalidElements.
func NewPropagatorWithConfig(el *OrbitalElements, cfg PropagatorConfig) (*Propagator, error) {
	if el == nil {
		return nil, ErrNilElements
	}

	cfg.Validate()

	if el.Eccentricity < 0 || el.Eccentricity >= 1 {
		return nil, fmt.Errorf("%w: eccentricity %v outside [0, 1)", ErrInvalidElements, el.Eccentricity)
	}
	if el.MeanMotionRevPerDay <= 0 {
		return nil, fmt.Errorf("%w: mean motion %v rev/day, must be positive", ErrInvalidElements, el.MeanMotionRevPerDay)
	}

	nRad := el.MeanMotionRevPerDay * 2 * math.Pi / secondsPerDay

	return &Propagator{
		el:         *el,
		cfg:        cfg,
		nRadPerSec: nRad,
		nDegPerSec: el.MeanMotionRevPerDay * 360.0 / secondsPerDay,
		aKm:        math.Pow(cfg.MuKm3S2/(nRad*nRad), 1.0/3.0),
	}, nil
}

// Elements возвращает копию исходных элементов.
func (p *Propagator) Elements() OrbitalElements {
	return p.el
}

// Config возвращает конфигурацию пропагатора.
func (p *Propagator) Config() PropagatorConfig {
	return p.cfg
}

// SemiMajorAxisKm возвращает большую полуось, км.
func (p *Propagator) SemiMajorAxisKm() float64 {
	return p.aKm
}

// MeanAnomalyAt возвращает среднюю аномалию (градусы, [0, 360))
// на elapsedSec секунд от эпохи: M = M0 + n·Δt.
func (p *Propagator) MeanAnomalyAt(elapsedSec float64) float64 {
	return NormalizeDeg(p.rawMeanAnomalyAt(elapsedSec))
}

// rawMeanAnomalyAt — то же без нормализации (монотонно по Δt).
func (p *Propagator) rawMeanAnomalyAt(elapsedSec float64) float64 {
	return p.el.MeanAnomalyDeg + p.nDegPerSec*elapsedSec
}

// Propagate рассчитывает состояние спутника на elapsedSec секунд от эпохи.
//
// Алгоритм:
//  1. M = M0 + n·Δt, нормализация в [0, 360);
//  2. решение уравнения Кеплера M = E - e·sin E методом Ньютона-Рафсона
//     (внутри — радианы);
//  3. истинная аномалия через atan2-форму полууглового соотношения;
//  4. r = a·(1 - e·cos E);
//  5. поворот перифокального вектора в ECI.
//
// Детерминированная чистая функция от (элементы, Δt).
func (p *Propagator) Propagate(elapsedSec float64) (*PropagatedState, error) {
	meanDeg := p.MeanAnomalyAt(elapsedSec)

	eccAnom, iters, err := solveKepler(meanDeg*Deg2Rad, p.el.Eccentricity, p.cfg)
	if err != nil {
		var conv *ConvergenceError
		if errors.As(err, &conv) {
			conv.NoradID = p.el.NoradID
			conv.ElapsedSeconds = elapsedSec
		}
		return nil, err
	}

	nu := trueAnomaly(eccAnom, p.el.Eccentricity)
	rKm := p.aKm * (1 - p.el.Eccentricity*math.Cos(eccAnom))

	return &PropagatedState{
		ElapsedSeconds:      elapsedSec,
		MeanAnomalyDeg:      meanDeg,
		EccentricAnomalyDeg: NormalizeDeg(eccAnom * Rad2Deg),
		TrueAnomalyDeg:      NormalizeDeg(nu * Rad2Deg),
		RadiusKm:            rKm,
		Iterations:          iters,
		Position: perifocalToECI(
			rKm, nu,
			p.el.InclinationDeg*Deg2Rad,
			p.el.RAANDeg*Deg2Rad,
			p.el.ArgPerigeeDeg*Deg2Rad,
		),
	}, nil
}

// PropagateAt рассчитывает состояние спутника на абсолютный момент времени.
func (p *Propagator) PropagateAt(t time.Time) (*PropagatedState, error) {
	return p.Propagate(p.el.ElapsedSince(t))
}

// PropagateRange выбирает траекторию на интервале времени с шагом step.
// Отказ пропагации одной точки не прерывает выборку: точка пропускается,
// а ошибка с её меткой времени накапливается рядом с результатом.
func (p *Propagator) PropagateRange(start, end time.Time, step time.Duration) ([]*PropagatedState, []*SampleError, error) {
	if step <= 0 {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidStep, step)
	}

	if end.Before(start) {
		start, end = end, start
	}

	var (
		states []*PropagatedState
		errs   []*SampleError
	)

	for t := start; !t.After(end); t = t.Add(step) {
		state, err := p.Propagate(p.el.ElapsedSince(t))
		if err != nil {
			errs = append(errs, &SampleError{
				Time:           t,
				ElapsedSeconds: p.el.ElapsedSince(t),
				Err:            err,
			})
			continue
		}
		states = append(states, state)
	}

	return states, errs, nil
}

// solveKepler решает уравнение Кеплера M = E - e·sin E относительно E
// методом Ньютона-Рафсона (по Vallado). Все величины в радианах.
//
// Начальное приближение E0 = M при e < 0.8, иначе E0 = π — стандартная
// защита от расходимости на сильно вытянутых орбитах. При e = 0 первая
// же поправка нулевая и солвер сходится за одну итерацию (E = M точно).
func solveKepler(meanAnomaly, ecc float64, cfg PropagatorConfig) (float64, int, error) {
	eccAnom := meanAnomaly
	if ecc >= 0.8 {
		eccAnom = math.Pi
	}

	for i := 1; i <= cfg.MaxIterations; i++ {
		f := eccAnom - ecc*math.Sin(eccAnom) - meanAnomaly
		fPrime := 1 - ecc*math.Cos(eccAnom)

		delta := f / fPrime
		eccAnom -= delta

		if math.Abs(delta) < cfg.ToleranceRad {
			return eccAnom, i, nil
		}
	}

	residual := math.Abs(eccAnom - ecc*math.Sin(eccAnom) - meanAnomaly)

	return 0, cfg.MaxIterations, &ConvergenceError{
		Residual:   residual,
		Iterations: cfg.MaxIterations,
	}
}

// trueAnomaly выводит истинную аномалию из эксцентрической.
// Используется atan2-форма полууглового соотношения
// tan(ν/2) = sqrt((1+e)/(1-e))·tan(E/2): она корректна по квадрантам
// без отдельной поправки. Вход и выход в радианах.
func trueAnomaly(eccAnom, ecc float64) float64 {
	denom := 1 - ecc*math.Cos(eccAnom)
	sinNu := math.Sqrt(1-ecc*ecc) * math.Sin(eccAnom) / denom
	cosNu := (math.Cos(eccAnom) - ecc) / denom
	return math.Atan2(sinNu, cosNu)
}
