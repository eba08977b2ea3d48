// Package alerts holds user-defined threshold rules and evaluates metric
// snapshots against them.
package alerts

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pairstream/internal/market"
)

// ErrNotFound is returned for mutations referencing an unknown rule id.
var ErrNotFound = errors.New("alert rule not found")

// MetricKey is the closed set of metrics a rule may reference.
type MetricKey string

const (
	MetricSpread      MetricKey = "spread"
	MetricZScore      MetricKey = "zscore"
	MetricCorrelation MetricKey = "correlation"
	MetricBeta        MetricKey = "beta"
)

// Operator compares a metric value against a rule threshold.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
)

// Snapshot carries the current value of each supported metric. A nil field
// means the metric was not computable this cycle; rules referencing it are
// skipped.
type Snapshot struct {
	Spread      *float64
	ZScore      *float64
	Correlation *float64
	Beta        *float64
}

// Value resolves a metric key against the snapshot.
func (s Snapshot) Value(key MetricKey) (float64, bool) {
	var v *float64
	switch key {
	case MetricSpread:
		v = s.Spread
	case MetricZScore:
		v = s.ZScore
	case MetricCorrelation:
		v = s.Correlation
	case MetricBeta:
		v = s.Beta
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Rule is one user-defined threshold alert.
type Rule struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Metric        MetricKey  `json:"metric"`
	Op            Operator   `json:"operator"`
	Threshold     float64    `json:"threshold"`
	Symbols       []string   `json:"symbols"`
	Window        *int       `json:"window,omitempty"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
}

// Event records one rule trigger.
type Event struct {
	AlertID     uuid.UUID `json:"alert_id"`
	Name        string    `json:"name"`
	Metric      MetricKey `json:"metric"`
	Op          Operator  `json:"operator"`
	Threshold   float64   `json:"threshold"`
	Value       float64   `json:"metric_value"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// CreateRule is the input for Manager.Create.
type CreateRule struct {
	Name      string
	Metric    MetricKey
	Op        Operator
	Threshold float64
	Symbols   []string
	Window    *int
}

// Manager owns the rule registry and a bounded most-recent-first event
// history. Safe for concurrent use.
type Manager struct {
	log          *zap.Logger
	historyLimit int

	mu      sync.Mutex
	rules   map[uuid.UUID]*Rule
	history []Event
}

func NewManager(historyLimit int, log *zap.Logger) *Manager {
	if historyLimit < 1 {
		historyLimit = 1
	}
	return &Manager{
		log:          log,
		historyLimit: historyLimit,
		rules:        make(map[uuid.UUID]*Rule),
	}
}

// Create registers a new active rule and returns it.
func (m *Manager) Create(params CreateRule) (Rule, error) {
	if err := validate(params); err != nil {
		return Rule{}, err
	}

	symbols := make([]string, len(params.Symbols))
	for i, s := range params.Symbols {
		symbols[i] = market.NormalizeSymbol(s)
	}

	rule := &Rule{
		ID:        uuid.New(),
		Name:      params.Name,
		Metric:    params.Metric,
		Op:        params.Op,
		Threshold: params.Threshold,
		Symbols:   symbols,
		Window:    params.Window,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.rules[rule.ID] = rule
	m.mu.Unlock()

	m.log.Info("created alert rule",
		zap.String("id", rule.ID.String()),
		zap.String("name", rule.Name),
		zap.String("metric", string(rule.Metric)),
		zap.String("operator", string(rule.Op)),
		zap.Float64("threshold", rule.Threshold))
	return *rule, nil
}

func (m *Manager) Delete(id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

// Toggle sets a rule's active flag and returns the updated rule.
func (m *Manager) Toggle(id uuid.UUID, active bool) (Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return Rule{}, ErrNotFound
	}
	rule.Active = active
	return *rule, nil
}

func (m *Manager) Get(id uuid.UUID) (Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return Rule{}, ErrNotFound
	}
	return *rule, nil
}

func (m *Manager) List() []Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Rule, 0, len(m.rules))
	for _, rule := range m.rules {
		out = append(out, *rule)
	}
	return out
}

// History returns the most-recent-first event history.
func (m *Manager) History() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.history))
	copy(out, m.history)
	return out
}

// Evaluate checks every active rule against the snapshot and returns the
// newly triggered events. Rules whose metric is absent are skipped.
func (m *Manager) Evaluate(snap Snapshot) []Event {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()

	var triggered []Event
	for _, rule := range m.rules {
		if !rule.Active {
			continue
		}
		value, ok := snap.Value(rule.Metric)
		if !ok {
			continue
		}
		if !compare(value, rule.Op, rule.Threshold) {
			continue
		}

		event := Event{
			AlertID:     rule.ID,
			Name:        rule.Name,
			Metric:      rule.Metric,
			Op:          rule.Op,
			Threshold:   rule.Threshold,
			Value:       value,
			TriggeredAt: now,
		}
		rule.LastTriggered = &event.TriggeredAt
		m.prepend(event)
		triggered = append(triggered, event)
	}
	return triggered
}

func (m *Manager) prepend(event Event) {
	m.history = append([]Event{event}, m.history...)
	if len(m.history) > m.historyLimit {
		m.history = m.history[:m.historyLimit]
	}
}

func compare(value float64, op Operator, threshold float64) bool {
	switch op {
	case OpGreater:
		return value > threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLess:
		return value < threshold
	case OpLessEqual:
		return value <= threshold
	}
	return false
}

func validate(params CreateRule) error {
	switch params.Metric {
	case MetricSpread, MetricZScore, MetricCorrelation, MetricBeta:
	default:
		return fmt.Errorf("unsupported metric key %q", params.Metric)
	}
	switch params.Op {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual:
	default:
		return fmt.Errorf("unsupported operator %q", params.Op)
	}
	if params.Name == "" {
		return errors.New("alert name is required")
	}
	return nil
}
