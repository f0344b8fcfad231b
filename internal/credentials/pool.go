package credentials

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Service names in fallback order.
const (
	ServiceGroq   = "groq"
	ServiceGemini = "gemini"
	ServiceOpenAI = "openai"
	ServiceAzure  = "azure"
)

// DefaultOrder is the fixed service priority: primary first.
var DefaultOrder = []string{ServiceGroq, ServiceGemini, ServiceOpenAI, ServiceAzure}

// DefaultDailyLimits holds the per-key daily request limit of each service.
var DefaultDailyLimits = map[string]int{
	ServiceGroq:   2000,
	ServiceGemini: 1000,
	ServiceOpenAI: 500,
	ServiceAzure:  2000,
}

// MaxConsecutiveFailures deactivates a key until the next daily reset.
const MaxConsecutiveFailures = 5

// Key is one API credential. Its counters are owned by the pool; callers
// get copies through UsageReport.
type Key struct {
	Value      string
	Service    string
	DailyLimit int

	usage    int
	failures int
	active   bool
	lastUsed time.Time
}

// Masked returns the key with everything but its first and last four
// characters hidden.
func (k *Key) Masked() string {
	if len(k.Value) <= 8 {
		return "****"
	}
	return k.Value[:4] + "..." + k.Value[len(k.Value)-4:]
}

// Pool implements the credential provider used by the translation pipeline.
// It is safe for concurrent use.
type Pool struct {
	mu    sync.Mutex
	keys  map[string][]*Key
	order []string
	rng   *rand.Rand
	now   func() time.Time
	log   *zap.Logger
}

// NewPool creates an empty pool. A nil order selects DefaultOrder.
func NewPool(order []string, log *zap.Logger) *Pool {
	if len(order) == 0 {
		order = DefaultOrder
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		keys:  make(map[string][]*Key),
		order: append([]string(nil), order...),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
		log:   log,
	}
}

// Add registers keys for a service. Empty values are skipped; a
// non-positive daily limit selects the service default.
func (p *Pool) Add(service string, dailyLimit int, values ...string) int {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimits[service]
	}
	if dailyLimit <= 0 {
		dailyLimit = 1000
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	added := 0
	for _, v := range values {
		if v == "" {
			continue
		}
		p.keys[service] = append(p.keys[service], &Key{
			Value:      v,
			Service:    service,
			DailyLimit: dailyLimit,
			active:     true,
		})
		added++
	}
	if added > 0 {
		p.log.Info("api keys loaded", zap.String("service", service), zap.Int("count", added))
	}
	return added
}

// Services returns the configured services in priority order.
func (p *Pool) Services() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var services []string
	for _, s := range p.order {
		if len(p.keys[s]) > 0 {
			services = append(services, s)
		}
	}
	return services
}

func (k *Key) available() bool {
	return k.active && k.usage < k.DailyLimit
}

// GetAvailableKey picks a random active key of service with quota left.
func (p *Pool) GetAvailableKey(service string) (*Key, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.availableLocked(service)
}

func (p *Pool) availableLocked(service string) (*Key, bool) {
	var candidates []*Key
	for _, k := range p.keys[service] {
		if k.available() {
			candidates = append(candidates, k)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	return candidates[p.rng.Intn(len(candidates))], true
}

// ReportUsage records the outcome of one call made with key. A success
// resets the failure streak; the fifth consecutive failure deactivates
// the key.
func (p *Pool) ReportUsage(key *Key, success bool) {
	if key == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key.usage++
	key.lastUsed = p.now()
	if success {
		key.failures = 0
		return
	}

	key.failures++
	if key.active && key.failures >= MaxConsecutiveFailures {
		key.active = false
		p.log.Warn("api key deactivated",
			zap.String("service", key.Service),
			zap.String("key", key.Masked()),
			zap.Int("failures", key.failures))
	}
}

// RotateService returns the next service after current, in priority order
// and wrapping around, that has an available key. It returns current when
// no other service can serve.
func (p *Pool) RotateService(current string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	for i, s := range p.order {
		if s == current {
			idx = i
			break
		}
	}
	for step := 1; step <= len(p.order); step++ {
		next := p.order[(idx+step+len(p.order))%len(p.order)]
		if next == current {
			continue
		}
		if _, ok := p.availableLocked(next); ok {
			p.log.Info("service rotated", zap.String("from", current), zap.String("to", next))
			return next
		}
	}
	return current
}

// ResetDaily clears usage and failure counters and reactivates every key.
func (p *Pool) ResetDaily() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, keys := range p.keys {
		for _, k := range keys {
			k.usage = 0
			k.failures = 0
			k.active = true
		}
	}
	p.log.Info("daily api key limits reset")
}

// ServiceUsage summarises the keys of one service.
type ServiceUsage struct {
	TotalKeys    int     `json:"total_keys"`
	ActiveKeys   int     `json:"active_keys"`
	TotalUsage   int     `json:"total_usage"`
	AverageUsage float64 `json:"average_usage"`
}

// UsageReport returns per-service usage for every service in the order.
func (p *Pool) UsageReport() map[string]ServiceUsage {
	p.mu.Lock()
	defer p.mu.Unlock()

	report := make(map[string]ServiceUsage, len(p.order))
	for _, service := range p.order {
		keys := p.keys[service]
		u := ServiceUsage{TotalKeys: len(keys)}
		for _, k := range keys {
			if k.active {
				u.ActiveKeys++
			}
			u.TotalUsage += k.usage
		}
		u.AverageUsage = float64(u.TotalUsage) / float64(max(len(keys), 1))
		report[service] = u
	}
	return report
}

// Status is the coarse availability of the whole pool.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusLimited     Status = "limited"
	StatusUnavailable Status = "unavailable"
)

// StatusSummary is unavailable with no active keys, limited when fewer
// than half of the keys are active and available otherwise.
func (p *Pool) StatusSummary() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	total, active := 0, 0
	for _, keys := range p.keys {
		for _, k := range keys {
			total++
			if k.active {
				active++
			}
		}
	}
	switch {
	case active == 0:
		return StatusUnavailable
	case float64(active) < float64(total)*0.5:
		return StatusLimited
	default:
		return StatusAvailable
	}
}

// Healthy reports whether any service has a usable key.
func (p *Pool) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, service := range p.order {
		if _, ok := p.availableLocked(service); ok {
			return true
		}
	}
	return false
}
