package budget

import (
	"fmt"
	"math"

	schemacontextlib "github.com/davidahmann/ctxlib/core/schema/v1/contextlib"
)

const DefaultTotal = 20000

// Split holds the fractions of the total budget given to each sub-budget.
type Split struct {
	Core         float64 `yaml:"core"`
	WaveSpecific float64 `yaml:"wave_specific"`
	OnDemand     float64 `yaml:"on_demand"`
}

func DefaultSplit() Split {
	return Split{Core: 0.40, WaveSpecific: 0.40, OnDemand: 0.20}
}

func (split Split) Validate() error {
	for name, value := range map[string]float64{
		"core":          split.Core,
		"wave_specific": split.WaveSpecific,
		"on_demand":     split.OnDemand,
	} {
		if value < 0 || value > 1 || math.IsNaN(value) {
			return fmt.Errorf("budget split %s must be within [0,1], got %v", name, value)
		}
	}
	if sum := split.Core + split.WaveSpecific + split.OnDemand; sum > 1+1e-9 {
		return fmt.Errorf("budget split must not exceed 1.0, got %v", sum)
	}
	return nil
}

// Allocation is the derived set of sub-budgets for one gather run.
type Allocation struct {
	Total        int
	Core         int
	WaveSpecific int
	OnDemand     int
}

// Allocate derives every sub-budget from total using split, flooring each share.
func Allocate(total int, split Split) Allocation {
	if total < 0 {
		total = 0
	}
	return Allocation{
		Total:        total,
		Core:         share(total, split.Core),
		WaveSpecific: share(total, split.WaveSpecific),
		OnDemand:     share(total, split.OnDemand),
	}
}

func DefaultAllocation() Allocation {
	return Allocate(DefaultTotal, DefaultSplit())
}

// WithCore returns a copy whose core sub-budget is replaced by an explicit value.
func (allocation Allocation) WithCore(core int) Allocation {
	if core < 0 {
		core = 0
	}
	allocation.Core = core
	return allocation
}

func (allocation Allocation) Schema() schemacontextlib.Budget {
	return schemacontextlib.Budget{
		Total:        allocation.Total,
		Core:         allocation.Core,
		WaveSpecific: allocation.WaveSpecific,
		OnDemand:     allocation.OnDemand,
	}
}

// share floors total*fraction; the epsilon absorbs binary float error so that
// 1000*0.4 yields 400 rather than 399.
func share(total int, fraction float64) int {
	return int(math.Floor(float64(total)*fraction + 1e-9))
}

// Allocator tracks the core budget consumed by a single gather invocation.
// It is not safe for concurrent use and is discarded once the manifest is built.
type Allocator struct {
	core int
	used int
}

func NewAllocator(allocation Allocation) *Allocator {
	return &Allocator{core: allocation.Core}
}

// Fits reports whether tokens can be admitted without exceeding the core budget.
func (allocator *Allocator) Fits(tokens int) bool {
	return tokens >= 0 && allocator.used+tokens <= allocator.core
}

// Consume records an admission. Callers must check Fits first.
func (allocator *Allocator) Consume(tokens int) {
	allocator.used += tokens
}

// TryAdmit consumes tokens when they fit and reports whether they did.
func (allocator *Allocator) TryAdmit(tokens int) bool {
	if !allocator.Fits(tokens) {
		return false
	}
	allocator.Consume(tokens)
	return true
}

func (allocator *Allocator) Used() int {
	return allocator.used
}

func (allocator *Allocator) Remaining() int {
	return allocator.core - allocator.used
}

func (allocator *Allocator) Core() int {
	return allocator.core
}
