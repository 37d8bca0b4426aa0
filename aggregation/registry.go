package aggregation

import (
	"strings"
	"sync"

	"github.com/intelligentplant/appstoreconnect-adapters-core/model"
)

var builtins = []struct {
	descriptor model.DataFunctionDescriptor
	calculator Calculator
}{
	{model.DataFunctionDescriptor{ID: "INTERP", DisplayName: "Interpolated", Aliases: []string{"interpolate"}}, calcInterpolate},
	{model.DataFunctionDescriptor{ID: "AVG", DisplayName: "Average", Aliases: []string{"average", "mean"}}, calcAverage},
	{model.DataFunctionDescriptor{ID: "MIN", DisplayName: "Minimum", Aliases: []string{"minimum"}}, calcMinimum},
	{model.DataFunctionDescriptor{ID: "MAX", DisplayName: "Maximum", Aliases: []string{"maximum"}}, calcMaximum},
	{model.DataFunctionDescriptor{ID: "COUNT", DisplayName: "Count", Aliases: nil}, calcCount},
	{model.DataFunctionDescriptor{ID: "RANGE", DisplayName: "Range", Aliases: nil}, calcRange},
	{model.DataFunctionDescriptor{ID: "DELTA", DisplayName: "Delta", Aliases: nil}, calcDelta},
	{model.DataFunctionDescriptor{ID: "PERCENTGOOD", DisplayName: "Percent Good", Aliases: []string{"pctgood"}}, calcPercentGood},
	{model.DataFunctionDescriptor{ID: "PERCENTBAD", DisplayName: "Percent Bad", Aliases: []string{"pctbad"}}, calcPercentBad},
	{model.DataFunctionDescriptor{ID: "VARIANCE", DisplayName: "Variance", Aliases: nil}, calcVariance},
	{model.DataFunctionDescriptor{ID: "STDDEV", DisplayName: "Standard Deviation", Aliases: []string{"stdev"}}, calcStandardDeviation},
}

type registeredFunction struct {
	descriptor model.DataFunctionDescriptor
	calculator Calculator
}

// Registry holds the built-in data functions plus any custom functions
// registered at runtime. The zero value is ready to use.
type Registry struct {
	mu     sync.RWMutex
	custom map[string]registeredFunction
}

// NewRegistry constructs an empty Registry; built-ins are always
// available and need no registration.
func NewRegistry() *Registry {
	return &Registry{custom: make(map[string]registeredFunction)}
}

func matchesDescriptor(d model.DataFunctionDescriptor, needle string) bool {
	if strings.EqualFold(d.ID, needle) || strings.EqualFold(d.DisplayName, needle) {
		return true
	}
	for _, a := range d.Aliases {
		if strings.EqualFold(a, needle) {
			return true
		}
	}
	return false
}

func builtinNameConflicts(id string) bool {
	for _, b := range builtins {
		if matchesDescriptor(b.descriptor, id) {
			return true
		}
	}
	return false
}

// RegisterDataFunction adds a custom calculator keyed by descriptor.ID.
// It returns false, without registering anything, if the id duplicates
// a built-in or an already-registered custom function (matched against
// ids, display names, and aliases).
func (r *Registry) RegisterDataFunction(descriptor model.DataFunctionDescriptor, calculator Calculator) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if builtinNameConflicts(descriptor.ID) {
		return false
	}
	for _, existing := range r.custom {
		if matchesDescriptor(existing.descriptor, descriptor.ID) || matchesDescriptor(descriptor, existing.descriptor.ID) {
			return false
		}
	}

	if r.custom == nil {
		r.custom = make(map[string]registeredFunction)
	}
	r.custom[strings.ToUpper(descriptor.ID)] = registeredFunction{descriptor: descriptor, calculator: calculator}
	return true
}

// UnregisterDataFunction removes a custom function's descriptor and
// calculator atomically. Unregistering an unknown id is a no-op.
func (r *Registry) UnregisterDataFunction(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.custom, strings.ToUpper(id))
}

// lookup resolves one requested function string against built-ins then
// custom registrations, matching by id, display name, or alias. It
// returns false if nothing resolves.
func (r *Registry) lookup(requested string) (model.DataFunctionDescriptor, Calculator, bool) {
	for _, b := range builtins {
		if matchesDescriptor(b.descriptor, requested) {
			return b.descriptor, b.calculator, true
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.custom {
		if matchesDescriptor(c.descriptor, requested) {
			return c.descriptor, c.calculator, true
		}
	}
	return model.DataFunctionDescriptor{}, nil, false
}

// Resolve resolves a set of requested function ids/display-names/aliases
// into concrete (descriptor, calculator) pairs, silently skipping
// entries that do not resolve.
func (r *Registry) Resolve(requested []string) []struct {
	Descriptor model.DataFunctionDescriptor
	Calculator Calculator
} {
	var out []struct {
		Descriptor model.DataFunctionDescriptor
		Calculator Calculator
	}
	for _, name := range requested {
		if d, c, ok := r.lookup(name); ok {
			out = append(out, struct {
				Descriptor model.DataFunctionDescriptor
				Calculator Calculator
			}{d, c})
		}
	}
	return out
}
