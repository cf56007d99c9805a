package capability

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/itinera-labs/itinera/agent/contract"
)

// Volatility classifies how quickly a capability's results go stale. Cache
// TTL is a pure function of this class, never of caller intent.
type Volatility string

const (
	VolatilityNearRealTime  Volatility = "near_real_time"
	VolatilityTimeSensitive Volatility = "time_sensitive"
	VolatilityDaily         Volatility = "daily"
	VolatilitySemiStatic    Volatility = "semi_static"
	VolatilityStatic        Volatility = "static"
)

func (v Volatility) TTL() time.Duration {
	switch v {
	case VolatilityNearRealTime:
		return 100 * time.Second
	case VolatilityTimeSensitive:
		return 5 * time.Minute
	case VolatilityDaily:
		return time.Hour
	case VolatilitySemiStatic:
		return 8 * time.Hour
	case VolatilityStatic:
		return 24 * time.Hour
	default:
		return 100 * time.Second
	}
}

// ParamType is the wire type a method parameter must carry.
type ParamType string

const (
	ParamString ParamType = "string"
	ParamNumber ParamType = "number"
	ParamBool   ParamType = "bool"
	ParamList   ParamType = "list"
)

type ParamSpec struct {
	Name     string    `json:"name"`
	Type     ParamType `json:"type"`
	Required bool      `json:"required"`
}

// MethodSpec declares one uniform method of a capability. The set of
// MethodSpecs on a Descriptor is closed: anything outside it is a
// configuration bug, rejected before dispatch.
type MethodSpec struct {
	Name   string      `json:"name"`
	Params []ParamSpec `json:"params,omitempty"`
}

// Descriptor is the registration-time declaration of a capability.
type Descriptor struct {
	Name       string       `json:"name"`
	Methods    []MethodSpec `json:"methods"`
	Idempotent bool         `json:"idempotent"`
	Volatility Volatility   `json:"volatility"`
}

func (d Descriptor) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: capability name is empty", contractx.ErrValidation)
	}
	if len(d.Methods) == 0 {
		return fmt.Errorf("%w: capability %s declares no methods", contractx.ErrValidation, d.Name)
	}
	seen := make(map[string]struct{}, len(d.Methods))
	for _, m := range d.Methods {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			return fmt.Errorf("%w: capability %s declares an unnamed method", contractx.ErrValidation, d.Name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: capability %s declares method %s twice", contractx.ErrValidation, d.Name, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Method resolves a declared method by name.
func (d Descriptor) Method(name string) (MethodSpec, bool) {
	for _, m := range d.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return MethodSpec{}, false
}

// ValidateParams checks a parameter bag against the method's declared
// schema before any dispatch happens.
func (m MethodSpec) ValidateParams(params map[string]any) error {
	for _, p := range m.Params {
		raw, ok := params[p.Name]
		if !ok || raw == nil {
			if p.Required {
				return fmt.Errorf("%w: missing required param %q", contractx.ErrValidation, p.Name)
			}
			continue
		}
		if err := checkParamType(p, raw); err != nil {
			return err
		}
	}
	for name := range params {
		if !m.declaresParam(name) {
			return fmt.Errorf("%w: unexpected param %q for method %s", contractx.ErrValidation, name, m.Name)
		}
	}
	return nil
}

func (m MethodSpec) declaresParam(name string) bool {
	for _, p := range m.Params {
		if p.Name == name {
			return true
		}
	}
	return false
}

func checkParamType(p ParamSpec, raw any) error {
	switch p.Type {
	case ParamString:
		if _, ok := raw.(string); !ok {
			return fmt.Errorf("%w: param %q must be a string", contractx.ErrValidation, p.Name)
		}
	case ParamNumber:
		switch raw.(type) {
		case float64, float32, int, int32, int64, uint, uint32, uint64:
		default:
			return fmt.Errorf("%w: param %q must be a number", contractx.ErrValidation, p.Name)
		}
	case ParamBool:
		if _, ok := raw.(bool); !ok {
			return fmt.Errorf("%w: param %q must be a bool", contractx.ErrValidation, p.Name)
		}
	case ParamList:
		switch raw.(type) {
		case []any, []string:
		default:
			return fmt.Errorf("%w: param %q must be a list", contractx.ErrValidation, p.Name)
		}
	}
	return nil
}
