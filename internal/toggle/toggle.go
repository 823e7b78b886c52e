package toggle

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Kind is the closed set of control flags. Each kind carries its own
// activation-value rule and authorization list; unknown kinds are rejected at
// every entry point.
type Kind string

const (
	KindStop     Kind = "stop"
	KindFailsafe Kind = "failsafe"
	KindReroute  Kind = "reroute"
	KindWormhole Kind = "wormhole"
)

// Kinds returns the four flag kinds in their canonical order.
func Kinds() []Kind {
	return []Kind{KindStop, KindFailsafe, KindReroute, KindWormhole}
}

func ParseKind(s string) (Kind, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "stop":
		return KindStop, nil
	case "failsafe":
		return KindFailsafe, nil
	case "reroute":
		return KindReroute, nil
	case "wormhole":
		return KindWormhole, nil
	default:
		return "", fmt.Errorf("unknown flag kind: %s", s)
	}
}

func (k Kind) valid() bool {
	switch k {
	case KindStop, KindFailsafe, KindReroute, KindWormhole:
		return true
	default:
		return false
	}
}

// Source modules that may operate flags. Authorization is a fixed property
// of the kind, not configuration.
const (
	ModuleOracle  = "Oracle"
	ModuleSanctum = "Sanctum"
	ModuleHalo    = "Halo"
	ModuleNova    = "Nova"
)

func (k Kind) authorized(source string) bool {
	switch k {
	case KindStop:
		return source == ModuleOracle || source == ModuleSanctum
	case KindFailsafe:
		return source == ModuleOracle || source == ModuleSanctum || source == ModuleHalo
	case KindReroute:
		return source == ModuleOracle || source == ModuleHalo || source == ModuleNova
	case KindWormhole:
		return source == ModuleOracle || source == ModuleHalo
	default:
		return false
	}
}

// activationValue computes the flag value for the given balance parameter.
func (k Kind) activationValue(balance float64) float64 {
	drift := math.Abs(balance - 0.5)
	switch k {
	case KindStop:
		return 0.85
	case KindFailsafe:
		return math.Max(0.8, 1-drift)
	case KindReroute:
		return 1.0 + 0.1*(1-2*drift)
	case KindWormhole:
		if balance >= 0.45 && balance <= 0.55 {
			return 1.2
		}
		return 1.1
	default:
		return 1
	}
}

type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

func impactOf(balance float64) Impact {
	drift := math.Abs(balance - 0.5)
	switch {
	case drift < 0.1:
		return ImpactHigh
	case drift < 0.25:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// Flag is one control flag. The audit fields LastActivatedAt, SourceModule
// and TargetModule survive deactivation.
type Flag struct {
	Kind            Kind      `json:"kind"`
	Active          bool      `json:"active"`
	Value           float64   `json:"value"`
	LastActivatedAt time.Time `json:"last_activated_at,omitempty"`
	SourceModule    string    `json:"source_module,omitempty"`
	TargetModule    string    `json:"target_module,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

type Action string

const (
	ActionActivated   Action = "activated"
	ActionDeactivated Action = "deactivated"
)

type Event struct {
	Kind   Kind      `json:"kind"`
	Action Action    `json:"action"`
	Value  float64   `json:"value"`
	Impact Impact    `json:"impact"`
	Source string    `json:"source"`
	Target string    `json:"target,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// AuthorizationError reports a flag operation from a module outside the
// kind's allow-list. The board state does not change when it is returned.
type AuthorizationError struct {
	Kind   Kind
	Source string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("module %s is not authorized to operate flag %s", e.Source, e.Kind)
}
