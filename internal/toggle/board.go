package toggle

import (
	"errors"
	"fmt"
	"math"
	"time"
)

type Config struct {
	DecayRate     float64
	ConflictGamma float64
	Weights       map[Kind]float64
	MinMultiplier float64
	MaxMultiplier float64
}

func DefaultConfig() Config {
	return Config{
		DecayRate:     0.05,
		ConflictGamma: 0.65,
		MinMultiplier: 0.5,
		MaxMultiplier: 1.5,
	}
}

func (cfg Config) validate() error {
	if cfg.DecayRate < 0 {
		return fmt.Errorf("decay rate must be >= 0, got %g", cfg.DecayRate)
	}
	if cfg.ConflictGamma < 0 || cfg.ConflictGamma > 1 {
		return fmt.Errorf("conflict gamma must be in [0, 1], got %g", cfg.ConflictGamma)
	}
	if cfg.MinMultiplier <= 0 {
		return errors.New("min multiplier must be > 0")
	}
	if cfg.MaxMultiplier < cfg.MinMultiplier {
		return errors.New("max multiplier must be >= min multiplier")
	}
	for kind, weight := range cfg.Weights {
		if !kind.valid() {
			return fmt.Errorf("weight for unknown flag kind: %s", kind)
		}
		if weight < 0 {
			return fmt.Errorf("flag weight must be >= 0, got %g for %s", weight, kind)
		}
	}
	return nil
}

// Board owns the four control flags and resolves their combined score
// multiplier. Not safe for concurrent use; callers serialize access.
type Board struct {
	cfg   Config
	flags map[Kind]*Flag
}

func NewBoard(cfg Config) (*Board, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	flags := make(map[Kind]*Flag, len(Kinds()))
	for _, kind := range Kinds() {
		flags[kind] = &Flag{Kind: kind, Value: 1}
	}
	return &Board{cfg: cfg, flags: flags}, nil
}

// Activate authorizes, computes the kind's activation value from the balance
// parameter, and records the audit fields. The balance parameter is clamped
// to [0,1] first.
func (b *Board) Activate(kind Kind, source, reason string, balance float64, target string, now time.Time) (Event, error) {
	if !kind.valid() {
		return Event{}, fmt.Errorf("unknown flag kind: %s", kind)
	}
	if !kind.authorized(source) {
		return Event{}, &AuthorizationError{Kind: kind, Source: source}
	}
	balance = clamp01(balance)

	flag := b.flags[kind]
	flag.Active = true
	flag.Value = kind.activationValue(balance)
	flag.LastActivatedAt = now
	flag.SourceModule = source
	flag.Reason = reason
	flag.TargetModule = ""
	if kind == KindReroute {
		flag.TargetModule = target
	}

	return Event{
		Kind:   kind,
		Action: ActionActivated,
		Value:  flag.Value,
		Impact: impactOf(balance),
		Source: source,
		Target: flag.TargetModule,
		Reason: reason,
		At:     now,
	}, nil
}

// Deactivate is idempotent: it resets the value and active bit but preserves
// LastActivatedAt, SourceModule and TargetModule for auditing.
func (b *Board) Deactivate(kind Kind, source, reason string, balance float64, now time.Time) (Event, error) {
	if !kind.valid() {
		return Event{}, fmt.Errorf("unknown flag kind: %s", kind)
	}
	if !kind.authorized(source) {
		return Event{}, &AuthorizationError{Kind: kind, Source: source}
	}
	balance = clamp01(balance)

	flag := b.flags[kind]
	flag.Active = false
	flag.Value = 1
	flag.Reason = "Deactivated: " + reason

	return Event{
		Kind:   kind,
		Action: ActionDeactivated,
		Value:  flag.Value,
		Impact: impactOf(balance),
		Source: source,
		Target: flag.TargetModule,
		Reason: flag.Reason,
		At:     now,
	}, nil
}

// Multiplier resolves the combined contribution of all active flags at now.
// Values decay exponentially toward 1 since activation; two or more active
// flags are attenuated by the conflict rule before the weighted product.
func (b *Board) Multiplier(now time.Time) float64 {
	kinds := make([]Kind, 0, len(b.flags))
	decayed := make([]float64, 0, len(b.flags))
	for _, kind := range Kinds() {
		flag := b.flags[kind]
		if !flag.Active {
			continue
		}
		kinds = append(kinds, kind)
		decayed = append(decayed, b.decayedValue(flag, now))
	}
	if len(kinds) == 0 {
		return 1
	}

	multiplier := 1.0
	if len(kinds) == 1 {
		multiplier = math.Pow(decayed[0], b.weight(kinds[0]))
	} else {
		maxValue := decayed[0]
		minValue := decayed[0]
		for _, v := range decayed[1:] {
			maxValue = math.Max(maxValue, v)
			minValue = math.Min(minValue, v)
		}
		effective := maxValue * (1 - b.cfg.ConflictGamma*math.Abs(maxValue-minValue))
		for _, kind := range kinds {
			multiplier *= math.Pow(effective, b.weight(kind))
		}
	}
	return clampRange(multiplier, b.cfg.MinMultiplier, b.cfg.MaxMultiplier)
}

func (b *Board) decayedValue(flag *Flag, now time.Time) float64 {
	if flag.LastActivatedAt.IsZero() {
		return flag.Value
	}
	seconds := now.Sub(flag.LastActivatedAt).Seconds()
	if seconds < 0 {
		seconds = 0
	}
	return 1 + (flag.Value-1)*math.Exp(-b.cfg.DecayRate*seconds)
}

func (b *Board) weight(kind Kind) float64 {
	if weight, ok := b.cfg.Weights[kind]; ok {
		return weight
	}
	return 1
}

// Flags returns copies of the four flags in canonical order.
func (b *Board) Flags() []Flag {
	out := make([]Flag, 0, len(b.flags))
	for _, kind := range Kinds() {
		out = append(out, *b.flags[kind])
	}
	return out
}

// Flag returns a copy of one flag.
func (b *Board) Flag(kind Kind) (Flag, bool) {
	flag, ok := b.flags[kind]
	if !ok {
		return Flag{}, false
	}
	return *flag, true
}

// ActiveNames lists the active flag kinds in canonical order.
func (b *Board) ActiveNames() []string {
	names := make([]string, 0, len(b.flags))
	for _, kind := range Kinds() {
		if b.flags[kind].Active {
			names = append(names, string(kind))
		}
	}
	return names
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
