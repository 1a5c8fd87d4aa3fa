// Package composite combines several signal sources into one.
package composite

import (
	"errors"
	"fmt"
	"strings"

	"quantlab/internal/engine"
	"quantlab/types"
)

type Method string

const (
	Majority  Method = "majority"
	Weighted  Method = "weighted"
	Unanimous Method = "unanimous"
)

// DefaultThreshold is the weighted-vote level needed for a buy or sell.
const DefaultThreshold = 0.5

var (
	ErrNoMembers     = errors.New("composite needs at least one member")
	ErrUnknownMethod = errors.New("unknown combination method")
	ErrBadWeight     = errors.New("member weights must be non-negative and not all zero")
)

// Member is a source and its weight in a weighted vote. A zero weight
// counts as 1.
type Member struct {
	Source engine.SignalSource
	Weight float64
}

type Composite struct {
	name      string
	method    Method
	threshold float64
	members   []Member
	weights   []float64
}

// New builds a composite. threshold only applies to Weighted; zero means
// DefaultThreshold. An empty name is derived from the method and members.
func New(name string, method Method, threshold float64, members ...Member) (*Composite, error) {
	if len(members) == 0 {
		return nil, ErrNoMembers
	}
	switch method {
	case Majority, Weighted, Unanimous:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	weights := make([]float64, len(members))
	total := 0.0
	names := make([]string, len(members))
	for i, m := range members {
		if m.Source == nil || m.Weight < 0 {
			return nil, fmt.Errorf("%w: member %d", ErrBadWeight, i)
		}
		w := m.Weight
		if w == 0 {
			w = 1
		}
		weights[i] = w
		total += w
		names[i] = m.Source.Name()
	}
	for i := range weights {
		weights[i] /= total
	}
	if name == "" {
		name = string(method) + "(" + strings.Join(names, ",") + ")"
	}
	return &Composite{name: name, method: method, threshold: threshold, members: members, weights: weights}, nil
}

func (c *Composite) Name() string { return c.name }

// GenerateSignal asks every member for its signal. Any member error fails
// the whole vote for this window.
func (c *Composite) GenerateSignal(w types.Window) (types.Signal, error) {
	signals := make([]types.Signal, len(c.members))
	for i, m := range c.members {
		s, err := m.Source.GenerateSignal(w)
		if err != nil {
			return types.SignalHold, fmt.Errorf("member %s: %w", m.Source.Name(), err)
		}
		signals[i] = s.Normalize()
	}

	switch c.method {
	case Majority:
		sum := 0
		for _, s := range signals {
			sum += int(s)
		}
		return types.SignalFromScore(float64(sum), 0), nil
	case Weighted:
		score := 0.0
		for i, s := range signals {
			score += float64(s) * c.weights[i]
		}
		return types.SignalFromScore(score, c.threshold), nil
	default:
		for _, s := range signals[1:] {
			if s != signals[0] {
				return types.SignalHold, nil
			}
		}
		return signals[0], nil
	}
}
