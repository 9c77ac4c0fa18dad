package policy

import (
	"context"
	"fmt"
	"math/rand"

	"trackgym/internal/config"
	"trackgym/internal/env"
	"trackgym/internal/nn"
	"trackgym/internal/observe"
)

const DefaultHiddenUnits = 8

// Neural maps the meaningful prefix of the observation vector through a
// feed-forward network. Outputs are clamped to the action range.
type Neural struct {
	net   *nn.Network
	width int
}

// NeuralTopology is the network shape a neural policy needs for cfg.
func NeuralTopology(cfg config.Config, hidden int) nn.Topology {
	sizes := []int{observe.FromConfig(cfg).ContentSize()}
	if hidden > 0 {
		sizes = append(sizes, hidden)
	}
	return nn.Topology{Sizes: append(sizes, env.ActionSize), Hidden: "tanh", Output: "tanh"}
}

// NewNeural wraps net, which must accept the observation content of cfg and
// produce one output per action component.
func NewNeural(cfg config.Config, net *nn.Network) (*Neural, error) {
	width := observe.FromConfig(cfg).ContentSize()
	if net.InputSize() != width || net.OutputSize() != env.ActionSize {
		return nil, fmt.Errorf("network shape %dx%d does not fit observation %d and action %d",
			net.InputSize(), net.OutputSize(), width, env.ActionSize)
	}
	return &Neural{net: net, width: width}, nil
}

// NewRandomNeural builds a neural policy with freshly initialised weights.
func NewRandomNeural(cfg config.Config, hidden int, seed int64) (*Neural, error) {
	net, err := nn.New(NeuralTopology(cfg, hidden), rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, err
	}
	return NewNeural(cfg, net)
}

func (n *Neural) ID() string { return "neural" }

func (n *Neural) Network() *nn.Network { return n.net }

func (n *Neural) RunStep(_ context.Context, obs []float64) ([]float64, error) {
	if len(obs) < n.width {
		return nil, fmt.Errorf("neural policy expects %d observation values, got %d", n.width, len(obs))
	}
	out, err := n.net.Forward(obs[:n.width])
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i] = nn.Sat(out[i], 1, -1)
	}
	return out, nil
}
