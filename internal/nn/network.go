package nn

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"

	"gonum.org/v1/gonum/mat"
)

const (
	SupportedSchemaVersion = 1
	SupportedCodecVersion  = 1
)

// Layer is one dense layer: out = act(W·in + b). W has one row per output.
type Layer struct {
	Weights    *mat.Dense
	Bias       *mat.VecDense
	Activation string

	act ActivationFunc
}

func (l *Layer) Inputs() int {
	_, c := l.Weights.Dims()
	return c
}

func (l *Layer) Outputs() int {
	r, _ := l.Weights.Dims()
	return r
}

// Network is a dense feed-forward network with a fixed topology.
type Network struct {
	Layers []*Layer
}

// Topology describes the network shape: Sizes[0] inputs, Sizes[len-1]
// outputs and hidden layers in between.
type Topology struct {
	Sizes            []int
	Hidden           string
	Output           string
	InitialMagnitude float64
}

func (t Topology) Validate() error {
	if len(t.Sizes) < 2 {
		return errors.New("topology needs input and output sizes")
	}
	for i, n := range t.Sizes {
		if n <= 0 {
			return fmt.Errorf("layer %d size must be > 0, got %d", i, n)
		}
	}
	return nil
}

// New builds a network with weights drawn uniformly from
// [-InitialMagnitude, InitialMagnitude]. Bias starts at zero.
func New(topology Topology, rng *rand.Rand) (*Network, error) {
	if err := topology.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	hidden, output := topology.Hidden, topology.Output
	if hidden == "" {
		hidden = "tanh"
	}
	if output == "" {
		output = "tanh"
	}
	magnitude := topology.InitialMagnitude
	if magnitude <= 0 {
		magnitude = 1 / math.Sqrt(float64(topology.Sizes[0]))
	}

	net := &Network{}
	for i := 1; i < len(topology.Sizes); i++ {
		in, out := topology.Sizes[i-1], topology.Sizes[i]
		weights := make([]float64, in*out)
		for j := range weights {
			weights[j] = magnitude * (2*rng.Float64() - 1)
		}
		activation := hidden
		if i == len(topology.Sizes)-1 {
			activation = output
		}
		net.Layers = append(net.Layers, &Layer{
			Weights:    mat.NewDense(out, in, weights),
			Bias:       mat.NewVecDense(out, nil),
			Activation: activation,
		})
	}
	if err := net.bind(); err != nil {
		return nil, err
	}
	return net, nil
}

func (n *Network) bind() error {
	for i, layer := range n.Layers {
		fn, err := GetActivation(layer.Activation)
		if err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		layer.act = fn
		if i > 0 && n.Layers[i-1].Outputs() != layer.Inputs() {
			return fmt.Errorf("layer %d expects %d inputs, previous layer has %d outputs", i, layer.Inputs(), n.Layers[i-1].Outputs())
		}
	}
	return nil
}

func (n *Network) InputSize() int {
	if len(n.Layers) == 0 {
		return 0
	}
	return n.Layers[0].Inputs()
}

func (n *Network) OutputSize() int {
	if len(n.Layers) == 0 {
		return 0
	}
	return n.Layers[len(n.Layers)-1].Outputs()
}

// Forward evaluates the network. Non-finite outputs are clamped to zero so a
// diverged candidate cannot poison the physics step.
func (n *Network) Forward(input []float64) ([]float64, error) {
	if len(n.Layers) == 0 {
		return nil, errors.New("network has no layers")
	}
	if len(input) != n.InputSize() {
		return nil, fmt.Errorf("network expects %d inputs, got %d", n.InputSize(), len(input))
	}
	x := mat.NewVecDense(len(input), append([]float64(nil), input...))
	for _, layer := range n.Layers {
		y := mat.NewVecDense(layer.Outputs(), nil)
		y.MulVec(layer.Weights, x)
		y.AddVec(y, layer.Bias)
		for i := 0; i < y.Len(); i++ {
			y.SetVec(i, layer.act(y.AtVec(i)))
		}
		x = y
	}
	out := make([]float64, x.Len())
	for i := range out {
		v := x.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		out[i] = v
	}
	return out, nil
}

// ParameterCount is the length of the vector returned by Parameters.
func (n *Network) ParameterCount() int {
	total := 0
	for _, layer := range n.Layers {
		total += layer.Outputs() * (layer.Inputs() + 1)
	}
	return total
}

// Parameters flattens weights (row-major) then bias, layer by layer.
func (n *Network) Parameters() []float64 {
	out := make([]float64, 0, n.ParameterCount())
	for _, layer := range n.Layers {
		out = append(out, layer.Weights.RawMatrix().Data...)
		out = append(out, layer.Bias.RawVector().Data...)
	}
	return out
}

// SetParameters is the inverse of Parameters.
func (n *Network) SetParameters(params []float64) error {
	if len(params) != n.ParameterCount() {
		return fmt.Errorf("expected %d parameters, got %d", n.ParameterCount(), len(params))
	}
	offset := 0
	for _, layer := range n.Layers {
		w := layer.Weights.RawMatrix().Data
		offset += copy(w, params[offset:offset+len(w)])
		b := layer.Bias.RawVector().Data
		offset += copy(b, params[offset:offset+len(b)])
	}
	return nil
}

func (n *Network) Clone() *Network {
	out := &Network{Layers: make([]*Layer, 0, len(n.Layers))}
	for _, layer := range n.Layers {
		out.Layers = append(out.Layers, &Layer{
			Weights:    mat.DenseCopyOf(layer.Weights),
			Bias:       mat.VecDenseCopyOf(layer.Bias),
			Activation: layer.Activation,
			act:        layer.act,
		})
	}
	return out
}

type layerJSON struct {
	Inputs     int       `json:"inputs"`
	Outputs    int       `json:"outputs"`
	Activation string    `json:"activation"`
	Weights    []float64 `json:"weights"`
	Bias       []float64 `json:"bias"`
}

type networkJSON struct {
	SchemaVersion int         `json:"schema_version"`
	CodecVersion  int         `json:"codec_version"`
	Layers        []layerJSON `json:"layers"`
}

func (n *Network) MarshalJSON() ([]byte, error) {
	payload := networkJSON{SchemaVersion: SupportedSchemaVersion, CodecVersion: SupportedCodecVersion}
	for _, layer := range n.Layers {
		payload.Layers = append(payload.Layers, layerJSON{
			Inputs:     layer.Inputs(),
			Outputs:    layer.Outputs(),
			Activation: layer.Activation,
			Weights:    append([]float64(nil), layer.Weights.RawMatrix().Data...),
			Bias:       append([]float64(nil), layer.Bias.RawVector().Data...),
		})
	}
	return json.Marshal(payload)
}

func (n *Network) UnmarshalJSON(data []byte) error {
	var payload networkJSON
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	if payload.SchemaVersion != SupportedSchemaVersion || payload.CodecVersion != SupportedCodecVersion {
		return fmt.Errorf("unsupported network version: schema=%d codec=%d", payload.SchemaVersion, payload.CodecVersion)
	}
	if len(payload.Layers) == 0 {
		return errors.New("network has no layers")
	}
	layers := make([]*Layer, 0, len(payload.Layers))
	for i, l := range payload.Layers {
		if l.Inputs <= 0 || l.Outputs <= 0 || len(l.Weights) != l.Inputs*l.Outputs || len(l.Bias) != l.Outputs {
			return fmt.Errorf("layer %d: inconsistent shape", i)
		}
		layers = append(layers, &Layer{
			Weights:    mat.NewDense(l.Outputs, l.Inputs, l.Weights),
			Bias:       mat.NewVecDense(l.Outputs, l.Bias),
			Activation: l.Activation,
		})
	}
	n.Layers = layers
	return n.bind()
}

func Save(path string, n *Network) error {
	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func Load(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var n Network
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decode network %s: %w", path, err)
	}
	return &n, nil
}
