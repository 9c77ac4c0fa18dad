package nn

import (
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"
)

func TestForwardComputesDenseLayers(t *testing.T) {
	net := &Network{Layers: []*Layer{
		{Weights: mat.NewDense(2, 2, []float64{1, 2, -1, 0.5}), Bias: mat.NewVecDense(2, []float64{0, 1}), Activation: "relu"},
		{Weights: mat.NewDense(1, 2, []float64{1, 1}), Bias: mat.NewVecDense(1, []float64{-0.5}), Activation: "identity"},
	}}
	if err := net.bind(); err != nil {
		t.Fatalf("bind: %v", err)
	}

	out, err := net.Forward([]float64{1, 2})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	// hidden = relu([5, 1]) ; out = 5 + 1 - 0.5
	if len(out) != 1 || math.Abs(out[0]-5.5) > 1e-12 {
		t.Fatalf("unexpected output %v", out)
	}
	if _, err := net.Forward([]float64{1}); err == nil {
		t.Fatal("expected input size error")
	}
}

func TestNewRespectsTopologyAndBounds(t *testing.T) {
	net, err := New(Topology{Sizes: []int{4, 3, 2}, InitialMagnitude: 0.25}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if net.InputSize() != 4 || net.OutputSize() != 2 || net.ParameterCount() != 3*5+2*4 {
		t.Fatalf("unexpected shape in=%d out=%d params=%d", net.InputSize(), net.OutputSize(), net.ParameterCount())
	}
	for _, p := range net.Parameters() {
		if math.Abs(p) > 0.25 {
			t.Fatalf("parameter %f outside initial magnitude", p)
		}
	}
	out, err := net.Forward([]float64{10, -10, 10, -10})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	for _, v := range out {
		if v < -1 || v > 1 {
			t.Fatalf("tanh output %f out of range", v)
		}
	}

	if _, err := New(Topology{Sizes: []int{3}}, rand.New(rand.NewSource(1))); err == nil {
		t.Fatal("expected topology error")
	}
	if _, err := New(Topology{Sizes: []int{3, 1}, Output: "warp"}, rand.New(rand.NewSource(1))); !errors.Is(err, ErrActivationNotFound) {
		t.Fatalf("expected unknown activation, got %v", err)
	}
}

func TestSetParametersRoundTripsAndCloneIsIndependent(t *testing.T) {
	net, err := New(Topology{Sizes: []int{3, 2}}, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	params := net.Parameters()
	for i := range params {
		params[i] = float64(i)
	}
	if err := net.SetParameters(params); err != nil {
		t.Fatalf("set: %v", err)
	}
	if diff := cmp.Diff(params, net.Parameters()); diff != "" {
		t.Fatalf("parameters mismatch (-want +got):\n%s", diff)
	}

	clone := net.Clone()
	params[0] = 99
	if err := clone.SetParameters(params); err != nil {
		t.Fatalf("set clone: %v", err)
	}
	if net.Parameters()[0] != 0 {
		t.Fatal("clone shares storage with original")
	}
	if err := net.SetParameters(params[:2]); err == nil {
		t.Fatal("expected length error")
	}
}

func TestSaveLoad(t *testing.T) {
	net, err := New(Topology{Sizes: []int{5, 4, 2}, Hidden: "relu"}, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	path := filepath.Join(t.TempDir(), "net.json")
	if err := Save(path, net); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(net.Parameters(), loaded.Parameters()); diff != "" {
		t.Fatalf("parameters mismatch (-want +got):\n%s", diff)
	}
	input := []float64{0.1, -0.2, 0.3, 0.4, -0.5}
	want, _ := net.Forward(input)
	got, err := loaded.Forward(input)
	if err != nil {
		t.Fatalf("forward loaded: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestActivationRegistry(t *testing.T) {
	if err := RegisterActivation("tanh", math.Tanh); !errors.Is(err, ErrActivationExists) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if err := RegisterActivation("", math.Tanh); err == nil {
		t.Fatal("expected name error")
	}
	names := ListActivations()
	for _, want := range []string{"identity", "relu", "sigmoid", "softsign", "tanh"} {
		found := false
		for _, name := range names {
			found = found || name == want
		}
		if !found {
			t.Fatalf("missing activation %s in %v", want, names)
		}
	}
	if Sat(3, 1, -1) != 1 || Sat(-3, 1, -1) != -1 || Sat(0.5, 1, -1) != 0.5 {
		t.Fatal("sat clamp mismatch")
	}
}
