package io

import (
	"context"
	"fmt"
	"sync"

	"trackgym/internal/scapeid"
)

const (
	TrackObservationSensorName = "track_observation"
	TrackControlActuatorName   = "track_control"
)

// VectorInputSensor serves the last observation pushed by the scape.
type VectorInputSensor struct {
	name string

	mu     sync.RWMutex
	values []float64
}

func NewVectorInputSensor(name string) *VectorInputSensor {
	return &VectorInputSensor{name: name}
}

func (s *VectorInputSensor) Name() string {
	return s.name
}

func (s *VectorInputSensor) Read(_ context.Context) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]float64(nil), s.values...), nil
}

func (s *VectorInputSensor) Set(values []float64) {
	s.mu.Lock()
	s.values = append(s.values[:0], values...)
	s.mu.Unlock()
}

// VectorOutputActuator keeps the last action written by an agent. Writes
// wider than Width are rejected.
type VectorOutputActuator struct {
	name  string
	Width int

	mu   sync.RWMutex
	last []float64
}

func NewVectorOutputActuator(name string, width int) *VectorOutputActuator {
	return &VectorOutputActuator{name: name, Width: width}
}

func (a *VectorOutputActuator) Name() string {
	return a.name
}

func (a *VectorOutputActuator) Write(_ context.Context, values []float64) error {
	if a.Width > 0 && len(values) > a.Width {
		return fmt.Errorf("%s accepts %d values, got %d", a.name, a.Width, len(values))
	}
	a.mu.Lock()
	a.last = append([]float64(nil), values...)
	a.mu.Unlock()
	return nil
}

func (a *VectorOutputActuator) Last() []float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]float64(nil), a.last...)
}

func init() {
	initializeDefaultComponents()
}

func trackOnly(scape string) error {
	if scape != scapeid.Track {
		return fmt.Errorf("unsupported scape: %s", scape)
	}
	return nil
}

func initializeDefaultComponents() {
	err := RegisterSensorWithSpec(SensorSpec{
		Name:          TrackObservationSensorName,
		Factory:       func() Sensor { return NewVectorInputSensor(TrackObservationSensorName) },
		SchemaVersion: SupportedSchemaVersion,
		CodecVersion:  SupportedCodecVersion,
		Compatible:    trackOnly,
	})
	if err != nil {
		panic(err)
	}
	err = RegisterActuatorWithSpec(ActuatorSpec{
		Name:          TrackControlActuatorName,
		Factory:       func() Actuator { return NewVectorOutputActuator(TrackControlActuatorName, 2) },
		SchemaVersion: SupportedSchemaVersion,
		CodecVersion:  SupportedCodecVersion,
		Compatible:    trackOnly,
	})
	if err != nil {
		panic(err)
	}
}
