package policy

import (
	"context"
	"fmt"

	protoio "trackgym/internal/io"
	"trackgym/internal/scape"
	"trackgym/internal/scapeid"
)

// Ticker adapts a StepAgent to the tick protocol: it reads the observation
// sensor, runs the policy and writes the control actuator.
type Ticker struct {
	policy   scape.StepAgent
	sensor   protoio.Sensor
	actuator protoio.Actuator
}

// NewTicker resolves the track IO components from the registry.
func NewTicker(policy scape.StepAgent) (*Ticker, error) {
	sensor, err := protoio.ResolveSensor(protoio.TrackObservationSensorName, scapeid.Track)
	if err != nil {
		return nil, err
	}
	actuator, err := protoio.ResolveActuator(protoio.TrackControlActuatorName, scapeid.Track)
	if err != nil {
		return nil, err
	}
	return &Ticker{policy: policy, sensor: sensor, actuator: actuator}, nil
}

func (t *Ticker) ID() string {
	return t.policy.ID()
}

func (t *Ticker) Tick(ctx context.Context) ([]float64, error) {
	obs, err := t.sensor.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.sensor.Name(), err)
	}
	action, err := t.policy.RunStep(ctx, obs)
	if err != nil {
		return nil, err
	}
	if err := t.actuator.Write(ctx, action); err != nil {
		return nil, err
	}
	return action, nil
}

func (t *Ticker) RegisteredSensor(id string) (protoio.Sensor, bool) {
	if id != t.sensor.Name() {
		return nil, false
	}
	return t.sensor, true
}

func (t *Ticker) RegisteredActuator(id string) (protoio.Actuator, bool) {
	if id != t.actuator.Name() {
		return nil, false
	}
	return t.actuator, true
}
