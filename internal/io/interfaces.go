package io

import "context"

type Sensor interface {
	Name() string
	Read(ctx context.Context) ([]float64, error)
}

// VectorSensorSetter is an optional sensor capability used by scapes that
// push a whole observation vector before each tick.
type VectorSensorSetter interface {
	Set(values []float64)
}

type Actuator interface {
	Name() string
	Write(ctx context.Context, values []float64) error
}

// SnapshotActuator is an optional actuator capability used by scapes that
// inspect the most recent actuator output.
type SnapshotActuator interface {
	Last() []float64
}
