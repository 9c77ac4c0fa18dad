package io

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"trackgym/internal/scapeid"
)

const (
	SupportedSchemaVersion = 1
	SupportedCodecVersion  = 1
)

var (
	ErrSensorExists     = errors.New("sensor already registered")
	ErrSensorNotFound   = errors.New("sensor not found")
	ErrActuatorExists   = errors.New("actuator already registered")
	ErrActuatorNotFound = errors.New("actuator not found")
	ErrVersionMismatch  = errors.New("registry version mismatch")
	ErrIncompatible     = errors.New("component incompatible with scape")
)

type CompatibilityFn func(scape string) error

type SensorFactory func() Sensor

type ActuatorFactory func() Actuator

type SensorSpec struct {
	Name          string
	Factory       SensorFactory
	SchemaVersion int
	CodecVersion  int
	Compatible    CompatibilityFn
}

type ActuatorSpec struct {
	Name          string
	Factory       ActuatorFactory
	SchemaVersion int
	CodecVersion  int
	Compatible    CompatibilityFn
}

type entry[F any] struct {
	factory       F
	schemaVersion int
	codecVersion  int
	compatible    CompatibilityFn
}

// registry holds one component kind. Sensors and actuators share the
// version and compatibility rules.
type registry[F any] struct {
	kind        string
	errExists   error
	errNotFound error

	mu sync.RWMutex
	m  map[string]entry[F]
}

func newRegistry[F any](kind string, errExists, errNotFound error) *registry[F] {
	return &registry[F]{
		kind:        kind,
		errExists:   errExists,
		errNotFound: errNotFound,
		m:           make(map[string]entry[F]),
	}
}

var (
	sensors   = newRegistry[SensorFactory]("sensor", ErrSensorExists, ErrSensorNotFound)
	actuators = newRegistry[ActuatorFactory]("actuator", ErrActuatorExists, ErrActuatorNotFound)
)

func (r *registry[F]) register(name string, factory F, isNil bool, schema, codec int, compatible CompatibilityFn) error {
	if name == "" {
		return fmt.Errorf("%s name is required", r.kind)
	}
	if isNil {
		return fmt.Errorf("%s factory is required", r.kind)
	}
	if schema != SupportedSchemaVersion || codec != SupportedCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, schema, codec)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.m[name]; exists {
		return fmt.Errorf("%w: %s", r.errExists, name)
	}
	r.m[name] = entry[F]{
		factory:       factory,
		schemaVersion: schema,
		codecVersion:  codec,
		compatible:    compatible,
	}
	return nil
}

func (r *registry[F]) lookup(name string) (entry[F], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.m[strings.TrimSpace(name)]
	return e, ok
}

func (r *registry[F]) resolve(name, scape string) (F, error) {
	e, ok := r.lookup(name)
	if !ok {
		var zero F
		return zero, fmt.Errorf("%w: %s", r.errNotFound, name)
	}
	if err := r.compatibilityError(name, e, scapeid.Normalize(scape)); err != nil {
		var zero F
		return zero, err
	}
	return e.factory, nil
}

func (r *registry[F]) compatibleWith(name, scape string) bool {
	e, ok := r.lookup(name)
	return ok && r.compatibilityError(name, e, scapeid.Normalize(scape)) == nil
}

// list returns sorted names; an empty scape lists everything.
func (r *registry[F]) list(scape string) []string {
	normalized := scapeid.Normalize(scape)

	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.m))
	for name, e := range r.m {
		if scape != "" && r.compatibilityError(name, e, normalized) != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *registry[F]) compatibilityError(name string, e entry[F], scape string) error {
	if e.schemaVersion != SupportedSchemaVersion || e.codecVersion != SupportedCodecVersion {
		return fmt.Errorf("%w: %s", ErrVersionMismatch, name)
	}
	if e.compatible != nil {
		if err := e.compatible(scape); err != nil {
			return fmt.Errorf("%w: %s=%s: %v", ErrIncompatible, r.kind, name, err)
		}
	}
	return nil
}

func (r *registry[F]) reset() {
	r.mu.Lock()
	r.m = make(map[string]entry[F])
	r.mu.Unlock()
}

func RegisterSensor(name string, factory SensorFactory) error {
	return RegisterSensorWithSpec(SensorSpec{
		Name:          name,
		Factory:       factory,
		SchemaVersion: SupportedSchemaVersion,
		CodecVersion:  SupportedCodecVersion,
	})
}

func RegisterSensorWithSpec(spec SensorSpec) error {
	return sensors.register(spec.Name, spec.Factory, spec.Factory == nil, spec.SchemaVersion, spec.CodecVersion, spec.Compatible)
}

func ResolveSensor(name, scape string) (Sensor, error) {
	factory, err := sensors.resolve(name, scape)
	if err != nil {
		return nil, err
	}
	return factory(), nil
}

func SensorCompatibleWithScape(name, scape string) bool {
	return sensors.compatibleWith(name, scape)
}

func ListSensorsForScape(scape string) []string {
	return sensors.list(scape)
}

func ListSensors() []string {
	return sensors.list("")
}

func RegisterActuator(name string, factory ActuatorFactory) error {
	return RegisterActuatorWithSpec(ActuatorSpec{
		Name:          name,
		Factory:       factory,
		SchemaVersion: SupportedSchemaVersion,
		CodecVersion:  SupportedCodecVersion,
	})
}

func RegisterActuatorWithSpec(spec ActuatorSpec) error {
	return actuators.register(spec.Name, spec.Factory, spec.Factory == nil, spec.SchemaVersion, spec.CodecVersion, spec.Compatible)
}

func ResolveActuator(name, scape string) (Actuator, error) {
	factory, err := actuators.resolve(name, scape)
	if err != nil {
		return nil, err
	}
	return factory(), nil
}

func ActuatorCompatibleWithScape(name, scape string) bool {
	return actuators.compatibleWith(name, scape)
}

func ListActuatorsForScape(scape string) []string {
	return actuators.list(scape)
}

func ListActuators() []string {
	return actuators.list("")
}

func resetRegistriesForTests() {
	sensors.reset()
	actuators.reset()
	initializeDefaultComponents()
}
