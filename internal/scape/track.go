package scape

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"trackgym/internal/config"
	"trackgym/internal/env"
	protoio "trackgym/internal/io"
	"trackgym/internal/logging"
	"trackgym/internal/scapeid"
)

// TrackScape rolls an agent through episodes of the track environment.
// Fitness is the mean undiscounted episode return.
type TrackScape struct {
	Params config.Parameters
	// Episodes overrides the per-mode episode count when positive.
	Episodes int
	Seed     int64
	Options  []env.Option
	// OnEpisode, when set, observes every finished episode.
	OnEpisode func(EpisodeResult)
}

type EpisodeResult struct {
	Index     int
	Seed      int64
	Return    float64
	Steps     int
	Elapsed   float64
	Progress  float64
	Status    env.Status
	Accidents []string
}

// Report is the typed outcome of one evaluation.
type Report struct {
	Mode     string
	Fitness  Fitness
	Episodes []EpisodeResult
}

func (TrackScape) Name() string {
	return scapeid.Track
}

func (s TrackScape) Evaluate(ctx context.Context, agent Agent) (Fitness, Trace, error) {
	return s.EvaluateMode(ctx, agent, "gt")
}

func (s TrackScape) EvaluateMode(ctx context.Context, agent Agent, mode string) (Fitness, Trace, error) {
	report, err := s.Run(ctx, agent, mode)
	if err != nil {
		return 0, nil, err
	}
	return report.Fitness, report.Trace(), nil
}

// Run evaluates agent and returns every episode. Tick agents are driven
// through their registered IO when available; otherwise the agent must be
// a StepAgent.
func (s TrackScape) Run(ctx context.Context, agent Agent, mode string) (Report, error) {
	cfg, err := trackConfigForMode(mode)
	if err != nil {
		return Report{}, err
	}
	if ticker, ok := agent.(TickAgent); ok {
		if choose, err := trackTickIO(ticker); err == nil {
			return s.run(ctx, cfg, choose)
		}
	}
	runner, ok := agent.(StepAgent)
	if !ok {
		return Report{}, fmt.Errorf("agent %s does not implement step runner", agent.ID())
	}
	return s.run(ctx, cfg, func(ctx context.Context, obs []float64) ([]float64, error) {
		out, err := runner.RunStep(ctx, obs)
		if err != nil {
			return nil, err
		}
		if len(out) != env.ActionSize {
			return nil, fmt.Errorf("track requires %d outputs, got %d", env.ActionSize, len(out))
		}
		return out, nil
	})
}

type trackModeConfig struct {
	mode            string
	episodes        int
	seedOffset      int64
	stepsPerEpisode int
}

func trackConfigForMode(mode string) (trackModeConfig, error) {
	switch strings.TrimSpace(strings.ToLower(mode)) {
	case "", "gt":
		return trackModeConfig{mode: "gt", episodes: 5, seedOffset: 0, stepsPerEpisode: 500}, nil
	case "validation":
		return trackModeConfig{mode: "validation", episodes: 3, seedOffset: 10_000, stepsPerEpisode: 400}, nil
	case "test":
		return trackModeConfig{mode: "test", episodes: 5, seedOffset: 20_000, stepsPerEpisode: 500}, nil
	case "benchmark":
		return trackModeConfig{mode: "benchmark", episodes: 5, seedOffset: 20_000, stepsPerEpisode: 500}, nil
	default:
		return trackModeConfig{}, fmt.Errorf("unsupported track mode: %s", mode)
	}
}

type chooseAction func(ctx context.Context, obs []float64) ([]float64, error)

func (s TrackScape) run(ctx context.Context, mode trackModeConfig, choose chooseAction) (Report, error) {
	cfg, err := config.Load(s.Params)
	if err != nil {
		return Report{}, err
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = mode.stepsPerEpisode
	}
	episodes := mode.episodes
	if s.Episodes > 0 {
		episodes = s.Episodes
	}
	ctrl, err := env.New(cfg, s.Options...)
	if err != nil {
		return Report{}, err
	}
	log := logging.Named("scape").With(zap.String("mode", mode.mode))

	report := Report{Mode: mode.mode, Episodes: make([]EpisodeResult, 0, episodes)}
	total := 0.0
	for i := 0; i < episodes; i++ {
		seed := s.Seed + mode.seedOffset + int64(i)
		ctrl.Seed(seed)
		if err := ctrl.Begin(ctx); err != nil {
			return Report{}, err
		}
		result, err := runEpisode(ctx, ctrl, choose)
		if err != nil {
			return Report{}, err
		}
		result.Index = i
		result.Seed = seed
		report.Episodes = append(report.Episodes, result)
		total += result.Return
		if s.OnEpisode != nil {
			s.OnEpisode(result)
		}
		log.Debug("episode finished",
			zap.Int("episode", i),
			zap.Float64("return", result.Return),
			zap.String("status", result.Status.String()),
		)
	}
	if episodes > 0 {
		report.Fitness = Fitness(total / float64(episodes))
	}
	return report, nil
}

func runEpisode(ctx context.Context, ctrl *env.Controller, choose chooseAction) (EpisodeResult, error) {
	obs, err := ctrl.Observe()
	if err != nil {
		return EpisodeResult{}, err
	}
	var result EpisodeResult
	for {
		if err := ctx.Err(); err != nil {
			return EpisodeResult{}, err
		}
		action, err := choose(ctx, obs)
		if err != nil {
			return EpisodeResult{}, err
		}
		step, err := ctrl.Step(action)
		if err != nil {
			return EpisodeResult{}, err
		}
		result.Return += step.Reward
		for _, e := range step.Fired {
			result.Accidents = append(result.Accidents, string(e.Kind)+":"+e.State.String())
		}
		obs = step.Observation
		if step.Done {
			result.Steps = ctrl.Steps()
			result.Elapsed = ctrl.Elapsed()
			result.Progress = ctrl.Progress()
			result.Status = step.Status
			return result, nil
		}
	}
}

// Trace flattens the report into the generic trace map.
func (r Report) Trace() Trace {
	var steps, failures, successes, truncations, accidents int
	for _, e := range r.Episodes {
		steps += e.Steps
		accidents += len(e.Accidents)
		switch e.Status {
		case env.StatusFailure:
			failures++
		case env.StatusSuccess:
			successes++
		case env.StatusTruncated:
			truncations++
		}
	}
	avgSteps := 0.0
	if len(r.Episodes) > 0 {
		avgSteps = float64(steps) / float64(len(r.Episodes))
	}
	return Trace{
		"mode":            r.Mode,
		"episodes":        len(r.Episodes),
		"avg_return":      float64(r.Fitness),
		"avg_steps":       avgSteps,
		"failures":        failures,
		"successes":       successes,
		"truncations":     truncations,
		"accident_events": accidents,
		"episode_results": r.Episodes,
	}
}

func trackTickIO(agent TickAgent) (chooseAction, error) {
	typed, ok := agent.(interface {
		RegisteredSensor(id string) (protoio.Sensor, bool)
		RegisteredActuator(id string) (protoio.Actuator, bool)
	})
	if !ok {
		return nil, fmt.Errorf("agent %s does not expose IO registry access", agent.ID())
	}

	sensor, ok := typed.RegisteredSensor(protoio.TrackObservationSensorName)
	if !ok {
		return nil, fmt.Errorf("agent %s missing sensor %s", agent.ID(), protoio.TrackObservationSensorName)
	}
	setter, ok := sensor.(protoio.VectorSensorSetter)
	if !ok {
		return nil, fmt.Errorf("sensor %s does not support vector set", protoio.TrackObservationSensorName)
	}

	actuator, ok := typed.RegisteredActuator(protoio.TrackControlActuatorName)
	if !ok {
		return nil, fmt.Errorf("agent %s missing actuator %s", agent.ID(), protoio.TrackControlActuatorName)
	}
	output, ok := actuator.(protoio.SnapshotActuator)
	if !ok {
		return nil, fmt.Errorf("actuator %s does not support output snapshot", protoio.TrackControlActuatorName)
	}

	return func(ctx context.Context, obs []float64) ([]float64, error) {
		setter.Set(obs)
		out, err := agent.Tick(ctx)
		if err != nil {
			return nil, err
		}
		if last := output.Last(); len(last) > 0 {
			return last, nil
		}
		return out, nil
	}, nil
}
