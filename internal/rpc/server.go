package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"trackgym/internal/config"
	"trackgym/internal/env"
	"trackgym/internal/logging"
)

var _ EnvironmentServer = (*Server)(nil)

// Server drives a single controller. Calls are serialized.
type Server struct {
	mu      sync.Mutex
	params  config.Parameters
	opts    []env.Option
	ctrl    *env.Controller
	episode int
	log     *zap.Logger
}

func NewServer(params config.Parameters, opts ...env.Option) (*Server, error) {
	params = params.Clone()
	ctrl, err := newController(params, opts)
	if err != nil {
		return nil, err
	}
	return &Server{
		params: params,
		opts:   opts,
		ctrl:   ctrl,
		log:    logging.Named("rpc"),
	}, nil
}

func newController(params config.Parameters, opts []env.Option) (*env.Controller, error) {
	cfg, err := config.Load(params)
	if err != nil {
		return nil, err
	}
	return env.New(cfg, opts...)
}

func (s *Server) Describe(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.ctrl.Config()
	return structpb.NewStruct(map[string]any{
		"observation_size": s.ctrl.ObservationSize(),
		"action_size":      env.ActionSize,
		"path_space":       cfg.Track.Space.String(),
		"agent_type":       cfg.Agent.Type.String(),
	})
}

// Reset starts a new episode. Optional fields: seed (number) and parameters
// (struct of numbers). Parameters persist for later episodes.
func (s *Server) Reset(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := in.GetFields()
	if raw, ok := fields["parameters"]; ok {
		overrides, err := parametersFromValue(raw)
		if err != nil {
			return nil, toStatus(err)
		}
		params := s.params.Clone().Merge(overrides)
		ctrl, err := newController(params, s.opts)
		if err != nil {
			return nil, toStatus(err)
		}
		s.params, s.ctrl = params, ctrl
		s.log.Info("controller rebuilt", zap.Int("overrides", len(overrides)))
	}
	if raw, ok := fields["seed"]; ok {
		seed, ok := raw.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, status.Error(codes.InvalidArgument, "seed must be a number")
		}
		s.ctrl.Seed(int64(seed.NumberValue))
	}

	if err := s.ctrl.Begin(ctx); err != nil {
		return nil, toStatus(err)
	}
	obs, err := s.ctrl.Observe()
	if err != nil {
		return nil, toStatus(err)
	}
	s.episode++
	s.log.Debug("episode reset", zap.Int("episode", s.episode))

	return structpb.NewStruct(map[string]any{
		"observation": floatsToAny(obs),
		"episode":     s.episode,
	})
}

func (s *Server) Step(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}
	action, err := floatsFromValue(in.GetFields()["action"])
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "action: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.ctrl.Step(action)
	if err != nil {
		return nil, toStatus(err)
	}
	fired := make([]any, 0, len(res.Fired))
	for _, event := range res.Fired {
		fired = append(fired, string(event.Kind))
	}
	if res.Done {
		s.log.Debug("episode finished",
			zap.Int("episode", s.episode),
			zap.String("status", res.Status.String()),
			zap.Int("steps", s.ctrl.Steps()),
		)
	}
	return structpb.NewStruct(map[string]any{
		"observation": floatsToAny(res.Observation),
		"reward":      res.Reward,
		"done":        res.Done,
		"status":      res.Status.String(),
		"elapsed":     s.ctrl.Elapsed(),
		"fired":       fired,
	})
}

// Serve runs the service on lis until ctx is cancelled.
func Serve(ctx context.Context, lis net.Listener, srv *Server, opts ...grpc.ServerOption) error {
	gs := grpc.NewServer(opts...)
	RegisterEnvironmentServer(gs, srv)

	log := logging.Named("rpc")
	log.Info("serving", zap.String("addr", lis.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- gs.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		gs.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, config.ErrConfiguration):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, env.ErrEpisodeOver), errors.Is(err, env.ErrNotStarted):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func parametersFromValue(v *structpb.Value) (config.Parameters, error) {
	st := v.GetStructValue()
	if st == nil {
		return nil, config.Errorf("parameters", "must be a struct")
	}
	params := make(config.Parameters, len(st.GetFields()))
	for key, value := range st.GetFields() {
		var f float64
		switch kind := value.GetKind().(type) {
		case *structpb.Value_NumberValue:
			f = kind.NumberValue
		case *structpb.Value_BoolValue:
			if kind.BoolValue {
				f = 1
			}
		default:
			return nil, config.Errorf(key, "must be a number")
		}
		if err := params.Set(key, f); err != nil {
			return nil, err
		}
	}
	return params, nil
}

func floatsFromValue(v *structpb.Value) ([]float64, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, errors.New("expected a list of numbers")
	}
	out := make([]float64, len(list.GetValues()))
	for i, item := range list.GetValues() {
		n, ok := item.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("element %d is not a number", i)
		}
		out[i] = n.NumberValue
	}
	return out, nil
}

func floatsToAny(values []float64) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
