package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"trackgym/internal/config"
)

type Description struct {
	ObservationSize int
	ActionSize      int
	PathSpace       string
	AgentType       string
}

type ResetRequest struct {
	// Seed reseeds the controller when non-nil.
	Seed       *int64
	Parameters config.Parameters
}

type StepReply struct {
	Observation []float64
	Reward      float64
	Done        bool
	Status      string
	Elapsed     float64
	Fired       []string
}

// Client wraps the environment service for Go trainers.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// Dial connects to addr without transport security.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClient wraps an existing connection. Close is then a no-op.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) Describe(ctx context.Context) (Description, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, describeMethod, &structpb.Struct{}, out); err != nil {
		return Description{}, err
	}
	fields := out.GetFields()
	return Description{
		ObservationSize: int(fields["observation_size"].GetNumberValue()),
		ActionSize:      int(fields["action_size"].GetNumberValue()),
		PathSpace:       fields["path_space"].GetStringValue(),
		AgentType:       fields["agent_type"].GetStringValue(),
	}, nil
}

// Reset begins an episode and returns its first observation.
func (c *Client) Reset(ctx context.Context, req ResetRequest) ([]float64, error) {
	in := map[string]any{}
	if req.Seed != nil {
		in["seed"] = float64(*req.Seed)
	}
	if len(req.Parameters) > 0 {
		params := make(map[string]any, len(req.Parameters))
		for k, v := range req.Parameters {
			params[k] = v
		}
		in["parameters"] = params
	}
	msg, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, resetMethod, msg, out); err != nil {
		return nil, err
	}
	return floatsFromValue(out.GetFields()["observation"])
}

func (c *Client) Step(ctx context.Context, action []float64) (StepReply, error) {
	msg, err := structpb.NewStruct(map[string]any{"action": floatsToAny(action)})
	if err != nil {
		return StepReply{}, err
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, stepMethod, msg, out); err != nil {
		return StepReply{}, err
	}
	fields := out.GetFields()
	obs, err := floatsFromValue(fields["observation"])
	if err != nil {
		return StepReply{}, err
	}
	var fired []string
	for _, v := range fields["fired"].GetListValue().GetValues() {
		fired = append(fired, v.GetStringValue())
	}
	return StepReply{
		Observation: obs,
		Reward:      fields["reward"].GetNumberValue(),
		Done:        fields["done"].GetBoolValue(),
		Status:      fields["status"].GetStringValue(),
		Elapsed:     fields["elapsed"].GetNumberValue(),
		Fired:       fired,
	}, nil
}
