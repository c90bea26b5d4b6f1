package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// PlotterClient is a client of the Plotter service.
type PlotterClient struct {
	cc grpc.ClientConnInterface
}

// NewPlotterClient creates a client on cc.
func NewPlotterClient(cc grpc.ClientConnInterface) *PlotterClient {
	return &PlotterClient{cc: cc}
}

func (c *PlotterClient) invoke(ctx context.Context, name string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+name, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PlotterClient) Validate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Validate", in, opts...)
}

func (c *PlotterClient) Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Evaluate", in, opts...)
}

func (c *PlotterClient) GetPlot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetPlot", in, opts...)
}
