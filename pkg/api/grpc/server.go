// Package grpcapi implements the plotter.v1.Plotter gRPC service. Messages
// are google.protobuf.Struct values, so any gRPC client can call it without
// generated stubs.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lemonberrylabs/i64-plotter/pkg/expr"
	"github.com/lemonberrylabs/i64-plotter/pkg/runtime"
	"github.com/lemonberrylabs/i64-plotter/pkg/store"
	"github.com/lemonberrylabs/i64-plotter/pkg/types"
)

// ServiceName is the fully qualified name of the service.
const ServiceName = "plotter.v1.Plotter"

// PlotterServer is the server API of the Plotter service.
type PlotterServer interface {
	Validate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetPlot(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type method func(PlotterServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call method) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PlotterServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(PlotterServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// PlotterServiceDesc describes the Plotter service for grpc.Server.RegisterService.
var PlotterServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PlotterServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Validate", PlotterServer.Validate),
		unaryHandler("Evaluate", PlotterServer.Evaluate),
		unaryHandler("GetPlot", PlotterServer.GetPlot),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "plotter/v1/plotter.proto",
}

// Server implements the Plotter gRPC service.
type Server struct {
	store   *store.Store
	logger  zerolog.Logger
	workers int
	grpc    *grpc.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithWorkers sets the number of workers used by each sweep.
func WithWorkers(n int) Option {
	return func(s *Server) { s.workers = n }
}

// New creates a new gRPC server wrapping the given store.
func New(s *store.Store, opts ...Option) *Server {
	srv := &Server{
		store:  s,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	gs := grpc.NewServer(grpc.UnaryInterceptor(srv.logUnary))
	gs.RegisterService(&PlotterServiceDesc, srv)
	srv.grpc = gs

	return srv
}

// Serve starts listening on the given address and serves gRPC requests.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.grpc.Serve(lis)
}

// GracefulStop gracefully stops the gRPC server.
func (s *Server) GracefulStop() {
	s.grpc.GracefulStop()
}

func (s *Server) logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug().
		Str("method", info.FullMethod).
		Str("code", status.Code(err).String()).
		Dur("elapsed", time.Since(start)).
		Msg("grpc call")
	return resp, err
}

// --- Plotter Service ---

// Validate compiles {"expression"} and returns {"valid", "canonical"}.
func (s *Server) Validate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	e, err := expr.Compile(stringField(req, "expression"))
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"valid":     true,
		"canonical": e.Text(),
	})
}

// Evaluate sweeps {"x", "y", "from", "to"}. Values are returned as decimal
// strings since Struct numbers are doubles. A fault is part of the response.
func (s *Server) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	x, err := expr.Compile(stringField(req, "x"))
	if err != nil {
		return nil, toStatus(fmt.Errorf("x expression: %w", err))
	}
	y, err := expr.Compile(stringField(req, "y"))
	if err != nil {
		return nil, toStatus(fmt.Errorf("y expression: %w", err))
	}

	r := runtime.DefaultRange()
	if v, ok := req.GetFields()["from"]; ok {
		r.From = int64(v.GetNumberValue())
	}
	if v, ok := req.GetFields()["to"]; ok {
		r.To = int64(v.GetNumberValue())
	}

	eng := runtime.NewEngine(x, y, runtime.WithWorkers(s.workers), runtime.WithLogger(s.logger))
	res, err := eng.Execute(ctx, r)
	if err != nil {
		return nil, toStatus(err)
	}

	faults := make([]interface{}, len(res.Faults))
	for i, f := range res.Faults {
		faults[i] = map[string]interface{}{
			"kind":      f.Kind.String(),
			"axis":      string(f.Axis),
			"parameter": strconv.FormatInt(f.Parameter, 10),
			"message":   f.Err.Error(),
		}
	}

	return structpb.NewStruct(map[string]interface{}{
		"x":       x.Text(),
		"y":       y.Text(),
		"count":   res.Len(),
		"xValues": decimalList(res.X),
		"yValues": decimalList(res.Y),
		"faults":  faults,
	})
}

// GetPlot returns the plot named by {"name"}.
func (s *Server) GetPlot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	name := stringField(req, "name")
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}

	p, err := s.store.GetPlot(name)
	if err != nil {
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"name":        p.Name,
		"description": p.Description,
		"state":       string(p.State),
		"revisionId":  p.RevisionID,
		"x":           p.Definition.XExpr.Text(),
		"y":           p.Definition.YExpr.Text(),
		"from":        p.Definition.Range.From,
		"to":          p.Definition.Range.To,
		"createTime":  p.CreateTime.Format(time.RFC3339),
		"updateTime":  p.UpdateTime.Format(time.RFC3339),
	})
}

// --- Helpers ---

func toStatus(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, runtime.ErrCancelled) {
		return status.Error(codes.Canceled, err.Error())
	}
	pe := types.AsPlotError(err)
	switch {
	case pe.HasTag(types.TagNotFound):
		return status.Error(codes.NotFound, pe.Message)
	case pe.HasTag(types.TagAlreadyExists):
		return status.Error(codes.AlreadyExists, pe.Message)
	case pe.HasTag(types.TagInvalidArgument), pe.HasTag(types.TagParseError):
		msg := err.Error()
		if _, direct := err.(*types.PlotError); !direct {
			msg = fmt.Sprintf("%s (tags=[%s])", msg, strings.Join(pe.Tags, ", "))
		}
		return status.Error(codes.InvalidArgument, msg)
	}
	return status.Error(codes.Internal, err.Error())
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func decimalList(v *expr.Values) []interface{} {
	out := make([]interface{}, v.Len())
	for i := range out {
		out[i] = strconv.FormatInt(v.At(i), 10)
	}
	return out
}
