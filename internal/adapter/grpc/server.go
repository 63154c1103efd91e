package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
	"github.com/simaogato/wealthflow-ldi/internal/usecase/run"
)

const (
	serviceName = "ldi.v1.LDIService"

	RunPortfolioMethod   = "/" + serviceName + "/RunPortfolio"
	ListPortfoliosMethod = "/" + serviceName + "/ListPortfolios"
)

// PortfolioRunner runs the full LDI pipeline for one portfolio
type PortfolioRunner interface {
	RunPortfolio(ctx context.Context, portfolioID string, asOf time.Time) (*run.Report, error)
}

// LDIServer is the service implemented by Server
type LDIServer interface {
	RunPortfolio(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListPortfolios(ctx context.Context, req *emptypb.Empty) (*structpb.ListValue, error)
}

// Server implements the LDIService gRPC server
type Server struct {
	Runner   PortfolioRunner
	Policies domain.PolicyProvider

	now func() time.Time
}

// NewServer creates a new gRPC server instance
func NewServer(runner PortfolioRunner, policies domain.PolicyProvider) *Server {
	return &Server{
		Runner:   runner,
		Policies: policies,
		now:      time.Now,
	}
}

// Register attaches the service to a gRPC server
func Register(s *grpc.Server, srv LDIServer) {
	s.RegisterService(&serviceDesc, srv)
}

// RunPortfolio handles the RunPortfolio RPC
// The request carries "portfolio_id" and an optional "as_of" (YYYY-MM-DD or RFC 3339)
func (s *Server) RunPortfolio(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	portfolioID := fields["portfolio_id"].GetStringValue()
	if portfolioID == "" {
		return nil, status.Error(codes.InvalidArgument, "portfolio_id is required")
	}

	asOf, err := parseAsOf(fields["as_of"].GetStringValue(), s.now)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid as_of format: %v", err)
	}

	report, err := s.Runner.RunPortfolio(ctx, portfolioID, asOf)
	if err != nil {
		return nil, mapError(err)
	}

	resp, err := reportToStruct(report)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode report: %v", err)
	}
	return resp, nil
}

// ListPortfolios handles the ListPortfolios RPC
func (s *Server) ListPortfolios(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	ids, err := s.Policies.ListPortfolios(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	values := make([]*structpb.Value, 0, len(ids))
	for _, id := range ids {
		values = append(values, structpb.NewStringValue(id))
	}
	return &structpb.ListValue{Values: values}, nil
}

func parseAsOf(raw string, now func() time.Time) (time.Time, error) {
	if raw == "" {
		return now().UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}

// reportToStruct converts a report through its JSON form into a protobuf Struct
func reportToStruct(report *run.Report) (*structpb.Struct, error) {
	raw, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return structpb.NewStruct(fields)
}

// mapError converts domain errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}

	switch domain.KindOf(err) {
	case domain.KindInput:
		return status.Error(codes.InvalidArgument, err.Error())
	case domain.KindInfeasible:
		return status.Error(codes.FailedPrecondition, err.Error())
	case domain.KindNumerical:
		return status.Error(codes.Aborted, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func runPortfolioHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LDIServer).RunPortfolio(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: RunPortfolioMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LDIServer).RunPortfolio(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func listPortfoliosHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LDIServer).ListPortfolios(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListPortfoliosMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LDIServer).ListPortfolios(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// The service uses well-known message types, so no generated code is needed
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*LDIServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunPortfolio", Handler: runPortfolioHandler},
		{MethodName: "ListPortfolios", Handler: listPortfoliosHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ldi/v1/ldi.proto",
}

// Client calls a remote LDIService
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// RunPortfolio runs a portfolio remotely; a zero asOf lets the server pick today
func (c *Client) RunPortfolio(ctx context.Context, portfolioID string, asOf time.Time, opts ...grpc.CallOption) (*structpb.Struct, error) {
	fields := map[string]any{"portfolio_id": portfolioID}
	if !asOf.IsZero() {
		fields["as_of"] = asOf.Format(time.RFC3339)
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, RunPortfolioMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListPortfolios lists the portfolio IDs known to the server
func (c *Client) ListPortfolios(ctx context.Context, opts ...grpc.CallOption) ([]string, error) {
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, ListPortfoliosMethod, new(emptypb.Empty), out, opts...); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		ids = append(ids, v.GetStringValue())
	}
	return ids, nil
}
