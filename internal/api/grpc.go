package api

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
	"github.com/teresa-solution/tenancy-allocation-service/internal/monitoring"
	"github.com/teresa-solution/tenancy-allocation-service/internal/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tenancy.v1.TenancyService"

// LandlordMetadataKey carries the acting landlord in gRPC metadata.
const LandlordMetadataKey = "x-landlord-id"

type landlordCtxKey struct{}

// TenancyServiceServer is the gRPC surface of the allocation core.
// Messages are google.protobuf.Struct documents with the same field names
// as the HTTP API.
type TenancyServiceServer interface {
	ListVacantUnits(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetUnitStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPendingApplications(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectApplication(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReconsiderApplication(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveIdentity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Assign(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AssignDirect(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTenancy(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EndLease(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransferUnit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reconcile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTransitions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(TenancyServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TenancyServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + method,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(TenancyServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var tenancyServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TenancyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("ListVacantUnits", TenancyServiceServer.ListVacantUnits),
		unaryHandler("SetUnitStatus", TenancyServiceServer.SetUnitStatus),
		unaryHandler("ListPendingApplications", TenancyServiceServer.ListPendingApplications),
		unaryHandler("RejectApplication", TenancyServiceServer.RejectApplication),
		unaryHandler("ReconsiderApplication", TenancyServiceServer.ReconsiderApplication),
		unaryHandler("ResolveIdentity", TenancyServiceServer.ResolveIdentity),
		unaryHandler("Assign", TenancyServiceServer.Assign),
		unaryHandler("AssignDirect", TenancyServiceServer.AssignDirect),
		unaryHandler("GetTenancy", TenancyServiceServer.GetTenancy),
		unaryHandler("EndLease", TenancyServiceServer.EndLease),
		unaryHandler("TransferUnit", TenancyServiceServer.TransferUnit),
		unaryHandler("Reconcile", TenancyServiceServer.Reconcile),
		unaryHandler("ListTransitions", TenancyServiceServer.ListTransitions),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tenancy/v1/tenancy.proto",
}

// RegisterTenancyServiceServer registers srv on s.
func RegisterTenancyServiceServer(s grpc.ServiceRegistrar, srv TenancyServiceServer) {
	s.RegisterService(&tenancyServiceDesc, srv)
}

// UnaryServerInterceptor logs and counts calls, and for the tenancy service
// requires the acting landlord in metadata.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		var (
			resp interface{}
			err  error
		)
		if strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			var landlord uuid.UUID
			if landlord, err = landlordFromMetadata(ctx); err == nil {
				resp, err = handler(context.WithValue(ctx, landlordCtxKey{}, landlord), req)
			}
		} else {
			resp, err = handler(ctx, req)
		}

		code := status.Code(err)
		monitoring.Requests.WithLabelValues("grpc", info.FullMethod, code.String()).Inc()
		event := log.Info()
		if code == codes.Internal || code == codes.Unknown {
			event = log.Error().Err(err)
		}
		event.
			Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("duration", time.Since(start)).
			Msg("RPC processed")
		return resp, err
	}
}

func landlordFromMetadata(ctx context.Context) (uuid.UUID, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get(LandlordMetadataKey)
	if len(values) == 0 || values[0] == "" {
		return uuid.Nil, status.Error(codes.Unauthenticated, LandlordMetadataKey+" metadata is required")
	}
	id, err := uuid.Parse(values[0])
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, "invalid "+LandlordMetadataKey)
	}
	return id, nil
}

func landlordFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(landlordCtxKey{}).(uuid.UUID)
	return id
}

// TenancyServer adapts the allocation services to TenancyServiceServer.
type TenancyServer struct {
	svc *service.Services
}

func NewTenancyServer(svc *service.Services) *TenancyServer {
	return &TenancyServer{svc: svc}
}

type propertyMessage struct {
	PropertyID string `json:"property_id" validate:"required,uuid"`
}

type unitStatusMessage struct {
	UnitID string `json:"unit_id" validate:"required,uuid"`
	SetUnitStatusRequest
}

type applicationMessage struct {
	ApplicationID string `json:"application_id" validate:"required,uuid"`
}

type assignMessage struct {
	ApplicationID string `json:"application_id" validate:"required,uuid"`
	AssignRequest
}

type tenancyMessage struct {
	TenancyID string `json:"tenancy_id" validate:"required,uuid"`
}

type transferMessage struct {
	TenancyID string `json:"tenancy_id" validate:"required,uuid"`
	TransferRequest
}

type transitionsMessage struct {
	Entity   string `json:"entity" validate:"required"`
	EntityID string `json:"entity_id" validate:"required,uuid"`
}

// decode maps a Struct onto a request type and validates it.
func decode(in *structpb.Struct, req interface{}) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "malformed request")
	}
	if err := json.Unmarshal(data, req); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	if err := validate.Struct(req); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

// encode renders v as a Struct using its JSON field names.
func encode(v interface{}) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func reply(v interface{}, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, grpcError(err)
	}
	return encode(v)
}

func (s *TenancyServer) ListVacantUnits(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req propertyMessage
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	units, err := s.svc.Inventory.GetVacantUnits(ctx, uuid.MustParse(req.PropertyID))
	if units == nil {
		units = []model.Unit{}
	}
	return reply(map[string]interface{}{"units": units}, err)
}

func (s *TenancyServer) SetUnitStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req unitStatusMessage
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return reply(s.svc.Inventory.SetStatus(ctx, uuid.MustParse(req.UnitID),
		model.UnitStatus(req.Status), model.UnitStatus(req.ExpectedStatus), landlordFromContext(ctx)))
}

func (s *TenancyServer) ListPendingApplications(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req propertyMessage
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	apps, err := s.svc.Registry.ListPending(ctx, uuid.MustParse(req.PropertyID))
	if apps == nil {
		apps = []model.Application{}
	}
	return reply(map[string]interface{}{"applications": apps}, err)
}

func (s *TenancyServer) RejectApplication(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req applicationMessage
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return reply(s.svc.Registry.Reject(ctx, uuid.MustParse(req.ApplicationID), landlordFromContext(ctx)))
}

func (s *TenancyServer) ReconsiderApplication(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req applicationMessage
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return reply(s.svc.Registry.Reconsider(ctx, uuid.MustParse(req.ApplicationID), landlordFromContext(ctx)))
}

func (s *TenancyServer) ResolveIdentity(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ResolveIdentityRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return reply(s.svc.Identity.Resolve(ctx, req.Email, req.Name, req.Phone))
}

func (s *TenancyServer) Assign(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req assignMessage
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return reply(s.svc.Allocator.Assign(ctx, service.AssignRequest{
		ApplicationID:   uuid.MustParse(req.ApplicationID),
		UnitID:          uuid.MustParse(req.UnitID),
		LandlordID:      landlordFromContext(ctx),
		LeaseEndDate:    req.endDate(),
		SecurityDeposit: req.SecurityDeposit,
	}))
}

func (s *TenancyServer) AssignDirect(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req AssignDirectRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return reply(s.svc.Allocator.AssignDirect(ctx, service.DirectAssignRequest{
		UnitID:          uuid.MustParse(req.UnitID),
		LandlordID:      landlordFromContext(ctx),
		TenantEmail:     req.TenantEmail,
		TenantName:      req.TenantName,
		TenantPhone:     req.TenantPhone,
		LeaseEndDate:    req.endDate(),
		SecurityDeposit: req.SecurityDeposit,
	}))
}

func (s *TenancyServer) GetTenancy(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req tenancyMessage
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return reply(s.svc.Leases.GetTenancy(ctx, uuid.MustParse(req.TenancyID)))
}

func (s *TenancyServer) EndLease(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req tenancyMessage
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	err := s.svc.Leases.EndLease(ctx, uuid.MustParse(req.TenancyID), landlordFromContext(ctx))
	return reply(map[string]interface{}{"tenancy_id": req.TenancyID, "status": model.TenancyEnded}, err)
}

func (s *TenancyServer) TransferUnit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req transferMessage
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	return reply(s.svc.Leases.TransferUnit(ctx, service.TransferRequest{
		TenancyID:     uuid.MustParse(req.TenancyID),
		NewUnitID:     uuid.MustParse(req.NewUnitID),
		Actor:         landlordFromContext(ctx),
		RecomputeRent: req.RecomputeRent,
	}))
}

func (s *TenancyServer) Reconcile(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return reply(s.svc.Reconciler.Check(ctx))
}

func (s *TenancyServer) ListTransitions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req transitionsMessage
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	history, err := s.svc.Reconciler.History(ctx, req.Entity, uuid.MustParse(req.EntityID))
	if history == nil {
		history = []model.Transition{}
	}
	return reply(map[string]interface{}{"transitions": history}, err)
}
