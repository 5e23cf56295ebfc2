package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/schemamap/internal/document"
	"github.com/solatis/schemamap/internal/types"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "schemamap.v1.MappingService"

// MappingServiceServer is the server API of schemamap.v1.MappingService.
// Every message is a google.protobuf.Struct:
//
//	Compile        {mapping_set, skeleton?}        -> {document, skipped}
//	Render         {document, record}              -> {document, removed, partial}
//	Parse          {document}                      -> {mapping_set, malformed}
//	Evaluate       {condition | conditions, record} -> {result}
//	SaveMappingSet {id?, name, mapping_set, skeleton?} -> {id, etag, document, skipped}
//	GetMappingSet  {id, if_none_match?}            -> {id, name, etag, mapping_set, document, ...}
//
// Documents are accepted as objects or as JSON text; responses carry them as
// JSON text so property order survives the Struct encoding.
type MappingServiceServer interface {
	Compile(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Render(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Parse(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SaveMappingSet(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetMappingSet(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(MappingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodHandler(name string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := "/" + ServiceName + "/" + name
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MappingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MappingServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// MappingServiceDesc describes schemamap.v1.MappingService for grpc.Server.RegisterService.
var MappingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MappingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Compile", Handler: methodHandler("Compile", MappingServiceServer.Compile)},
		{MethodName: "Render", Handler: methodHandler("Render", MappingServiceServer.Render)},
		{MethodName: "Parse", Handler: methodHandler("Parse", MappingServiceServer.Parse)},
		{MethodName: "Evaluate", Handler: methodHandler("Evaluate", MappingServiceServer.Evaluate)},
		{MethodName: "SaveMappingSet", Handler: methodHandler("SaveMappingSet", MappingServiceServer.SaveMappingSet)},
		{MethodName: "GetMappingSet", Handler: methodHandler("GetMappingSet", MappingServiceServer.GetMappingSet)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "schemamap/v1/mapping_service.proto",
}

// RegisterMappingServiceServer registers srv with s.
func RegisterMappingServiceServer(s grpc.ServiceRegistrar, srv MappingServiceServer) {
	s.RegisterService(&MappingServiceDesc, srv)
}

// MappingServiceClient calls schemamap.v1.MappingService.
type MappingServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewMappingServiceClient creates a client over cc.
func NewMappingServiceClient(cc grpc.ClientConnInterface) *MappingServiceClient {
	return &MappingServiceClient{cc: cc}
}

// Call invokes method (e.g. "Render") with in.
func (c *MappingServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GRPCService adapts Service to MappingServiceServer.
type GRPCService struct {
	service *Service
}

var _ MappingServiceServer = (*GRPCService)(nil)

// NewGRPCService creates the gRPC adapter.
func NewGRPCService(service *Service) (*GRPCService, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	return &GRPCService{service: service}, nil
}

// Compile compiles a mapping set.
func (g *GRPCService) Compile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	set, err := mappingSetField(req, "mapping_set")
	if err != nil {
		return nil, grpcError(err)
	}
	skeleton, err := documentField(req, "skeleton")
	if err != nil {
		return nil, grpcError(err)
	}

	compiled, err := g.service.Compile(ctx, set, skeleton)
	if err != nil {
		return nil, grpcError(err)
	}
	return response(map[string]any{
		"document": documentText(compiled.Document),
		"skipped":  skipViews(compiled.Skipped),
	})
}

// Render renders a document against a record.
func (g *GRPCService) Render(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := documentField(req, "document")
	if err != nil {
		return nil, grpcError(err)
	}
	record, err := recordField(req, "record")
	if err != nil {
		return nil, grpcError(err)
	}

	out, report := g.service.Render(ctx, doc, record)
	return response(map[string]any{
		"document": documentText(out),
		"removed":  removalViews(report),
		"partial":  report.Partial(),
	})
}

// Parse recovers the mapping set of a document.
func (g *GRPCService) Parse(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	doc, err := documentField(req, "document")
	if err != nil {
		return nil, grpcError(err)
	}

	set, report, err := g.service.Parse(ctx, doc)
	if err != nil {
		return nil, grpcError(err)
	}
	return response(map[string]any{
		"mapping_set": set,
		"malformed":   malformedViews(report),
	})
}

// Evaluate evaluates one condition or a chain against a record.
func (g *GRPCService) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	conds, err := conditionsField(req)
	if err != nil {
		return nil, grpcError(err)
	}
	record, err := recordField(req, "record")
	if err != nil {
		return nil, grpcError(err)
	}
	return response(map[string]any{"result": g.service.Evaluate(conds, record)})
}

// SaveMappingSet compiles and stores a mapping set.
func (g *GRPCService) SaveMappingSet(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	set, err := mappingSetField(req, "mapping_set")
	if err != nil {
		return nil, grpcError(err)
	}
	skeleton, err := documentField(req, "skeleton")
	if err != nil {
		return nil, grpcError(err)
	}

	id := types.MappingSetID(req.GetFields()["id"].GetStringValue())
	name := req.GetFields()["name"].GetStringValue()

	rec, compiled, err := g.service.SaveMappingSet(ctx, id, name, set, skeleton)
	if err != nil {
		return nil, grpcError(err)
	}
	return response(map[string]any{
		"id":       string(rec.ID),
		"etag":     rec.ETag,
		"document": documentText(rec.Document),
		"skipped":  skipViews(compiled.Skipped),
	})
}

// GetMappingSet returns a stored mapping set. A matching if_none_match
// returns only id, etag and not_modified.
func (g *GRPCService) GetMappingSet(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := types.MappingSetID(req.GetFields()["id"].GetStringValue())
	if id == "" {
		return nil, grpcError(fmt.Errorf("%w: id is required", ErrInvalidRequest))
	}

	rec, err := g.service.GetMappingSet(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}

	if inm := req.GetFields()["if_none_match"].GetStringValue(); inm != "" && inm == rec.ETag {
		return response(map[string]any{"id": string(rec.ID), "etag": rec.ETag, "not_modified": true})
	}

	view := recordView(rec, false)
	return response(map[string]any{
		"id":          string(view.ID),
		"name":        view.Name,
		"etag":        view.ETag,
		"mapping_set": rec.Rules,
		"document":    documentText(rec.Document),
		"created_at":  view.CreatedAt,
		"updated_at":  view.UpdatedAt,
	})
}

// response converts typed values into a Struct via their JSON encoding.
func response(fields map[string]any) (*structpb.Struct, error) {
	generic, err := plain(fields)
	if err != nil {
		return nil, grpcError(err)
	}
	out, err := structpb.NewStruct(generic.(map[string]any))
	if err != nil {
		return nil, grpcError(err)
	}
	return out, nil
}

// documentText encodes doc as JSON text, preserving property order.
func documentText(doc *document.Object) string {
	data, err := document.Encode(doc)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// documentField reads an optional document given as an object or JSON text.
func documentField(req *structpb.Struct, key string) (*document.Object, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return nil, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_StructValue:
		return document.FromMap(k.StructValue.AsMap()), nil
	case *structpb.Value_StringValue:
		if len(k.StringValue) > types.MaxDocumentSize {
			return nil, types.ErrDocumentTooLarge
		}
		doc, err := document.Decode([]byte(k.StringValue))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRequest, key, err)
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("%w: %s must be an object or JSON text", ErrInvalidRequest, key)
	}
}

// recordField reads a data record given as an object or JSON text; absent is empty.
func recordField(req *structpb.Struct, key string) (types.DataRecord, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return types.DataRecord{}, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return types.DataRecord{}, nil
	case *structpb.Value_StructValue:
		return types.DataRecord(k.StructValue.AsMap()), nil
	case *structpb.Value_StringValue:
		if len(k.StringValue) > types.MaxRecordSize {
			return nil, types.ErrRecordTooLarge
		}
		rec, err := types.DecodeDataRecord([]byte(k.StringValue))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRequest, key, err)
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("%w: %s must be an object or JSON text", ErrInvalidRequest, key)
	}
}

func mappingSetField(req *structpb.Struct, key string) (types.MappingSet, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidRequest, key)
	}
	var set types.MappingSet
	if err := decodeGeneric(v.AsInterface(), &set); err != nil {
		return nil, err
	}
	return set, nil
}

func conditionsField(req *structpb.Struct) ([]types.Condition, error) {
	fields := req.GetFields()
	if v, ok := fields["conditions"]; ok {
		var conds []types.Condition
		if err := decodeGeneric(v.AsInterface(), &conds); err != nil {
			return nil, err
		}
		return conds, nil
	}
	if v, ok := fields["condition"]; ok {
		var cond types.Condition
		if err := decodeGeneric(v.AsInterface(), &cond); err != nil {
			return nil, err
		}
		return []types.Condition{cond}, nil
	}
	return nil, fmt.Errorf("%w: condition or conditions is required", ErrInvalidRequest)
}
