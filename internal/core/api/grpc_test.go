package api

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/schemamap/internal/document"
)

// newTestClient serves a MappingService over an in-memory listener.
func newTestClient(t *testing.T, withStore bool) *MappingServiceClient {
	t.Helper()
	svc, err := NewGRPCService(newTestService(t, withStore))
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterMappingServiceServer(server, svc)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewMappingServiceClient(conn)
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func productSetValue(t *testing.T) any {
	t.Helper()
	v, err := plain(productSet)
	require.NoError(t, err)
	return v
}

func TestGRPC_CompileThenRender(t *testing.T) {
	client := newTestClient(t, false)
	ctx := context.Background()

	out, err := client.Call(ctx, "Compile", mustStruct(t, map[string]any{"mapping_set": productSetValue(t)}))
	require.NoError(t, err)
	docText := out.GetFields()["document"].GetStringValue()
	require.NotEmpty(t, docText)
	assert.Empty(t, out.GetFields()["skipped"].GetListValue().GetValues())

	out, err = client.Call(ctx, "Render", mustStruct(t, map[string]any{
		"document": docText,
		"record":   map[string]any{"product.price": "49.99", "product.rating": 4.8, "review_count": 10.0},
	}))
	require.NoError(t, err)
	assert.False(t, out.GetFields()["partial"].GetBoolValue())

	rendered, err := document.Decode([]byte(out.GetFields()["document"].GetStringValue()))
	require.NoError(t, err)
	review, ok := rendered.Get("review")
	require.True(t, ok)
	rating, _ := review.(*document.Object).Get("ratingValue")
	assert.Equal(t, 4.8, rating)
}

func TestGRPC_RenderAcceptsStructDocument(t *testing.T) {
	client := newTestClient(t, false)

	out, err := client.Call(context.Background(), "Render", mustStruct(t, map[string]any{
		"document": map[string]any{"name": "[title]", "sku": "[sku]"},
		"record":   map[string]any{"title": "Dune"},
	}))
	require.NoError(t, err)
	assert.True(t, out.GetFields()["partial"].GetBoolValue())
	assert.JSONEq(t, `{"name":"Dune"}`, out.GetFields()["document"].GetStringValue())
}

func TestGRPC_ParseAndEvaluate(t *testing.T) {
	client := newTestClient(t, false)
	ctx := context.Background()

	out, err := client.Call(ctx, "Parse", mustStruct(t, map[string]any{
		"document": `{"name":"[product.title]","review":{"ratingValue_Rule":"IF (n > 1) THEN [r] ELSE [NULL]"}}`,
	}))
	require.NoError(t, err)
	assert.Len(t, out.GetFields()["mapping_set"].GetListValue().GetValues(), 2)

	_, err = client.Call(ctx, "Parse", mustStruct(t, map[string]any{
		"document": `{"name":"Dune","brand":"Acme","sku":"x"}`,
	}))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	out, err = client.Call(ctx, "Evaluate", mustStruct(t, map[string]any{
		"condition": map[string]any{"field": "tags", "operator": "contains", "value": "sale", "join": "TERMINAL"},
		"record":    map[string]any{"tags": []any{"new", "sale"}},
	}))
	require.NoError(t, err)
	assert.True(t, out.GetFields()["result"].GetBoolValue())

	_, err = client.Call(ctx, "Evaluate", mustStruct(t, map[string]any{"record": map[string]any{}}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_SaveAndGetMappingSet(t *testing.T) {
	client := newTestClient(t, true)
	ctx := context.Background()

	out, err := client.Call(ctx, "SaveMappingSet", mustStruct(t, map[string]any{
		"name":        "products",
		"mapping_set": productSetValue(t),
	}))
	require.NoError(t, err)
	id := out.GetFields()["id"].GetStringValue()
	etag := out.GetFields()["etag"].GetStringValue()
	require.NotEmpty(t, id)

	out, err = client.Call(ctx, "GetMappingSet", mustStruct(t, map[string]any{"id": id}))
	require.NoError(t, err)
	assert.Equal(t, "products", out.GetFields()["name"].GetStringValue())
	assert.Len(t, out.GetFields()["mapping_set"].GetListValue().GetValues(), 2)

	out, err = client.Call(ctx, "GetMappingSet", mustStruct(t, map[string]any{"id": id, "if_none_match": etag}))
	require.NoError(t, err)
	assert.True(t, out.GetFields()["not_modified"].GetBoolValue())
	assert.NotContains(t, out.GetFields(), "document")

	_, err = client.Call(ctx, "GetMappingSet", mustStruct(t, map[string]any{"id": "0190a1b2-c3d4-7e5f-8071-8293a4b5c6d7"}))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.Call(ctx, "GetMappingSet", mustStruct(t, map[string]any{}))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_StorageDisabled(t *testing.T) {
	client := newTestClient(t, false)

	_, err := client.Call(context.Background(), "SaveMappingSet", mustStruct(t, map[string]any{
		"mapping_set": productSetValue(t),
	}))
	assert.Equal(t, codes.Unavailable, status.Code(err))
}
