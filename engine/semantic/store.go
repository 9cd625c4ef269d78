// Package semantic is the sole owner of all Qdrant operations. Namespaces are
// mapped to dedicated collections so records in one logical pool can never
// leak into a search against another.
package semantic

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// VectorStore wraps similarity search and upsert against Qdrant, partitioned
// by namespace.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	prefix      string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
// Collection names are derived as "<prefix>_<namespace>".
func New(addr string, prefix string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		prefix:      prefix,
	}, nil
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

func (v *VectorStore) collectionName(namespace string) string {
	return v.prefix + "_" + namespace
}

// EnsureNamespace creates the namespace's collection if it doesn't exist.
func (v *VectorStore) EnsureNamespace(ctx context.Context, namespace string, dims int) error {
	list, err := v.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("semantic: list collections: %w", err)
	}
	name := v.collectionName(namespace)
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			return nil
		}
	}

	d := uint64(dims)
	_, err = v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     d,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", name, err)
	}
	return nil
}

// Upsert stores embedding records into the given namespace. Called by
// engine/ingest. Existing points with the same ID are overwritten.
func (v *VectorStore) Upsert(ctx context.Context, namespace string, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: r.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: r.Embedding},
				},
			},
			Payload: toPayload(r.Payload),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collectionName(namespace),
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points into %s: %w", len(records), namespace, err)
	}
	return nil
}

// DeleteBySource removes all points for a source document from a namespace.
// Used for re-ingestion replace semantics.
func (v *VectorStore) DeleteBySource(ctx context.Context, namespace, sourceID string) error {
	wait := true
	_, err := v.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: v.collectionName(namespace),
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						fieldMatch(PayloadSourceID, sourceID),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: delete source %s from %s: %w", sourceID, namespace, err)
	}
	return nil
}

// Search performs k-NN similarity search within one namespace with optional
// metadata filters. Called by engine/retrieval.
func (v *VectorStore) Search(ctx context.Context, namespace string, embedding []float32, topK int, filters map[string]string) ([]SearchResult, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collectionName(namespace),
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}

	if len(filters) > 0 {
		must := make([]*pb.Condition, 0, len(filters))
		for k, val := range filters {
			must = append(must, fieldMatch(k, val))
		}
		req.Filter = &pb.Filter{Must: must}
	}

	resp, err := v.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("semantic: search %s: %w", namespace, err)
	}

	results := make([]SearchResult, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		results[i] = fromScoredPoint(r, namespace)
	}
	return results, nil
}

// toPayload converts a metadata bag into Qdrant payload values.
func toPayload(meta map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(meta))
	for k, val := range meta {
		switch tv := val.(type) {
		case string:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: tv}}
		case int:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(tv)}}
		case int64:
			payload[k] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: tv}}
		case float64:
			payload[k] = &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: tv}}
		case bool:
			payload[k] = &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: tv}}
		default:
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(tv)}}
		}
	}
	return payload
}

// fromScoredPoint maps a Qdrant hit back into a SearchResult.
func fromScoredPoint(p *pb.ScoredPoint, namespace string) SearchResult {
	sr := SearchResult{
		ID:        p.GetId().GetUuid(),
		Score:     p.GetScore(),
		Namespace: namespace,
		Meta:      make(map[string]string),
	}
	for k, val := range p.GetPayload() {
		switch k {
		case PayloadContent:
			sr.Content = val.GetStringValue()
		case PayloadSourceID:
			sr.SourceID = val.GetStringValue()
		case PayloadDomain:
			sr.Domain = val.GetStringValue()
		case PayloadUserID:
			sr.UserID = val.GetStringValue()
		case PayloadCategory:
			sr.Category = val.GetStringValue()
		case PayloadChunkIndex:
			sr.ChunkIndex = int(val.GetIntegerValue())
		default:
			sr.Meta[k] = val.GetStringValue()
		}
	}
	return sr
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}
