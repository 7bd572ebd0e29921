package vectorstore

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// QdrantConfig holds connection settings for a Qdrant instance.
type QdrantConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Client wraps gRPC connections to Qdrant's collections and points services.
type Client struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
}

// NewClient dials the Qdrant gRPC endpoint and returns a ready Client.
func NewClient(cfg QdrantConfig) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Client{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}, nil
}

// EnsureCollection creates the named collection if it does not already exist.
func (c *Client) EnsureCollection(ctx context.Context, name string, dimension uint64) error {
	_, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		return nil
	}
	_, err = c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// Ping checks that the service answers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.collections.List(ctx, &pb.ListCollectionsRequest{}); err != nil {
		return fmt.Errorf("qdrant ping: %w", err)
	}
	return nil
}

// Upsert inserts or updates a single point in the given collection.
func (c *Client) Upsert(ctx context.Context, collection string, id string, vector []float32, payload map[string]string) error {
	payloadMap := make(map[string]*pb.Value)
	for k, v := range payload {
		payloadMap[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	wait := true
	_, err := c.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
				Payload: payloadMap,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", collection, err)
	}
	return nil
}

// Search performs a nearest-neighbor search and returns the top-K results.
// A non-empty filter restricts hits to points whose payload matches every
// key exactly.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, topK uint64, filter map[string]string) ([]*SearchResult, error) {
	resp, err := c.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          topK,
		Filter:         keywordFilter(filter),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	results := make([]*SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		payload := make(map[string]string)
		for k, v := range r.Payload {
			if sv, ok := v.Kind.(*pb.Value_StringValue); ok {
				payload[k] = sv.StringValue
			}
		}
		results = append(results, &SearchResult{
			ID:      r.Id.GetUuid(),
			Score:   r.Score,
			Payload: payload,
		})
	}
	return results, nil
}

// Delete removes points by id.
func (c *Client) Delete(ctx context.Context, collection string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*pb.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}})
	}
	_, err := c.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{Points: &pb.PointsIdsList{Ids: pointIDs}},
		},
	})
	if err != nil {
		return fmt.Errorf("delete from %s: %w", collection, err)
	}
	return nil
}

func keywordFilter(match map[string]string) *pb.Filter {
	if len(match) == 0 {
		return nil
	}
	f := &pb.Filter{}
	for k, v := range match {
		f.Must = append(f.Must, &pb.Condition{
			ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
				Key:   k,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: v}},
			}},
		})
	}
	return f
}

// SearchResult holds a single vector search hit.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]string
}

// Close tears down the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
