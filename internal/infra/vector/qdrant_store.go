package vector

import (
	"context"
	"crypto/tls"
	"fmt"

	"catalog-enrichment/internal/domain/ports/repository"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

var _ repository.VectorStore = (*QdrantStore)(nil)

// Config holds the Qdrant connection and the collections this service owns.
// Text and image vectors live in separate collections because their
// dimensions differ.
type Config struct {
	Host   string
	Port   int
	APIKey string // Qdrant Cloud API key (enables TLS automatically)
	UseTLS bool   // explicitly enable TLS without an API key

	// Collections maps collection name to vector dimension.
	Collections map[string]int
}

func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantStore implements repository.VectorStore over the Qdrant gRPC API.
type QdrantStore struct {
	conn          *grpc.ClientConn
	pointsClient  pb.PointsClient
	collectClient pb.CollectionsClient
	collections   map[string]int
}

func NewQdrantStore(cfg *Config) (*QdrantStore, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	var opts []grpc.DialOption
	useTLS := cfg.UseTLS || cfg.APIKey != ""
	if useTLS {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantStore{
		conn:          conn,
		pointsClient:  pb.NewPointsClient(conn),
		collectClient: pb.NewCollectionsClient(conn),
		collections:   cfg.Collections,
	}, nil
}

func (s *QdrantStore) Close() error {
	return s.conn.Close()
}

// EnsureCollections creates each configured collection if missing, and
// rejects startup when an existing one has the wrong vector size.
func (s *QdrantStore) EnsureCollections(ctx context.Context) error {
	for name, dim := range s.collections {
		info, err := s.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
			CollectionName: name,
		})
		if err == nil {
			if size, ok := collectionVectorSize(info.GetResult()); ok && size != uint64(dim) {
				return fmt.Errorf("collection %s has vector size %d, expected %d", name, size, dim)
			}
			continue
		}

		_, err = s.collectClient.Create(ctx, &pb.CreateCollection{
			CollectionName: name,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(dim),
						Distance: pb.Distance_Cosine,
					},
				},
			},
			HnswConfig: &pb.HnswConfigDiff{
				M:                 optionalUint64(16),
				EfConstruct:       optionalUint64(128),
				FullScanThreshold: optionalUint64(10000),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, collection, pointID string, vec []float32, payload *repository.VectorPayload) error {
	uid, err := uuid.Parse(pointID)
	if err != nil {
		return fmt.Errorf("invalid point ID: %w", err)
	}

	points := []*pb.PointStruct{
		{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vec},
				},
			},
			Payload: payloadValues(payload),
		},
	}

	_, err = s.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

func (s *QdrantStore) DeletePoints(ctx context.Context, collection string, pointIDs []string) error {
	if len(pointIDs) == 0 {
		return nil
	}
	ids := make([]*pb.PointId, 0, len(pointIDs))
	for _, pid := range pointIDs {
		uid, err := uuid.Parse(pid)
		if err != nil {
			return fmt.Errorf("invalid point ID %q: %w", pid, err)
		}
		ids = append(ids, &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()}})
	}

	_, err := s.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: ids},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

func payloadValues(p *repository.VectorPayload) map[string]*pb.Value {
	if p == nil {
		return nil
	}
	return map[string]*pb.Value{
		"product_id": {Kind: &pb.Value_StringValue{StringValue: p.ProductID}},
		"source":     {Kind: &pb.Value_StringValue{StringValue: p.Source}},
		"city_code":  {Kind: &pb.Value_StringValue{StringValue: p.CityCode}},
		"content":    {Kind: &pb.Value_StringValue{StringValue: p.Content}},
	}
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}
	config := info.GetConfig()
	if config == nil {
		return 0, false
	}
	params := config.GetParams()
	if params == nil {
		return 0, false
	}
	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}
	return 0, false
}
