// Package qdrant implements capability.VectorSearch over a remote Qdrant
// collection via the gRPC go-client. Grounded on
// _examples/intelligencedev-manifold/internal/persistence/databases/qdrant_vector.go:
// the DSN-to-qdrant.Config parsing, collection bootstrap, UUID point-ID
// translation (Qdrant only accepts UUIDs or uints as point IDs, so a
// non-UUID caller ID is deterministically remapped and the original
// preserved in the payload), and the Query-based similarity search.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/orneryd/retrievalcore/internal/capability"
)

// originalIDField stores the caller-supplied ID in the payload when it had
// to be remapped to a UUID for Qdrant's point-ID constraint.
const originalIDField = "_original_id"

// Store is a capability.VectorSearch backed by one Qdrant collection.
type Store struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

// New parses dsn (e.g. "http://localhost:6334?api_key=...") and connects to
// Qdrant's gRPC API, creating collection if it does not already exist.
func New(ctx context.Context, dsn, collection string, dimensions int, metric string) (*Store, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant: collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("qdrant: parse dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("qdrant: invalid port in dsn: %w", err)
	}

	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant: create client: %w", err)
	}

	s := &Store{
		client:     client,
		collection: collection,
		dimension:  dimensions,
		metric:     strings.ToLower(strings.TrimSpace(metric)),
	}
	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant: ensure collection: %w", err)
	}
	return s, nil
}

func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	if s.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}

	var distance qdrant.Distance
	switch s.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}

	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: distance,
		}),
	})
}

// toPointID deterministically maps an arbitrary caller ID to a UUID, since
// Qdrant point IDs must be UUIDs or non-negative integers.
func toPointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

// Upsert indexes one vector with its metadata payload.
func (s *Store) Upsert(ctx context.Context, id string, vector []float32, payload map[string]any) error {
	pointIDStr := toPointID(id)
	values := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		values[k] = v
	}
	if pointIDStr != id {
		values[originalIDField] = id
	}

	vec := append([]float32(nil), vector...)
	points := []*qdrant.PointStruct{{
		Id:      qdrant.NewIDUUID(pointIDStr),
		Vectors: qdrant.NewVectorsDense(vec),
		Payload: qdrant.NewValueMap(values),
	}}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: s.collection, Points: points})
	return err
}

// Delete removes a point by its caller-supplied ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	pointID := qdrant.NewIDUUID(toPointID(id))
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelector(pointID),
	})
	return err
}

// Search implements capability.VectorSearch. collection is validated
// against the Store's bound collection rather than switched per call,
// since one Store owns one remote collection.
func (s *Store) Search(ctx context.Context, collection string, queryVector []float32, limit int, filter map[string]string) ([]capability.ScoredPoint, error) {
	if collection != "" && collection != s.collection {
		return nil, fmt.Errorf("qdrant: store bound to collection %q, got %q", s.collection, collection)
	}
	if limit <= 0 {
		limit = 10
	}

	var queryFilter *qdrant.Filter
	if len(filter) > 0 {
		must := make([]*qdrant.Condition, 0, len(filter))
		for field, value := range filter {
			must = append(must, qdrant.NewMatch(field, value))
		}
		queryFilter = &qdrant.Filter{Must: must}
	}

	vec := append([]float32(nil), queryVector...)
	lim := uint64(limit)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &lim,
		Filter:         queryFilter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: query: %w", err)
	}

	out := make([]capability.ScoredPoint, 0, len(hits))
	for _, hit := range hits {
		uuidStr := hit.Id.GetUuid()
		if uuidStr == "" {
			uuidStr = hit.Id.String()
		}

		payload := make(map[string]any, len(hit.Payload))
		originalID := ""
		for k, v := range hit.Payload {
			if k == originalIDField {
				originalID = v.GetStringValue()
				continue
			}
			payload[k] = qdrantValueToAny(v)
		}

		id := originalID
		if id == "" {
			id = uuidStr
		}
		out = append(out, capability.ScoredPoint{ID: id, Score: float64(hit.Score), Payload: payload})
	}
	return out, nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error { return s.client.Close() }

func qdrantValueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		items := kind.ListValue.GetValues()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = qdrantValueToAny(item)
		}
		return out
	default:
		return v.GetStringValue()
	}
}
