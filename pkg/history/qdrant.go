package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// QdrantStore implements Store against a Qdrant collection. Grounded
// on the earlier pkg/storage.QdrantClient: same ensure/create
// collection dance over the raw HTTP API (Qdrant's Go client wasn't
// in any example repo's go.mod, so the prior design talked to it directly
// over net/http — carried over unchanged here), same upsert/search
// point shape, narrowed from the earlier full types.Anomaly payload
// to the Incident fields this pipeline actually has.
type QdrantStore struct {
	url        string
	collection string
	client     *http.Client
}

// NewQdrantStore creates a QdrantStore, ensuring the collection exists
// with the configured vector size/distance metric.
func NewQdrantStore(url, collection string, vectorSize int, distance string) (*QdrantStore, error) {
	s := &QdrantStore{
		url:        url,
		collection: collection,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	if err := s.ensureCollection(vectorSize, distance); err != nil {
		return nil, fmt.Errorf("ensuring collection exists: %w", err)
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(vectorSize int, distance string) error {
	url := fmt.Sprintf("%s/collections/%s", s.url, s.collection)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("checking collection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return s.createCollection(vectorSize, distance)
	}

	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("unexpected status %d checking collection: %s", resp.StatusCode, string(body))
}

func (s *QdrantStore) createCollection(vectorSize int, distance string) error {
	if vectorSize <= 0 {
		vectorSize = 384
	}
	if distance == "" {
		distance = "cosine"
	}
	switch strings.ToLower(distance) {
	case "cosine":
		distance = "Cosine"
	case "euclid", "euclidean", "l2":
		distance = "Euclid"
	case "dot", "dotproduct":
		distance = "Dot"
	}

	config := map[string]any{
		"vectors": map[string]any{"size": vectorSize, "distance": distance},
	}
	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling collection config: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", s.url, s.collection)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("creating collection, status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// StoreIncident implements Store.
func (s *QdrantStore) StoreIncident(vector []float32, incident Incident) error {
	point := map[string]any{
		"id":     uuid.New().String(),
		"vector": vector,
		"payload": map[string]any{
			"text":      incident.Text,
			"reason":    incident.Reason,
			"skill":     incident.Skill,
			"severity":  incident.Severity,
			"metric":    incident.Metric,
			"timestamp": incident.Timestamp.Unix(),
		},
	}
	upsert := map[string]any{"points": []map[string]any{point}}

	data, err := json.Marshal(upsert)
	if err != nil {
		return fmt.Errorf("marshaling upsert payload: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points", s.url, s.collection)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending upsert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant upsert status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// SearchSimilar implements Store.
func (s *QdrantStore) SearchSimilar(vector []float32, limit int) ([]Incident, error) {
	search := map[string]any{"vector": vector, "limit": limit, "with_payload": true}
	data, err := json.Marshal(search)
	if err != nil {
		return nil, fmt.Errorf("marshaling search payload: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("qdrant search status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Result []struct {
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	incidents := make([]Incident, 0, len(result.Result))
	for _, r := range result.Result {
		incidents = append(incidents, Incident{
			Text:     stringField(r.Payload, "text"),
			Reason:   stringField(r.Payload, "reason"),
			Skill:    stringField(r.Payload, "skill"),
			Severity: stringField(r.Payload, "severity"),
			Metric:   stringField(r.Payload, "metric"),
		})
	}
	return incidents, nil
}
