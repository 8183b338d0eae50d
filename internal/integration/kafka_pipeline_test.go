//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/geocode-cache/internal/adapter/kafka"
	"github.com/couchcryptid/geocode-cache/internal/adapter/sqlite"
	"github.com/couchcryptid/geocode-cache/internal/config"
	"github.com/couchcryptid/geocode-cache/internal/domain"
	"github.com/couchcryptid/geocode-cache/internal/geocoding"
	"github.com/couchcryptid/geocode-cache/internal/observability"
	"github.com/couchcryptid/geocode-cache/internal/pipeline"
)

const (
	testSourceTopic = "test-requests"
	testSinkTopic   = "test-results"
)

// resultMessage holds a deserialized message read from the sink topic.
type resultMessage struct {
	Response domain.GeocodeResponse
	Key      string
	Headers  map[string]string
}

// readResult reads a single message from the sink consumer and deserializes it.
func readResult(ctx context.Context, t *testing.T, consumer *kafkago.Reader) resultMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var resp domain.GeocodeResponse
	require.NoError(t, json.Unmarshal(msg.Value, &resp), "unmarshal sink message")

	return resultMessage{Response: resp, Key: string(msg.Key), Headers: headers}
}

// stubProvider places every point in a 20 m box without leaving the process.
type stubProvider struct {
	calls atomic.Int32
}

func (p *stubProvider) Name() string  { return domain.ProviderNominatim }
func (p *stubProvider) Enabled() bool { return true }

func (p *stubProvider) ReverseGeocode(_ context.Context, pt domain.Point) (domain.GeocodingResult, error) {
	p.calls.Add(1)
	return domain.GeocodingResult{
		Point:       pt,
		BoundingBox: domain.SquareAround(pt, 20),
		DisplayName: "Near " + pt.String(),
		Country:     "Testland",
	}, nil
}

func newResolver(t *testing.T, provider domain.Provider) (*geocoding.Resolver, *sqlite.Store) {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "integration.db"), discardLogger(), metrics)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	orch, err := geocoding.NewOrchestrator([]domain.Provider{provider}, domain.ProviderNominatim, "", discardLogger(), metrics)
	require.NoError(t, err)
	writer := geocoding.NewWriter(store, 0, metrics)
	return geocoding.NewResolver(store, orch, writer, geocoding.DefaultResolverConfig(), discardLogger(), metrics), store
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func newSinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func loadMockRequests(t *testing.T) []domain.GeocodeRequest {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "data", "mock", "geocode_requests.json"))
	require.NoError(t, err)
	var reqs []domain.GeocodeRequest
	require.NoError(t, json.Unmarshal(data, &reqs))
	return reqs
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader (Extractor) and
// kafka.Writer (Loader) correctly round-trip a message through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-reader")

	payload := []byte(`{"id":"req-1","lon":13.391,"lat":52.5129}`)
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Key: []byte("req-1"), Value: payload}))

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("req-1"), raw.Key)
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	resolver, _ := newResolver(t, &stubProvider{})
	outcomes := pipeline.NewTransformer(resolver, discardLogger()).TransformBatch(ctx, batch)
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.OutputEvent{outcomes[0].Out}))

	rm := readResult(ctx, t, newSinkConsumer(t, broker))
	assert.Equal(t, "req-1", rm.Key)
	assert.Equal(t, domain.StatusResolved, rm.Headers["status"])
	_, err := time.Parse(time.RFC3339, rm.Headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")
	assert.Equal(t, domain.StatusResolved, rm.Response.Status)
	require.NotNil(t, rm.Response.Location)
	assert.Equal(t, domain.ProviderNominatim, rm.Response.Location.Provider)
}

// TestPipelineEndToEnd runs the mock track through Reader, resolver and
// Writer with real Kafka and checks that revisited points hit the cache.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-pipeline")

	requests := loadMockRequests(t)
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, 0, len(requests))
	for _, req := range requests {
		payload, err := json.Marshal(req)
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{Key: []byte(req.ID), Value: payload})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	provider := &stubProvider{}
	resolver, store := newResolver(t, provider)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, pipeline.NewTransformer(resolver, discardLogger()), writer, discardLogger(), metrics, 10)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := newSinkConsumer(t, broker)
	received := make(map[string]resultMessage, len(requests))
	for len(received) < len(requests) {
		rm := readResult(ctx, t, consumer)
		received[rm.Key] = rm
	}

	pipelineCancel()
	require.NoError(t, <-errCh)
	require.NoError(t, p.CheckReadiness(ctx))

	var hits int
	for _, req := range requests {
		rm, ok := received[req.ID]
		require.True(t, ok, "missing response for %s", req.ID)
		assert.Equal(t, domain.StatusResolved, rm.Response.Status)
		assert.InDelta(t, *req.Lon, rm.Response.Lon, 0)
		assert.InDelta(t, *req.Lat, rm.Response.Lat, 0)
		if rm.Response.CacheHit {
			hits++
		}
	}
	assert.Greater(t, hits, 0)
	assert.Equal(t, len(requests), hits+int(provider.calls.Load()))

	stored, err := store.Count(ctx, domain.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(provider.calls.Load()), stored)
}

// TestPipelineInvalidRequest verifies that an undecodable message (poison
// pill) is skipped and the pipeline continues with valid messages.
func TestPipelineInvalidRequest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)
	cfg := testConfig(broker, "test-poison")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testSourceTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("out-of-range"), Value: []byte(`{"id":"out-of-range","lon":181,"lat":0}`)},
		kafkago.Message{Key: []byte("good"), Value: []byte(`{"id":"good","lon":2.3522,"lat":48.8566}`)},
	))

	resolver, _ := newResolver(t, &stubProvider{})
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, pipeline.NewTransformer(resolver, discardLogger()), writer, discardLogger(), metrics, 10)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := newSinkConsumer(t, broker)
	rm := readResult(ctx, t, consumer)
	assert.Equal(t, "good", rm.Key)
	assert.Equal(t, domain.StatusResolved, rm.Response.Status)

	// Verify no second message arrives (the invalid requests were skipped).
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
