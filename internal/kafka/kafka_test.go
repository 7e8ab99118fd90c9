package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"health-service/internal/health"
	"health-service/internal/logging"
	"health-service/internal/models"
)

type stubSubmitter struct {
	mu    sync.Mutex
	err   error
	fails int
	got   []models.HealthSubmission
}

func (s *stubSubmitter) Submit(_ context.Context, sub models.HealthSubmission, _ string) (models.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := health.CheckMachineID(sub.MachineID); err != nil {
		return models.Submission{}, err
	}
	if s.fails > 0 {
		s.fails--
		return models.Submission{}, errors.New("db down")
	}
	s.got = append(s.got, sub)
	return models.Submission{}, s.err
}

func TestHandle(t *testing.T) {
	svc := &stubSubmitter{}
	c := &Consumer{svc: svc, logger: logging.Discard()}
	ctx := context.Background()

	assert.True(t, c.handle(ctx, kafka.Message{Value: []byte(`{"machine_id":"mac-1","cpu_percent":97}`)}))
	assert.True(t, c.handle(ctx, kafka.Message{Value: []byte(`not json`)}), "malformed messages are skipped")
	assert.True(t, c.handle(ctx, kafka.Message{Value: []byte(`{"cpu_percent":97}`)}), "invalid messages are skipped")

	svc.fails = 1
	assert.False(t, c.handle(ctx, kafka.Message{Value: []byte(`{"machine_id":"mac-2"}`)}), "storage failures are retried")

	require.Len(t, svc.got, 1)
	assert.Equal(t, 97.0, svc.got[0].CPUPercent)
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func TestConsumerCommitsProcessedMessages(t *testing.T) {
	reader := &fakeReader{}
	for i := 0; i < 3; i++ {
		reader.msgs = append(reader.msgs, kafka.Message{
			Offset: int64(i),
			Value:  []byte(fmt.Sprintf(`{"machine_id":"mac-%d"}`, i)),
		})
	}
	svc := &stubSubmitter{}
	c := &Consumer{reader: reader, svc: svc, logger: logging.Discard()}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	c.Start(ctx, &wg)

	assert.Eventually(t, func() bool { return len(reader.commits()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()
	assert.Equal(t, []int64{0, 1, 2}, reader.commits())
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerSend(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w}
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := p.Send(context.Background(), models.Alert{
		ID: 7, MachineID: "mac-1", Severity: models.SeverityCritical, Category: models.CategoryDisk,
		Message: "Disk at 95%: critically full", Value: 95, Threshold: 90, Timestamp: at,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "mac-1", string(w.msgs[0].Key))

	var ev AlertEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, int64(7), ev.AlertID)
	assert.Equal(t, models.CategoryDisk, ev.Category)
	assert.True(t, ev.Timestamp.Equal(at))

	w.err = errors.New("broker gone")
	assert.Error(t, p.Send(context.Background(), models.Alert{ID: 8}))
}
