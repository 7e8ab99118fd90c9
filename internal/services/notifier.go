package services

import (
	"context"
	"sync"
	"time"

	"health-service/internal/logging"
	"health-service/internal/metrics"
	"health-service/internal/models"
)

// Sink delivers a persisted alert somewhere outside the service.
type Sink interface {
	Name() string
	Send(ctx context.Context, alert models.Alert) error
}

type route struct {
	sink        Sink
	minSeverity models.Severity
}

// Notifier fans persisted alerts out to sinks from a pool of workers. Alerts
// for one device always land on the same worker, so each sink sees a
// device's alerts in creation order.
type Notifier struct {
	logger      *logging.Logger
	shards      []chan models.Alert
	routes      []route
	sendTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          *sync.WaitGroup
}

// NewNotifier builds a pool of workers sharing queueSize slots between them.
func NewNotifier(logger *logging.Logger, queueSize, workers int) *Notifier {
	if workers < 1 {
		workers = 1
	}
	perShard := queueSize / workers
	if perShard < 1 {
		perShard = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		logger:      logger,
		shards:      make([]chan models.Alert, workers),
		sendTimeout: 10 * time.Second,
		ctx:         ctx,
		cancel:      cancel,
	}
	for i := range n.shards {
		n.shards[i] = make(chan models.Alert, perShard)
	}
	return n
}

// AddSink registers a sink that receives alerts at or above minSeverity.
// Call before Start.
func (n *Notifier) AddSink(s Sink, minSeverity models.Severity) {
	n.routes = append(n.routes, route{sink: s, minSeverity: minSeverity})
	n.logger.Infof("Notification sink %s registered (min severity %s)", s.Name(), minSeverity)
}

// Start launches the worker pool.
func (n *Notifier) Start(wg *sync.WaitGroup) {
	n.wg = wg
	for i := range n.shards {
		n.wg.Add(1)
		go n.worker(i)
	}
}

// Stop signals the workers to exit after their current delivery. Alerts still
// queued are counted as dropped.
func (n *Notifier) Stop() {
	n.cancel()
}

// Queue enqueues an alert for delivery without blocking; a full shard drops it.
func (n *Notifier) Queue(alert models.Alert) {
	if len(n.routes) == 0 {
		return
	}
	if n.ctx.Err() != nil {
		metrics.NotificationsSent.WithLabelValues("queue", "dropped").Inc()
		n.logger.WithDevice(alert.MachineID).Warnf("Notifier stopped, dropping alert %d", alert.ID)
		return
	}
	shard := n.shards[shardFor(alert.MachineID, len(n.shards))]
	select {
	case shard <- alert:
		metrics.NotificationQueueSize.Inc()
		n.logger.WithDevice(alert.MachineID).Debugf("Queued alert %d for notification", alert.ID)
	default:
		metrics.NotificationsSent.WithLabelValues("queue", "dropped").Inc()
		n.logger.WithDevice(alert.MachineID).Errorf("Queue full, dropping alert %d", alert.ID)
	}
}

func shardFor(machineID string, shards int) int {
	return int(hashKey(machineID) % uint32(shards))
}

// worker delivers alerts until the notifier is stopped.
func (n *Notifier) worker(id int) {
	defer n.wg.Done()
	for {
		if n.ctx.Err() != nil {
			n.drain(id)
			return
		}
		select {
		case <-n.ctx.Done():
		case alert := <-n.shards[id]:
			metrics.NotificationQueueSize.Dec()
			n.dispatch(alert)
		}
	}
}

// drain empties a stopped worker's shard so the queue gauge settles.
func (n *Notifier) drain(id int) {
	dropped := 0
	for {
		select {
		case <-n.shards[id]:
			dropped++
			metrics.NotificationQueueSize.Dec()
			metrics.NotificationsSent.WithLabelValues("queue", "dropped").Inc()
		default:
			if dropped > 0 {
				n.logger.Warnf("Notification worker %d stopped, %d queued alerts undelivered", id, dropped)
			} else {
				n.logger.Infof("Notification worker %d stopped", id)
			}
			return
		}
	}
}

func (n *Notifier) dispatch(alert models.Alert) {
	for _, r := range n.routes {
		if !alert.Severity.AtLeast(r.minSeverity) {
			continue
		}
		ctx, cancel := context.WithTimeout(n.ctx, n.sendTimeout)
		err := r.sink.Send(ctx, alert)
		cancel()

		entry := n.logger.WithDevice(alert.MachineID).WithField("sink", r.sink.Name())
		if err != nil {
			metrics.NotificationsSent.WithLabelValues(r.sink.Name(), "failed").Inc()
			entry.Errorf("Dispatch of alert %d failed: %v", alert.ID, err)
			continue
		}
		metrics.NotificationsSent.WithLabelValues(r.sink.Name(), "success").Inc()
		entry.Debugf("Alert %d dispatched", alert.ID)
	}
}
