package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tetragramaton/smh-node/internal/node"
)

const namespace = "smh_node"

// Collector exports lifecycle notifications as Prometheus metrics.
type Collector struct {
	state        prometheus.Gauge
	transitions  *prometheus.CounterVec
	attempt      prometheus.Gauge
	backoff      prometheus.Gauge
	publishes    prometheus.Counter
	publishBytes prometheus.Counter
	disconnects  prometheus.Counter
	lines        prometheus.Counter
	lineBytes    prometheus.Counter
	rejected     prometheus.Counter
}

var _ node.Observer = (*Collector)(nil)

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current lifecycle state (0 init .. 5 disconnected, 254 config error, 255 error)",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Lifecycle transitions by target state",
		}, []string{"to"}),
		attempt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connect_attempt",
			Help:      "Current connection attempt counter",
		}),
		backoff: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backoff_seconds",
			Help:      "Most recently scheduled reconnect delay",
		}),
		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Publish requests accepted by the session",
		}),
		publishBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "published_bytes_total",
			Help:      "Payload bytes handed to the session",
		}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Broker disconnects observed while linked",
		}),
		lines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_total",
			Help:      "Input lines appended to the payload buffer",
		}),
		lineBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "line_bytes_total",
			Help:      "Input bytes appended to the payload buffer",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_rejected_total",
			Help:      "Input lines that did not fit the payload buffer",
		}),
	}

	reg.MustRegister(
		c.state,
		c.transitions,
		c.attempt,
		c.backoff,
		c.publishes,
		c.publishBytes,
		c.disconnects,
		c.lines,
		c.lineBytes,
		c.rejected,
	)
	return c
}

func (c *Collector) StateChanged(_, to node.State) {
	c.state.Set(float64(to))
	c.transitions.WithLabelValues(to.String()).Inc()
}

func (c *Collector) AttemptChanged(attempt int) { c.attempt.Set(float64(attempt)) }

func (c *Collector) BackoffScheduled(delay time.Duration) { c.backoff.Set(delay.Seconds()) }

func (c *Collector) Published(bytes int) {
	c.publishes.Inc()
	c.publishBytes.Add(float64(bytes))
}

func (c *Collector) Disconnected() { c.disconnects.Inc() }

func (c *Collector) LineAppended(bytes int) {
	c.lines.Inc()
	c.lineBytes.Add(float64(bytes))
}

func (c *Collector) LineRejected() { c.rejected.Inc() }

// Server exposes /metrics over HTTP.
type Server struct {
	srv *http.Server
	log *zap.Logger
}

func NewServer(addr string, g prometheus.Gatherer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.Named("metrics"),
	}
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("metrics endpoint listening", zap.String("addr", s.srv.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
