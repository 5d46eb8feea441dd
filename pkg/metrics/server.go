package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	utilwait "k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"
)

// MetricServer exposes the agent metrics over HTTP
type MetricServer struct {
	bindAddress string

	// HTTP server
	server *http.Server
	mux    *http.ServeMux

	registry *prometheus.Registry
}

// NewMetricServer creates a MetricServer serving /metrics on bindAddress
func NewMetricServer(bindAddress string) *MetricServer {
	s := &MetricServer{
		bindAddress: bindAddress,
		registry:    prometheus.NewRegistry(),
	}
	RegisterMetrics(s.registry)
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s.mux = http.NewServeMux()
	s.mux.Handle("/metrics", promhttp.InstrumentMetricHandler(
		s.registry,
		promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}),
	))
	return s
}

// Run serves until stopChan is closed. A failing listener is restarted.
func (s *MetricServer) Run(stopChan <-chan struct{}) {
	utilwait.Until(func() {
		s.server = &http.Server{
			Addr:              s.bindAddress,
			Handler:           s.mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error)
		go func() {
			errCh <- s.server.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				utilruntime.HandleError(fmt.Errorf("failed while running metrics server at address %q: %w", s.bindAddress, err))
			}
		case <-stopChan:
			klog.Infof("Stopping metrics server at address %q", s.bindAddress)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				klog.Errorf("Error stopping metrics server at address %q: %v", s.bindAddress, err)
			}
		}
	}, 5*time.Second, stopChan)
}
