// Package mainboilerplate contains shared boilerplate for docstore programs.
// It offers narrowly scoped functions, so that callers needn't buy in to an
// all-or-nothing approach.
package mainboilerplate

import (
	"context"
	_ "expvar" // Import for /debug/vars
	"fmt"
	"net/http"
	_ "net/http/pprof" // Import for /debug/pprof
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Version and BuildDate are set at link time.
var (
	Version   = "development"
	BuildDate = "unknown"
)

// DiagnosticsConfig configures pull-based application metrics, debugging and diagnostics.
type DiagnosticsConfig struct {
	Address string `long:"address" env:"ADDRESS" default:":8090" description:"Address on which diagnostics are served over HTTP"`
}

// InitDiagnosticsAndRecover registers metrics and debugging services on the
// default HTTP mux. It returns a closure which should be deferred, which
// recovers a panic and attempts to log a K8s termination message.
func InitDiagnosticsAndRecover(cfg DiagnosticsConfig) func() {
	// Package "net/http/pprof" serves /debug/pprof/.
	// Package "expvar" serves /debug/vars

	// Serve a liveness check at /debug/ready.
	http.HandleFunc("/debug/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	// Serve Prometheus metrics at /debug/metrics.
	http.Handle("/debug/metrics", promhttp.Handler())

	log.WithFields(log.Fields{
		"address":   cfg.Address,
		"version":   Version,
		"buildDate": BuildDate,
	}).Info("initialized diagnostics")

	return func() {
		if r := recover(); r != nil {
			// Make a best effort attempt to write a termination message.
			// Bug: https://github.com/kubernetes/kubernetes/issues/31839
			if f, err := os.OpenFile(k8sTerminationLog, os.O_WRONLY, 0777); err == nil {
				fmt.Fprintf(f, "%+v", r)
				f.Close()
			}
			panic(r)
		}
	}
}

// ServeDiagnostics serves the default HTTP mux at the configured Address
// until |ctx| is cancelled.
func ServeDiagnostics(ctx context.Context, cfg DiagnosticsConfig) error {
	var srv = &http.Server{Addr: cfg.Address, ReadHeaderTimeout: 10 * time.Second}
	var errCh = make(chan error, 1)

	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return errors.WithMessage(err, "serving diagnostics")
	case <-ctx.Done():
	}

	var shutdownCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.WithMessage(err, "shutting down diagnostics")
	}
	return nil
}

// Must panics if |err| is non-nil, supplying |msg| and |extra| as
// formatter and fields of the generated panic.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var f = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		f[extra[i].(string)] = extra[i+1]
	}
	log.WithFields(f).Panic(msg)
}

const (
	// k8sTerminationLog is the location to write a termination message for
	// Kubernetes to retrieve.
	//
	// Link: https://kubernetes.io/docs/tasks/debug-application-cluster/determine-reason-pod-failure/#setting-the-termination-log-file
	k8sTerminationLog = "/dev/termination-log"
)
