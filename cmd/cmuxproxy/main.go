package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tailscaletsnet "tailscale.com/tsnet"

	"github.com/manaflow-ai/cmux-proxy/internal/config"
	"github.com/manaflow-ai/cmux-proxy/internal/dispatch"
	"github.com/manaflow-ai/cmux-proxy/internal/httpx"
	"github.com/manaflow-ai/cmux-proxy/internal/tsnet"
)

// version and gitCommit are set at build time via -ldflags.
var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	log.SetFlags(0)

	if err := setParentDeathSignal(syscall.SIGTERM); err != nil {
		log.Printf("pdeathsig: %v", err)
	}

	st, err := config.Load(os.Args[1:], version, gitCommit)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tsServer *tailscaletsnet.Server
	if st.TSNetHostname != "" {
		tsServer = tsnet.New(tsnet.Options{
			StateDir: st.TSNetStateDir,
			Hostname: st.TSNetHostname,
			LoginURL: st.TSNetLoginServer,
			AuthKey:  st.TSNetAuthKey,
		})
		st.Upstream = config.NewUpstreamClient(tsnet.DialContext(tsServer))
		defer tsServer.Close()
	}

	ln, err := acquireListener(ctx, st, tsServer)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	d := dispatch.New(st)
	handler := httpx.RequestID(httpx.Logging(d))

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streamed/HTML responses and WebSocket bridges outlive a fixed write deadline
		IdleTimeout:  120 * time.Second,
	}

	stopMetrics := logMetricsPeriodically(ctx, d)
	defer stopMetrics()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	log.Printf("cmuxproxy listening on %s (backend=%s://%s)", st.BindAddr, st.BackendScheme, st.BackendHost)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}
}

func acquireListener(ctx context.Context, st *config.State, ts *tailscaletsnet.Server) (net.Listener, error) {
	if ts != nil {
		return tsnet.Factory(ts, st.BindAddr)(ctx)
	}
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", st.BindAddr)
}

func logMetricsPeriodically(ctx context.Context, d *dispatch.Dispatcher) func() {
	t := time.NewTicker(60 * time.Second)
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger := httpx.Logger()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				snap := d.Metrics.Export()
				logger.Printf("metrics routes=%v statuses=%v active_ws=%d", snap.Routes, snap.Statuses, snap.ActiveWS)
			}
		}
	}()
	return func() {
		t.Stop()
		<-done
	}
}
