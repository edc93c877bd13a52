package frontdoor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/theory-cloud/todostack"
)

const shutdownGrace = 5 * time.Second

// Serve listens on addr until ctx is cancelled, then shuts down gracefully. ready, when
// non-nil, receives the bound address once the listener is open.
func (g *Gateway) Serve(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           g,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if ready != nil {
		ready(ln.Addr())
	}
	g.logger.Info("front door listening", map[string]any{"addr": ln.Addr().String(), "base_path": g.BasePath()})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// BaseURL is the public endpoint of a gateway bound to addr.
func (g *Gateway) BaseURL(addr net.Addr) string {
	return URL(g.layer, addr.String())
}

// URL is the endpoint layer is served at when the front door listens on hostport.
func URL(layer todostack.RoutingLayer, hostport string) string {
	return "http://" + hostport + BasePath(layer) + "/"
}
