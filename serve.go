package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 5 * time.Second

func routes(p *page, live http.Handler, apiHandler interface{ Register(*http.ServeMux) }, public fs.FS) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", p)
	mux.Handle("GET /static/", http.FileServerFS(public))
	mux.Handle("GET /live", live)
	apiHandler.Register(mux)
	return mux
}

func (p *page) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Render into a buffer so a template error can still become a 500.
	var buf bytes.Buffer
	if err := p.render(r.Context(), &buf); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("render page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// withServerHeader stamps the version on every response and answers HEAD /
// without a body so uptime probes stay cheap.
func withServerHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "flood-sensor-map/"+CompileVersion)
		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// serveHTTP runs a plain HTTP server until ctx ends.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return log.WithContext(ctx) },
	}
	log.Info().Str("addr", addr).Msgf("HTTP server ➜ http://localhost%s", addr)
	return runServers(ctx, log, srv)
}

// serveWithDomain serves HTTPS on :443 with Let's Encrypt certificates for
// domain and www.domain, and uses :80 for the ACME challenge plus a redirect.
func serveWithDomain(ctx context.Context, domain string, handler http.Handler, log zerolog.Logger) error {
	certMgr := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      autocert.DirCache("certs"),
		HostPolicy: autocert.HostWhitelist(domain, "www."+domain),
	}

	redirect := http.NewServeMux()
	redirect.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://"+domain+r.URL.RequestURI(), http.StatusMovedPermanently)
	})
	plain := &http.Server{
		Addr:              ":80",
		Handler:           certMgr.HTTPHandler(redirect),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tlsCfg := certMgr.TLSConfig()
	tlsCfg.MinVersion = tls.VersionTLS12
	secure := &http.Server{
		Addr:              ":443",
		Handler:           handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return log.WithContext(ctx) },
	}

	log.Info().Str("domain", domain).Msg("HTTPS server ➜ :443, ACME and redirect ➜ :80")
	return runServers(ctx, log, plain, secure)
}

// runServers starts every server and shuts them all down when ctx ends or
// one of them fails.
func runServers(ctx context.Context, log zerolog.Logger, servers ...*http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			var err error
			if srv.TLSConfig != nil {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn().Err(err).Str("addr", srv.Addr).Msg("shutdown")
			}
		}
		return nil
	})
	return g.Wait()
}
