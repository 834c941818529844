// Command echoserver wires opnet's whole stack together end to end: a
// tcpnet.Acceptor feeding entry.Entry connections that echo every message
// back to its sender, logged through netlog and counted through
// statsprom. Grounded on
// original_source/proto_entry/examples/ping_pong_entry/main.cpp (overall
// server/connection-table shape) and
// original_source/net/examples/tcp/echo_server.cpp (the echo behavior
// itself), trading the original's CLI11+asio bootstrap for the standard
// library's flag+signal.NotifyContext, per SPEC_FULL.md §1's "thin
// bootstrap, not a CLI framework" framing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ngrodzitski/opnet/config"
	"github.com/ngrodzitski/opnet/conn"
	"github.com/ngrodzitski/opnet/entry"
	"github.com/ngrodzitski/opnet/message"
	"github.com/ngrodzitski/opnet/netlog"
	"github.com/ngrodzitski/opnet/statsprom"
	"github.com/ngrodzitski/opnet/tcpnet"
)

func main() {
	addr := flag.String("addr", ":9000", "address to listen on; overridden by -config if given")
	metricsAddr := flag.String("metrics-addr", "", "address to serve /metrics on; empty disables it")
	configPath := flag.String("config", "", "path to a JSON/YAML config file following the opnet config table")
	logLevel := flag.String("log-level", "info", "trace|debug|info|warn|error")
	flag.Parse()

	log := netlog.New(*logLevel, os.Stdout, false)

	ep, connCfg, entryCfg, err := loadEndpointAndConfig(*addr, *configPath)
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}

	reg := prometheus.NewRegistry()
	stats, err := statsprom.New(reg, "opnet", "echoserver", nil)
	if err != nil {
		log.WithError(err).Fatal("registering metrics")
	}
	srv := newServer(ep, connCfg, entryCfg, reg, stats, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		go serveMetrics(ctx, *metricsAddr, reg, log)
	}

	if err := srv.start(); err != nil {
		log.WithError(err).Fatal("starting acceptor")
	}
	log.WithField("addr", srv.acceptor.Addr().String()).Info("echoserver listening")

	srv.serve(ctx)
	srv.stop()
}

func loadEndpointAndConfig(flagAddr, configPath string) (tcpnet.Endpoint, conn.Config, entry.Config, error) {
	if configPath == "" {
		host, portStr, err := net.SplitHostPort(flagAddr)
		if err != nil {
			return tcpnet.Endpoint{}, conn.Config{}, entry.Config{}, err
		}
		var port uint16
		if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
			return tcpnet.Endpoint{}, conn.Config{}, entry.Config{}, fmt.Errorf("invalid port %q: %w", portStr, err)
		}
		return tcpnet.Endpoint{Host: host, Port: port, Protocol: tcpnet.ProtocolV4},
			conn.DefaultConfig(), entry.DefaultConfig(), nil
	}

	loader := config.New()
	if err := loader.ReadFile(configPath); err != nil {
		return tcpnet.Endpoint{}, conn.Config{}, entry.Config{}, err
	}
	raw, err := loader.Load()
	if err != nil {
		return tcpnet.Endpoint{}, conn.Config{}, entry.Config{}, err
	}
	ep, err := raw.BuildEndpoint()
	if err != nil {
		return tcpnet.Endpoint{}, conn.Config{}, entry.Config{}, err
	}
	return ep, raw.ConnConfig(), raw.EntryConfig(), nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("metrics server")
	}
}

// server is ping_server_t narrowed to the echo example's needs: an
// acceptor plus a table of live entries, keyed by entry.Entry.ID so the
// shutdown handler can remove its own connection.
type server struct {
	ep       tcpnet.Endpoint
	connCfg  conn.Config
	entryCfg entry.Config
	reg      *prometheus.Registry
	stats    *statsprom.Stats
	log      *logrus.Entry

	acceptor *tcpnet.Acceptor

	mu      sync.Mutex
	clients map[uuid.UUID]*entry.Entry
}

func newServer(ep tcpnet.Endpoint, connCfg conn.Config, entryCfg entry.Config, reg *prometheus.Registry, stats *statsprom.Stats, log *logrus.Entry) *server {
	return &server{
		ep:       ep,
		connCfg:  connCfg,
		entryCfg: entryCfg,
		reg:      reg,
		stats:    stats,
		log:      log,
		clients:  make(map[uuid.UUID]*entry.Entry),
	}
}

func (s *server) start() error {
	addr := fmt.Sprintf("%s:%d", s.ep.Host, s.ep.Port)
	a, err := tcpnet.Listen(addr, s.ep.Options)
	if err != nil {
		return err
	}
	a.OnError = func(phase string, err error) {
		s.log.WithField("phase", phase).WithError(err).Error("acceptor error")
	}
	s.acceptor = a
	return nil
}

func (s *server) serve(ctx context.Context) {
	s.acceptor.Serve(ctx, s.onAccept)
}

func (s *server) stop() {
	s.mu.Lock()
	clients := make([]*entry.Entry, 0, len(s.clients))
	for _, e := range s.clients {
		clients = append(clients, e)
	}
	s.mu.Unlock()

	for _, e := range clients {
		e.Shutdown()
	}
}

func (s *server) onAccept(socket net.Conn) {
	registry := newEchoRegistry()

	var e *entry.Entry
	e = entry.New(socket, s.entryCfg, s.connCfg, registry,
		message.ConsumerFunc(func(carrier message.Carrier, handle any) {
			msg := carrier.Msg.(*echoMsg)
			h := handle.(*entry.Entry)
			h.Send(echoTag, &echoMsg{Payload: msg.Payload})
		}),
		s.stats, s.stats, s.log, func(e *entry.Entry, reason entry.ShutdownReason, underlying conn.ShutdownReason, err error) {
			s.mu.Lock()
			delete(s.clients, e.ID)
			s.mu.Unlock()
			s.log.WithField("entry_id", e.ID.String()).
				WithField("reason", reason.String()).
				WithField("underlying", underlying.String()).
				Info("client disconnected")
		})

	s.mu.Lock()
	s.clients[e.ID] = e
	s.mu.Unlock()

	s.log.WithField("entry_id", e.ID.String()).Info("client connected")
}
