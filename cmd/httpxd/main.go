// Command httpxd is a minimal demonstration server for the streamhttp
// engine: it wires the epoll reactor, the zap-backed logging sink, and a
// reference echo handler into a runnable binary.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ngrantham/streamhttp/internal/engine"
	"github.com/ngrantham/streamhttp/internal/logging"
	"github.com/ngrantham/streamhttp/internal/reactor"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	readBuf := flag.Int("read-buffer", engine.DefaultReadBufferSize, "per-connection read buffer size in bytes")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	level, err := zapcore.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "httpxd: invalid -log-level %q: %v\n", *logLevel, err)
		os.Exit(2)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "httpxd: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobal(logger.Sugar())

	tcpAddr, err := net.ResolveTCPAddr("tcp", *addr)
	if err != nil {
		logging.Warnw("httpxd: invalid listen address", "addr", *addr, "err", err)
		os.Exit(1)
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		logging.Warnw("httpxd: listen failed", "addr", *addr, "err", err)
		os.Exit(1)
	}

	r, err := reactor.New()
	if err != nil {
		logging.Warnw("httpxd: reactor init failed", "err", err)
		os.Exit(1)
	}
	defer r.Close()

	rl, err := reactor.NewListener(r, ln)
	if err != nil {
		logging.Warnw("httpxd: listener wrap failed", "err", err)
		os.Exit(1)
	}

	engine.NewAcceptLoop(rl, newEchoHandler, *readBuf)
	logging.Infow("httpxd: listening", "addr", *addr)
	r.Run()
}
