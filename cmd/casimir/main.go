// Command casimir runs the Casimir NFC Controller emulator: one TCP
// listener for the NCI transport, one for the raw RF transport, a
// scene actor routing RF traffic between every connected device, and
// an optional management RPC scaffold and MQTT lifecycle bridge.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casimir-nfc/casimir/internal/adapter"
	"github.com/casimir-nfc/casimir/internal/config"
	"github.com/casimir-nfc/casimir/internal/events"
	"github.com/casimir-nfc/casimir/internal/logger"
	"github.com/casimir-nfc/casimir/internal/mgmt"
	"github.com/casimir-nfc/casimir/internal/scene"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "casimir: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.Format = cfg.LogFormat
	logCfg.LogDir = cfg.LogDir
	if err := logger.Init(logCfg); err != nil {
		fmt.Fprintf(os.Stderr, "casimir: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Get()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var sink events.Sink = events.NoopSink{}
	if cfg.MQTTBroker != "" {
		mqttSink := events.NewMQTTSink(events.MQTTSinkConfig{Broker: cfg.MQTTBroker}, log.With(zap.String("component", "mqtt_sink")))
		defer mqttSink.Close()
		sink = mqttSink
	}

	sc := scene.New(sink, logger.WithScene())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		sc.Run(ctx)
	}()

	nciAddr := fmt.Sprintf("0.0.0.0:%d", cfg.NCIPort)
	nciListener, err := net.Listen("tcp", nciAddr)
	if err != nil {
		log.Fatal("failed to listen on NCI port", zap.Error(err))
	}
	log.Info("NCI transport listening", zap.String("addr", nciAddr))

	rfAddr := fmt.Sprintf("0.0.0.0:%d", cfg.RFPort)
	rfListener, err := net.Listen("tcp", rfAddr)
	if err != nil {
		log.Fatal("failed to listen on RF port", zap.Error(err))
	}
	log.Info("RF transport listening", zap.String("addr", rfAddr))

	wg.Add(1)
	go func() {
		defer wg.Done()
		acceptLoop(ctx, nciListener, log, func(conn net.Conn, connLog *zap.Logger) {
			adapter.ServeNCI(ctx, sc, conn, sink, connLog)
		})
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		acceptLoop(ctx, rfListener, log, func(conn net.Conn, connLog *zap.Logger) {
			adapter.ServeRF(ctx, sc, conn, sink, connLog)
		})
	}()

	if cfg.GRPCPort > 0 {
		mgmtServer := mgmt.New(sc, log.With(zap.String("component", "mgmt")))
		wg.Add(1)
		go func() {
			defer wg.Done()
			addr := fmt.Sprintf("0.0.0.0:%d", cfg.GRPCPort)
			if err := mgmtServer.Serve(ctx, addr); err != nil {
				log.Warn("mgmt server stopped", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")
	nciListener.Close()
	rfListener.Close()
	wg.Wait()
}

// acceptLoop accepts connections on l until ctx is cancelled, handing
// each one to handle in its own goroutine with a uuid-tagged logger.
func acceptLoop(ctx context.Context, l net.Listener, log *zap.Logger, handle func(net.Conn, *zap.Logger)) {
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Warn("accept failed", zap.Error(err))
				return
			}
		}

		traceID := uuid.New().String()
		connLog := log.With(zap.String("trace_id", traceID), zap.String("remote_addr", conn.RemoteAddr().String()))
		go handle(conn, connLog)
	}
}
