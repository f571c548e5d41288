package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onboardlink/sdk/pkg/dispatch"
	"github.com/onboardlink/sdk/pkg/link"
	onboardredis "github.com/onboardlink/sdk/pkg/redis"
	"github.com/onboardlink/sdk/pkg/telemetry"
	"github.com/onboardlink/sdk/pkg/transport"
)

// Configuration flags
var (
	serialDevice = flag.String("serial", "/dev/ttyUSB0", "Serial device path to the flight controller")
	baudRate     = flag.Int("baud", 230400, "Serial baud rate")
	udpAddr      = flag.String("udp", "", "If set, talk UDP to this host:port instead of opening the serial device")
	redisAddr    = flag.String("redis-addr", "localhost:6379", "Redis server address")
	redisPass    = flag.String("redis-pass", "", "Redis password")
	redisDB      = flag.Int("redis-db", 0, "Redis database number")
	telemetryKey = flag.String("telemetry-key", "onboardlink:telemetry", "Redis hash/channel prefix for forwarded telemetry")
	metricsAddr  = flag.String("metrics-addr", ":9110", "Address to serve Prometheus metrics on")
	pollInterval = flag.Duration("poll-interval", 10*time.Millisecond, "SendPoll/ReadPoll interval")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting onboard-gatewayd")

	redisClient, err := onboardredis.New(*redisAddr, *redisPass, *redisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Printf("Connected to Redis at %s", *redisAddr)

	pipe, closePipe := openPipe()
	defer closePipe()

	core := link.New(pipe)

	sink := telemetry.NewSink(redisClient, *telemetryKey, nil)
	core.SetBroadcastHandler(sink.HandleBroadcast)
	core.SetTransparentHandler(sink.HandleTransparent)

	telemetry.NewActivator(core, nil).Register()

	commander := telemetry.NewCommander(redisClient, "onboardlink:commands", core, map[string]telemetry.CommandSpec{
		"return-to-launch": {CmdSet: 0x05, CmdID: 0x01},
		"arm":              {CmdSet: 0x05, CmdID: 0x02},
		"disarm":           {CmdSet: 0x05, CmdID: 0x03},
	}, nil)
	go commander.Watch()
	defer commander.Stop()

	core.RegisterHandler(0x04, 0x01, func(req *dispatch.Request) {
		log.Printf("onboard-gatewayd: ping from session %d: %q", req.SessionID, req.Payload)
		if err := req.Ack([]byte("pong")); err != nil {
			log.Printf("onboard-gatewayd: acking ping: %v", err)
		}
	})

	go serveMetrics(*metricsAddr)

	stopCh := make(chan struct{})
	go pumpLoop(core, *pollInterval, stopCh)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	close(stopCh)
	core.Shutdown()
	log.Printf("Shutting down...")
}

func openPipe() (link.BytePipe, func()) {
	if *udpAddr != "" {
		conn, err := transport.DialUDP(*udpAddr)
		if err != nil {
			log.Fatalf("Failed to dial UDP %s: %v", *udpAddr, err)
		}
		log.Printf("Connected over UDP to %s", *udpAddr)
		return conn, func() { conn.Close() }
	}

	conn, err := transport.OpenSerial(transport.SerialConfig{Device: *serialDevice, BaudRate: *baudRate})
	if err != nil {
		log.Fatalf("Failed to open serial device %s: %v", *serialDevice, err)
	}
	log.Printf("Connected over serial to %s at %d baud", *serialDevice, *baudRate)
	return conn, func() { conn.Close() }
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Printf("Serving metrics on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("metrics server stopped: %v", err)
	}
}

// pumpLoop drives ReadPoll and SendPoll at a steady rate, the cooperative
// scheduling model described in §4.5: the core does no I/O on its own and
// relies entirely on the embedder calling it.
func pumpLoop(core *link.Core, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := core.ReadPoll(); err != nil {
				log.Printf("onboard-gatewayd: read poll: %v", err)
			}
			core.SendPoll()
		}
	}
}
