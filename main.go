package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/maksimkurb/gwsupervisor/lib/config"
	"github.com/maksimkurb/gwsupervisor/lib/ingest"
	"github.com/maksimkurb/gwsupervisor/lib/log"
	"github.com/maksimkurb/gwsupervisor/lib/ops"
	"github.com/maksimkurb/gwsupervisor/lib/reroute"
	"github.com/maksimkurb/gwsupervisor/lib/runner"
)

func main() {
	configPath := flag.String("config", "/etc/gwsupervisor/gwsupervisor.conf", "Path to configuration file")
	verbose := flag.Bool("verbose", false, "Enable debug logging")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Internet Gateway Supervisor\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *verbose {
		log.SetVerbose(true)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmdRunner := runner.New()
	controller := reroute.New(ctx, cfg, cmdRunner)

	listener := ingest.New(controller.Events(), controller.OnAlive)
	if err := listener.Start(); err != nil {
		log.Fatalf("failed to bind syslog endpoint: %v", err)
	}
	go listener.Run(ctx)

	var opsServer *ops.Server
	if cfg.Status != nil && cfg.Status.ListenAddr != "" {
		opsServer = ops.NewServer(cfg.Status.ListenAddr, func() ops.Snapshot {
			return toOpsSnapshot(controller.Snapshot())
		})
		go func() {
			if err := opsServer.Start(); err != nil {
				log.Errorf("status API error: %v", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Infof("received signal %v, shutting down", sig)

	cancel()
	if err := listener.Stop(); err != nil {
		log.Warnf("error closing syslog endpoint: %v", err)
	}
	if opsServer != nil {
		if err := opsServer.Stop(); err != nil {
			log.Warnf("error stopping status API: %v", err)
		}
	}

	log.Infof("shutdown complete")
}

func toOpsSnapshot(s reroute.Snapshot) ops.Snapshot {
	out := ops.Snapshot{
		Interfaces:       make([]ops.InterfaceStatus, len(s.Interfaces)),
		LastTopologyHash: s.LastTopologyHash,
		IsRerouting:      s.IsRerouting,
		ReroutePending:   s.ReroutePending,
	}
	for i, ifc := range s.Interfaces {
		out.Interfaces[i] = ops.InterfaceStatus{
			Name:        ifc.Name,
			Weight:      ifc.Weight,
			Connected:   ifc.Connected,
			LocalIP:     ifc.LocalIP,
			CIDR:        ifc.CIDR,
			GatewaySpec: ifc.GatewaySpec,
		}
	}
	return out
}
