// coshelld serves the CANopen text-command gateway over TCP.
//
// Usage:
//
//	coshelld [batch-file]
//
// The gateway is configured by COSHELL_* environment variables, optionally read from ./.env.
// When a batch file is given its commands run before the server starts accepting clients.
//
// COSHELL_VIRTUAL_NODES lists the hex node ids simulated by the virtual driver, e.g. "05,06".
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/arloliu/go-coshell/bus"
	"github.com/arloliu/go-coshell/bus/slcan"
	"github.com/arloliu/go-coshell/bus/virtual"
	"github.com/arloliu/go-coshell/gateway"
	"github.com/arloliu/go-coshell/logger"
)

const envVirtualNodes = "COSHELL_VIRTUAL_NODES"

var defaultIdentity = virtual.Identity{
	DeviceType:  0x00020192,
	VendorID:    0x0000029c,
	ProductCode: 0x00000201,
	Revision:    0x00010003,
}

func virtualOptions(nodes string) ([]virtual.Option, error) {
	var opts []virtual.Option
	for _, field := range strings.Split(nodes, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		id, err := strconv.ParseUint(field, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%s: invalid node id %q", envVirtualNodes, field)
		}
		opts = append(opts, virtual.WithNode(uint8(id), defaultIdentity))
	}

	return opts, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := gateway.LoadEnvOptions()
	if err != nil {
		logger.Error("failed to load environment", "error", err)
		return
	}

	l := logger.NewSlog(logger.ParseLevel(os.Getenv("LOG_LEVEL")), false)
	logger.SetLogger(l)

	nodes := os.Getenv(envVirtualNodes)
	if nodes == "" {
		nodes = "05"
	}
	virtualOpts, err := virtualOptions(nodes)
	if err != nil {
		l.Error("failed to configure virtual driver", "error", err)
		return
	}

	registry := bus.NewRegistry()
	registry.Register(virtual.DriverName, virtual.Opener(virtualOpts...))
	registry.Register(slcan.DriverName, slcan.Opener())

	opts = append(opts, gateway.WithDriverRegistry(registry), gateway.WithLogger(l))
	cfg, err := gateway.NewConfig(opts...)
	if err != nil {
		l.Error("failed to create gateway config", "error", err)
		return
	}

	gw := gateway.New(ctx, cfg)
	defer func() {
		if err := gw.Close(); err != nil {
			l.Error("failed to close gateway", "error", err)
		}
	}()

	if len(os.Args) > 1 {
		if err := gw.RunBatch(ctx, os.Args[1]); err != nil {
			l.Error("batch file failed", "path", os.Args[1], "error", err)
			return
		}
	}

	srv := gateway.NewServer(ctx, gw)
	if err := srv.Open(); err != nil {
		l.Error("failed to open server", "error", err)
		return
	}

	l.Info("gateway ready", "address", srv.Addr().String(), "drivers", registry.Drivers())
	<-ctx.Done()
	l.Info("shutting down")

	if err := srv.Close(); err != nil {
		l.Error("failed to close server", "error", err)
	}
}
