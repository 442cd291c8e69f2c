// wsfabric - clustered WebSocket messaging framework
// Copyright (C) 2025 wsfabric contributors
//
// This file is part of wsfabric.
//
// wsfabric is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// wsfabric is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public
// License along with wsfabric. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sage-x-project/wsfabric/internal/logger"
	"github.com/sage-x-project/wsfabric/internal/metrics"
	"github.com/sage-x-project/wsfabric/pkg/bridge"
	"github.com/sage-x-project/wsfabric/pkg/fleet"
	"github.com/sage-x-project/wsfabric/pkg/health"
	"github.com/sage-x-project/wsfabric/pkg/server"
)

var (
	flagEnvFile       string
	flagPassword      string
	flagBinary        bool
	flagCycle         time.Duration
	flagTimeout       time.Duration
	flagClusterSecret string
	flagMetricsAddr   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the message server and connect to this node's cluster peers",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagEnvFile, "env-file", "", "optional .env file to load before reading the process environment")
	serveCmd.Flags().StringVar(&flagPassword, "password", "", "packet encryption password, empty disables encryption")
	serveCmd.Flags().BoolVar(&flagBinary, "binary", false, "frame encrypted packets as binary instead of base64 text")
	serveCmd.Flags().DurationVar(&flagCycle, "cycle", 0, "supervisor sweep period (default 60s, floor 10s)")
	serveCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "session heartbeat timeout (default 180s, floor 30s and 3x cycle)")
	serveCmd.Flags().StringVar(&flagClusterSecret, "cluster-secret", "", "signing secret for inner cluster envelopes")
	serveCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", ":9090", "address for the standalone Prometheus metrics server")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.Default()

	plan, err := fleet.Load(flagEnvFile)
	if err != nil {
		return fmt.Errorf("loading fleet plan: %w", err)
	}

	ms := server.New(server.Config{
		Password:      flagPassword,
		Binary:        flagBinary,
		Cycle:         flagCycle,
		Timeout:       flagTimeout,
		ClusterSecret: flagClusterSecret,
	}, log)
	ms.Start()

	for group, nodes := range plan.NodesByGroup() {
		for _, node := range nodes {
			url := node.URL()
			if _, err := ms.Dispatcher().AddPeer(group, url, bridge.Config{Password: flagPassword, Binary: flagBinary}); err != nil {
				log.Warn("failed to connect to cluster peer", logger.String("group", group), logger.String("url", url), logger.Error(err))
			}
		}
	}

	registerExampleRoutes(ms)

	checker := health.NewChecker(ms, ms.Dispatcher())
	healthHandlers := health.NewHandlers(checker)

	mux := http.NewServeMux()
	mux.Handle("/ws", ms.Handler())
	healthHandlers.Mount(mux)

	addr := fmt.Sprintf("%s:%d", plan.Host, plan.Port)
	httpServer := &http.Server{Addr: addr, Handler: mux}

	eg, ctx := errgroup.WithContext(cmd.Context())
	eg.Go(func() error {
		var err error
		if plan.SSLs != nil {
			log.Info("wsnode listening (tls)", logger.String("addr", addr), logger.String("name", plan.Name))
			err = httpServer.ListenAndServeTLS(plan.SSLs.Cert, plan.SSLs.Key)
		} else {
			log.Info("wsnode listening", logger.String("addr", addr), logger.String("name", plan.Name))
			err = httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		log.Info("metrics server listening", logger.String("addr", flagMetricsAddr))
		if err := metrics.StartServer(flagMetricsAddr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
	case <-sigCh:
		log.Info("wsnode shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = ms.Close()

	return nil
}

// registerExampleRoutes installs the small set of demo routes every
// fresh wsnode exposes out of the box, useful for smoke-testing a
// deployment with wsbridge before wiring in application routes.
func registerExampleRoutes(ms *server.MessageServer) {
	ms.SetRouter("ping", func(s *server.Session, reqID uint64, message interface{}) (interface{}, error) {
		return "pong", nil
	})
	ms.SetRouter("whoami", func(s *server.Session, reqID uint64, message interface{}) (interface{}, error) {
		return map[string]string{"sessionId": s.ID(), "ip": s.IP(), "uid": s.UID()}, nil
	})
}
