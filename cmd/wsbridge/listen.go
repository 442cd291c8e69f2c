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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/wsfabric/internal/logger"
	"github.com/sage-x-project/wsfabric/pkg/bridge"
)

var (
	listenHost     string
	listenPassword string
	listenBinary   bool
	listenRoute    string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Subscribe to a route and print pushed messages until interrupted",
	RunE:  runListen,
}

func init() {
	listenCmd.Flags().StringVar(&listenHost, "host", "ws://localhost:8080", "wsnode address")
	listenCmd.Flags().StringVar(&listenPassword, "password", "", "packet encryption password, empty disables encryption")
	listenCmd.Flags().BoolVar(&listenBinary, "binary", false, "frame encrypted packets as binary instead of base64 text")
	listenCmd.Flags().StringVar(&listenRoute, "route", "", "route to subscribe to")
	_ = listenCmd.MarkFlagRequired("route")
}

func runListen(cmd *cobra.Command, args []string) error {
	log := logger.Default()
	client := bridge.New(bridge.Config{
		Host:     listenHost,
		Password: listenPassword,
		Binary:   listenBinary,
	}, bridge.Callbacks{
		OnOpen:  func() { log.Info("connected", logger.String("host", listenHost)) },
		OnClose: func(code int, reason string) { log.Warn("closed", logger.Int("code", code), logger.String("reason", reason)) },
	}, log)

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connecting to %s: %w", listenHost, err)
	}
	defer client.Disconnect()

	client.On(listenRoute, false, func(message interface{}) {
		out, _ := json.Marshal(message)
		fmt.Println(string(out))
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	return nil
}
