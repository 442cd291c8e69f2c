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
	"time"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/wsfabric/internal/logger"
	"github.com/sage-x-project/wsfabric/pkg/bridge"
	"github.com/sage-x-project/wsfabric/pkg/codec"
)

var (
	sendHost     string
	sendPassword string
	sendBinary   bool
	sendRoute    string
	sendPayload  string
	sendTimeout  time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a single request and print the response",
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendHost, "host", "ws://localhost:8080", "wsnode address")
	sendCmd.Flags().StringVar(&sendPassword, "password", "", "packet encryption password, empty disables encryption")
	sendCmd.Flags().BoolVar(&sendBinary, "binary", false, "frame encrypted packets as binary instead of base64 text")
	sendCmd.Flags().StringVar(&sendRoute, "route", "", "route to call")
	sendCmd.Flags().StringVar(&sendPayload, "message", "{}", "JSON-encoded request payload")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 8*time.Second, "request deadline")
	_ = sendCmd.MarkFlagRequired("route")
}

func runSend(cmd *cobra.Command, args []string) error {
	var message interface{}
	if err := json.Unmarshal([]byte(sendPayload), &message); err != nil {
		return fmt.Errorf("parsing --message as JSON: %w", err)
	}

	log := logger.Default()
	client := bridge.New(bridge.Config{
		Host:     sendHost,
		Password: sendPassword,
		Binary:   sendBinary,
		Timeout:  sendTimeout,
	}, bridge.Callbacks{}, log)

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connecting to %s: %w", sendHost, err)
	}
	defer client.Disconnect()

	done := make(chan codec.ResponseEnvelope, 1)
	failed := make(chan codec.ResponseEnvelope, 1)
	client.Request(sendRoute, message,
		func(env codec.ResponseEnvelope, _ interface{}) { done <- env },
		func(env codec.ResponseEnvelope, _ interface{}) { failed <- env },
		nil,
	)

	select {
	case env := <-done:
		out, _ := json.MarshalIndent(env, "", "  ")
		fmt.Println(string(out))
	case env := <-failed:
		out, _ := json.MarshalIndent(env, "", "  ")
		fmt.Println(string(out))
		return fmt.Errorf("request failed with code %d", env.Code)
	case <-time.After(sendTimeout + time.Second):
		return fmt.Errorf("no response within %s", sendTimeout+time.Second)
	}

	return nil
}
