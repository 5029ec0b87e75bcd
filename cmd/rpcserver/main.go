/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command rpcserver is the composition root: it loads configuration,
// wires the registry, stats and engine, and runs until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github/sabouaram/ucall/engine"
	liblog "github/sabouaram/ucall/logger"
	"github/sabouaram/ucall/protocol"
	"github/sabouaram/ucall/registry"
	"github/sabouaram/ucall/stats"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "rpcserver",
		Short: "multi-protocol RPC server core",
		RunE:  run,
	}

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.rpcserver.yaml)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*engine.Config, error) {
	v := viper.New()
	v.SetConfigName("rpcserver")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")
	v.SetEnvPrefix("RPCSERVER")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	cfg := engine.Default()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	} else if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := liblog.New(cmd.Context())
	funcLog := func() liblog.Logger { return log }

	reg := registry.New(cfg.MaxCallbacks)
	registerHandlers(reg)

	st := stats.New(prometheus.DefaultRegisterer)

	srv, err := engine.New(cfg, reg, st, funcLog)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("starting server", map[string]any{"protocol": string(cfg.Protocol), "addr": fmt.Sprintf("%s:%d", cfg.Hostname, cfg.Port)})

	return srv.Run(ctx)
}

// registerHandlers installs the built-in handlers every protocol variant
// exposes: a liveness probe reachable as a JSON-RPC/raw-TCP method
// ("ping") and, when running in REST mode, its URL-template twin.
func registerHandlers(reg *registry.Registry) {
	ping := func(call *registry.Call, tag any) {
		_ = call.ReplyContent([]byte(`"pong"`))
	}

	reg.Register("ping", protocol.Call, ping, nil)
	reg.Register("/ping", protocol.Get, ping, nil)
}
