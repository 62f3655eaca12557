// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command ledger runs a device storing synced pages, and the cloud they
// sync through.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/attic-labs/kingpin"
	"github.com/sirupsen/logrus"

	"github.com/dolthub/ledger/libraries/ledgerconf"
)

// handler runs a parsed command. Output meant for the user goes to |out|.
type handler func(ctx context.Context, cfg *ledgerconf.Config, out io.Writer) error

// command declares its flags and arguments on |app| and returns the handler
// running it.
type command func(app *kingpin.Application) (*kingpin.CmdClause, handler)

var commands = []command{
	serveCmd,
	cloudServerCmd,
	pagesCmd,
	headsCmd,
	logCmd,
	getCmd,
	lsCmd,
	putCmd,
	deleteCmd,
	gcCmd,
	keygenCmd,
	configCmd,
}

// newApp declares every command on a new application.
func newApp() (*kingpin.Application, map[string]handler) {
	app := kingpin.New("ledger", "A synced, versioned key-value store.")
	app.HelpFlag.Short('h')
	handlers := map[string]handler{}
	for _, cmd := range commands {
		clause, h := cmd(app)
		handlers[clause.FullCommand()] = h
	}
	return app, handlers
}

func main() {
	kingpin.EnableFileExpansion = false
	app, handlers := newApp()

	configPath := app.Flag("config", "YAML configuration file").Short('c').String()
	logLevel := app.Flag("log-level", "overrides log.level").String()
	dataDir := app.Flag("data-dir", "overrides storage.path").String()

	input := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := loadConfig(*configPath)
	app.FatalIfError(err, "")
	if *logLevel != "" {
		cfg.Log.Level = strings.ToLower(*logLevel)
	}
	if *dataDir != "" {
		cfg.Storage.Path = *dataDir
	}
	app.FatalIfError(cfg.Log.Apply(logrus.StandardLogger()), "")

	h := handlers[input]
	if h == nil {
		app.Fatalf("unknown command %q", input)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := h(ctx, cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ledger: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(path string) (*ledgerconf.Config, error) {
	if path == "" {
		return ledgerconf.Default(), nil
	}
	return ledgerconf.FromFile(path)
}

// configCmd prints the active configuration.
func configCmd(app *kingpin.Application) (*kingpin.CmdClause, handler) {
	clause := app.Command("config", "Prints the active configuration")
	return clause, func(ctx context.Context, cfg *ledgerconf.Config, out io.Writer) error {
		_, err := io.WriteString(out, cfg.String())
		return err
	}
}
