// See the file LICENSE for licensing terms.

// evmengine-tool is a standalone devnet harness for the execution engine:
// it constructs an engine from a genesis file, replays a batch of raw
// transactions, and drives produce_block to completion outside any host
// canister, for local development and scenario scripting.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/icevm/execution-core/log"
)

const clientIdentifier = "evmengine-tool"

var app = &cli.App{
	Name:    clientIdentifier,
	Usage:   "execution-engine devnet harness: replay transactions, produce blocks, print a run report",
	Version: "0.1.0",
	Commands: []*cli.Command{
		runCommand,
		genesisTemplateCommand,
	},
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "construct an engine from genesis, submit a tx batch, and produce blocks until idle",
	Action:    runDevnet,
	ArgsUsage: " ",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "optional YAML/JSON/TOML config file layering defaults under these flags"},
		&cli.StringFlag{Name: "genesis", Usage: "genesis file path: {\"balances\":[{\"address\":\"0x..\",\"amount\":\"..\"}]}"},
		&cli.StringFlag{Name: "txs", Usage: "tx batch file: one \"ic:<hex>\" or \"eth:<hex>\" line per transaction"},
		&cli.IntFlag{Name: "max-txs", Usage: "max transactions per produced block", Value: 200},
		&cli.IntFlag{Name: "max-blocks", Usage: "stop after this many blocks even if the mempool is not drained", Value: 1000},
		&cli.BoolFlag{Name: "json-log", Usage: "emit structured JSON logs instead of a terminal-formatted stream"},
		&cli.StringFlag{Name: "log-level", Usage: "trace|debug|info|warn|error|crit", Value: "info"},
	},
}

var genesisTemplateCommand = &cli.Command{
	Name:   "genesis-template",
	Usage:  "print a minimal genesis file to stdout",
	Action: printGenesisTemplate,
}

func printGenesisTemplate(_ *cli.Context) error {
	fmt.Println(`{
  "balances": [
    {"address": "0x1000000000000000000000000000000000000001", "amount": "1000000000000000000000"}
  ]
}`)
	return nil
}

// initLogging sets the default logger per the json-log/log-level flags,
// matching the teacher's terminal-vs-JSON handler split in cmd/evm-node.
func initLogging(jsonLog bool, levelStr string) {
	level, err := log.LvlFromString(levelStr)
	if err != nil {
		level = log.LevelInfo
	}

	if jsonLog {
		log.SetDefault(log.NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return
	}

	useColor := isatty.IsTerminal(os.Stderr.Fd())
	var writer io.Writer = os.Stderr
	if useColor {
		writer = colorable.NewColorableStderr()
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandler(writer, useColor)))
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
