// See the file LICENSE for licensing terms.

package main

import (
	"fmt"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

// toolConfig is the resolved set of knobs for one "run" invocation:
// genesis file, tx batch file, per-block/per-run caps, and log format.
type toolConfig struct {
	genesisPath string
	txBatchPath string
	maxTxs      int
	maxBlocks   int
	jsonLog     bool
}

// mirrorPFlags re-declares the run command's urfave/cli flags on a pflag
// FlagSet populated from the already-parsed cli.Context, so viper can
// layer a --config file's values underneath them at the stated
// flag > config-file > default precedence, the same layered-config shape
// the teacher's devnet tooling gets from altsrc elsewhere in the pack.
func mirrorPFlags(ctx *cli.Context) *pflag.FlagSet {
	set := pflag.NewFlagSet("evmengine-tool run", pflag.ContinueOnError)
	set.String("genesis", ctx.String("genesis"), "")
	set.String("txs", ctx.String("txs"), "")
	set.Int("max-txs", ctx.Int("max-txs"), "")
	set.Int("max-blocks", ctx.Int("max-blocks"), "")
	set.Bool("json-log", ctx.Bool("json-log"), "")
	_ = set.Parse(nil)
	for _, name := range []string{"genesis", "txs", "max-txs", "max-blocks", "json-log"} {
		if ctx.IsSet(name) {
			set.Lookup(name).Changed = true
		}
	}
	return set
}

func loadToolConfig(ctx *cli.Context) (toolConfig, error) {
	set := mirrorPFlags(ctx)

	v := viper.New()
	v.SetEnvPrefix("EVMENGINE")
	v.AutomaticEnv()
	if err := v.BindPFlags(set); err != nil {
		return toolConfig{}, fmt.Errorf("bind flags: %w", err)
	}
	if cfgPath := ctx.String("config"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return toolConfig{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := toolConfig{
		genesisPath: v.GetString("genesis"),
		txBatchPath: v.GetString("txs"),
		maxTxs:      cast.ToInt(v.Get("max-txs")),
		maxBlocks:   cast.ToInt(v.Get("max-blocks")),
		jsonLog:     v.GetBool("json-log"),
	}
	if cfg.genesisPath == "" {
		return cfg, fmt.Errorf("--genesis is required (flag, env EVMENGINE_GENESIS, or --config file)")
	}
	if cfg.maxTxs <= 0 {
		cfg.maxTxs = 200
	}
	if cfg.maxBlocks <= 0 {
		cfg.maxBlocks = 1000
	}
	return cfg, nil
}
