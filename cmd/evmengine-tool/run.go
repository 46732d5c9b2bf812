// See the file LICENSE for licensing terms.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/icevm/execution-core/internal/engine"
	"github.com/icevm/execution-core/log"
)

// runDevnet drives one batch through a freshly constructed engine: submit
// every tx in the batch file, then produce blocks until the mempool runs
// dry or max-blocks is reached, reporting each step's result. The engine
// lives only for this process's lifetime; there is no persistence layer
// outside a host canister's orthogonal store, which this tool does not
// simulate.
func runDevnet(ctx *cli.Context) error {
	cfg, err := loadToolConfig(ctx)
	if err != nil {
		return err
	}
	initLogging(cfg.jsonLog, ctx.String("log-level"))

	genesis, err := loadGenesis(cfg.genesisPath)
	if err != nil {
		return err
	}
	eng, err := engine.New(genesis)
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}
	log.Info("evmengine-tool: engine constructed", "genesis_accounts", len(genesis))

	var submitted, rejected int
	if cfg.txBatchPath != "" {
		batch, err := loadTxBatch(cfg.txBatchPath)
		if err != nil {
			return err
		}
		for i, tx := range batch {
			if _, err := eng.SubmitTxIn(tx.raw, tx.kind, nil, nil); err != nil {
				log.Warn("evmengine-tool: tx rejected", "index", i, "err", err)
				rejected++
				continue
			}
			submitted++
		}
		log.Info("evmengine-tool: tx batch submitted", "submitted", submitted, "rejected", rejected)
	}

	nowMs := uint64(0)
	blocksProduced := 0
	for blocksProduced < cfg.maxBlocks {
		nowMs += uint64(eng.Chain.MiningIntervalMs)
		res, err := eng.ProduceBlock(cfg.maxTxs, nowMs)
		if err != nil {
			return fmt.Errorf("produce_block: %w", err)
		}
		if res.NoOp {
			log.Info("evmengine-tool: no-op tick, mempool drained", "reason", res.Reason)
			break
		}
		log.Info("evmengine-tool: block produced", "number", res.Number, "txs", res.Txs, "gas_used", res.GasUsed, "dropped", res.Dropped)
		blocksProduced++
	}

	health := eng.Health(nowMs)
	report := map[string]any{
		"blocks_produced": blocksProduced,
		"tx_submitted":    submitted,
		"tx_rejected":     rejected,
		"health":          health,
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
