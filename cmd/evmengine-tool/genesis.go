// See the file LICENSE for licensing terms.

package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/icevm/execution-core/internal/engine"
)

// genesisFile is the on-disk shape of a devnet genesis: a flat list of
// funded addresses, matching the engine's single required init argument.
type genesisFile struct {
	Balances []struct {
		Address string `json:"address" mapstructure:"address"`
		Amount  string `json:"amount" mapstructure:"amount"`
	} `json:"balances" mapstructure:"balances"`
}

func loadGenesis(path string) ([]engine.GenesisBalance, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis file: %w", err)
	}
	var gf genesisFile
	if err := json.Unmarshal(raw, &gf); err != nil {
		return nil, fmt.Errorf("parse genesis file: %w", err)
	}
	if len(gf.Balances) == 0 {
		return nil, fmt.Errorf("genesis file %s lists no balances", path)
	}

	out := make([]engine.GenesisBalance, 0, len(gf.Balances))
	for i, b := range gf.Balances {
		addr, err := parseAddress(b.Address)
		if err != nil {
			return nil, fmt.Errorf("balances[%d].address: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(strings.TrimPrefix(b.Amount, "0x"), amountBase(b.Amount))
		if !ok {
			return nil, fmt.Errorf("balances[%d].amount: invalid integer %q", i, b.Amount)
		}
		out = append(out, engine.GenesisBalance{Address: addr, Amount: amount})
	}
	return out, nil
}

func amountBase(s string) int {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return 16
	}
	return 10
}

func parseAddress(s string) ([20]byte, error) {
	var out [20]byte
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 20 {
		return out, fmt.Errorf("want 20 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
