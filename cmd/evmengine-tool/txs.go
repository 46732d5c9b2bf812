// See the file LICENSE for licensing terms.

package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/icevm/execution-core/internal/kv"
)

// pendingTx is one line of a tx batch file: a tx kind tag and its raw
// wire bytes, queued for submission in file order.
type pendingTx struct {
	kind kv.TxKind
	raw  []byte
}

// loadTxBatch reads a newline-delimited batch file. Each non-blank,
// non-comment ("#"-prefixed) line is "ic:<hex>" or "eth:<hex>", matching
// the two envelope kinds submit_tx_in accepts.
func loadTxBatch(path string) ([]pendingTx, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tx batch file: %w", err)
	}
	defer f.Close()

	var out []pendingTx
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kindTag, hexPart, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: expected \"ic:<hex>\" or \"eth:<hex>\"", lineNo)
		}
		var kind kv.TxKind
		switch kindTag {
		case "ic":
			kind = kv.IcSynthetic
		case "eth":
			kind = kv.EthSigned
		default:
			return nil, fmt.Errorf("line %d: unrecognized tx kind %q", lineNo, kindTag)
		}
		raw, err := hex.DecodeString(strings.TrimPrefix(hexPart, "0x"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, pendingTx{kind: kind, raw: raw})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan tx batch file: %w", err)
	}
	return out, nil
}
