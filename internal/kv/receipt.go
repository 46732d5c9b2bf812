// See the file LICENSE for licensing terms.

package kv

import (
	"encoding/binary"
	"fmt"
)

const (
	MaxLogsPerTx   = 64
	MaxLogTopics   = 4
	MaxLogData     = 8192
	MaxReturnData  = 32768
)

// LogEntry is one EVM log emitted during a successful execution.
type LogEntry struct {
	Address [20]byte
	Topics  [][32]byte
	Data    []byte
}

func (l LogEntry) Encode() []byte {
	buf := make([]byte, 0, 20+1+len(l.Topics)*32+4+len(l.Data))
	buf = append(buf, l.Address[:]...)
	buf = append(buf, byte(len(l.Topics)))
	for _, t := range l.Topics {
		buf = append(buf, t[:]...)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(l.Data)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, l.Data...)
	return buf
}

func decodeLogEntry(b []byte) (LogEntry, int, bool) {
	if len(b) < 21 {
		return LogEntry{}, 0, false
	}
	var l LogEntry
	copy(l.Address[:], b[0:20])
	n := int(b[20])
	if n > MaxLogTopics {
		return LogEntry{}, 0, false
	}
	off := 21
	for i := 0; i < n; i++ {
		if len(b) < off+32 {
			return LogEntry{}, 0, false
		}
		var t [32]byte
		copy(t[:], b[off:off+32])
		l.Topics = append(l.Topics, t)
		off += 32
	}
	if len(b) < off+4 {
		return LogEntry{}, 0, false
	}
	dataLen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if dataLen > MaxLogData || len(b) < off+dataLen {
		return LogEntry{}, 0, false
	}
	l.Data = append([]byte(nil), b[off:off+dataLen]...)
	off += dataLen
	return l, off, true
}

// ReceiptLike is the post-execution record committed for every executed tx.
type ReceiptLike struct {
	TxID               TxID
	BlockNumber        uint64
	TxIndex            uint32
	Status             uint8
	GasUsed            uint64
	EffectiveGasPrice  uint64
	L1DataFee          uint64
	OperatorFee        uint64
	TotalFee           uint64
	ReturnData         []byte
	ReturnDataHash     [32]byte
	ContractAddress    *[20]byte
	Logs               []LogEntry
}

func (r ReceiptLike) Encode() []byte {
	buf := make([]byte, 0, 256+len(r.ReturnData))
	buf = append(buf, r.TxID[:]...)
	var u64 [8]byte
	binary.BigEndian.PutUint64(u64[:], r.BlockNumber)
	buf = append(buf, u64[:]...)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], r.TxIndex)
	buf = append(buf, u32[:]...)
	buf = append(buf, r.Status)
	binary.BigEndian.PutUint64(u64[:], r.GasUsed)
	buf = append(buf, u64[:]...)
	binary.BigEndian.PutUint64(u64[:], r.EffectiveGasPrice)
	buf = append(buf, u64[:]...)
	binary.BigEndian.PutUint64(u64[:], r.L1DataFee)
	buf = append(buf, u64[:]...)
	binary.BigEndian.PutUint64(u64[:], r.OperatorFee)
	buf = append(buf, u64[:]...)
	binary.BigEndian.PutUint64(u64[:], r.TotalFee)
	buf = append(buf, u64[:]...)
	binary.BigEndian.PutUint32(u32[:], uint32(len(r.ReturnData)))
	buf = append(buf, u32[:]...)
	buf = append(buf, r.ReturnData...)
	buf = append(buf, r.ReturnDataHash[:]...)
	if r.ContractAddress != nil {
		buf = append(buf, 1)
		buf = append(buf, r.ContractAddress[:]...)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, byte(len(r.Logs)))
	for _, l := range r.Logs {
		buf = append(buf, l.Encode()...)
	}
	return buf
}

func DecodeReceiptLike(b []byte) (ReceiptLike, bool) {
	var r ReceiptLike
	if len(b) < 32+8+4+1+8*5+4+32+1+1 {
		return EmptyReceipt(), false
	}
	off := 0
	copy(r.TxID[:], b[off:off+32])
	off += 32
	r.BlockNumber = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	r.TxIndex = binary.BigEndian.Uint32(b[off : off+4])
	off += 4
	r.Status = b[off]
	off++
	r.GasUsed = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	r.EffectiveGasPrice = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	r.L1DataFee = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	r.OperatorFee = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	r.TotalFee = binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	if len(b) < off+4 {
		return EmptyReceipt(), false
	}
	retLen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if retLen > MaxReturnData || len(b) < off+retLen {
		return EmptyReceipt(), false
	}
	r.ReturnData = append([]byte(nil), b[off:off+retLen]...)
	off += retLen
	if len(b) < off+32+1 {
		return EmptyReceipt(), false
	}
	copy(r.ReturnDataHash[:], b[off:off+32])
	off += 32
	hasAddr := b[off]
	off++
	if hasAddr == 1 {
		if len(b) < off+20 {
			return EmptyReceipt(), false
		}
		var addr [20]byte
		copy(addr[:], b[off:off+20])
		r.ContractAddress = &addr
		off += 20
	}
	if len(b) < off+1 {
		return EmptyReceipt(), false
	}
	numLogs := int(b[off])
	off++
	if numLogs > MaxLogsPerTx {
		return EmptyReceipt(), false
	}
	for i := 0; i < numLogs; i++ {
		l, n, ok := decodeLogEntry(b[off:])
		if !ok {
			return EmptyReceipt(), false
		}
		r.Logs = append(r.Logs, l)
		off += n
	}
	return r, true
}

// EmptyReceipt is the fallback value returned when a receipt blob fails to
// decode (corruption path); status=0, no logs.
func EmptyReceipt() ReceiptLike {
	return ReceiptLike{Status: 0}
}

func (r ReceiptLike) String() string {
	return fmt.Sprintf("receipt(tx=%s status=%d gas=%d)", r.TxID, r.Status, r.GasUsed)
}
