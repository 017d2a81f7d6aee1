package rpc

import (
	"encoding/json"
	"fmt"
)

type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type Response struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	ID     int64           `json:"id"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("bitcoin rpc error %d: %s", e.Code, e.Message)
}

// Transaction is the verbose getrawtransaction result. Amounts are decoded
// as json.Number so BTC values never pass through a float64.
type Transaction struct {
	Txid          string `json:"txid"`
	Hash          string `json:"hash"`
	BlockHash     string `json:"blockhash"`
	Confirmations int64  `json:"confirmations"`
	Vin           []Vin  `json:"vin"`
	Vout          []Vout `json:"vout"`
}

type Vin struct {
	Txid     string `json:"txid"`
	Vout     int    `json:"vout"`
	Coinbase string `json:"coinbase"`
	Prevout  *struct {
		ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
	} `json:"prevout"`
}

type Vout struct {
	Value        json.Number  `json:"value"`
	N            int          `json:"n"`
	ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
}

type ScriptPubKey struct {
	Address   string   `json:"address"`
	Addresses []string `json:"addresses"`
	Type      string   `json:"type"`
}

// Address returns the output address, tolerating pre-22.0 nodes that only
// populate the addresses array.
func (s ScriptPubKey) AddressValue() string {
	if s.Address != "" {
		return s.Address
	}
	if len(s.Addresses) > 0 {
		return s.Addresses[0]
	}
	return ""
}
