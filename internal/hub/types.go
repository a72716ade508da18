package hub

import "encoding/json"

// QuoteParams 描述一次询价的交易意图。金额一律使用十进制整数字符串
// （token 最小单位），避免浮点误差。
type QuoteParams struct {
	SrcToken      string
	DestToken     string
	MaxSrcAmount  string
	MinDestAmount string
	Account       string
}

// Quote 为撮合服务返回的报价，仅在单次交易尝试内有效。
type Quote struct {
	OutAmount       string
	SerializedOrder string
	CallData        string
	PermitData      json.RawMessage
}

// SwapParams 描述提交成交所需的全部内容。
type SwapParams struct {
	Account         string
	SrcToken        string
	DestToken       string
	MaxSrcAmount    string
	MinDestAmount   string
	Signature       string
	SerializedOrder string
	CallData        string
}

type quoteRequest struct {
	InToken   string `json:"inToken"`
	OutToken  string `json:"outToken"`
	InAmount  string `json:"inAmount"`
	OutAmount string `json:"outAmount"`
	User      string `json:"user"`
}

type quoteResponse struct {
	OutAmount       string          `json:"outAmount"`
	SerializedOrder string          `json:"serializedOrder"`
	CallData        string          `json:"callData"`
	PermitData      json.RawMessage `json:"permitData"`
}

type swapRequest struct {
	InToken         string `json:"inToken"`
	OutToken        string `json:"outToken"`
	InAmount        string `json:"inAmount"`
	OutAmount       string `json:"outAmount"`
	User            string `json:"user"`
	Signature       string `json:"signature"`
	SerializedOrder string `json:"serializedOrder"`
	FillerCallData  string `json:"fillerCallData"`
}

type swapResponse struct {
	TxHash string `json:"txHash"`
}
