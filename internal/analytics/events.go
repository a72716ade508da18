package analytics

import (
	"github.com/shopspring/decimal"
)

// 状态名沿用遥测端既有协议，不要随意改动。
const (
	StateWalletConnected  = "walletConnected"
	StateDisabled         = "clobDisabled"
	StateQuoteRequest     = "quoteRequest"
	StateQuoteSuccess     = "quoteSuccess"
	StateQuoteFailed      = "quoteFailed"
	StateLowAmountOut     = "clobLowAmountOut"
	StateSignatureRequest = "signatureRequest"
	StateSignatureSuccess = "signatureSuccess"
	StateSignatureFailed  = "signatureFailed"
	StateSwapRequest      = "swapRequest"
	StateSwapSuccess      = "swapSuccess"
	StateSwapFailed       = "swapFailed"
	StateApproveRequest   = "approveRequest"
	StateApproved         = "approved"
	StateApproveFailed    = "approveFailed"
)

// OnWalletConnected 记录会话使用的账户地址。
func (r *Recorder) OnWalletConnected(address string) {
	r.Record(StateWalletConnected, map[string]interface{}{
		"walletAddress": address,
	})
}

// OnSrcToken 记录本次交易的卖出 token。
func (r *Recorder) OnSrcToken(address string) {
	r.Set(map[string]interface{}{"srcTokenAddress": address})
}

// OnDstToken 记录本次交易的买入 token。
func (r *Recorder) OnDstToken(address string) {
	r.Set(map[string]interface{}{"dstTokenAddress": address})
}

// OnSrcAmount 记录本次交易的卖出数量。
func (r *Recorder) OnSrcAmount(amount string) {
	r.Set(map[string]interface{}{"srcAmount": amount})
}

// OnDisabled 记录撮合服务被配置禁用。
func (r *Recorder) OnDisabled() {
	r.Record(StateDisabled, nil)
}

// OnQuoteRequest 记录询价开始，dexAmountOut 为聚合器给出的参照输出量。
func (r *Recorder) OnQuoteRequest(dexAmountOut string) {
	r.Record(StateQuoteRequest, map[string]interface{}{
		"dexAmountOut":     dexAmountOut,
		"quoteFailedError": "",
	})
}

// OnQuoteSuccess 记录询价成功及报价内容与耗时。
func (r *Recorder) OnQuoteSuccess(clobAmountOut, serializedOrder, callData, permitData string, durationMillis int64) {
	r.Record(StateQuoteSuccess, map[string]interface{}{
		"clobAmountOut":              clobAmountOut,
		"quoteRequestDurationMillis": durationMillis,
		"isClobTrade":                r.isClobTrade(clobAmountOut),
		"serializedOrder":            serializedOrder,
		"callData":                   callData,
		"permitData":                 permitData,
	})
}

// OnQuoteFailed 记录询价失败原因。
func (r *Recorder) OnQuoteFailed(reason string) {
	r.Record(StateQuoteFailed, map[string]interface{}{
		"quoteFailedError": reason,
	})
}

// OnLowAmountOut 记录报价低于可接受下限而被经济性校验拒绝。
func (r *Recorder) OnLowAmountOut() {
	r.Record(StateLowAmountOut, nil)
}

// OnSignatureRequest 记录发起签名请求。
func (r *Recorder) OnSignatureRequest() {
	r.Record(StateSignatureRequest, nil)
}

// OnSignatureSuccess 记录签名成功。
func (r *Recorder) OnSignatureSuccess(signature string) {
	r.Record(StateSignatureSuccess, map[string]interface{}{
		"signature": signature,
	})
}

// OnSignatureFailed 记录签名失败原因。
func (r *Recorder) OnSignatureFailed(reason string) {
	r.Record(StateSignatureFailed, map[string]interface{}{
		"signatureFailedError": reason,
	})
}

// OnSwapRequest 记录提交成交请求。
func (r *Recorder) OnSwapRequest() {
	r.Record(StateSwapRequest, map[string]interface{}{
		"swapFailedError": "",
	})
}

// OnSwapSuccess 记录成交提交成功。
func (r *Recorder) OnSwapSuccess(txHash string, durationMillis int64) {
	r.Record(StateSwapSuccess, map[string]interface{}{
		"swapTxHash":                txHash,
		"swapRequestDurationMillis": durationMillis,
	})
}

// OnSwapFailed 记录成交提交失败原因。
func (r *Recorder) OnSwapFailed(reason string) {
	r.Record(StateSwapFailed, map[string]interface{}{
		"swapFailedError": reason,
	})
}

// OnApproveRequest 记录发起授权，附带被授权合约与数量。
func (r *Recorder) OnApproveRequest(spender, amount string) {
	r.Record(StateApproveRequest, map[string]interface{}{
		"approvalSpender":    spender,
		"approvalAmount":     amount,
		"approveFailedError": "",
	})
}

// OnTokenApproved 记录授权完成。
func (r *Recorder) OnTokenApproved() {
	r.Record(StateApproved, nil)
}

// OnApproveFailed 记录授权失败原因。
func (r *Recorder) OnApproveFailed(reason string) {
	r.Record(StateApproveFailed, map[string]interface{}{
		"approveFailedError": reason,
	})
}

// isClobTrade 比较撮合报价与聚合器参照输出，任一数值非法时视为否。
func (r *Recorder) isClobTrade(clobAmountOut string) bool {
	r.mu.Lock()
	dexAmountOut, _ := r.record["dexAmountOut"].(string)
	r.mu.Unlock()

	dex, err := decimal.NewFromString(dexAmountOut)
	if err != nil {
		return false
	}
	clob, err := decimal.NewFromString(clobAmountOut)
	if err != nil {
		return false
	}
	return dex.LessThan(clob)
}
