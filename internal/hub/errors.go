package hub

import "errors"

var (
	// ErrQuoteUnavailable 表示询价请求失败或响应不完整。单次失败即为
	// 本次尝试的终局，不做重试。
	ErrQuoteUnavailable = errors.New("hub: 询价不可用")

	// ErrSubmissionRejected 表示成交提交被拒绝或响应缺少交易哈希。
	ErrSubmissionRejected = errors.New("hub: 成交提交被拒绝")
)
