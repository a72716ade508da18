package trade

import "errors"

var (
	// ErrNotAttempted 表示本次未尝试撮合交易（禁用、强制回退或熔断器
	// 触发），调用方应直接走链上聚合器。
	ErrNotAttempted = errors.New("trade: 未尝试撮合交易")

	// ErrAttemptInFlight 表示同一编排器已有交易尝试在进行。
	ErrAttemptInFlight = errors.New("trade: 已有交易尝试进行中")

	// ErrQuoteBelowMinimum 表示报价未通过经济性校验，撮合通道本次不可用。
	ErrQuoteBelowMinimum = errors.New("trade: 撮合报价低于可接受下限")

	// ErrHubTradeFailed 是面向用户的统一失败，具体原因见埋点记录。
	ErrHubTradeFailed = errors.New("trade: 撮合交易失败")

	// ErrConfirmationTimedOut 表示成交已提交但确认窗口内未观察到交易，
	// 结局存疑，由调用方决定后续处置。
	ErrConfirmationTimedOut = errors.New("trade: 确认超时，交易结局未知")
)
