package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"hub-router/internal/analytics"
	"hub-router/internal/approval"
	"hub-router/internal/chain"
	"hub-router/internal/config"
	"hub-router/internal/hub"
	"hub-router/internal/log"
	"hub-router/internal/route"
	"hub-router/internal/signer"
	"hub-router/internal/trade"
)

func main() {
	var (
		configPath string
		srcToken   string
		destToken  string
		srcAmount  string
		minOut     string
		bonusRoute bool
	)
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.StringVar(&srcToken, "src", "", "卖出 token 地址，留空表示链原生资产")
	flag.StringVar(&destToken, "dest", "", "买入 token 地址")
	flag.StringVar(&srcAmount, "amount", "", "最大卖出数量（最小单位整数）")
	flag.StringVar(&minOut, "min-out", "", "可接受的最小买入数量（最小单位整数）")
	flag.BoolVar(&bonusRoute, "bonus-route", false, "回退路径是否找到了优化路由")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	recorder := analytics.NewRecorder(cfg.Analytics, logger)
	defer recorder.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, recorder, logger, tradeArgs{
		srcToken:   srcToken,
		destToken:  destToken,
		srcAmount:  srcAmount,
		minOut:     minOut,
		bonusRoute: bonusRoute,
	}); err != nil {
		logger.Error("执行失败", zap.Error(err))
		os.Exit(1)
	}
}

type tradeArgs struct {
	srcToken   string
	destToken  string
	srcAmount  string
	minOut     string
	bonusRoute bool
}

func run(ctx context.Context, cfg *config.Config, recorder *analytics.Recorder, logger *zap.Logger, args tradeArgs) error {
	localSigner, err := signer.NewLocalSigner(cfg.Wallet.PrivateKey)
	if err != nil {
		return err
	}
	account := localSigner.Address()
	recorder.OnWalletConnected(account.Hex())
	recorder.OnSrcToken(args.srcToken)
	recorder.OnDstToken(args.destToken)
	recorder.OnSrcAmount(args.srcAmount)

	rpc, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		return fmt.Errorf("连接链上 RPC 失败: %w", err)
	}
	defer rpc.Close()

	hubClient, err := hub.NewClient(cfg.Hub, recorder, logger)
	if err != nil {
		return err
	}

	poller := chain.NewPoller(rpc, cfg.Confirm, logger)
	orch := trade.NewOrchestrator(trade.Deps{
		Quotes:    hubClient,
		Engine:    route.NewEngine(recorder, logger),
		Signer:    signer.NewCoordinator(localSigner, recorder, logger),
		Submitter: hubClient,
		Poller:    poller,
	}, cfg.Routing, recorder, logger)

	intent := trade.TradeIntent{
		SrcToken:      common.HexToAddress(args.srcToken),
		DestToken:     common.HexToAddress(args.destToken),
		MaxSrcAmount:  args.srcAmount,
		MinDestAmount: args.minOut,
		Account:       account,
	}

	if intent.SrcToken != (common.Address{}) {
		if err := ensureApproval(ctx, cfg, rpc, poller, localSigner, orch, recorder, logger, intent, args.bonusRoute); err != nil {
			return err
		}
	}

	confirmed, err := orch.Execute(ctx, intent)
	switch {
	case errors.Is(err, trade.ErrNotAttempted):
		logger.Info("撮合通道未启用，请改走链上聚合器")
		return nil
	case errors.Is(err, trade.ErrQuoteBelowMinimum):
		logger.Info("撮合报价不划算，请改走链上聚合器", zap.Error(err))
		return nil
	case errors.Is(err, trade.ErrConfirmationTimedOut):
		logger.Warn("交易结局未知，请稍后自行核对链上状态", zap.Error(err))
		return err
	case err != nil:
		return err
	}

	logger.Info("交易完成",
		zap.String("tx_hash", confirmed.TxHash.Hex()),
		zap.String("out_amount", confirmed.OutAmount),
	)
	return nil
}

// ensureApproval 在发起交易前确保卖出 token 的授权额度到位。
func ensureApproval(
	ctx context.Context,
	cfg *config.Config,
	rpc *ethclient.Client,
	poller *chain.Poller,
	localSigner *signer.LocalSigner,
	orch *trade.Orchestrator,
	recorder *analytics.Recorder,
	logger *zap.Logger,
	intent trade.TradeIntent,
	bonusRoute bool,
) error {
	amount, ok := new(big.Int).SetString(intent.MaxSrcAmount, 10)
	if !ok {
		return fmt.Errorf("卖出数量非法: %q", intent.MaxSrcAmount)
	}

	backend := chain.NewERC20Backend(rpc, localSigner.Key(), big.NewInt(cfg.Hub.ChainID), logger)
	manager := approval.NewManager(backend, orch, approval.Addresses{
		PermitContract: common.HexToAddress(cfg.Approval.PermitContract),
		ProxyRouter:    common.HexToAddress(cfg.Approval.ProxyRouter),
		SwapRouter:     common.HexToAddress(cfg.Approval.SwapRouter),
	}, backend.Owner(), recorder, logger)

	result := manager.Approve(ctx, approval.Request{
		Token:      intent.SrcToken,
		Amount:     amount,
		BonusRoute: bonusRoute,
	})
	switch result.Status {
	case approval.StatusFailed:
		return fmt.Errorf("授权失败: %w", result.Err)
	case approval.StatusSkipped:
		logger.Debug("无需授权", zap.String("state", result.State.String()))
		return nil
	}

	outcome, err := poller.Wait(ctx, result.TxHash)
	if err != nil {
		return fmt.Errorf("等待授权确认失败: %w", err)
	}
	if outcome.TimedOut {
		return fmt.Errorf("授权交易 %s 在确认窗口内未被观察到", result.TxHash.Hex())
	}
	manager.ConfirmPending(intent.SrcToken, result.Spender)

	logger.Info("授权已确认", zap.String("tx_hash", result.TxHash.Hex()))
	return nil
}
