package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// ContractBackend 是 ERC20 读写所需的链上能力子集，*ethclient.Client
// 原生满足该接口。
type ContractBackend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// 手工拼接 calldata，不引入 ABI 绑定层。
var (
	allowanceSelector = crypto.Keccak256([]byte("allowance(address,address)"))[:4]
	approveSelector   = crypto.Keccak256([]byte("approve(address,uint256)"))[:4]
)

// ERC20Backend 以原始 calldata 实现授权所需的 ERC20 读写。
type ERC20Backend struct {
	backend ContractBackend
	key     *ecdsa.PrivateKey
	owner   common.Address
	chainID *big.Int
	logger  *zap.Logger
}

// NewERC20Backend 创建 ERC20 后端。key 用于签发授权交易。
func NewERC20Backend(backend ContractBackend, key *ecdsa.PrivateKey, chainID *big.Int, logger *zap.Logger) *ERC20Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ERC20Backend{
		backend: backend,
		key:     key,
		owner:   crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		logger:  logger,
	}
}

// Owner 返回授权交易的发起账户。
func (b *ERC20Backend) Owner() common.Address {
	return b.owner
}

// Allowance 查询 owner 对 spender 的当前授权额度。
func (b *ERC20Backend) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	data := make([]byte, 0, 4+64)
	data = append(data, allowanceSelector...)
	data = append(data, common.LeftPadBytes(owner.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)

	out, err := b.backend.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: 查询授权额度失败: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("chain: 授权额度响应为空")
	}

	return new(big.Int).SetBytes(out), nil
}

// EstimateApprove 估算一笔授权交易的 gas 用量。
func (b *ERC20Backend) EstimateApprove(ctx context.Context, token, spender common.Address, amount *big.Int) (uint64, error) {
	gas, err := b.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: b.owner,
		To:   &token,
		Data: approveCalldata(spender, amount),
	})
	if err != nil {
		return 0, fmt.Errorf("chain: 估算授权 gas 失败: %w", err)
	}
	return gas, nil
}

// SubmitApprove 签名并发送授权交易，返回交易哈希。
func (b *ERC20Backend) SubmitApprove(ctx context.Context, token, spender common.Address, amount *big.Int, gasLimit uint64) (common.Hash, error) {
	nonce, err := b.backend.PendingNonceAt(ctx, b.owner)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: 获取 nonce 失败: %w", err)
	}

	gasPrice, err := b.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: 获取 gas 价格失败: %w", err)
	}

	tx := types.NewTransaction(nonce, token, big.NewInt(0), gasLimit, gasPrice, approveCalldata(spender, amount))
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(b.chainID), b.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain: 签名授权交易失败: %w", err)
	}

	if err := b.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("chain: 发送授权交易失败: %w", err)
	}

	b.logger.Info("授权交易已发送",
		zap.String("token", token.Hex()),
		zap.String("spender", spender.Hex()),
		zap.String("tx_hash", signed.Hash().Hex()),
	)

	return signed.Hash(), nil
}

func approveCalldata(spender common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 4+64)
	data = append(data, approveSelector...)
	data = append(data, common.LeftPadBytes(spender.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}
