package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// LocalSigner 使用进程内私钥完成 EIP-712 签名，供无头运行使用。
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ TypedDataSigner = (*LocalSigner)(nil)

// NewLocalSigner 从十六进制私钥创建本地签名器。
func NewLocalSigner(hexKey string) (*LocalSigner, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signer: 解析私钥失败: %w", err)
	}
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address 返回签名账户地址。
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// Key 返回底层私钥，供链上交易签发复用。
func (s *LocalSigner) Key() *ecdsa.PrivateKey {
	return s.key
}

// SignTypedData 计算 EIP-712 摘要并签名，V 值归一化为 27/28。
func (s *LocalSigner) SignTypedData(ctx context.Context, account common.Address, data apitypes.TypedData) (string, error) {
	if account != s.address {
		return "", fmt.Errorf("signer: 账户 %s 与本地私钥不匹配", account.Hex())
	}

	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return "", fmt.Errorf("signer: 计算签名摘要失败: %w", err)
	}

	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return "", fmt.Errorf("signer: 签名失败: %w", err)
	}
	sig[64] += 27

	return hexutil.Encode(sig), nil
}
