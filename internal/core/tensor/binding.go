package tensor

import (
	"github.com/ai3chain/node/internal/core/crypto/hash"
	"github.com/ai3chain/node/internal/core/crypto/merkle"
	"github.com/shopspring/decimal"
)

// MaxClaimsPerBlock 镜像 types.MaxClaimsPerBlock（spec协议常量K），
// 本包独立声明以避免tensor包反向依赖chain/types。
const MaxClaimsPerBlock = 32

// ComputeTaskBindingDigest 对一组声明取Merkle根，得到区块头中的task_binding_digest
// （spec 第3、第4.3节）。空声明列表返回零摘要，与merkle.Root对空列表的约定一致。
func ComputeTaskBindingDigest(claims []*Claim) hash.Digest {
	leaves := make([][]byte, len(claims))
	for i, c := range claims {
		leaves[i] = c.Encode()
	}
	return merkle.Root(leaves)
}

// ClaimedReductionSum 返回一组已验证声明对应任务的难度折减之和，
// 供挖矿谓词按 EffectiveTarget = target × (1 − Σreduction) 计算有效目标（spec 第4.3、第6节）。
// 调用方必须确保每个claim都已经通过VerifyClaim，本函数不重复校验。
func ClaimedReductionSum(tasks []*Task) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range tasks {
		sum = sum.Add(t.DifficultyReduction)
	}
	return sum
}
