// Package pow 实现难度压缩编码、目标比较与重定向算法（spec 第4.3、第6节）。
package pow

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// CompactDifficulty 是32位压缩表示（指数+尾数）的256位目标，格式沿用中本聪式nBits编码：
// 最高字节是以256为底的指数，低三字节是尾数。
type CompactDifficulty uint32

// maxTarget 是协议允许的最低难度（最大目标值），用作genesis及边界钳制的上限，
// 与比特币式32字节（256位）目标空间的难度1上限一致。
var maxTarget = func() *big.Int {
	t := new(big.Int)
	t.SetString("00000000FFFF0000000000000000000000000000000000000000000000000000", 16)
	return t
}()

// ToTarget 将压缩难度展开为256位目标整数。
func (c CompactDifficulty) ToTarget() *big.Int {
	exponent := uint32(c) >> 24
	mantissa := uint32(c) & 0x007fffff
	negative := uint32(c)&0x00800000 != 0

	target := new(big.Int).SetUint64(uint64(mantissa))
	if exponent <= 3 {
		target.Rsh(target, uint(8*(3-exponent)))
	} else {
		target.Lsh(target, uint(8*(exponent-3)))
	}
	if negative {
		target.Neg(target)
	}
	return target
}

// FromTarget 将256位目标压缩为32位表示，镜像ToTarget的逆运算。
func FromTarget(target *big.Int) CompactDifficulty {
	if target.Sign() == 0 {
		return 0
	}
	t := new(big.Int).Set(target)
	exponent := (t.BitLen() + 7) / 8

	var mantissa *big.Int
	if exponent <= 3 {
		mantissa = new(big.Int).Lsh(t, uint(8*(3-exponent)))
	} else {
		mantissa = new(big.Int).Rsh(t, uint(8*(exponent-3)))
	}

	// 若尾数最高位被设置会被误读为符号位，右移一个字节并递增指数来规避。
	if mantissa.Bit(23) != 0 {
		mantissa.Rsh(mantissa, 8)
		exponent++
	}

	return CompactDifficulty(uint32(exponent)<<24 | uint32(mantissa.Uint64()&0x007fffff))
}

// HashMeetsTarget 判断大端序解释的哈希整数是否严格小于target。
func HashMeetsTarget(headerHash []byte, target *big.Int) bool {
	h := new(big.Int).SetBytes(headerHash)
	return h.Cmp(target) < 0
}

// EffectiveTarget 按spec 4.3节的挖矿谓词计算有效目标：
//
//	target × (1 − Σ difficulty_reduction)
//
// reductionSum是已选中任务证明的难度折减之和，floor是协议下限折减封顶值。
// reductionSum必须严格小于1−floor才合法——调用方须先用ReductionWithinFloor
// 校验，这里不再静默钳制，否则一个声称折减总和超过上限的区块会被悄悄接受为
// 一个更低的折减总和，而不是被拒绝。
func EffectiveTarget(base CompactDifficulty, reductionSum decimal.Decimal, floor decimal.Decimal) *big.Int {
	one := decimal.NewFromInt(1)
	factor := one.Sub(reductionSum)

	target := base.ToTarget()
	// 用分母10^18的定点数把decimal因子应用到big.Int目标上，避免浮点误差。
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	factorScaled := factor.Shift(18).BigInt()
	result := new(big.Int).Mul(target, factorScaled)
	result.Div(result, scale)
	return result
}

// ReductionWithinFloor 校验一组任务证明的折减总和没有越过协议下限：
// reductionSum必须严格小于1−floor，否则有效目标会被压缩到floor以下
// （spec 第8节"折减总和严格小于1减去协议下限"不变量），调用方据此拒绝区块
// 而不是把折减总和钳制到上限再放行。
func ReductionWithinFloor(reductionSum decimal.Decimal, floor decimal.Decimal) bool {
	maxAllowed := decimal.NewFromInt(1).Sub(floor)
	return reductionSum.LessThan(maxAllowed)
}

// BlockWork 把一个区块的压缩难度目标折算为它对链路累计工作量的贡献，
// 与目标成反比（目标越小代表越难满足，贡献的工作量越大），用作分叉选择
// 比较两条竞争链谁的累计工作量更高（spec 第4.5节"最高累计工作量"）。
func BlockWork(target CompactDifficulty) *big.Int {
	t := target.ToTarget()
	if t.Sign() <= 0 {
		return big.NewInt(0)
	}
	numerator := new(big.Int).Lsh(big.NewInt(1), 256)
	denominator := new(big.Int).Add(t, big.NewInt(1))
	return new(big.Int).Div(numerator, denominator)
}

// ReductionSum 把一组难度折减（每个 ≤ 1 的有理数）累加为一个decimal.Decimal，
// 精确而不受float64表示误差影响（spec 第9节浮点确定性要求的延伸）。
func ReductionSum(reductions []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range reductions {
		sum = sum.Add(r)
	}
	return sum
}
