package pow

import "math/big"

// RetargetWindow 是重定向窗口大小（区块数），对应spec第6节的协议常量W。
const RetargetWindow = 2016

// RetargetClampFactor 是单次重定向允许的最大调整倍数，对应协议常量F。
const RetargetClampFactor = 4

// ExpectedIntervalSeconds 是目标区块间隔，用作重定向的基准。
const ExpectedIntervalSeconds = 600 // 10分钟，矿池规模无关的协议常量

// Retarget 按 spec 第6节算法重新计算难度：
//
//	new = old × expected_interval / observed_interval
//
// 钳制到 [old/F, old×F]。observedIntervalSeconds是窗口内首末区块时间差。
func Retarget(old CompactDifficulty, observedIntervalSeconds int64) CompactDifficulty {
	if observedIntervalSeconds <= 0 {
		observedIntervalSeconds = 1
	}
	oldTarget := old.ToTarget()

	expected := big.NewInt(RetargetWindow * ExpectedIntervalSeconds)
	observed := big.NewInt(observedIntervalSeconds)

	newTarget := new(big.Int).Mul(oldTarget, expected)
	newTarget.Div(newTarget, observed)

	minTarget := new(big.Int).Div(oldTarget, big.NewInt(RetargetClampFactor))
	maxTargetClamped := new(big.Int).Mul(oldTarget, big.NewInt(RetargetClampFactor))

	if newTarget.Cmp(minTarget) < 0 {
		newTarget = minTarget
	}
	if newTarget.Cmp(maxTargetClamped) > 0 {
		newTarget = maxTargetClamped
	}
	if newTarget.Cmp(maxTarget) > 0 {
		newTarget = maxTarget
	}
	return FromTarget(newTarget)
}
