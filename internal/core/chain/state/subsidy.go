package state

// InitialSubsidy是创世之后第一个出块周期内每个区块的coinbase铸造上限
// （不含手续费与任务奖励），取值与genesis分配量同一计数单位（8位小数定点）。
// 这是协议常量，不是节点可配置项——任何允许每个节点自行声明铸造上限的设计
// 都等价于允许任意通胀，必须钉死在代码里让所有节点各自独立算出同一个值。
const InitialSubsidy = 50_0000_0000

// SubsidyHalvingInterval是铸造上限减半一次所经过的区块数，镜像比特币式
// 的衰减出块奖励曲线（spec 第8节的守恒不变量要求铸造总量收敛，不能无限增发）。
const SubsidyHalvingInterval = 210_000

// MaxHalvings是铸造上限归零前允许发生的减半次数上限，避免Go里>=64次的
// 右移成为未定义行为——第64次减半后上限早已经是0，这里只是让计算本身安全。
const MaxHalvings = 64

// Subsidy 按高度计算协议铸造上限：每经过SubsidyHalvingInterval个区块减半一次，
// 直至归零。ApplyBlock据此校验coinbase金额不超过subsidy(height)+本区块手续费
// 之和，任务奖励从托管发放、不计入这个上限（spec 第8节守恒不变量），矿工出块模板组装时调用同一个函数，
// 保证没有节点会挖出一个自己随后又会拒绝的区块。
func Subsidy(height uint64) uint64 {
	halvings := height / SubsidyHalvingInterval
	if halvings >= MaxHalvings {
		return 0
	}
	return InitialSubsidy >> halvings
}
