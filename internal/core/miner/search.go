package miner

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ai3chain/node/internal/core/chain/types"
	"github.com/ai3chain/node/internal/core/crypto/pow"
	"github.com/ai3chain/node/internal/platform/errs"
	"github.com/ai3chain/node/internal/platform/log"
)

const componentName = "miner"

// SearchBatchSize 是nonce搜索每批尝试的数量，每批结束后检查一次取消信号与
// 刷新一次时间戳——批内不检查是为了避免select开销主导哈希计算的热路径。
const SearchBatchSize = 1 << 16

// Stats 汇总一次搜索的性能指标，供日志与指标导出使用。
type Stats struct {
	Attempts  uint64
	Elapsed   time.Duration
	HashRate  float64
}

// Search 在template基础上反复调整Nonce/Timestamp，直到区块头摘要满足有效目标
// 或ctx被取消。difficultyFloor是协议下限折减封顶值（spec 第4.3节EffectiveTarget）。
func Search(ctx context.Context, logger log.Logger, template *Template, difficultyFloor decimal.Decimal) (*types.Block, Stats, error) {
	block := template.Block
	header := block.Header

	effectiveTarget := pow.EffectiveTarget(header.DifficultyTarget, template.ReductionSum, difficultyFloor)

	start := time.Now()
	var attempts uint64
	var nonce uint64

	for {
		select {
		case <-ctx.Done():
			elapsed := time.Since(start)
			return nil, statsOf(attempts, elapsed), errs.Wrap(errs.KindTransient, componentName, "mining search cancelled", ctx.Err())
		default:
		}

		batchEnd := nonce + SearchBatchSize
		for ; nonce < batchEnd; nonce++ {
			header.Nonce = nonce
			attempts++
			if pow.HashMeetsTarget(header.Digest().Bytes(), effectiveTarget) {
				elapsed := time.Since(start)
				stats := statsOf(attempts, elapsed)
				logger.Infof("挖矿成功: height=%d nonce=%d attempts=%d elapsed=%v hashrate=%.2f", header.Height, nonce, attempts, elapsed, stats.HashRate)
				return block, stats, nil
			}
		}
		header.Timestamp = uint64(time.Now().Unix())
	}
}

func statsOf(attempts uint64, elapsed time.Duration) Stats {
	rate := float64(0)
	if elapsed.Seconds() > 0 {
		rate = float64(attempts) / elapsed.Seconds()
	}
	return Stats{Attempts: attempts, Elapsed: elapsed, HashRate: rate}
}
