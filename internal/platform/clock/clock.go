// Package clock提供一个以NTP校准的参考时钟：区块头"时间戳不能超前太多"的
// 校验需要一个不完全受本机系统时钟摆布的"现在"，单纯用time.Now()会被篡改
// 本机时钟的操作者利用来伪造提前到期的区块。
package clock

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"

	"github.com/ai3chain/node/internal/platform/log"
)

// DefaultSyncInterval是两次NTP查询之间的间隔（30分钟，即600秒目标出块间隔的
// 三倍），偏移量按这个周期持续刷新，而不是启动时的一次性快照。
const DefaultSyncInterval = 30 * time.Minute

// DefaultQueryTimeout是单次NTP查询允许的最长耗时，超时按失败处理并保留
// 上一次成功查询得到的偏移量，而不是让调用方在NTP服务器不可达时卡住。
const DefaultQueryTimeout = 5 * time.Second

// Source是一个周期性从NTP服务器刷新偏移量的参考时钟。在首次查询成功之前，
// Now()退化为本机系统时钟（偏移量为零），因此NTP服务器不可达不会阻塞启动。
type Source struct {
	server      string
	logger      log.Logger
	offsetNanos atomic.Int64
}

// New创建一个尚未同步的参考时钟，server为空时使用DefaultServer。
func New(server string, logger log.Logger) *Source {
	if server == "" {
		server = DefaultServer
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Source{server: server, logger: logger}
}

// DefaultServer是未在配置中指定时使用的公共NTP服务器。
const DefaultServer = "pool.ntp.org"

// Now返回当前参考时间：本机系统时钟加上最近一次成功查询得到的偏移量。
func (s *Source) Now() time.Time {
	offset := time.Duration(s.offsetNanos.Load())
	return time.Now().Add(offset)
}

// sync执行一次NTP查询并原子地更新偏移量。
func (s *Source) sync() {
	resp, err := ntp.QueryWithOptions(s.server, ntp.QueryOptions{Timeout: DefaultQueryTimeout})
	if err != nil {
		s.logger.Warnf("NTP查询%s失败，继续使用上一次的偏移量: %v", s.server, err)
		return
	}
	s.offsetNanos.Store(int64(resp.ClockOffset))
	s.logger.Debugf("NTP偏移量更新为%s", resp.ClockOffset)
}

// Run阻塞执行周期性同步，直到ctx被取消；调用方应在独立goroutine中启动。
func (s *Source) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	s.sync()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sync()
		}
	}
}
