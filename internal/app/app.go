// Package app用go.uber.org/fx把节点的全部子系统（配置、存储、挖矿、编排、
// 网络）装配成一个依赖图，供cmd/node在启动时一次性拉起、在收到退出信号时
// 按依赖的逆序优雅关闭。
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"
)

// StartTimeout与StopTimeout是fx.App装配/关闭阶段各自允许的最长耗时，
// 超时后fx.App.Start/Stop返回错误而不是无限期挂起。
const (
	StartTimeout = 60 * time.Second
	StopTimeout  = 30 * time.Second
)

// Run装配并启动节点，阻塞直到收到SIGINT/SIGTERM或装配失败，返回前已完成
// 全部OnStop钩子的优雅关闭。
func Run(params Params) error {
	fxApp := fx.New(
		fx.Supply(params),
		fx.NopLogger,
		Module,
	)

	startCtx, cancelStart := context.WithTimeout(context.Background(), StartTimeout)
	defer cancelStart()
	if err := fxApp.Start(startCtx); err != nil {
		return fmt.Errorf("app: 启动失败: %w", err)
	}

	waitForSignal()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), StopTimeout)
	defer cancelStop()
	if err := fxApp.Stop(stopCtx); err != nil {
		return fmt.Errorf("app: 关闭失败: %w", err)
	}
	return nil
}

func waitForSignal() os.Signal {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	return <-signals
}
