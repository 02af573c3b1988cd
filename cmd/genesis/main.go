// Command genesis按节点配置文件计算创世块摘要，供部署同一网络的多个节点
// 在启动前互相核对——genesis是一个协议常量，任意字段不一致都会在握手阶段
// 悄悄分裂成两条互不相连的链。
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ai3chain/node/internal/core/chain/state"
	"github.com/ai3chain/node/internal/core/crypto/keys"
	"github.com/ai3chain/node/internal/core/crypto/pow"
	"github.com/ai3chain/node/internal/platform/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "genesis",
	Short: "计算并打印创世块摘要",
	RunE:  runGenesis,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "节点配置文件路径，留空则使用内置默认值")
}

func runGenesis(cmd *cobra.Command, args []string) error {
	provider, err := config.NewProvider()
	if err != nil {
		return fmt.Errorf("genesis: 初始化配置加载器失败: %w", err)
	}
	opts, err := provider.Load(configPath)
	if err != nil {
		return fmt.Errorf("genesis: 加载配置失败: %w", err)
	}

	var recipient keys.Address
	if opts.Consensus.GenesisAllocationRecipientHex != "" {
		raw, err := hex.DecodeString(opts.Consensus.GenesisAllocationRecipientHex)
		if err != nil {
			return fmt.Errorf("genesis: 解码初始分配地址失败: %w", err)
		}
		recipient, err = keys.AddressFromBytes(raw)
		if err != nil {
			return fmt.Errorf("genesis: 初始分配地址: %w", err)
		}
	}

	block := state.BuildGenesisBlock(state.GenesisConfig{
		Timestamp:           opts.Consensus.GenesisTimestamp,
		DifficultyTarget:    pow.CompactDifficulty(opts.Consensus.GenesisDifficulty),
		AllocationRecipient: recipient,
		AllocationAmount:    opts.Consensus.GenesisAllocationAmount,
	})

	fmt.Printf("网络: %s\n", opts.Node.NetworkID)
	fmt.Printf("创世时间戳: %d\n", opts.Consensus.GenesisTimestamp)
	fmt.Printf("初始分配: %d -> %s\n", opts.Consensus.GenesisAllocationAmount, recipient.String())
	fmt.Printf("创世摘要: %s\n", block.Digest().String())
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
