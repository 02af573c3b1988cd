// Command keygen生成节点身份/矿工地址所需的secp256k1密钥对。
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ai3chain/node/internal/core/crypto/keys"
)

var outPath string

var rootCmd = &cobra.Command{
	Use:   "keygen",
	Short: "生成节点密钥对",
	Long: `keygen生成一个secp256k1密钥对并派生其协议地址。

默认生成一个全新的随机密钥对；--from-seed可以从一个已有的32字节
十六进制种子确定性地重新派生同一个密钥对，便于备份恢复或测试环境下
复现固定地址。`,
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "生成一个新的密钥对",
	RunE:  runGenerate,
}

var fromSeed string

func init() {
	generateCmd.Flags().StringVar(&fromSeed, "from-seed", "", "32字节十六进制种子，留空则生成随机密钥对")
	generateCmd.Flags().StringVar(&outPath, "out", "", "私钥写入的文件路径，留空则只打印到标准输出")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	var pair *keys.KeyPair
	if fromSeed != "" {
		seed, err := hex.DecodeString(fromSeed)
		if err != nil {
			return fmt.Errorf("keygen: 解码种子失败: %w", err)
		}
		pair, err = keys.FromSeed(seed)
		if err != nil {
			return fmt.Errorf("keygen: 派生密钥对失败: %w", err)
		}
	} else {
		var err error
		pair, err = keys.Generate()
		if err != nil {
			return fmt.Errorf("keygen: 生成密钥对失败: %w", err)
		}
	}

	privHex := hex.EncodeToString(pair.Private.Serialize())
	fmt.Printf("地址: %s\n", pair.Addr.String())
	fmt.Printf("私钥: %s\n", privHex)

	if outPath != "" {
		if err := os.WriteFile(outPath, []byte(privHex+"\n"), 0o600); err != nil {
			return fmt.Errorf("keygen: 写入私钥文件失败: %w", err)
		}
		fmt.Printf("私钥已写入 %s（权限0600）\n", outPath)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
