// =============================================================================
// DeltaStream 命令行入口
// =============================================================================
// 把 OpenAI 兼容的流式响应实时聚合为文本
//
// 使用方法:
//
//	deltastream stream --prompt "hello"                 # 请求上游并实时打印
//	deltastream stream --config config.yaml --prompt hi # 指定配置文件
//	deltastream replay --file session.sse               # 重放录制的 SSE 响应体
//	cat session.sse | deltastream replay --file - --chunk 7
//	deltastream version                                 # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 退出码
const (
	exitOK       = 0
	exitError    = 1
	exitUsage    = 2
	exitCanceled = 130
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitUsage
	}

	switch args[0] {
	case "stream":
		return runStream(ctx, args[1:], stdout, stderr)
	case "replay":
		return runReplay(ctx, args[1:], stdin, stdout, stderr)
	case "version":
		printVersion(stdout)
		return exitOK
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return exitUsage
	}
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "DeltaStream %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `DeltaStream - incremental event-stream aggregator

Usage:
  deltastream <command> [options]

Commands:
  stream    Send a prompt upstream and print the reply as it streams
  replay    Aggregate a recorded SSE response body
  version   Show version information
  help      Show this help message

Options for 'stream':
  --config <path>   Path to configuration file (YAML)
  --prompt <text>   User prompt (required)
  --system <text>   Optional system prompt
  --model <name>    Override provider.model
  --stats           Print run statistics to stderr

Options for 'replay':
  --config <path>   Path to configuration file (YAML)
  --file <path|->   Recorded body, "-" reads stdin (required)
  --chunk <n>       Read size in bytes, simulates transport chunking
  --stats           Print run statistics to stderr

Environment:
  DELTASTREAM_PROVIDER_API_KEY, DELTASTREAM_PROVIDER_BASE_URL, ...
  override any configuration key.

Examples:
  deltastream stream --prompt "Write a haiku about Go"
  deltastream replay --file testdata/session.sse --chunk 1
  deltastream version`)
}
