package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/deltastream/llm"
	"github.com/BaSui01/deltastream/llm/providers/openaicompat"
	"github.com/BaSui01/deltastream/llm/streaming"
)

// =============================================================================
// 🌊 stream 命令
// =============================================================================

func runStream(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stream", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	prompt := fs.String("prompt", "", "User prompt")
	system := fs.String("system", "", "System prompt")
	model := fs.String("model", "", "Model override")
	stats := fs.Bool("stats", false, "Print run statistics")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *prompt == "" {
		fmt.Fprintln(stderr, "stream: --prompt is required")
		return exitUsage
	}

	a, err := newApp(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitError
	}
	defer a.close()

	if *model != "" {
		a.cfg.Provider.Model = *model
	}
	if err := a.cfg.RequireProvider(); err != nil {
		fmt.Fprintf(stderr, "Invalid config: %v\n", err)
		return exitError
	}

	client := openaicompat.New(openaicompat.Config{
		ProviderName:   a.cfg.Provider.Name,
		APIKey:         a.cfg.Provider.APIKey,
		BaseURL:        a.cfg.Provider.BaseURL,
		DefaultModel:   a.cfg.Provider.Model,
		EndpointPath:   a.cfg.Provider.EndpointPath,
		HeaderTimeout:  a.cfg.Provider.HeaderTimeout,
		ReadBufferSize: a.cfg.Provider.ReadBufferSize,
	}, a.logger)
	client.SetMetrics(a.collector)

	req := llm.NewPromptRequest("", *system, *prompt)
	res := a.runPipeline(ctx, stdout, func(ctx context.Context) (streaming.ChunkSource, error) {
		return client.Open(ctx, req)
	})
	return a.finish(res, *stats, stderr)
}

// =============================================================================
// 📼 replay 命令
// =============================================================================

func runReplay(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	file := fs.String("file", "", `Recorded SSE body, "-" for stdin`)
	chunk := fs.Int("chunk", 0, "Read size in bytes")
	stats := fs.Bool("stats", false, "Print run statistics")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *file == "" {
		fmt.Fprintln(stderr, "replay: --file is required")
		return exitUsage
	}
	if *chunk < 0 {
		fmt.Fprintln(stderr, "replay: --chunk must not be negative")
		return exitUsage
	}

	a, err := newApp(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return exitError
	}
	defer a.close()

	res := a.runPipeline(ctx, stdout, func(context.Context) (streaming.ChunkSource, error) {
		if *file == "-" {
			// stdin 无法通过 Close 打断，读取放到独立 goroutine 中以便响应取消
			return streaming.NewAsyncReaderSource(stdin, *chunk), nil
		}
		f, err := os.Open(*file)
		if err != nil {
			return nil, err
		}
		return streaming.NewReaderSource(f, *chunk), nil
	})
	return a.finish(res, *stats, stderr)
}

// finish 汇报结果并给出退出码
func (a *app) finish(res pipelineResult, printStats bool, stderr io.Writer) int {
	if printStats {
		writeStats(stderr, res)
	}
	if res.err == nil {
		return exitOK
	}
	if errors.Is(res.err, context.Canceled) {
		a.logger.Info("run canceled", zap.Int("partial_bytes", len(res.text)))
		return exitCanceled
	}
	fmt.Fprintf(stderr, "error: %v\n", res.err)
	return exitError
}
