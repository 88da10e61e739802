package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/deltastream/config"
	"github.com/BaSui01/deltastream/internal/metrics"
	"github.com/BaSui01/deltastream/internal/server"
	"github.com/BaSui01/deltastream/internal/telemetry"
	"github.com/BaSui01/deltastream/llm/streaming"
)

// app 聚合一次命令运行需要的配置与基础设施
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	collector *metrics.Collector
	otel      *telemetry.Providers
}

func newApp(configPath string) (*app, error) {
	loader := config.NewLoader().WithValidator(func(c *config.Config) error { return c.Validate() })
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := initLogger(cfg.Log)
	logger.Debug("starting deltastream",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
	)

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		collector: metrics.NewCollector(cfg.Metrics.Namespace, logger),
		otel:      providers,
	}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.otel.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func (a *app) newAggregator(opts ...streaming.Option) *streaming.Aggregator {
	all := []streaming.Option{
		streaming.WithLogger(a.logger),
		streaming.WithMetrics(a.collector),
		streaming.WithTracer(a.otel.Tracer("github.com/BaSui01/deltastream/cmd/deltastream")),
		streaming.WithDeltaPath(a.cfg.Stream.DeltaPath),
		streaming.WithMaxRebuffers(a.cfg.Stream.MaxRebuffers),
	}
	return streaming.New(append(all, opts...)...)
}

// =============================================================================
// 🔀 运行流水线
// =============================================================================

type pipelineResult struct {
	text      string
	stats     streaming.Stats
	snapshots streaming.SnapshotStats
	err       error
}

type openFunc func(ctx context.Context) (streaming.ChunkSource, error)

// runPipeline 并行运行三件事：聚合、终端打印、可选的指标端点。
// 聚合结束后打印端排空快照，指标端点随之关闭。
func (a *app) runPipeline(ctx context.Context, out io.Writer, open openFunc) pipelineResult {
	snapshots := streaming.NewSnapshotStream(snapshotConfig(a.cfg.Stream))

	runCtx, stopAux := context.WithCancel(ctx)
	defer stopAux()
	g, gctx := errgroup.WithContext(runCtx)

	if a.cfg.Metrics.Enabled {
		cfg := server.DefaultConfig()
		cfg.Addr = a.cfg.Metrics.Addr
		srv := server.NewManager(a.collector.Handler(), cfg, a.logger)
		g.Go(func() error {
			// 指标端点失败不影响流本身
			if err := srv.Run(gctx); err != nil {
				a.logger.Warn("metrics server stopped", zap.Error(err))
			}
			return nil
		})
	}

	printer := &deltaPrinter{w: out}
	g.Go(func() error {
		for snap := range snapshots.Snapshots() {
			if err := printer.print(snap.Text); err != nil {
				return err
			}
		}
		return nil
	})

	var res pipelineResult
	agg := a.newAggregator(streaming.WithObserver(snapshots.Observer(gctx)))
	g.Go(func() error {
		defer stopAux()
		defer snapshots.Close()
		src, err := open(gctx)
		if err != nil {
			return err
		}
		res.text, err = agg.Run(gctx, src)
		return err
	})

	res.err = g.Wait()
	if err := printer.finish(res.text); err != nil && res.err == nil {
		res.err = err
	}
	res.stats = agg.Stats()
	res.snapshots = snapshots.Stats()

	a.logger.Debug("pipeline finished",
		zap.String("run_id", agg.RunID()),
		zap.String("state", agg.State().String()),
		zap.Int64("snapshots_dropped", res.snapshots.Dropped),
		zap.Error(res.err))
	return res
}

func snapshotConfig(cfg config.StreamConfig) streaming.SnapshotConfig {
	sc := streaming.DefaultSnapshotConfig()
	if cfg.SnapshotBuffer > 0 {
		sc.BufferSize = cfg.SnapshotBuffer
	}
	if cfg.DropPolicy == config.DropPolicyOldest {
		sc.DropPolicy = streaming.DropPolicyOldest
	}
	return sc
}

// deltaPrinter 只输出累积文本中尚未打印的后缀
type deltaPrinter struct {
	w       io.Writer
	printed int
}

func (p *deltaPrinter) print(text string) error {
	if len(text) <= p.printed {
		return nil
	}
	if _, err := io.WriteString(p.w, text[p.printed:]); err != nil {
		return err
	}
	p.printed = len(text)
	return nil
}

func (p *deltaPrinter) finish(text string) error {
	if err := p.print(text); err != nil {
		return err
	}
	if p.printed == 0 {
		return nil
	}
	_, err := io.WriteString(p.w, "\n")
	return err
}

func writeStats(w io.Writer, res pipelineResult) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(struct {
		Stats     streaming.Stats         `json:"stats"`
		Snapshots streaming.SnapshotStats `json:"snapshots"`
	}{res.stats, res.snapshots})
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       false,
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
