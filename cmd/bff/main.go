// BFFサービスのエントリポイント。
// クライアントのトークンを検証し、ユーザーストア・ウォレットプロバイダー・決済プロバイダーへの
// 呼び出しを仲介する。外部サービスの秘密情報を持つ唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/nao1215/elara/internal/bff"
	"github.com/nao1215/elara/internal/config"
	"go.uber.org/zap"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf(".envの読み込みに失敗: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := cfg.Validate(); err != nil {
		zap.L().Fatal("設定が不正です", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := bff.NewServer(ctx, cfg)
	if err != nil {
		zap.L().Fatal("BFFサーバーの初期化に失敗", zap.Error(err))
	}
	defer func() {
		if err := server.Close(); err != nil {
			zap.L().Warn("リソースの解放に失敗", zap.Error(err))
		}
	}()

	if err := server.Run(ctx); err != nil {
		zap.L().Error("BFFサービスの実行に失敗", zap.Error(err))
	}
}
