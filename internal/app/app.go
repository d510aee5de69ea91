package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/nbhdcity/internal/auth"
	"github.com/hitoshi/nbhdcity/internal/config"
	"github.com/hitoshi/nbhdcity/internal/handler"
	"github.com/hitoshi/nbhdcity/internal/logger"
	"github.com/hitoshi/nbhdcity/internal/metrics"
	"github.com/hitoshi/nbhdcity/internal/middleware"
	"github.com/hitoshi/nbhdcity/internal/neighborhood"
	"github.com/hitoshi/nbhdcity/internal/repository"
	"github.com/hitoshi/nbhdcity/internal/security"
	"github.com/hitoshi/nbhdcity/internal/store"
	"github.com/hitoshi/nbhdcity/internal/token"
	"github.com/hitoshi/nbhdcity/internal/user"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 開発モードではデバッグレベルまで出力する
	if cfg.DevMode {
		logger.SetDebug(w)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandInitTable:
		return runInitTable(cfg)
	case CommandServe:
		return runServe(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DynamoDBクライアントを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	// 1. ストア接続
	db, err := store.Open(ctx, store.Options{
		Region:      cfg.AWSRegion,
		EndpointURL: cfg.EndpointURL,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	if err := store.Ping(ctx, db, cfg.TableName); err != nil {
		return fmt.Errorf("failed to reach store: %w", err)
	}

	slog.Info("store connection established",
		slog.String("table", cfg.TableName),
	)

	// 2. メトリクスの初期化（リポジトリのリトライ記録に使うため先に生成する）
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	nbhdRepo := repository.NewDynamoNeighborhoodRepo(db, cfg.TableName, collector)
	userRepo := repository.NewDynamoUserRepo(db, cfg.TableName, collector)

	// ハンドシェイク状態ストアの選択。
	// 単一プロセスならメモリ、複数インスタンスではDynamoDB共有ストアを使う。
	var stateStore repository.HandshakeStateStore
	switch cfg.OAuthStateStore {
	case config.StateStoreDynamo:
		stateStore = repository.NewDynamoStateStore(db, cfg.TableName)
	default:
		memStore := repository.NewMemoryStateStore()
		defer memStore.Stop()
		stateStore = memStore
	}

	// 4. セキュリティサービスの初期化
	urlGuard := security.NewURLGuard()
	sanitizer := security.NewTextSanitizer()

	// 5. ドメインサービスの初期化
	tokens := token.NewManager(cfg.SessionSecret, cfg.SessionMaxAge)

	oauthProvider := auth.NewBlueskyOAuthProvider(auth.BlueskyOAuthConfig{
		ClientID:     cfg.BlueskyClientID,
		ClientSecret: cfg.BlueskyClientSecret,
		RedirectURL:  cfg.BlueskyRedirectURL,
		HTTPClient:   urlGuard.NewOutboundClient(10 * time.Second),
	})
	authService := auth.NewService(
		oauthProvider, userRepo, stateStore, tokens,
		auth.ServiceConfig{StateTTL: cfg.OAuthStateTTL, DevMode: cfg.DevMode},
	)

	nbhdService := neighborhood.NewService(nbhdRepo, userRepo, sanitizer, collector)
	userService := user.NewService(userRepo, sanitizer, urlGuard)

	// 6. レートリミッターの初期化
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitCreate),
	)
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		TokenVerifier:     tokens,
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Logger:            slog.Default(),

		Collector: collector,
		Gatherer:  registry,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL: cfg.FrontendURL,
		},
		NeighborhoodService: nbhdService,
		UserService:         userService,

		DevMode: cfg.DevMode,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runInitTable はテーブルとインデックスを作成する。
// DynamoDB Localでのローカル開発環境の初期化用サブコマンド。
func runInitTable(cfg *config.Config) error {
	ctx := context.Background()

	db, err := store.Open(ctx, store.Options{
		Region:      cfg.AWSRegion,
		EndpointURL: cfg.EndpointURL,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	slog.Info("creating table",
		slog.String("table", cfg.TableName),
		slog.String("endpoint", cfg.EndpointURL),
	)

	if err := store.EnsureTable(ctx, db, cfg.TableName); err != nil {
		return fmt.Errorf("failed to ensure table: %w", err)
	}

	slog.Info("table ready", slog.String("table", cfg.TableName))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
