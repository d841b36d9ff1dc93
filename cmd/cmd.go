package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nsxzhou1114/shop-api/internal/config"
	"github.com/nsxzhou1114/shop-api/internal/controller"
	"github.com/nsxzhou1114/shop-api/internal/database"
	"github.com/nsxzhou1114/shop-api/internal/logger"
	"github.com/nsxzhou1114/shop-api/internal/middleware"
	"github.com/nsxzhou1114/shop-api/internal/model"
	"github.com/nsxzhou1114/shop-api/internal/repository"
	"github.com/nsxzhou1114/shop-api/internal/router"
	"github.com/nsxzhou1114/shop-api/internal/service"
	"github.com/nsxzhou1114/shop-api/pkg/auth"
	"github.com/nsxzhou1114/shop-api/pkg/mailer"
	"github.com/nsxzhou1114/shop-api/pkg/response"
	"github.com/nsxzhou1114/shop-api/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "shop-api",
	Short: "商城用户服务",
	Long:  `商城后端的用户与会话服务，提供注册、邮箱验证、登录、令牌续期与找回密码等接口`,
}

// serveCmd 启动服务命令
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动HTTP服务",
	Long:  `启动商城用户服务的HTTP服务器`,
	Run: func(cmd *cobra.Command, args []string) {
		startServer()
	},
}

func init() {
	// 添加全局标志
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./config", "配置文件路径")

	// 添加子命令
	rootCmd.AddCommand(serveCmd)
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// system 启动后共享的组件
type system struct {
	cfg     *config.Config
	log     *zap.Logger
	repo    repository.UserRepository
	redis   *redis.Client
	issuer  *auth.Issuer
	users   *service.UserService
	closers []func(context.Context) error
}

// Close 按初始化的逆序释放资源
func (s *system) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			s.log.Warn("释放资源失败", zap.Error(err))
		}
	}
	_ = s.log.Sync()
}

// initializeSystem 初始化系统，serve 为 true 时要求全部外部服务配置完整
func initializeSystem(ctx context.Context, serve bool) (*system, error) {
	// 初始化配置
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("配置初始化失败: %w", err)
	}
	if serve {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("配置校验失败: %w", err)
		}
	}

	// 初始化日志
	log := logger.New(&cfg.Log)
	sugar := log.Sugar()
	sys := &system{cfg: cfg, log: log}

	// 初始化用户存储
	if err := sys.openStore(ctx, sugar); err != nil {
		sys.Close(ctx)
		return nil, err
	}

	if serve && cfg.Redis.Enabled {
		rdb, err := database.NewRedis(ctx, &cfg.Redis, sugar)
		if err != nil {
			sys.Close(ctx)
			return nil, err
		}
		sys.redis = rdb
		sys.closers = append(sys.closers, func(context.Context) error { return rdb.Close() })
	}

	sender, err := mailer.New(mailer.Options{
		Driver:       cfg.Mail.Driver,
		From:         cfg.Mail.From,
		ResendAPIKey: cfg.Mail.ResendAPIKey,
		SMTPHost:     cfg.Mail.SMTP.Host,
		SMTPPort:     cfg.Mail.SMTP.Port,
		SMTPUsername: cfg.Mail.SMTP.Username,
		SMTPPassword: cfg.Mail.SMTP.Password,
	})
	if err != nil {
		if serve {
			sys.Close(ctx)
			return nil, fmt.Errorf("邮件服务初始化失败: %w", err)
		}
		sugar.Warnw("邮件服务未配置", "error", err)
		sender = mailer.Unconfigured()
	}

	uploader, err := storage.New(ctx, storage.Options{
		Provider:            cfg.Storage.Provider,
		Folder:              cfg.Storage.Folder,
		CloudinaryCloudName: cfg.Storage.Cloudinary.CloudName,
		CloudinaryAPIKey:    cfg.Storage.Cloudinary.APIKey,
		CloudinaryAPISecret: cfg.Storage.Cloudinary.APISecret,
		COSSecretID:         cfg.Storage.COS.SecretID,
		COSSecretKey:        cfg.Storage.COS.SecretKey,
		COSBucketURL:        cfg.Storage.COS.BucketURL,
		S3AccessKeyID:       cfg.Storage.S3.AccessKeyID,
		S3SecretAccessKey:   cfg.Storage.S3.SecretAccessKey,
		S3Region:            cfg.Storage.S3.Region,
		S3Bucket:            cfg.Storage.S3.Bucket,
		S3Endpoint:          cfg.Storage.S3.Endpoint,
		S3PublicURL:         cfg.Storage.S3.PublicURL,
	})
	if err != nil {
		if serve {
			sys.Close(ctx)
			return nil, fmt.Errorf("头像存储初始化失败: %w", err)
		}
		sugar.Warnw("头像存储未配置", "error", err)
		uploader = nil
	}

	sys.issuer = auth.NewIssuer(auth.Options{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessExpire,
		RefreshTTL:    cfg.JWT.RefreshExpire,
		Issuer:        cfg.JWT.Issuer,
	})
	sys.users = service.NewUserService(
		sys.repo,
		sys.issuer,
		auth.NewOTPManager(cfg.OTP.TTL, nil),
		auth.NewHasher(cfg.Security.BcryptCost),
		sender,
		uploader,
		sugar.Named("user"),
		service.UserServiceOptions{
			FrontendURL:      cfg.App.FrontendURL,
			MaxAvatarSize:    cfg.Storage.MaxFileSize,
			AllowedImageType: cfg.Storage.AllowedTypes,
		},
	)
	return sys, nil
}

// openStore 按 database.driver 连接存储并建立表或索引
func (s *system) openStore(ctx context.Context, log *zap.SugaredLogger) error {
	switch s.cfg.Database.Driver {
	case "mongo":
		client, db, err := database.NewMongo(ctx, &s.cfg.Mongo, log)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, client.Disconnect)
		if err := model.EnsureIndexes(ctx, db); err != nil {
			return fmt.Errorf("创建MongoDB索引失败: %w", err)
		}
		s.repo = repository.NewMongoUserRepository(db)
	case "mysql":
		db, err := database.NewMySQL(&s.cfg.MySQL, log)
		if err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("获取数据库连接池失败: %w", err)
		}
		s.closers = append(s.closers, func(context.Context) error { return sqlDB.Close() })
		if err := model.InitTables(db); err != nil {
			return fmt.Errorf("初始化数据库表失败: %w", err)
		}
		s.repo = repository.NewGormUserRepository(db)
	case "memory":
		log.Warn("使用内存存储，重启后数据丢失")
		s.repo = repository.NewMemoryUserRepository()
	default:
		return fmt.Errorf("不支持的存储驱动: %s", s.cfg.Database.Driver)
	}
	return nil
}

// startServer 启动HTTP服务
func startServer() {
	ctx := context.Background()

	// 初始化系统
	sys, err := initializeSystem(ctx, true)
	if err != nil {
		var missing *config.MissingError
		if errors.As(err, &missing) {
			fmt.Printf("缺少必要配置: %v\n", missing.Keys)
		}
		fmt.Printf("系统初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer sys.Close(context.Background())

	// 设置Gin模式
	gin.SetMode(sys.cfg.App.Mode)

	// 初始化路由
	r := initRouter(sys)

	// 启动HTTP服务
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", sys.cfg.App.Port),
		Handler: r,
	}

	// 优雅关闭
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sys.log.Fatal("HTTP服务启动失败", zap.Error(err))
		}
	}()

	sys.log.Info("服务已启动",
		zap.String("addr", srv.Addr),
		zap.String("env", sys.cfg.App.Env),
		zap.String("store", sys.cfg.Database.Driver),
	)

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	sys.log.Info("关闭服务...")

	// 设置关闭超时
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		sys.log.Error("服务关闭异常", zap.Error(err))
	}

	sys.log.Info("服务已关闭")
}

// 初始化路由
func initRouter(sys *system) *gin.Engine {
	r := gin.New()

	// 使用中间件
	r.Use(response.ExposeInternal(!sys.cfg.App.IsProduction()))
	r.Use(middleware.Recovery(sys.log))
	r.Use(logger.GinLogger(sys.log))
	r.Use(middleware.Cors(sys.cfg.App.Cors))

	sugar := sys.log.Sugar()
	deps := router.Deps{
		UserApi: controller.NewUserApi(sys.users, sugar.Named("http"), controller.CookieOptions{
			Secure:     sys.cfg.App.IsProduction(),
			AccessTTL:  sys.issuer.AccessTTL(),
			RefreshTTL: sys.issuer.RefreshTTL(),
		}),
		Issuer:      sys.issuer,
		TokenBuffer: sys.cfg.JWT.Buffer,
		RateLimit: middleware.RateLimitOptions{
			Limit:         sys.cfg.Redis.RateLimit.Limit,
			Window:        sys.cfg.Redis.RateLimit.Window,
			BlockDuration: sys.cfg.Redis.RateLimit.BlockDuration,
			KeyPrefix:     sys.cfg.Redis.RateLimit.KeyPrefix,
		},
		Logger: sugar.Named("ratelimit"),
	}
	if sys.redis != nil {
		deps.Redis = sys.redis
	}

	// 初始化API路由
	router.Setup(r, deps)

	return r
}
