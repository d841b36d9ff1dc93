package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	OTP      OTPConfig      `mapstructure:"otp"`
	Security SecurityConfig `mapstructure:"security"`
	Mail     MailConfig     `mapstructure:"mail"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name        string     `mapstructure:"name"`
	Mode        string     `mapstructure:"mode"` // gin模式 debug/release/test
	Env         string     `mapstructure:"env"`  // development/production
	Port        int        `mapstructure:"port"`
	FrontendURL string     `mapstructure:"frontend_url"`
	Cors        CorsConfig `mapstructure:"cors"`
}

// IsProduction 是否生产环境
func (c *AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// DatabaseConfig 用户存储选择
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // mongo/mysql/memory
}

// MongoConfig MongoDB配置
type MongoConfig struct {
	URI                    string        `mapstructure:"uri"`
	Database               string        `mapstructure:"database"`
	MaxPoolSize            uint64        `mapstructure:"max_pool_size"`
	ServerSelectionTimeout time.Duration `mapstructure:"server_selection_timeout"`
	SocketTimeout          time.Duration `mapstructure:"socket_timeout"`
}

// MySQLConfig 数据库配置
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Charset      string `mapstructure:"charset"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// DSN 获取数据库连接字符串
func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.Charset)
}

// RedisConfig Redis配置，仅用于接口限流
type RedisConfig struct {
	Enabled      bool            `mapstructure:"enabled"`
	Host         string          `mapstructure:"host"`
	Port         int             `mapstructure:"port"`
	Password     string          `mapstructure:"password"`
	DB           int             `mapstructure:"db"`
	PoolSize     int             `mapstructure:"pool_size"`
	MinIdleConns int             `mapstructure:"min_idle_conns"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// Addr 获取Redis地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Limit         int           `mapstructure:"limit"`
	Window        time.Duration `mapstructure:"window"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
	Stdout     bool   `mapstructure:"stdout"`
}

// JWTConfig JWT配置，访问令牌与刷新令牌使用不同密钥
type JWTConfig struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	AccessExpire  time.Duration `mapstructure:"access_expire"`
	RefreshExpire time.Duration `mapstructure:"refresh_expire"`
	Buffer        time.Duration `mapstructure:"buffer"`
	Issuer        string        `mapstructure:"issuer"`
}

// OTPConfig 验证码配置
type OTPConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

// MailConfig 邮件配置
type MailConfig struct {
	Driver       string     `mapstructure:"driver"` // resend/smtp
	From         string     `mapstructure:"from"`
	ResendAPIKey string     `mapstructure:"resend_api_key"`
	SMTP         SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig SMTP配置
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// StorageConfig 头像存储配置
type StorageConfig struct {
	Provider     string           `mapstructure:"provider"` // cloudinary/cos/s3
	Folder       string           `mapstructure:"folder"`
	MaxFileSize  int64            `mapstructure:"max_file_size"`
	AllowedTypes []string         `mapstructure:"allowed_types"`
	Cloudinary   CloudinaryConfig `mapstructure:"cloudinary"`
	COS          COSStorage       `mapstructure:"cos"`
	S3           S3Storage        `mapstructure:"s3"`
}

// CloudinaryConfig Cloudinary配置
type CloudinaryConfig struct {
	CloudName string `mapstructure:"cloud_name"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// COSStorage 腾讯云COS存储配置
type COSStorage struct {
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	BucketURL string `mapstructure:"bucket_url"`
}

// S3Storage S3兼容存储配置
type S3Storage struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	Endpoint        string `mapstructure:"endpoint"`
	PublicURL       string `mapstructure:"public_url"`
}

// CorsConfig 跨域配置
type CorsConfig struct {
	AllowOrigins     []string `mapstructure:"allow_origins"`
	AllowMethods     []string `mapstructure:"allow_methods"`
	AllowHeaders     []string `mapstructure:"allow_headers"`
	ExposedHeaders   []string `mapstructure:"expose_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// legacyEnv 兼容旧版 .env 中的变量名
var legacyEnv = map[string][]string{
	"app.port":                        {"APP_PORT", "PORT"},
	"app.env":                         {"APP_ENV", "NODE_ENV"},
	"app.frontend_url":                {"APP_FRONTEND_URL", "FRONT_END_URL"},
	"mongo.uri":                       {"MONGO_URI"},
	"jwt.access_secret":               {"JWT_ACCESS_SECRET", "SECRET_KEY_ACCESS_TOKEN"},
	"jwt.refresh_secret":              {"JWT_REFRESH_SECRET", "SECRET_KEY_REFRESH_TOKEN"},
	"mail.resend_api_key":             {"MAIL_RESEND_API_KEY", "RESEND_API_KEY"},
	"storage.cloudinary.cloud_name":   {"STORAGE_CLOUDINARY_CLOUD_NAME", "CLOUDINARY_CLOUD_NAME"},
	"storage.cloudinary.api_key":      {"STORAGE_CLOUDINARY_API_KEY", "CLOUDINARY_API_KEY"},
	"storage.cloudinary.api_secret":   {"STORAGE_CLOUDINARY_API_SECRET", "CLOUDINARY_API_SECRET"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "shop-api")
	v.SetDefault("app.mode", "debug")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.frontend_url", "")
	v.SetDefault("app.cors.allow_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("app.cors.allow_headers", []string{"Origin", "Content-Type", "Accept", "Authorization"})
	v.SetDefault("app.cors.expose_headers", []string{"X-Token-Expire-Soon", "Retry-After"})
	v.SetDefault("app.cors.allow_credentials", true)

	v.SetDefault("database.driver", "mongo")

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "ecommerce")
	v.SetDefault("mongo.max_pool_size", 10)
	v.SetDefault("mongo.server_selection_timeout", 5*time.Second)
	v.SetDefault("mongo.socket_timeout", 45*time.Second)

	v.SetDefault("mysql.host", "")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.username", "root")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "ecommerce")
	v.SetDefault("mysql.charset", "utf8mb4")
	v.SetDefault("mysql.max_idle_conns", 5)
	v.SetDefault("mysql.max_open_conns", 10)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.rate_limit.limit", 10)
	v.SetDefault("redis.rate_limit.window", time.Minute)
	v.SetDefault("redis.rate_limit.block_duration", 5*time.Minute)
	v.SetDefault("redis.rate_limit.key_prefix", "shop:ratelimit")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.filename", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.stdout", true)

	v.SetDefault("jwt.access_secret", "")
	v.SetDefault("jwt.refresh_secret", "")
	v.SetDefault("jwt.access_expire", time.Hour)
	v.SetDefault("jwt.refresh_expire", 30*24*time.Hour)
	v.SetDefault("jwt.buffer", 5*time.Minute)
	v.SetDefault("jwt.issuer", "shop-api")

	v.SetDefault("otp.ttl", time.Hour)
	v.SetDefault("security.bcrypt_cost", 10)

	v.SetDefault("mail.driver", "resend")
	v.SetDefault("mail.from", "E-Commerce <onboarding@resend.dev>")
	v.SetDefault("mail.resend_api_key", "")
	v.SetDefault("mail.smtp.host", "")
	v.SetDefault("mail.smtp.port", 465)
	v.SetDefault("mail.smtp.username", "")
	v.SetDefault("mail.smtp.password", "")

	v.SetDefault("storage.provider", "cloudinary")
	v.SetDefault("storage.folder", "ecommerce-webapp")
	v.SetDefault("storage.max_file_size", 5*1024*1024)
	v.SetDefault("storage.allowed_types", []string{"image/jpeg", "image/png", "image/gif", "image/webp"})
	v.SetDefault("storage.cloudinary.cloud_name", "")
	v.SetDefault("storage.cloudinary.api_key", "")
	v.SetDefault("storage.cloudinary.api_secret", "")
	v.SetDefault("storage.cos.secret_id", "")
	v.SetDefault("storage.cos.secret_key", "")
	v.SetDefault("storage.cos.bucket_url", "")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.public_url", "")
}

// Load 加载配置：.env -> config.yaml(可选) -> 环境变量
func Load(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, envs := range legacyEnv {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("绑定环境变量失败 %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if len(cfg.App.Cors.AllowOrigins) == 0 && cfg.App.FrontendURL != "" {
		cfg.App.Cors.AllowOrigins = []string{cfg.App.FrontendURL}
	}

	return &cfg, nil
}

// MissingError 缺少必填配置项
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// Validate 启动时校验必填项，缺失时立即失败
func (c *Config) Validate() error {
	var missing []string
	require := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, key)
		}
	}

	require("jwt.access_secret", c.JWT.AccessSecret)
	require("jwt.refresh_secret", c.JWT.RefreshSecret)
	require("app.frontend_url", c.App.FrontendURL)
	if c.JWT.AccessSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return fmt.Errorf("jwt.access_secret and jwt.refresh_secret must differ")
	}

	switch c.Database.Driver {
	case "mongo":
		require("mongo.uri", c.Mongo.URI)
	case "mysql":
		require("mysql.host", c.MySQL.Host)
	case "memory":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	switch c.Mail.Driver {
	case "resend":
		require("mail.resend_api_key", c.Mail.ResendAPIKey)
	case "smtp":
		require("mail.smtp.host", c.Mail.SMTP.Host)
		require("mail.smtp.username", c.Mail.SMTP.Username)
		require("mail.smtp.password", c.Mail.SMTP.Password)
	default:
		return fmt.Errorf("unsupported mail.driver %q", c.Mail.Driver)
	}

	switch c.Storage.Provider {
	case "cloudinary":
		require("storage.cloudinary.cloud_name", c.Storage.Cloudinary.CloudName)
		require("storage.cloudinary.api_key", c.Storage.Cloudinary.APIKey)
		require("storage.cloudinary.api_secret", c.Storage.Cloudinary.APISecret)
	case "cos":
		require("storage.cos.secret_id", c.Storage.COS.SecretID)
		require("storage.cos.secret_key", c.Storage.COS.SecretKey)
		require("storage.cos.bucket_url", c.Storage.COS.BucketURL)
	case "s3":
		require("storage.s3.access_key_id", c.Storage.S3.AccessKeyID)
		require("storage.s3.secret_access_key", c.Storage.S3.SecretAccessKey)
		require("storage.s3.bucket", c.Storage.S3.Bucket)
	default:
		return fmt.Errorf("unsupported storage.provider %q", c.Storage.Provider)
	}

	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}
	return nil
}
