// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	VectorStore   VectorStoreConfig   `mapstructure:"vector_store"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	Search        SearchConfig        `mapstructure:"search"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// TikaConfig 存储 Tika 服务器相关的配置。
type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

// VectorStoreConfig 选择向量存储后端。
// backend 取值 "elasticsearch" 或 "chromem"（单机内嵌模式，便于本地部署与测试）。
type VectorStoreConfig struct {
	Backend     string `mapstructure:"backend"`
	ChromemPath string `mapstructure:"chromem_path"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses   string `mapstructure:"addresses"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	IndexPrefix string `mapstructure:"index_prefix"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// SearchConfig 存储检索行为的调优参数。
type SearchConfig struct {
	// Timeout 是单次 search 中 embed + 向量检索允许的总耗时。
	Timeout time.Duration `mapstructure:"timeout"`
	// OverfetchMultiplier 控制向底层一次取回 limit 的多少倍候选，
	// 用于补偿阈值过滤后的损失。
	OverfetchMultiplier int `mapstructure:"overfetch_multiplier"`
	// ChunkSize / ChunkOverlap 是课程内容导入管道的分块参数（按 rune 计）。
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}

	applyDefaults(&Conf)
}

// applyDefaults 为缺省的调优参数填充默认值。
func applyDefaults(c *Config) {
	if c.Search.Timeout <= 0 {
		c.Search.Timeout = 10 * time.Second
	}
	if c.Search.OverfetchMultiplier <= 0 {
		c.Search.OverfetchMultiplier = 3
	}
	if c.Search.ChunkSize <= 0 {
		c.Search.ChunkSize = 1000
	}
	if c.Search.ChunkOverlap < 0 || c.Search.ChunkOverlap >= c.Search.ChunkSize {
		c.Search.ChunkOverlap = 100
	}
	if c.VectorStore.Backend == "" {
		c.VectorStore.Backend = "elasticsearch"
	}
	if c.Embedding.CacheTTL <= 0 {
		c.Embedding.CacheTTL = 24 * time.Hour
	}
}
