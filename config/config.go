// server/config/config.go
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	AllowOrigins  []string      `mapstructure:"allowOrigins"`
	LogLevel      string        `mapstructure:"logLevel"`
	LogFormat     string        `mapstructure:"logFormat"`
	ShutdownGrace time.Duration `mapstructure:"shutdownGrace"`
}

type MongoConfig struct {
	URI    string `mapstructure:"uri"`
	DBName string `mapstructure:"dbName"`
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	Expiration string `mapstructure:"expiration"`
}

type FabricConfig struct {
	ChannelName       string `mapstructure:"channelName"`
	ChaincodeName     string `mapstructure:"chaincodeName"`
	OrgName           string `mapstructure:"orgName"`
	UserName          string `mapstructure:"userName"`
	ConnectionProfile string `mapstructure:"connectionProfile"`
	UserCertPath      string `mapstructure:"userCertPath"`
	UserKeyDir        string `mapstructure:"userKeyDir"`
	WalletPath        string `mapstructure:"walletPath"`
	CAName            string `mapstructure:"caName"`
	CAAffiliation     string `mapstructure:"caAffiliation"`
}

type S3Config struct {
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	AccessKeyID      string `mapstructure:"accessKeyID"`
	SecretAccessKey  string `mapstructure:"secretAccessKey"`
	CloudFrontDomain string `mapstructure:"cloudFrontDomain"`
}

type RedisConfig struct {
	URL     string        `mapstructure:"url"`
	LockKey string        `mapstructure:"lockKey"`
	LockTTL time.Duration `mapstructure:"lockTTL"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type GenAIConfig struct {
	APIKey  string        `mapstructure:"apiKey"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	Workers int           `mapstructure:"workers"`
}

// LedgerConfig picks the ledger backend: memory, mongo or fabric.
type LedgerConfig struct {
	Driver string `mapstructure:"driver"`
}

// StoreConfig picks the repository backend: memory or mongo.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type SimulationConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	HourScale      time.Duration `mapstructure:"hourScale"`
	OriginDwell    time.Duration `mapstructure:"originDwell"`
	SettleInterval time.Duration `mapstructure:"settleInterval"`
	IdleInterval   time.Duration `mapstructure:"idleInterval"`
	ScannerID      string        `mapstructure:"scannerID"`
}

type PolicyConfig struct {
	TempMin         float64       `mapstructure:"tempMin"`
	TempMax         float64       `mapstructure:"tempMax"`
	HumidityMin     float64       `mapstructure:"humidityMin"`
	HumidityMax     float64       `mapstructure:"humidityMax"`
	WeightTolerance float64       `mapstructure:"weightTolerance"`
	MaxDelay        time.Duration `mapstructure:"maxDelay"`
}

type RiskConfig struct {
	// Policies is keyed by product category; "default" is the fallback.
	Policies               map[string]PolicyConfig `mapstructure:"policies"`
	TempHighRatio          float64                 `mapstructure:"tempHighRatio"`
	TempCriticalRatio      float64                 `mapstructure:"tempCriticalRatio"`
	HumidityBands          []float64               `mapstructure:"humidityBands"`
	WeightHighMultiple     float64                 `mapstructure:"weightHighMultiple"`
	WeightCriticalMultiple float64                 `mapstructure:"weightCriticalMultiple"`
	DelayHighMultiple      float64                 `mapstructure:"delayHighMultiple"`
	DelayCriticalMultiple  float64                 `mapstructure:"delayCriticalMultiple"`
}

type RoutesConfig struct {
	DefaultTravelHours float64 `mapstructure:"defaultTravelHours"`
}

type SuperAdminConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// Config mirrors config.yaml. Every section can be overridden from the environment.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Mongo      MongoConfig      `mapstructure:"mongo"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Fabric     FabricConfig     `mapstructure:"fabric"`
	S3         S3Config         `mapstructure:"s3"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	GenAI      GenAIConfig      `mapstructure:"genai"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Store      StoreConfig      `mapstructure:"store"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Routes     RoutesConfig     `mapstructure:"routes"`
	SuperAdmin SuperAdminConfig `mapstructure:"superAdmin"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.allowOrigins", []string{"http://localhost:3000"})
	v.SetDefault("server.logLevel", "info")
	v.SetDefault("server.logFormat", "json")
	v.SetDefault("server.shutdownGrace", "10s")
	v.SetDefault("mongo.dbName", "supply_daddy")
	v.SetDefault("jwt.expiration", "24h")
	v.SetDefault("fabric.walletPath", "wallet")
	v.SetDefault("fabric.caName", "ca.org1.example.com")
	v.SetDefault("redis.lockKey", "supply-daddy:submission-gate")
	v.SetDefault("redis.lockTTL", "30s")
	v.SetDefault("kafka.topic", "checkpoint-events")
	v.SetDefault("genai.model", "gemini-2.0-flash")
	v.SetDefault("genai.timeout", "5s")
	v.SetDefault("genai.workers", 1)
	v.SetDefault("ledger.driver", "memory")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("simulation.enabled", true)
	v.SetDefault("simulation.hourScale", "2s")
	v.SetDefault("simulation.originDwell", "3s")
	v.SetDefault("simulation.settleInterval", "1s")
	v.SetDefault("simulation.idleInterval", "5s")
	v.SetDefault("simulation.scannerID", "sim-scanner")
	v.SetDefault("risk.tempHighRatio", 0.5)
	v.SetDefault("risk.tempCriticalRatio", 1.0)
	v.SetDefault("risk.humidityBands", []float64{0.1, 0.25, 0.5})
	v.SetDefault("risk.weightHighMultiple", 2.0)
	v.SetDefault("risk.weightCriticalMultiple", 4.0)
	v.SetDefault("risk.delayHighMultiple", 2.0)
	v.SetDefault("risk.delayCriticalMultiple", 4.0)
	v.SetDefault("routes.defaultTravelHours", 4.0)
	v.SetDefault("superAdmin.email", "superadmin@example.com")
}

// LoadConfig reads config.yaml from path, then applies defaults and env overrides.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	v.AutomaticEnv()
	v.BindEnv("mongo.uri", "MONGO_URI")
	v.BindEnv("mongo.dbName", "MONGO_DBNAME")
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.logLevel", "LOG_LEVEL")
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	v.BindEnv("s3.bucket", "S3_BUCKET")
	v.BindEnv("s3.region", "S3_REGION")
	v.BindEnv("s3.accessKeyID", "S3_ACCESS_KEY_ID")
	v.BindEnv("s3.secretAccessKey", "S3_SECRET_ACCESS_KEY")
	v.BindEnv("s3.cloudFrontDomain", "S3_CLOUDFRONT_DOMAIN")
	v.BindEnv("redis.url", "REDIS_URL")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("genai.apiKey", "GENAI_API_KEY")
	v.BindEnv("ledger.driver", "LEDGER_DRIVER")
	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("simulation.enabled", "SIMULATION_ENABLED")
	v.BindEnv("superAdmin.password", "SUPERADMIN_PASSWORD")

	// A missing file is fine; defaults and env vars still apply.
	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}
