package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"

	DefaultConfigPath = "config/config.yaml"
	defaultAddr       = ":8443"
	defaultTimezone   = "UTC"
	defaultTopic      = "attendance.clock-events"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql | sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Path     string `yaml:"path"` // sqlite のみ
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

type AttendanceConfig struct {
	// 日付の区切り（日別集計・シフトの日付判定）に使うタイムゾーン
	Timezone         string `yaml:"timezone"`
	EnforcePerimeter bool   `yaml:"enforce_perimeter"`
	StatsWorkers     int    `yaml:"stats_workers"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type Config struct {
	Version     string           `yaml:"version"`
	Mode        string           `yaml:"mode"`
	Server      ServerConfig     `yaml:"server"`
	DB          DatabaseConfig   `yaml:"database"`
	Certificate Certs            `yaml:"certificate"`
	Auth        AuthConfig       `yaml:"auth"`
	CORS        CORSConfig       `yaml:"cors"`
	Attendance  AttendanceConfig `yaml:"attendance"`
	Kafka       KafkaConfig      `yaml:"kafka"`
}

func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	return ParseConfig(buf)
}

func ParseConfig(buf []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultAddr
	}
	if c.DB.Driver == "" {
		c.DB.Driver = DriverMySQL
	}
	if c.Attendance.Timezone == "" {
		c.Attendance.Timezone = defaultTimezone
	}
	if c.Attendance.StatsWorkers <= 0 {
		c.Attendance.StatsWorkers = 8
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = defaultTopic
	}
}

func (c *Config) validate() error {
	if c.Mode != "dev" && c.Mode != "release" {
		return fmt.Errorf("mode は dev か release: %q", c.Mode)
	}
	if c.DB.Driver != DriverMySQL && c.DB.Driver != DriverSQLite {
		return fmt.Errorf("未対応の database.driver: %q", c.DB.Driver)
	}
	if c.Mode == "release" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("release モードでは auth.jwt_secret が必須")
	}
	if _, err := time.LoadLocation(c.Attendance.Timezone); err != nil {
		return fmt.Errorf("attendance.timezone が不正: %w", err)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.enabled なのに kafka.brokers が空")
	}
	return nil
}

// Location: 設定済みタイムゾーン（validate 済みなので失敗時は UTC）
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Attendance.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TLSEnabled: 証明書と鍵が両方あるときだけ TLS で起動する
func (c *Config) TLSEnabled() bool {
	return c.Certificate.Cert != "" && c.Certificate.Key != ""
}

func Connect(c DatabaseConfig) (*sql.DB, error) {
	switch c.Driver {
	case DriverSQLite:
		return connectSQLite(c.Path)
	default:
		return connectMySQL(c)
	}
}

func connectMySQL(c DatabaseConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.DBName)

	db, err := sql.Open(DriverMySQL, dsn)
	if err != nil {
		return nil, fmt.Errorf("接続準備に失敗: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("DB接続に失敗: %w", err)
	}

	// 接続プール（合算がMySQLの max_connections を超えないよう配分する）
	db.SetMaxOpenConns(80)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// OpenSQLite: path が ":memory:" ならインメモリ。
// 時刻は _time_format=sqlite で文字列比較できる形で保存する。
func OpenSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("DBディレクトリ作成に失敗: %w", err)
		}
	}
	dsn := "file:" + path + "?_time_format=sqlite&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("接続準備に失敗: %w", err)
	}
	// インメモリDBは接続ごとに別DBになるので1本に絞る
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("DB接続に失敗: %w", err)
	}
	return db, nil
}

func connectSQLite(path string) (*sql.DB, error) {
	if path == "" {
		path = "data/caresync.db"
	}
	return OpenSQLite(path)
}
