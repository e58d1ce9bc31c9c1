package config

import (
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Config struct {
	App         App           `yaml:"app"`
	Audio       Audio         `yaml:"audio"`
	Storage     Storage       `yaml:"storage"`
	Upload      Upload        `yaml:"upload"`
	Queue       *RabbitMQ     `yaml:"rabbitmq"`
	ObjectStore *minio.Client `yaml:"-"`
	Server      Server        `yaml:"server"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
}

type Audio struct {
	SampleRate  int    `yaml:"sample_rate"`
	Channels    int    `yaml:"channels"`
	BitrateKbps int    `yaml:"bitrate_kbps"`
	FrameSize   int    `yaml:"frame_size"`
}

type Storage struct {
	Path string `yaml:"path"`
}

// Upload selects the finalize target. Driver "http" posts the artifact to
// Endpoint; driver "s3" puts it into the MinIO bucket.
type Upload struct {
	Driver   string `yaml:"driver"`
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetDefault("audio.sample_rate", 44100)
	viper.SetDefault("audio.channels", 1)
	viper.SetDefault("audio.bitrate_kbps", 64)
	viper.SetDefault("audio.frame_size", 4096)
	viper.SetDefault("storage.path", "capture.db")
	viper.SetDefault("upload.driver", "http")
	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host:         viper.GetString("rabbitmq_host"),
		Port:         viper.GetInt("rabbitmq_port"),
		User:         viper.GetString("rabbitmq_user"),
		Pass:         viper.GetString("rabbitmq_pass"),
		ExchangeName: viper.GetString("rabbitmq_exchange"),
		Kind:         viper.GetString("rabbitmq_kind"),
	}

	cfg := &Config{
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
		},
		Audio: Audio{
			SampleRate:  viper.GetInt("audio.sample_rate"),
			Channels:    viper.GetInt("audio.channels"),
			BitrateKbps: viper.GetInt("audio.bitrate_kbps"),
			FrameSize:   viper.GetInt("audio.frame_size"),
		},
		Storage: Storage{
			Path: viper.GetString("storage.path"),
		},
		Upload: Upload{
			Driver:   viper.GetString("upload.driver"),
			Endpoint: viper.GetString("upload.endpoint"),
			Bucket:   viper.GetString("minio.bucket"),
		},
		Server: Server{
			HttpPort: viper.GetString("server.port"),
		},
		Queue: rabbitmq,
	}

	if cfg.Upload.Driver == "s3" {
		minioClient, err := minio.New(viper.GetString("minio.url"), &minio.Options{
			Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
			Secure: false,
		})
		if err != nil {
			return nil, err
		}
		cfg.ObjectStore = minioClient
	}

	return cfg, nil
}
