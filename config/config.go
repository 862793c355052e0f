package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type (
	Properties struct {
		Listen    string `env:"LISTEN" envDefault:":3002"`
		LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
		LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
		PublicURL string `env:"PUBLIC_URL" envDefault:"http://localhost:3002"`

		CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:*,https://localhost:*"`

		StorageType      string `env:"STORAGE_TYPE" envDefault:"memory"`
		DataSourceName   string `env:"DATA_SOURCE_NAME" envDefault:"photoshare.db"`
		LocalStoragePath string `env:"LOCAL_STORAGE_PATH" envDefault:"./data/blobs"`

		Blob   BlobProperties   `envPrefix:"BLOB_"`
		S3     S3Properties     `envPrefix:"S3_"`
		Minio  MinioProperties  `envPrefix:"MINIO_"`
		GCS    GCSProperties    `envPrefix:"GCS_"`
		Auth   AuthProperties
		OIDC   OIDCProperties   `envPrefix:"OIDC_"`
		GitHub GitHubProperties `envPrefix:"GITHUB_"`
		Sweep  SweepProperties  `envPrefix:"SWEEP_"`
	}

	BlobProperties struct {
		StorageType string        `env:"STORAGE_TYPE" envDefault:"memory"`
		KeyPrefix   string        `env:"KEY_PREFIX" envDefault:"images/"`
		UploadTTL   time.Duration `env:"UPLOAD_TTL" envDefault:"15m"`
		URLTTL      time.Duration `env:"URL_TTL" envDefault:"1h"`
		MaxBytes    int64         `env:"MAX_BYTES" envDefault:"10485760"`
	}

	S3Properties struct {
		BucketName      string `env:"BUCKET_NAME"`
		Region          string `env:"REGION" envDefault:"us-east-1"`
		Endpoint        string `env:"ENDPOINT"`
		UsePathStyle    bool   `env:"USE_PATH_STYLE" envDefault:"false"`
		AccessKeyID     string `env:"ACCESS_KEY_ID"`
		SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	}

	MinioProperties struct {
		Endpoint  string `env:"ENDPOINT" envDefault:"localhost:9000"`
		AccessKey string `env:"ACCESS_KEY"`
		SecretKey string `env:"SECRET_KEY"`
		Bucket    string `env:"BUCKET" envDefault:"photoshare"`
		UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
	}

	GCSProperties struct {
		BucketName     string `env:"BUCKET_NAME"`
		GoogleAccessID string `env:"GOOGLE_ACCESS_ID"`
		PrivateKeyFile string `env:"PRIVATE_KEY_FILE"`
	}

	AuthProperties struct {
		JWTSecret string        `env:"JWT_SECRET"`
		JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"168h"`
		DevLogin  bool          `env:"AUTH_DEV_LOGIN" envDefault:"false"`
	}

	OIDCProperties struct {
		IssuerURL    string `env:"ISSUER_URL"`
		ClientID     string `env:"CLIENT_ID"`
		ClientSecret string `env:"CLIENT_SECRET"`
		RedirectURL  string `env:"REDIRECT_URL"`
	}

	GitHubProperties struct {
		ClientID     string `env:"CLIENT_ID"`
		ClientSecret string `env:"CLIENT_SECRET"`
		RedirectURL  string `env:"REDIRECT_URL"`
	}

	SweepProperties struct {
		Interval    time.Duration `env:"INTERVAL" envDefault:"1m"`
		BatchSize   int           `env:"BATCH_SIZE" envDefault:"50"`
		MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"10"`
	}
)

// ReadProperties parses the process environment.
func ReadProperties() (*Properties, error) {
	props := &Properties{}
	if err := env.Parse(props); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}
	return props, nil
}
