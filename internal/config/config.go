package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server
	APIPort            string
	PublicBaseURL      string // Base URL used to build artifact links (e.g. https://render.example.com)
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	JWTSecret          string // HS256 secret; when set, bearer JWTs are accepted alongside the API key
	JWTIssuer          string
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)
	HeartbeatInterval  time.Duration

	// Logging
	LogLevel  string
	LogFormat string // json | console

	// Job store
	JobStore     string // file | pebble | postgres
	JobStorePath string // file path (file) or directory (pebble)
	DatabaseURL  string

	// Queue
	QueueBackend string // memory | redis
	RedisURL     string
	RedisQueue   string

	// Paths
	TempDir  string // per-job workspaces
	ServeDir string // finished artifacts, served under /videos/

	// Encoder
	FFmpegPath         string
	FFprobePath        string
	MaxResolution      string // orientation-aware ceiling, long x short
	MaxFPS             int
	SceneTimeout       time.Duration
	AssemblyTimeout    time.Duration
	FallbackSceneSecs  float64
	InlineMaxBytes     int64
	InputFetchParallel int
	InputRoot          string // local input paths must lie under it; empty refuses them

	// Subtitles
	SubtitleFontPath     string // font asset used for burn-in
	SubtitleFontName     string // family name inside the font asset
	SubtitleFallbackFont string // substituted when the asset is missing
	SubtitleFontSize     int
	SubtitleMaxChars     int

	// Speech synthesis
	TTSProvider       string // google | elevenlabs | cartesia | openai | gemini
	TTSPayloadLimit   int    // bytes; 0 = provider default
	TTSEmotionMarkup  bool
	VoicesFile        string // YAML voice table
	DefaultVoice      string
	GoogleTTSKey      string
	GoogleTTSLanguage string
	ElevenLabsKey     string
	CartesiaKey       string
	CartesiaURL       string
	OpenAIKey         string
	OpenAITTSModel    string
	GeminiKey         string
	GeminiTTSModel    string

	// Publishing
	StorageBackend        string // local | supabase | s3 | gcs | sftp
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string
	S3Bucket              string
	S3Region              string
	S3Endpoint            string
	S3AccessKeyID         string
	S3SecretAccessKey     string
	S3PublicBaseURL       string
	GCSBucket             string
	GCSCredentialsFile    string
	SFTPHost              string
	SFTPUser              string
	SFTPPassword          string
	SFTPPrivateKey        string // PEM, raw or base64
	SFTPHostKey           string // authorized_keys line; empty skips host verification
	SFTPRemoteDir         string
	SFTPPublicBaseURL     string

	// Voices holds the tag -> voice id table, from VOICES_FILE when present.
	Voices map[string]string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		JWTIssuer:          getEnv("JWT_ISSUER", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		HeartbeatInterval:  getEnvDuration("STREAM_HEARTBEAT_INTERVAL", 15*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		JobStore:     getEnv("JOB_STORE", "file"),
		JobStorePath: getEnv("JOB_STORE_PATH", "data/jobs.json"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		QueueBackend: getEnv("QUEUE_BACKEND", "memory"),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisQueue:   getEnv("REDIS_QUEUE", "queue:render"),

		TempDir:  getEnv("TEMP_DIR", "/tmp/storyreel"),
		ServeDir: getEnv("SERVE_DIR", "data/videos"),

		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		MaxResolution:      getEnv("MAX_RESOLUTION", "854x480"),
		MaxFPS:             getEnvInt("MAX_FPS", 30),
		SceneTimeout:       getEnvDuration("SCENE_TIMEOUT", 180*time.Second),
		AssemblyTimeout:    getEnvDuration("ASSEMBLY_TIMEOUT", 1800*time.Second),
		FallbackSceneSecs:  getEnvFloat("FALLBACK_SCENE_SECONDS", 10),
		InlineMaxBytes:     int64(getEnvInt("INLINE_MAX_BYTES", 20*1024*1024)),
		InputFetchParallel: getEnvInt("INPUT_FETCH_PARALLEL", 4),
		InputRoot:          getEnv("INPUT_ROOT", ""),

		SubtitleFontPath:     getEnv("SUBTITLE_FONT_PATH", "assets/fonts/NanumGothicBold.ttf"),
		SubtitleFontName:     getEnv("SUBTITLE_FONT_NAME", "NanumGothic"),
		SubtitleFallbackFont: getEnv("SUBTITLE_FALLBACK_FONT", "Sans"),
		SubtitleFontSize:     getEnvInt("SUBTITLE_FONT_SIZE", 0),
		SubtitleMaxChars:     getEnvInt("SUBTITLE_MAX_CHARS", 35),

		TTSProvider:       strings.ToLower(getEnv("TTS_PROVIDER", "")),
		TTSPayloadLimit:   getEnvInt("TTS_PAYLOAD_LIMIT", 0),
		TTSEmotionMarkup:  getEnvBool("TTS_EMOTION_MARKUP", true),
		VoicesFile:        getEnv("VOICES_FILE", ""),
		DefaultVoice:      getEnv("TTS_DEFAULT_VOICE", ""),
		GoogleTTSKey:      getEnv("GOOGLE_TTS_API_KEY", ""),
		GoogleTTSLanguage: getEnv("GOOGLE_TTS_LANGUAGE", "ko-KR"),
		ElevenLabsKey:     getEnv("ELEVENLABS_API_KEY", ""),
		CartesiaKey:       getEnv("CARTESIA_API_KEY", ""),
		CartesiaURL:       getEnv("CARTESIA_API_URL", "https://api.cartesia.ai"),
		OpenAIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAITTSModel:    getEnv("OPENAI_TTS_MODEL", "tts-1"),
		GeminiKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiTTSModel:    getEnv("GEMINI_TTS_MODEL", "gemini-2.5-flash-preview-tts"),

		StorageBackend:        strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "storyreel-videos"),
		S3Bucket:              getEnv("S3_BUCKET", ""),
		S3Region:              getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:            getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:         getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretAccessKey:     getEnv("AWS_SECRET_ACCESS_KEY", ""),
		S3PublicBaseURL:       getEnv("S3_PUBLIC_BASE_URL", ""),
		GCSBucket:             getEnv("GCS_BUCKET", ""),
		GCSCredentialsFile:    getEnv("GCS_CREDENTIALS_FILE", ""),
		SFTPHost:              getEnv("SFTP_HOST", ""),
		SFTPUser:              getEnv("SFTP_USER", ""),
		SFTPPassword:          getEnv("SFTP_PASSWORD", ""),
		SFTPPrivateKey:        getEnv("SFTP_PRIVATE_KEY", ""),
		SFTPHostKey:           getEnv("SFTP_HOST_KEY", ""),
		SFTPRemoteDir:         getEnv("SFTP_REMOTE_DIR", "videos"),
		SFTPPublicBaseURL:     getEnv("SFTP_PUBLIC_BASE_URL", ""),
	}

	if cfg.JobStore == "pebble" && os.Getenv("JOB_STORE_PATH") == "" {
		cfg.JobStorePath = "data/jobs.pebble"
	}

	if cfg.VoicesFile != "" {
		voices, err := LoadVoices(cfg.VoicesFile)
		if err != nil {
			return nil, err
		}
		cfg.Voices = voices.Voices
		if cfg.DefaultVoice == "" {
			cfg.DefaultVoice = voices.Default
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.JobStore {
	case "file", "pebble":
		if c.JobStorePath == "" {
			return fmt.Errorf("JOB_STORE_PATH is required for JOB_STORE=%s", c.JobStore)
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for JOB_STORE=postgres")
		}
	default:
		return fmt.Errorf("JOB_STORE must be file, pebble or postgres (got %q)", c.JobStore)
	}

	switch c.QueueBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("QUEUE_BACKEND must be memory or redis (got %q)", c.QueueBackend)
	}

	switch c.TTSProvider {
	case "":
	case "google":
		if c.GoogleTTSKey == "" {
			return fmt.Errorf("GOOGLE_TTS_API_KEY is required for TTS_PROVIDER=google")
		}
	case "elevenlabs":
		if c.ElevenLabsKey == "" {
			return fmt.Errorf("ELEVENLABS_API_KEY is required for TTS_PROVIDER=elevenlabs")
		}
	case "cartesia":
		if c.CartesiaKey == "" {
			return fmt.Errorf("CARTESIA_API_KEY is required for TTS_PROVIDER=cartesia")
		}
	case "openai":
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for TTS_PROVIDER=openai")
		}
	case "gemini":
		if c.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for TTS_PROVIDER=gemini")
		}
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider)
	}

	switch c.StorageBackend {
	case "local":
	case "supabase":
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required for STORAGE_BACKEND=supabase")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for STORAGE_BACKEND=s3")
		}
	case "gcs":
		if c.GCSBucket == "" {
			return fmt.Errorf("GCS_BUCKET is required for STORAGE_BACKEND=gcs")
		}
	case "sftp":
		if c.SFTPHost == "" || c.SFTPUser == "" || c.SFTPPublicBaseURL == "" {
			return fmt.Errorf("SFTP_HOST, SFTP_USER and SFTP_PUBLIC_BASE_URL are required for STORAGE_BACKEND=sftp")
		}
		if c.SFTPPassword == "" && c.SFTPPrivateKey == "" {
			return fmt.Errorf("SFTP_PASSWORD or SFTP_PRIVATE_KEY is required for STORAGE_BACKEND=sftp")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	if c.MaxFPS <= 0 {
		return fmt.Errorf("MAX_FPS must be positive")
	}
	if c.SceneTimeout <= 0 || c.AssemblyTimeout <= 0 {
		return fmt.Errorf("SCENE_TIMEOUT and ASSEMBLY_TIMEOUT must be positive")
	}
	if c.SubtitleMaxChars < 8 {
		return fmt.Errorf("SUBTITLE_MAX_CHARS must be at least 8")
	}
	return nil
}

// VoiceFile is the YAML layout of VOICES_FILE:
//
//	default: ko-KR-Neural2-C
//	voices:
//	  narrator: ko-KR-Neural2-C
//	  man: ko-KR-Neural2-B
type VoiceFile struct {
	Default string            `yaml:"default"`
	Voices  map[string]string `yaml:"voices"`
}

// LoadVoices reads a voice table file.
func LoadVoices(path string) (*VoiceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read voices file %s: %w", path, err)
	}

	var vf VoiceFile
	if err := yaml.Unmarshal(data, &vf); err != nil {
		return nil, fmt.Errorf("failed to parse voices file %s: %w", path, err)
	}
	if vf.Voices == nil {
		vf.Voices = map[string]string{}
	}
	return &vf, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
