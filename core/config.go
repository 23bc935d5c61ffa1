package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host            string
		DebugHost       string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
		MaxUploadSize   int64 // bytes
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	EmailConfig struct {
		Backend          string // console | sendgrid | none
		SendgridApiKey   string
		DefaultFromName  string
		DefaultFromEmail string
		// ReviewerEmail receives a copy of every flagged-submission notice.
		ReviewerEmail string
	}

	PlagiarismConfig struct {
		// FlagThreshold is the plagiarised percentage from which a Submission gets flagged.
		FlagThreshold  float64
		RecheckWorkers int
	}

	Config struct {
		Debug        bool
		TestMode     bool
		AppName      string
		Env          string
		Build        string
		Storage      string // postgres | memory
		RollbarToken string

		Server     ServerConfig
		Database   DatabaseConfig
		Email      EmailConfig
		Plagiarism PlagiarismConfig
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

func (ec EmailConfig) DefaultFrom() mail.Address {
	return mail.Address{Name: ec.DefaultFromName, Address: ec.DefaultFromEmail}
}

// NewConfig loads the app config from the environment. ENV selects the env prefix (DEV; default, TEST, QA, PROD)
// and the optional `config/.env.<env>` file.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Plagiat")
	v.SetDefault("build", "develop")
	v.SetDefault("storage", "postgres")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("serverHost", ":8000")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverReadTimeout", 5*time.Second)
	v.SetDefault("serverWriteTimeout", 10*time.Second)
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("serverMaxUploadSize", int64(10<<20))

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "plagiat")
	v.SetDefault("dbUser", "plagiat")
	v.SetDefault("dbPassword", "plagiat")
	v.SetDefault("dbAdminUser", "")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("emailBackend", "console")
	v.SetDefault("emailSendgridApiKey", "")
	v.SetDefault("emailDefaultFromName", "Plagiat")
	v.SetDefault("emailDefaultFromEmail", "noreply@plagiat.local")
	v.SetDefault("emailReviewerEmail", "")

	v.SetDefault("plagiarismFlagThreshold", 50.0)
	v.SetDefault("plagiarismRecheckWorkers", 4)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		AppName:      v.GetString("appName"),
		Env:          env,
		Build:        v.GetString("build"),
		Storage:      strings.ToLower(v.GetString("storage")),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:            v.GetString("serverHost"),
			DebugHost:       v.GetString("serverDebugHost"),
			ReadTimeout:     v.GetDuration("serverReadTimeout"),
			WriteTimeout:    v.GetDuration("serverWriteTimeout"),
			ShutdownTimeout: v.GetDuration("serverShutdownTimeout"),
			MaxUploadSize:   v.GetInt64("serverMaxUploadSize"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		Email: EmailConfig{
			Backend:          strings.ToLower(v.GetString("emailBackend")),
			SendgridApiKey:   v.GetString("emailSendgridApiKey"),
			DefaultFromName:  v.GetString("emailDefaultFromName"),
			DefaultFromEmail: v.GetString("emailDefaultFromEmail"),
			ReviewerEmail:    v.GetString("emailReviewerEmail"),
		},
		Plagiarism: PlagiarismConfig{
			FlagThreshold:  v.GetFloat64("plagiarismFlagThreshold"),
			RecheckWorkers: v.GetInt("plagiarismRecheckWorkers"),
		},
	}
}
