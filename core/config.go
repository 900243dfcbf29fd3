package core

import (
	"fmt"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var Conf *Config

type (
	ServerConfig struct {
		Host string
		Port int
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          int
		DisableTLS    bool
	}

	ReconConfig struct {
		// MinAutolinkConfidence is the lowest match confidence Autolink accepts.
		MinAutolinkConfidence float64
		// NameMatchThreshold is the lowest similarity ratio accepted for name matches.
		NameMatchThreshold float64
	}

	Config struct {
		Debug            bool
		TestMode         bool
		Env              string
		Build            string
		AppName          string
		WorkDir          string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		AdminEmail       mail.Address
		SendgridAPIKey   string
		RollbarToken     string
		Server           ServerConfig
		Database         DatabaseConfig
		Recon            ReconConfig
		ShutdownTimeout  time.Duration
	}
)

func (c ServerConfig) Address() string   { return fmt.Sprintf("%s:%d", c.Host, c.Port) }
func (c DatabaseConfig) Address() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

func init() {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "CoursePay Recon")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("adminEmail", "admin@localhost")
	v.SetDefault("shutdownTimeout", 20*time.Second)

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8000)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.name", "recon")
	v.SetDefault("database.user", "recon")
	v.SetDefault("database.password", "recon")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("recon.minAutolinkConfidence", 0.9)
	v.SetDefault("recon.nameMatchThreshold", 0.85)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	var testMode bool
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		testMode = true
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	Conf = &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         testMode,
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		WorkDir:          wd,
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		AdminEmail:       mail.Address{Address: v.GetString("adminEmail")},
		SendgridAPIKey:   v.GetString("sendgridAPIKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		ShutdownTimeout:  v.GetDuration("shutdownTimeout"),
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Recon: ReconConfig{
			MinAutolinkConfidence: v.GetFloat64("recon.minAutolinkConfidence"),
			NameMatchThreshold:    v.GetFloat64("recon.nameMatchThreshold"),
		},
	}
	if testMode {
		Conf.Database.Name += "_test"
	}
}
