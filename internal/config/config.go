// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"errors"
	"fmt"
	"strings"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	TLS      TLSConfig
	Intra    IntraConfig
	Discord  DiscordConfig
	SMTP     SMTPConfig
}

type TLSConfig struct {
	Mode     string // auto, acme, selfsigned, manual, off
	CertDir  string // Directory for auto-generated certificates
	Email    string // ACME email for Let's Encrypt
	CertFile string // Path to certificate file (manual mode)
	KeyFile  string // Path to private key file (manual mode)
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host         string
	Port         int
	BaseURL      string
	MaxBodySize  int    // in MB
	MessagesFile string // TOML file overriding page texts
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

// IntraConfig holds the OAuth2 application registered on the intranet.
type IntraConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string // defaults to <base-url>/auth/callback
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	Scopes       []string
}

// DiscordConfig holds the bot credentials and guild layout.
type DiscordConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Token             string
	GuildID           string
	RoleID            string // verified role
	AdminRoleID       string // may use the admin commands, optional
	FallbackChannelID string // used when a DM cannot be delivered, optional
	RegisterCommands  bool
}

// SMTPConfig configures operator alerts. Alerts are disabled without a host.
type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
	AlertTo  []string
}

// Enabled reports whether alerts can be sent.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && len(c.AlertTo) > 0
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:         cmd.String("host"),
			Port:         int(cmd.Int("port")),
			BaseURL:      cmd.String("base-url"),
			MaxBodySize:  int(cmd.Int("max-body-size")),
			MessagesFile: cmd.String("messages-file"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Intra: IntraConfig{
			ClientID:     cmd.String("intra-client-id"),
			ClientSecret: cmd.String("intra-client-secret"),
			RedirectURL:  cmd.String("intra-redirect-url"),
			AuthURL:      cmd.String("intra-auth-url"),
			TokenURL:     cmd.String("intra-token-url"),
			APIBaseURL:   cmd.String("intra-api-url"),
			Scopes:       splitList(cmd.String("intra-scopes")),
		},
		Discord: DiscordConfig{
			Token:             cmd.String("discord-token"),
			GuildID:           cmd.String("discord-guild-id"),
			RoleID:            cmd.String("discord-role-id"),
			AdminRoleID:       cmd.String("discord-admin-role-id"),
			FallbackChannelID: cmd.String("discord-fallback-channel-id"),
			RegisterCommands:  cmd.Bool("discord-register-commands"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
			AlertTo:  splitList(cmd.String("smtp-alert-to")),
		},
	}

	if cmd.Bool("debug") {
		cfg.Log.Level = "debug"
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}
	cfg.Server.BaseURL = strings.TrimSuffix(cfg.Server.BaseURL, "/")

	applyIntraDefaults(cfg)

	return cfg
}

// applyIntraDefaults derives the redirect URL from the resolved BaseURL.
func applyIntraDefaults(cfg *Config) {
	if cfg.Intra.RedirectURL == "" {
		cfg.Intra.RedirectURL = cfg.Server.BaseURL + "/auth/callback"
	}
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var errs []error
	required := []struct {
		value string
		flag  string
	}{
		{c.Intra.ClientID, "intra-client-id"},
		{c.Intra.ClientSecret, "intra-client-secret"},
		{c.Discord.Token, "discord-token"},
		{c.Discord.GuildID, "discord-guild-id"},
		{c.Discord.RoleID, "discord-role-id"},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("--%s is required", r.flag))
		}
	}

	if c.SMTP.Host != "" && c.SMTP.From == "" {
		errs = append(errs, errors.New("--smtp-from is required when --smtp-host is set"))
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	// Determine if TLS will be used
	useTLS := shouldUseTLS(mode, host)

	scheme := "http"
	if useTLS {
		scheme = "https"
	}

	// ACME mode always uses port 443
	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func shouldUseTLS(mode, host string) bool {
	switch mode {
	case "off":
		return false
	case "acme", "selfsigned", "manual":
		return true
	default: // "auto" or empty
		return !IsLocalhost(host)
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Public base URL, used for the OAuth2 redirect",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "messages-file",
			Usage:   "TOML file overriding page texts such as the server rules",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MESSAGES_FILE"), toml.TOML("server.messages_file", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "Shortcut for --log-level debug",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DEBUG"), toml.TOML("log.debug", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/intragate.db",
			Usage:   "Audit log database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "auto",
			Usage:   "TLS mode (auto, acme, selfsigned, manual, off)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_MODE"), toml.TOML("tls.mode", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for auto-generated certificates",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_DIR"), toml.TOML("tls.cert_dir", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_EMAIL"), toml.TOML("tls.email", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_FILE"), toml.TOML("tls.cert_file", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_KEY_FILE"), toml.TOML("tls.key_file", configFile)),
		},
	}
	flags = append(flags, intraFlags()...)
	flags = append(flags, discordFlags()...)
	return append(flags, smtpFlags()...)
}

func intraFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "intra-client-id",
			Usage:   "Intranet OAuth2 client ID",
			Sources: cli.NewValueSourceChain(cli.EnvVar("INTRA_CLIENT_ID"), toml.TOML("intra.client_id", configFile)),
		},
		&cli.StringFlag{
			Name:    "intra-client-secret",
			Usage:   "Intranet OAuth2 client secret",
			Sources: cli.NewValueSourceChain(cli.EnvVar("INTRA_CLIENT_SECRET"), toml.TOML("intra.client_secret", configFile)),
		},
		&cli.StringFlag{
			Name:    "intra-redirect-url",
			Usage:   "OAuth2 redirect URL (defaults to <base-url>/auth/callback)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("INTRA_REDIRECT_URL"), toml.TOML("intra.redirect_url", configFile)),
		},
		&cli.StringFlag{
			Name:    "intra-auth-url",
			Usage:   "Intranet authorization endpoint",
			Sources: cli.NewValueSourceChain(cli.EnvVar("INTRA_AUTH_URL"), toml.TOML("intra.auth_url", configFile)),
		},
		&cli.StringFlag{
			Name:    "intra-token-url",
			Usage:   "Intranet token endpoint",
			Sources: cli.NewValueSourceChain(cli.EnvVar("INTRA_TOKEN_URL"), toml.TOML("intra.token_url", configFile)),
		},
		&cli.StringFlag{
			Name:    "intra-api-url",
			Usage:   "Intranet API base URL",
			Sources: cli.NewValueSourceChain(cli.EnvVar("INTRA_API_URL"), toml.TOML("intra.api_url", configFile)),
		},
		&cli.StringFlag{
			Name:    "intra-scopes",
			Value:   "public",
			Usage:   "Comma separated OAuth2 scopes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("INTRA_SCOPES"), toml.TOML("intra.scopes", configFile)),
		},
	}
}

func discordFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "discord-token",
			Usage:   "Discord bot token",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DISCORD_TOKEN"), toml.TOML("discord.token", configFile)),
		},
		&cli.StringFlag{
			Name:    "discord-guild-id",
			Usage:   "Guild to verify members of",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DISCORD_GUILD_ID"), toml.TOML("discord.guild_id", configFile)),
		},
		&cli.StringFlag{
			Name:    "discord-role-id",
			Usage:   "Role granted to verified members",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DISCORD_ROLE_ID"), toml.TOML("discord.role_id", configFile)),
		},
		&cli.StringFlag{
			Name:    "discord-admin-role-id",
			Usage:   "Role allowed to use the admin commands (Administrator always is)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DISCORD_ADMIN_ROLE_ID"), toml.TOML("discord.admin_role_id", configFile)),
		},
		&cli.StringFlag{
			Name:    "discord-fallback-channel-id",
			Usage:   "Channel for verification links that cannot be sent by DM",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DISCORD_FALLBACK_CHANNEL_ID"), toml.TOML("discord.fallback_channel_id", configFile)),
		},
		&cli.BoolFlag{
			Name:    "discord-register-commands",
			Value:   true,
			Usage:   "Register the admin slash commands on startup",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DISCORD_REGISTER_COMMANDS"), toml.TOML("discord.register_commands", configFile)),
		},
	}
}

func smtpFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP host for operator alerts (alerts are off when empty)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "intragate",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS (implicit on port 465, STARTTLS otherwise)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-alert-to",
			Usage:   "Comma separated alert recipients",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_ALERT_TO"), toml.TOML("smtp.alert_to", configFile)),
		},
	}
}
