package config

// RedactedConfig returns a copy of cfg with sensitive fields replaced by the
// redaction placeholder "***". Use this when logging or printing the active
// configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Redis.Password)
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}

	if cfg.Notify.Outcomes != nil {
		out.Notify.Outcomes = make([]string, len(cfg.Notify.Outcomes))
		copy(out.Notify.Outcomes, cfg.Notify.Outcomes)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
