package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	// Chains: RPC URLs routinely embed provider API keys.
	out.Chains = make(map[string]ChainConfig, len(cfg.Chains))
	for name, ch := range cfg.Chains {
		redact(&ch.RPCURL)
		if ch.Tokens != nil {
			tokens := make([]TokenConfig, len(ch.Tokens))
			copy(tokens, ch.Tokens)
			ch.Tokens = tokens
		}
		out.Chains[name] = ch
	}

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Syncer.Templates != nil {
		out.Syncer.Templates = make([]TemplateConfig, len(cfg.Syncer.Templates))
		copy(out.Syncer.Templates, cfg.Syncer.Templates)
	}

	// Copy maps so mutations to the redacted copy do not affect the original.
	if cfg.Oracle.Feeds != nil {
		out.Oracle.Feeds = make(map[string]string, len(cfg.Oracle.Feeds))
		for k, v := range cfg.Oracle.Feeds {
			out.Oracle.Feeds[k] = v
		}
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
