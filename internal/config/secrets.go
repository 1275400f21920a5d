package config

import "net/url"

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Node URLs frequently embed a provider key in the path or query.
	out.Node.URL = redactURL(cfg.Node.URL)

	redact(&out.Dune.APIKey)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.Redis.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	out.Notify.DiscordWebhook = redactURL(cfg.Notify.DiscordWebhook)
	redact(&out.Notify.TelegramToken)

	// Copy maps and slices so mutations to the redacted copy do not affect
	// the original.
	if cfg.Ingest.BackoffBlocks != nil {
		out.Ingest.BackoffBlocks = make(map[string]uint64, len(cfg.Ingest.BackoffBlocks))
		for k, v := range cfg.Ingest.BackoffBlocks {
			out.Ingest.BackoffBlocks[k] = v
		}
	}
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Registry.Pools != nil {
		out.Registry.Pools = make([]PoolConfig, len(cfg.Registry.Pools))
		copy(out.Registry.Pools, cfg.Registry.Pools)
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

// redactURL keeps scheme and host of a URL and hides the rest.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return redacted
	}
	if u.Path == "" && u.RawQuery == "" && u.User == nil {
		return raw
	}
	return u.Scheme + "://" + u.Host + "/" + redacted
}
