package config

// redacted is the placeholder substituted for secret values in log output.
const redacted = "***"

// RedactedConfig returns a copy of cfg safe for logging: credentials and
// tokens are replaced with a placeholder and mutable slices are copied so the
// caller cannot alias the original.
func RedactedConfig(cfg Config) Config {
	out := cfg

	if out.Providers.Tiingo.Token != "" {
		out.Providers.Tiingo.Token = redacted
	}
	if out.Providers.Alpaca.KeyID != "" {
		out.Providers.Alpaca.KeyID = redacted
	}
	if out.Providers.Alpaca.SecretKey != "" {
		out.Providers.Alpaca.SecretKey = redacted
	}

	if out.Database.DSN != "" {
		out.Database.DSN = redacted
	}
	if out.Database.Password != "" {
		out.Database.Password = redacted
	}
	if out.Redis.Password != "" {
		out.Redis.Password = redacted
	}
	if out.S3.AccessKey != "" {
		out.S3.AccessKey = redacted
	}
	if out.S3.SecretKey != "" {
		out.S3.SecretKey = redacted
	}
	if out.Server.APIKey != "" {
		out.Server.APIKey = redacted
	}

	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)

	return out
}
