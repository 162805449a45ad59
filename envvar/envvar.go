package envvar

const (
	// Env is the environment variable used to determine the environment
	// (development or production). It selects the console log format.
	Env = "MODELRESOLVER_ENV"

	// Backend overrides storage.backend.
	Backend = "MODELRESOLVER_BACKEND"

	// Bucket overrides resolver.bucket_name.
	Bucket = "MODELRESOLVER_BUCKET"

	// PublicBaseURL overrides storage.public_base_url.
	PublicBaseURL = "MODELRESOLVER_PUBLIC_BASE_URL"

	// AccessKey overrides storage.access_key.
	AccessKey = "MODELRESOLVER_ACCESS_KEY"

	// SecretKey overrides storage.secret_key.
	SecretKey = "MODELRESOLVER_SECRET_KEY"

	// RedisAddr overrides cache.redis_addr.
	RedisAddr = "MODELRESOLVER_REDIS_ADDR"

	// RedisPassword overrides cache.redis_password.
	RedisPassword = "MODELRESOLVER_REDIS_PASSWORD"
)
