package config

type Store struct {
	DatabasePath  string `envconfig:"DATABASE_PATH" default:"./data/backoffice.db"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"backoffice"`
}

var _ StoreConfig = Store{}

func (s Store) GetDatabasePath() string {
	return s.DatabasePath
}

func (s Store) GetRedisAddr() string {
	return s.RedisAddr
}

func (s Store) GetRedisPassword() string {
	return s.RedisPassword
}

func (s Store) GetRedisDB() int {
	return s.RedisDB
}

func (s Store) GetRedisPrefix() string {
	return s.RedisPrefix
}
