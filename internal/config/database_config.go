package config

import "github.com/spf13/viper"

const databaseURLVar = "DATABASE_URL"

type Database struct {
	v *viper.Viper
}

var _ DatabaseConfig = Database{}

// GetDatabaseURL returns the Postgres DSN. An empty value selects the in-memory store.
func (d Database) GetDatabaseURL() string {
	return d.v.GetString(databaseURLVar)
}
