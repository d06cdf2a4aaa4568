package configs

import (
	"github.com/magiconair/properties"
)

// LoadProperties overrides the store parameters from a .properties file.
// Keys follow the original server's store.* namespace; missing keys keep
// their current values.
func LoadProperties(path string) error {
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return err
	}
	ApplyProperties(p)
	ConfigFileLocation = path
	return nil
}

func ApplyProperties(p *properties.Properties) {
	StoreType = p.GetString("store.mode", StoreType)
	RedisLink = p.GetString("store.redis.url", RedisLink)
	RedisPoolSize = p.GetInt("store.redis.poolSize", RedisPoolSize)
	LogQueryLimit = p.GetInt("store.redis.queryLimit", LogQueryLimit)
	if LogQueryLimit <= 0 {
		LogQueryLimit = DefaultLogQueryLimit
	}
	SQLLink = p.GetString("store.sql.url", SQLLink)
	SQLMaxConns = p.GetInt("store.sql.maxConns", SQLMaxConns)
	MongoLink = p.GetString("store.mongo.url", MongoLink)
	MongoDatabase = p.GetString("store.mongo.database", MongoDatabase)
	EnableOpJournal = p.GetBool("store.journal.enable", EnableOpJournal)
	JournalDir = p.GetString("store.journal.dir", JournalDir)
	SweepInterval = p.GetParsedDuration("store.sweep.interval", SweepInterval)
}
