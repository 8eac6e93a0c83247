// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers default values for every configuration key.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "birdlens")

	viper.SetDefault("logging.defaultlevel", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.fileoutput.enabled", false)
	viper.SetDefault("logging.fileoutput.path", "logs/birdlens.log")
	viper.SetDefault("logging.fileoutput.level", "info")

	viper.SetDefault("ebird.baseurl", "https://api.ebird.org/v2")
	viper.SetDefault("ebird.timeout", 30*time.Second)
	viper.SetDefault("ebird.cachettl", 24*time.Hour)
	viper.SetDefault("ebird.ratelimitms", 100)
	viper.SetDefault("ebird.maxretries", 3)

	viper.SetDefault("vision.baseurl", "https://api.openai.com/v1")
	viper.SetDefault("vision.model", "gpt-4o")
	viper.SetDefault("vision.maxtokens", 300)
	viper.SetDefault("vision.timeout", 60*time.Second)

	viper.SetDefault("imaging.maxdimension", 512)
	viper.SetDefault("imaging.quality", 75)
	viper.SetDefault("imaging.maxpixels", 40_000_000)

	viper.SetDefault("identification.defaultregion", "US")

	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local.path", "data/images")
	viper.SetDefault("storage.local.baseurl", "/images")
	viper.SetDefault("storage.local.minfreemb", 100)
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("storage.s3.presignexpiry", 7*24*time.Hour)
	viper.SetDefault("storage.sftp.port", 22)
	viper.SetDefault("storage.sftp.timeout", 30*time.Second)
	viper.SetDefault("storage.ftp.port", 21)
	viper.SetDefault("storage.ftp.timeout", 30*time.Second)

	viper.SetDefault("collection.type", "sqlite")
	viper.SetDefault("collection.sqlite.path", "data/birdlens.db")
	viper.SetDefault("collection.mysql.port", "3306")
	viper.SetDefault("collection.mongodb.uri", "mongodb://localhost:27017")
	viper.SetDefault("collection.mongodb.database", "birdlens")
	viper.SetDefault("collection.mongodb.collection", "collection_entries")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.ownerheader", "X-Owner-ID")
	viper.SetDefault("webserver.maxuploadmb", 20)
	viper.SetDefault("webserver.allowedorigins", []string{"*"})

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.clientid", "birdlens")
	viper.SetDefault("mqtt.topic", "birdlens/collection")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.urls", []string{})
	viper.SetDefault("notification.timeout", 10*time.Second)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.environment", "production")

	viper.SetDefault("metrics.enabled", true)
}
