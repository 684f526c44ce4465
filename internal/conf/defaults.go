// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "AquaGuard-Go")
	viper.SetDefault("main.loglevel", "info")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/aquaguard.log")
	viper.SetDefault("main.log.maxsize", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxage", 28)

	viper.SetDefault("web.host", "0.0.0.0")
	viper.SetDefault("web.port", 8090)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "aquaguard.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "aquaguard")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "aquaguard")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	viper.SetDefault("ml.storagedir", "ml_models")
	viper.SetDefault("ml.python", "venv/bin/python")
	viper.SetDefault("ml.predictscript", "ml/predict_leak.py")
	viper.SetDefault("ml.trainscript", "ml/train_with_ga.py")
	viper.SetDefault("ml.inferencetimeout", 10)
	viper.SetDefault("ml.versionstep", 0.1)

	viper.SetDefault("ingest.secretkeyhex", "A9F1C43E92ABCDEF76881244B35A9DEE")
	viper.SetDefault("ingest.defaultsensorid", "S001")
	viper.SetDefault("ingest.dedupwindowsec", 60)
	viper.SetDefault("ingest.lookbacksec", 10)
	viper.SetDefault("ingest.autotrainsampling", 10)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topicprefix", "aquaguard")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
}
