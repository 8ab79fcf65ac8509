package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers default values for every settings key.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "rtp-recorder")
	viper.SetDefault("main.timezone", "Local")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
	viper.SetDefault("logging.filelevel", "info")

	viper.SetDefault("feeds.count", 1000)
	viper.SetDefault("feeds.startport", 5001)
	viper.SetDefault("feeds.idprefix", "VT")
	viper.SetDefault("feeds.payloadtype", 100)
	viper.SetDefault("feeds.codec", "h264")

	viper.SetDefault("detection.enabled", true)
	viper.SetDefault("detection.bindaddress", "0.0.0.0")
	viper.SetDefault("detection.timeout", 10*time.Second)
	viper.SetDefault("detection.autorecord", true)
	viper.SetDefault("detection.maxconcurrent", 0)

	viper.SetDefault("recording.ffmpegpath", GetFfmpegBinaryName())
	viper.SetDefault("recording.outputdir", "recordings")
	viper.SetDefault("recording.duration", 60*time.Second)
	viper.SetDefault("recording.stoptimeout", 5*time.Second)
	viper.SetDefault("recording.audiocodec", "aac")
	viper.SetDefault("recording.container", "mp4")
	viper.SetDefault("recording.loglevel", "error")
	viper.SetDefault("recording.cleanexitcodes", []int{0, 255})
	viper.SetDefault("recording.archiveonfailure", false)

	viper.SetDefault("archive.target", "s3")
	viper.SetDefault("archive.prefix", "recordings")
	viper.SetDefault("archive.timeout", 5*time.Minute)
	viper.SetDefault("archive.breaker.failurethreshold", 5)
	viper.SetDefault("archive.breaker.timeout", 60*time.Second)
	viper.SetDefault("archive.s3.region", "us-east-1")
	viper.SetDefault("archive.local.path", "archive")
	viper.SetDefault("archive.sftp.port", 22)
	viper.SetDefault("archive.sftp.basepath", "/")
	viper.SetDefault("archive.sftp.timeout", 30*time.Second)
	viper.SetDefault("archive.ftp.port", 21)
	viper.SetDefault("archive.ftp.basepath", "/")
	viper.SetDefault("archive.ftp.timeout", 30*time.Second)

	viper.SetDefault("database.type", "mysql")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", 3306)
	viper.SetDefault("database.mysql.username", "root")
	viper.SetDefault("database.mysql.database", "rtp_streams")
	viper.SetDefault("database.sqlite.path", "rtp-recorder.db")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", ":3000")
	viper.SetDefault("webserver.maxconnections", 0)
	viper.SetDefault("webserver.debug", false)

	viper.SetDefault("telemetry.enabled", true)

	viper.SetDefault("sentry.enabled", false)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "rtp-recorder")

	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.urls", []string{})

	viper.SetDefault("janus.adminkey", "supersecret")
	viper.SetDefault("janus.secret", "adminpwd")
	viper.SetDefault("janus.layout", "multistream")
	viper.SetDefault("janus.recordingdir", "/opt/janus/recordings")
	viper.SetDefault("janus.record", true)
	viper.SetDefault("janus.output", "janus.plugin.streaming.jcfg")
}
