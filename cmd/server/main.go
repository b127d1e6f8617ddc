package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/syncroom/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 80,
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	membersLimit = configVar[int]{
		envKey:       "SERVER_MEMBERS_LIMIT",
		flagKey:      "members-limit",
		defaultValue: 9,
	}
	chatHistoryLimit = configVar[int]{
		envKey:       "SERVER_CHAT_HISTORY_LIMIT",
		flagKey:      "chat-history-limit",
		defaultValue: 50,
	}
	sendQueueSize = configVar[int]{
		envKey:       "SERVER_SEND_QUEUE_SIZE",
		flagKey:      "send-queue-size",
		defaultValue: 64,
	}
	wsReadLimit = configVar[int64]{
		envKey:       "SERVER_WS_READ_LIMIT",
		flagKey:      "ws-read-limit",
		defaultValue: 64 * 1024,
	}
	wsPingPeriod = configVar[time.Duration]{
		envKey:       "SERVER_WS_PING_PERIOD",
		flagKey:      "ws-ping-period",
		defaultValue: 30 * time.Second,
	}
	wsMessagesPerSecond = configVar[float64]{
		envKey:       "SERVER_WS_MESSAGES_PER_SECOND",
		flagKey:      "ws-messages-per-second",
		defaultValue: 20,
	}
	wsBurst = configVar[int]{
		envKey:       "SERVER_WS_BURST",
		flagKey:      "ws-burst",
		defaultValue: 40,
	}
	transcriptBackend = configVar[string]{
		envKey:       "SERVER_TRANSCRIPT_BACKEND",
		flagKey:      "transcript-backend",
		defaultValue: app.TranscriptBackendMemory,
	}
	transcriptLimit = configVar[int]{
		envKey:       "SERVER_TRANSCRIPT_LIMIT",
		flagKey:      "transcript-limit",
		defaultValue: 1000,
	}
	transcriptTTL = configVar[time.Duration]{
		envKey:       "SERVER_TRANSCRIPT_TTL",
		flagKey:      "transcript-ttl",
		defaultValue: 24 * time.Hour,
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
	}
)

func bind[T any](v configVar[T]) {
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func loadAppConfig() *app.AppConfig {
	pflag.Int(port.flagKey, port.defaultValue, "Server port")
	pflag.String(host.flagKey, host.defaultValue, "Server host")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.Int(membersLimit.flagKey, membersLimit.defaultValue, "Maximum number of members in the room")
	pflag.Int(chatHistoryLimit.flagKey, chatHistoryLimit.defaultValue, "Number of recent chat messages sent to joining members")
	pflag.Int(sendQueueSize.flagKey, sendQueueSize.defaultValue, "Outgoing frames buffered per connection before it is dropped")
	pflag.Int64(wsReadLimit.flagKey, wsReadLimit.defaultValue, "Maximum size in bytes of an incoming websocket message")
	pflag.Duration(wsPingPeriod.flagKey, wsPingPeriod.defaultValue, "Interval between websocket pings")
	pflag.Float64(wsMessagesPerSecond.flagKey, wsMessagesPerSecond.defaultValue, "Messages per second allowed per connection, 0 disables the limit")
	pflag.Int(wsBurst.flagKey, wsBurst.defaultValue, "Burst of messages allowed per connection")
	pflag.String(transcriptBackend.flagKey, transcriptBackend.defaultValue, "Chat transcript storage: memory or redis")
	pflag.Int(transcriptLimit.flagKey, transcriptLimit.defaultValue, "Maximum number of archived chat messages per room")
	pflag.Duration(transcriptTTL.flagKey, transcriptTTL.defaultValue, "How long a room transcript is kept after its last message")
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, "Redis port")
	pflag.String(redisHost.flagKey, redisHost.defaultValue, "Redis host")
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, "Redis password")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	bind(port)
	bind(host)
	bind(logLevel)
	bind(membersLimit)
	bind(chatHistoryLimit)
	bind(sendQueueSize)
	bind(wsReadLimit)
	bind(wsPingPeriod)
	bind(wsMessagesPerSecond)
	bind(wsBurst)
	bind(transcriptBackend)
	bind(transcriptLimit)
	bind(transcriptTTL)
	bind(redisPort)
	bind(redisHost)
	bind(redisPassword)

	config := &app.AppConfig{
		Host:                viper.GetString(host.flagKey),
		Port:                viper.GetInt(port.flagKey),
		LogLevel:            viper.GetString(logLevel.flagKey),
		MembersLimit:        viper.GetInt(membersLimit.flagKey),
		ChatHistoryLimit:    viper.GetInt(chatHistoryLimit.flagKey),
		SendQueueSize:       viper.GetInt(sendQueueSize.flagKey),
		WSReadLimit:         viper.GetInt64(wsReadLimit.flagKey),
		WSPingPeriod:        viper.GetDuration(wsPingPeriod.flagKey),
		WSMessagesPerSecond: viper.GetFloat64(wsMessagesPerSecond.flagKey),
		WSBurst:             viper.GetInt(wsBurst.flagKey),
		TranscriptBackend:   viper.GetString(transcriptBackend.flagKey),
		TranscriptLimit:     viper.GetInt(transcriptLimit.flagKey),
		TranscriptTTL:       viper.GetDuration(transcriptTTL.flagKey),
		RedisPort:           viper.GetInt(redisPort.flagKey),
		RedisHost:           viper.GetString(redisHost.flagKey),
		RedisPassword:       viper.GetString(redisPassword.flagKey),
	}

	return config
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()
	if err := appConfig.Validate(); err != nil {
		log.Fatal(err)
	}

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
