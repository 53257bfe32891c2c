package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/flowops/cadenza/agent"
	"github.com/flowops/cadenza/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", "memory", "storage backend: redis, postgres or memory")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "cadenza", "namespace used for redis keys")
	cmd.Flags().String("postgres-dsn", "", "postgres connection url")
	cmd.Flags().Duration("scheduler-poll-interval", 10*time.Second, "poll interval for delayed workflows")
	cmd.Flags().Int("scheduler-batch-size", 100, "maximum delayed workflows resumed per poll")
	cmd.Flags().Int("dispatch-retry-limit", 3, "consecutive step failures before a workflow fails")
	cmd.Flags().Duration("definition-cache-ttl", 30*time.Minute, "time to live of cached definition snapshots")
	cmd.Flags().Int64("max-timer-delay-seconds", 3600, "largest delay kept on the in-process timer wheel")
	cmd.Flags().String("notification-log-file", "", "append notifications as json lines to this file instead of the process log")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	viper.SetConfigFile(configFile)

	if err = viper.ReadInConfig(); err != nil {
		// it's ok if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.PostgresConfig.DSN = viper.GetString("postgres-dsn")
	c.cfg.SchedulerPollInterval = viper.GetDuration("scheduler-poll-interval")
	c.cfg.SchedulerBatchSize = viper.GetInt("scheduler-batch-size")
	c.cfg.DispatchRetryLimit = viper.GetInt("dispatch-retry-limit")
	c.cfg.DefinitionCacheTTL = viper.GetDuration("definition-cache-ttl")
	c.cfg.MaxTimerDelaySeconds = viper.GetInt64("max-timer-delay-seconds")
	c.cfg.NotificationLogFile = viper.GetString("notification-log-file")
	return nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		panic(err)
	}
	err = agent.Start()
	if err != nil {
		panic(err)
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "cadenza",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
