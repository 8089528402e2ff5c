package main

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/solisctl/solis-integration/cmd"
)

func main() {
	// Optional .env for local runs; deployed instances use real env vars.
	_ = godotenv.Load()

	app := &cli.App{
		Name:   "solis-controller",
		Usage:  "bridge between MQTT command topics and the SolisCloud inverter API",
		Action: cmd.ControllerCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "key-id",
				EnvVars:  []string{"SOLIS_KEY_ID"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "key-secret",
				EnvVars:  []string{"SOLIS_KEY_SECRET"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "inverter-id",
				EnvVars:  []string{"SOLIS_INVERTER_ID"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "api-url",
				EnvVars: []string{"SOLIS_API_URL"},
				Value:   "",
				Usage:   "override the SolisCloud endpoint",
			},
			&cli.DurationFlag{
				Name:    "http-timeout",
				EnvVars: []string{"SOLIS_HTTP_TIMEOUT"},
				Value:   15 * time.Second,
			},
			&cli.StringFlag{
				Name:    "mqtt-host",
				EnvVars: []string{"MQTT_HOST"},
				Value:   "tcp://127.0.0.1:1883",
			},
			&cli.StringFlag{
				Name:    "mqtt-user",
				EnvVars: []string{"MQTT_USER"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-pass",
				EnvVars: []string{"MQTT_PASS"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "topic-prefix",
				EnvVars: []string{"TOPIC_PREFIX"},
				Value:   "solar",
			},
			&cli.BoolFlag{
				Name:    "discovery",
				EnvVars: []string{"DISCOVERY"},
				Value:   true,
				Usage:   "publish discovery configs and run the startup reads",
			},
			&cli.BoolFlag{
				Name:    "silent",
				EnvVars: []string{"SILENT"},
				Value:   false,
				Usage:   "suppress informational logging",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
