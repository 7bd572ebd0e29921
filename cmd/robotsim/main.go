package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/nidhogg/mignon/internal/eventbus"
	"github.com/nidhogg/mignon/internal/robot"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var server, robotID string

	root := &cobra.Command{
		Use:   "robotsim",
		Short: "Simulate the Mignon robot against an MCP server",
		Long: strings.TrimSpace(`robotsim plays the robot side of the protocol: it posts sensor
snapshots and emotional states, pulls queued commands and records interactions.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&server, "server", "http://localhost:8000", "MCP server URL")
	root.PersistentFlags().StringVar(&robotID, "robot", envOr("ROBOT_ID", "MignonBot1"), "Robot identity")

	clientFn := func() *client { return newClient(server, robotID) }
	root.AddCommand(newSensorsCommand(clientFn))
	root.AddCommand(newEmotionCommand(clientFn))
	root.AddCommand(newPollCommand(clientFn))
	root.AddCommand(newStatusCommand(clientFn))
	root.AddCommand(newWatchCommand(&robotID))
	root.AddCommand(newInteractiveCommand(clientFn))
	return root
}

func newSensorsCommand(clientFn func() *client) *cobra.Command {
	var (
		touch, shock, ir bool
		sound            int
		distance         float64
	)
	cmd := &cobra.Command{
		Use:     "sensors",
		Short:   "Send one sensor snapshot",
		Example: "  robotsim sensors --touch --distance 15",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := calmSensors()
			p.Touch.Touch = touch
			p.Touch.Shock = shock
			p.Vision.IRDetected = ir
			p.Sound.BigSound = sound
			if distance > 0 {
				p.Vision.Distance = distance
			}
			env, err := clientFn().sendSensors(p)
			if err != nil {
				return err
			}
			printEnvelope(env)
			return nil
		},
	}
	cmd.Flags().BoolVar(&touch, "touch", false, "Someone is touching the robot")
	cmd.Flags().BoolVar(&shock, "shock", false, "The shock sensor fired")
	cmd.Flags().BoolVar(&ir, "ir", false, "Infrared presence detected")
	cmd.Flags().IntVar(&sound, "sound", 0, "Loud sound level")
	cmd.Flags().Float64Var(&distance, "distance", 0, "Obstacle distance in cm")
	return cmd
}

func newEmotionCommand(clientFn func() *client) *cobra.Command {
	var duration int
	cmd := &cobra.Command{
		Use:     "emotion <type> <intensity>",
		Short:   "Report the robot's emotional state",
		Example: "  robotsim emotion joie 80",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			intensity, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("intensity: %w", err)
			}
			env, err := clientFn().sendEmotion(robot.EmotionType(args[0]), intensity, duration)
			if err != nil {
				return err
			}
			printEnvelope(env)
			return nil
		},
	}
	cmd.Flags().IntVar(&duration, "duration", 0, "Milliseconds since the emotion changed")
	return cmd
}

func newPollCommand(clientFn func() *client) *cobra.Command {
	var (
		every time.Duration
		count int
	)
	cmd := &cobra.Command{
		Use:     "poll",
		Short:   "Pull queued commands, optionally on an interval",
		Example: "  robotsim poll --every 2s --count 10",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := clientFn()
			for i := 0; count <= 0 || i < count; i++ {
				cmds, err := c.pollCommands()
				if err != nil {
					return err
				}
				printCommands(cmds)
				if every <= 0 {
					return nil
				}
				time.Sleep(every)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&every, "every", 0, "Polling interval; zero polls once")
	cmd.Flags().IntVar(&count, "count", 0, "Number of polls; zero means forever")
	return cmd
}

func newStatusCommand(clientFn func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the live context the server holds for the robot",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := clientFn().status()
			if err != nil {
				return err
			}
			printEnvelope(env)
			return nil
		},
	}
}

func newWatchCommand(robotID *string) *cobra.Command {
	var redisURL string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the robot's event stream on Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			bus, err := eventbus.New(ctx, redisURL, zap.NewNop())
			if err != nil {
				return err
			}
			defer bus.Close()

			fmt.Printf("Watching %s (Ctrl-C to stop)\n", eventbus.Stream(*robotID))
			for msg := range bus.Subscribe(ctx, *robotID) {
				fmt.Printf("\033[90m%s\033[0m %-11s %s\n",
					msg.Timestamp.Local().Format("15:04:05"), msg.Kind, string(msg.Payload))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&redisURL, "redis", envOr("REDIS_URL", "redis://localhost:6379"), "Redis URL")
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
