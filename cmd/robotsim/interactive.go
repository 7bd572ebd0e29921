package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/nidhogg/mignon/internal/robot"
	"github.com/spf13/cobra"
)

const interactiveHelp = `Commands:
  /touch            send a snapshot with the touch sensor on
  /obstacle <cm>    send a snapshot with an obstacle at <cm>
  /emotion <t> <n>  report emotion t with intensity n
  /poll             pull queued commands
  /status           show the server-side context
  exit | quit       leave
Anything else is recorded as something a human said to the robot.`

func newInteractiveCommand(clientFn func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Drive the simulated robot from a prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return interactiveMode(clientFn())
		},
	}
}

func interactiveMode(c *client) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("\033[36m%s>\033[0m ", c.robot),
		HistoryFile:     filepath.Join(os.TempDir(), ".robotsim_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("Mignon robot simulator | Server: %s | Robot: %s\n", c.server, c.robot)
	fmt.Println(interactiveHelp)
	fmt.Println("---")

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("Bye!")
				return nil
			}
			printError("read input: %v", err)
			continue
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return nil
		}
		if err := dispatch(c, input); err != nil {
			printError("%v", err)
		}
	}
}

func dispatch(c *client, input string) error {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/help":
		fmt.Println(interactiveHelp)
		return nil
	case "/touch":
		p := calmSensors()
		p.Touch.Touch = true
		return show(c.sendSensors(p))
	case "/obstacle":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /obstacle <cm>")
		}
		cm, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return fmt.Errorf("distance: %w", err)
		}
		p := calmSensors()
		p.Vision.Distance = cm
		return show(c.sendSensors(p))
	case "/emotion":
		if len(fields) != 3 {
			return fmt.Errorf("usage: /emotion <type> <intensity>")
		}
		n, err := strconv.Atoi(fields[2])
		if err != nil {
			return fmt.Errorf("intensity: %w", err)
		}
		return show(c.sendEmotion(robot.EmotionType(fields[1]), n, 0))
	case "/poll":
		cmds, err := c.pollCommands()
		if err != nil {
			return err
		}
		printCommands(cmds)
		return nil
	case "/status":
		return show(c.status())
	}
	if strings.HasPrefix(input, "/") {
		return fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
	return show(c.sendInteraction(robot.InteractionConversation, input,
		robot.Metadata{IsRobot: robot.BoolPtr(false)}))
}

func show(env *envelope, err error) error {
	if err != nil {
		return err
	}
	printEnvelope(env)
	return nil
}
