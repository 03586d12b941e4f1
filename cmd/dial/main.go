// Command dial drives one audio session from the terminal.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/voicelink/internal/app/orch"
	"github.com/dkeye/voicelink/internal/app/session"
	"github.com/dkeye/voicelink/internal/config"
	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/domain"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "dial",
		Short:   "dial - connect one realtime audio session",
		Version: Version,
		RunE:    runDial,
	}
	rootCmd.Flags().StringP("source", "s", "", "Ogg/Opus file looped as microphone input (default: silence)")
	rootCmd.Flags().StringP("record", "r", "", "Directory for recorded remote audio")
	rootCmd.Flags().StringP("model", "m", "", "Realtime model override")
	rootCmd.Flags().Bool("debug", false, "Debug logging")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDial(cmd *cobra.Command, _ []string) error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("source"); v != "" {
		cfg.Audio.Source = v
	}
	if v, _ := cmd.Flags().GetString("record"); v != "" {
		cfg.Audio.RecordPath = v
	}
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		cfg.Realtime.Model = v
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := orch.New(cfg).NewManager("dial")
	out := cmd.OutOrStdout()
	ev := m.Events()
	ev.OnStateChange(func(s domain.ConnectionState) { fmt.Fprintf(out, "state: %s\n", s) })
	ev.OnStream(func(s core.RemoteStream) { fmt.Fprintf(out, "stream: %s (%s)\n", s.ID(), s.Codec()) })
	ev.OnError(func(err error) { fmt.Fprintf(out, "error: %v\n", err) })
	ev.OnMessage(func(msg session.Message) { fmt.Fprintf(out, "message: %s\n", msg.Type) })

	if err := m.Connect(ctx); err != nil {
		return err
	}
	defer m.Disconnect()

	fmt.Fprintln(out, "commands: mute, unmute, send <json>, quit")
	lines := make(chan string)
	go readLines(cmd.InOrStdin(), lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleLine(m, line, out); done {
				return nil
			}
		}
	}
}

func readLines(in io.Reader, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		lines <- strings.TrimSpace(sc.Text())
	}
}

func handleLine(m *session.Manager, line string, out io.Writer) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "":
	case "quit", "exit":
		return true
	case "mute":
		m.SetAudioEnabled(false)
	case "unmute":
		m.SetAudioEnabled(true)
	case "send":
		if !json.Valid([]byte(arg)) {
			fmt.Fprintln(out, "send: invalid json")
			return false
		}
		if err := m.SendMessage(json.RawMessage(arg)); err != nil {
			fmt.Fprintf(out, "send: %v\n", err)
		}
	default:
		fmt.Fprintf(out, "unknown command %q\n", cmd)
	}
	return false
}
