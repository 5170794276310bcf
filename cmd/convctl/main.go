// Convctl is a terminal client for the conversation server. Lines typed on
// stdin stand in for speech recognition and replies are printed to stdout in
// place of synthesis, so the whole protocol can be exercised without a
// browser.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/converse-live/backend/pkg/client"
)

func main() {
	var (
		server    = pflag.StringP("server", "s", "ws://127.0.0.1:3001", "Conversation server URL")
		mode      = pflag.StringP("mode", "m", "chat", "Conversation mode: chat, interview, debate")
		role      = pflag.String("role", "", "Interview: target role")
		company   = pflag.String("company", "", "Interview: target company")
		questions = pflag.Int("questions", 0, "Interview: number of questions")
		topic     = pflag.String("topic", "", "Debate: topic")
		stance    = pflag.String("stance", "", "Debate: AI stance (pro or con)")
	)
	pflag.Parse()

	cfg := client.ModeConfig{
		Role:           *role,
		Company:        *company,
		TotalQuestions: *questions,
		Topic:          *topic,
		Stance:         *stance,
	}

	recognizer := newStdinRecognizer()
	synth := &stdoutSynthesizer{}

	conn := client.NewConn(*server, nil, client.DefaultOptions(), nil)
	conv := client.NewConversation(conn, recognizer, synth, nil)
	defer conv.Close()

	conn.Dispatcher().On(client.EventSessionReady, func(env *client.Envelope) {
		fmt.Printf("-- session %s (%s mode), type to talk, /help for commands\n", env.SessionID, env.Mode)
	})
	conn.Dispatcher().On(client.EventError, func(env *client.Envelope) {
		fmt.Fprintln(os.Stderr, "-- server error:", env.Message)
	})
	conn.Dispatcher().On(client.EventModeChanged, func(env *client.Envelope) {
		fmt.Printf("-- mode changed to %s\n", env.Mode)
	})
	conn.Dispatcher().On(client.EventReconnectFailed, func(env *client.Envelope) {
		fmt.Fprintln(os.Stderr, "-- connection lost for good, exiting")
		os.Exit(1)
	})
	conv.OnStatusChange(func(s client.AiStatus) {
		if s == client.StatusThinking {
			fmt.Println("   ...")
		}
	})

	// The scanner goroutine starts as soon as the session is ready, so the
	// command hook has to be in place before the handshake begins
	recognizer.commands = func(line string) bool {
		return handleCommand(conv, line)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := conv.Start(ctx, client.Mode(*mode), cfg); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case <-recognizer.eof:
	}
	fmt.Println("\n-- bye")
}

// handleCommand intercepts slash commands. Returns true when the line was a
// command and should not be sent as an utterance.
func handleCommand(conv *client.Conversation, line string) bool {
	if !strings.HasPrefix(line, "/") {
		return false
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/mode":
		if len(fields) < 2 {
			fmt.Println("usage: /mode chat|interview|debate [force]")
			return true
		}
		force := len(fields) > 2 && fields[2] == "force"
		err := conv.ChangeMode(client.Mode(fields[1]), client.ModeConfig{}, force)
		if err == client.ErrBusy {
			fmt.Println("-- a reply is in progress, use '/mode <m> force' to interrupt")
		} else if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	case "/stop":
		if err := conv.Stop(); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	case "/transcript":
		for _, e := range conv.Transcript() {
			fmt.Printf("  [%s] %s\n", e.Role, e.Text)
		}
	case "/status":
		fmt.Printf("-- %s, session %s, mode %s\n", conv.Status(), conv.SessionID(), conv.Mode())
	case "/quit":
		os.Exit(0)
	case "/help":
		fmt.Println("commands: /mode <m> [force], /stop, /transcript, /status, /quit")
	default:
		fmt.Println("unknown command, /help for the list")
	}
	return true
}

// stdinRecognizer treats each line on stdin as one recognized utterance.
type stdinRecognizer struct {
	active   int32
	eof      chan struct{}
	commands func(line string) bool
}

func newStdinRecognizer() *stdinRecognizer {
	return &stdinRecognizer{eof: make(chan struct{})}
}

func (r *stdinRecognizer) Start(onResult func(text string)) error {
	atomic.StoreInt32(&r.active, 1)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if r.commands != nil && r.commands(line) {
				continue
			}
			if atomic.LoadInt32(&r.active) == 1 {
				onResult(line)
			}
		}
		close(r.eof)
	}()
	return nil
}

func (r *stdinRecognizer) Stop() error {
	atomic.StoreInt32(&r.active, 0)
	return nil
}

// stdoutSynthesizer prints replies instead of speaking them.
type stdoutSynthesizer struct{}

func (s *stdoutSynthesizer) Speak(text string, done func()) error {
	fmt.Printf("ai> %s\n", text)
	done()
	return nil
}

func (s *stdoutSynthesizer) Cancel() error {
	return nil
}
