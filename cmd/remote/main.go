// Command remote follows a slidecast session and issues navigation
// commands from line-oriented stdin input.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"slidecast/internal/agent/remote"
	"slidecast/pkg/protocol"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("remote exited")
	}
}

func run() error {
	serverURL := pflag.String("server", "ws://localhost:8080/ws", "relay WebSocket URL")
	sessionID := pflag.String("session", "", "session identifier (required)")
	showContent := pflag.Bool("show-content", false, "print mirrored HTML on every content update")
	pflag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if *sessionID == "" {
		pflag.Usage()
		return fmt.Errorf("--session is required")
	}

	handlers := remote.Handlers{
		OnState: func(s remote.State) {
			log.Info().Str("state", s.String()).Msg("remote state")
		},
		OnSlide: func(current, total int) {
			fmt.Printf("slide %d/%d\n", current+1, total)
		},
		OnScroll: func(position int) {
			fmt.Printf("scroll %d\n", position)
		},
		OnEnded: func() {
			fmt.Println("presentation ended")
		},
	}
	if *showContent {
		handlers.OnContent = func(m protocol.Mirror) {
			fmt.Println(m.HTML)
		}
	}

	r, err := remote.New(remote.Options{
		ServerURL: *serverURL,
		SessionID: *sessionID,
	}, handlers)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- r.Run(ctx)
		cancel()
	}()

	fmt.Println("commands: n(ext), p(revious), g <slide>, u(p), d(own), s <scroll>, q(uit)")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		var cmdErr error
		switch fields[0] {
		case "n", "next":
			cmdErr = r.Next()
		case "p", "prev", "previous":
			cmdErr = r.Previous()
		case "g", "goto":
			if len(fields) < 2 {
				fmt.Println("usage: g <slide>")
				continue
			}
			i, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("usage: g <slide>")
				continue
			}
			cmdErr = r.Goto(i)
		case "u", "up":
			cmdErr = r.Scroll(protocol.ScrollUp)
		case "d", "down":
			cmdErr = r.Scroll(protocol.ScrollDown)
		case "s", "scroll":
			if len(fields) < 2 {
				fmt.Println("usage: s <position>")
				continue
			}
			pos, err := strconv.Atoi(fields[1])
			if err != nil {
				fmt.Println("usage: s <position>")
				continue
			}
			cmdErr = r.SyncScroll(pos)
		case "q", "quit":
			r.Close()
			return nil
		default:
			fmt.Println("commands: n(ext), p(revious), g <slide>, u(p), d(own), s <scroll>, q(uit)")
			continue
		}

		if cmdErr != nil {
			fmt.Printf("command not sent: %v\n", cmdErr)
		}
	}

	r.Close()
	select {
	case err := <-runErrCh:
		return err
	default:
		return scanner.Err()
	}
}
