// Command present drives a slide deck through a slidecast relay. It reads
// line-oriented navigation input from stdin while remotes steer the same
// deck through the relay.
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

	"slidecast/internal/agent/presenter"
	"slidecast/internal/deck"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("presenter exited")
	}
}

func run() error {
	serverURL := pflag.String("server", "ws://localhost:8080/ws", "relay WebSocket URL")
	sessionID := pflag.String("session", "", "session identifier (required)")
	deckPath := pflag.String("deck", "", "markdown deck file (required)")
	scrollStep := pflag.Int("scroll-step", 120, "pixels per scroll command")
	pflag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	if *sessionID == "" || *deckPath == "" {
		pflag.Usage()
		return fmt.Errorf("--session and --deck are required")
	}

	d, err := deck.Load(*deckPath)
	if err != nil {
		return err
	}
	log.Info().Int("slides", d.Len()).Str("deck", *deckPath).Msg("deck loaded")

	p, err := presenter.New(presenter.Options{
		ServerURL:  *serverURL,
		SessionID:  *sessionID,
		ScrollStep: *scrollStep,
	}, d)
	if err != nil {
		return err
	}
	p.OnStateChange = func(s presenter.State) {
		log.Info().Str("state", s.String()).Msg("presenter state")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := p.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("presenter stopped")
		}
		cancel()
	}()

	fmt.Println("commands: n(ext), p(revious), g <slide>, s <scroll>, q(uit)")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "n", "next":
			p.Next()
		case "p", "prev", "previous":
			p.Previous()
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
			p.Goto(i)
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
			p.ScrollTo(pos)
		case "q", "quit":
			p.Close()
			return nil
		default:
			fmt.Println("commands: n(ext), p(revious), g <slide>, s <scroll>, q(uit)")
			continue
		}

		current, total := p.Slide()
		fmt.Printf("slide %d/%d\n", current+1, total)
	}

	p.Close()
	return scanner.Err()
}
