package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/jsonic/jsonic"
)

var (
	sayChannel string
	sayVoice   string
	sayRate    int
	sayTimeout time.Duration

	sayCmd = &cobra.Command{
		Use:   "say [TEXT...]",
		Short: "Speak text, one utterance per argument or stdin line",
		Long: paragraph(fmt.Sprintf("\n%s each argument in order on one channel. Without arguments, lines are read from stdin.",
			keyword("Speak"))),
		Example: paragraph("jsonic say \"The rain in Spain falls mainly on the plain.\"\n" +
			"jsonic say --voice default+f1 --rate 350 hello world\n" +
			"fortune | jsonic say --cache"),
		RunE: runSay,
	}
)

func runSay(_ *cobra.Command, args []string) error {
	texts, err := utterances(args)
	if err != nil {
		return err
	}
	if len(texts) == 0 {
		return fmt.Errorf("nothing to say")
	}

	s, err := newSession(true)
	if err != nil {
		return err
	}
	defer s.close(5 * time.Second) //nolint:errcheck

	handles := make([]*jsonic.Handle, 0, len(texts))
	for _, text := range texts {
		h, err := s.engine.Say(jsonic.SayRequest{
			Text:    text,
			Channel: sayChannel,
			Voice:   sayVoice,
			Rate:    sayRate,
		})
		if err != nil {
			return err
		}
		handles = append(handles, h)
	}

	return waitInteractive(s.engine, handles, sayTimeout)
}

// utterances returns the arguments, or the non-empty stdin lines when there
// are none and stdin is a pipe.
func utterances(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if yes, err := stdinIsPipe(); err != nil || !yes {
		return nil, err
	}

	var lines []string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read stdin: %w", err)
	}
	return lines, nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// waitInteractive waits for handles and stops every channel on interrupt or
// once timeout elapses. A zero timeout waits forever.
func waitInteractive(engine *jsonic.Engine, handles []*jsonic.Handle, timeout time.Duration) error {
	ctx, stop := signalContext()
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cancelled, err := waitAll(ctx, handles)
	if err != nil {
		// interrupted or timed out: drain the channels so Close returns quickly
		engine.Stop(jsonic.ChannelRequest{})
		cancelled, _ = waitAll(context.Background(), handles)
	}

	if cancelled > 0 {
		fmt.Fprintln(os.Stderr, failure(fmt.Sprintf("%d of %d requests did not complete", cancelled, len(handles))))
		for _, h := range handles {
			if h.Err() != nil {
				fmt.Fprintln(os.Stderr, faint("  "+h.Err().Error()))
			}
		}
		return fmt.Errorf("%d requests cancelled", cancelled)
	}
	return nil
}

func init() {
	sayCmd.Flags().StringVar(&sayChannel, "channel", jsonic.DefaultChannel, "channel to queue the utterances on")
	sayCmd.Flags().StringVar(&sayVoice, "voice", "", "voice override for these utterances")
	sayCmd.Flags().IntVar(&sayRate, "rate", 0, "speech rate override in words per minute")
	sayCmd.Flags().DurationVar(&sayTimeout, "timeout", 0, "stop speaking after this long (0 waits until done)")
}
