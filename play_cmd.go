package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/jsonic/jsonic"
)

var (
	playChannel string
	playVolume  float64
	playLoop    bool
	playFor     time.Duration

	playCmd = &cobra.Command{
		Use:   "play URL...",
		Short: "Play sounds in order on one channel",
		Long: paragraph(fmt.Sprintf("\n%s each sound in order. Relative locators such as sounds/beep are resolved against the server.",
			keyword("Play"))),
		Example: paragraph("jsonic play sounds/9081__tigersound__disappear\n" +
			"jsonic play --loop --for 10s sounds/18382__inferno__hvylas"),
		Args: cobra.MinimumNArgs(1),
		RunE: runPlay,
	}
)

func runPlay(cmd *cobra.Command, args []string) error {
	if playLoop && playFor == 0 {
		log.Info("looping until interrupted")
	}

	s, err := newSession(true)
	if err != nil {
		return err
	}
	defer s.close(5 * time.Second) //nolint:errcheck

	req := jsonic.PlayRequest{Channel: playChannel}
	if cmd.Flags().Changed("volume") {
		req.Volume = jsonic.Float(playVolume)
	}
	if cmd.Flags().Changed("loop") {
		req.Loop = jsonic.Bool(playLoop)
	}

	handles := make([]*jsonic.Handle, 0, len(args))
	for _, url := range args {
		req.URL = url
		h, err := s.engine.Play(req)
		if err != nil {
			return err
		}
		handles = append(handles, h)
	}

	err = waitInteractive(s.engine, handles, playFor)
	if playLoop && playFor > 0 {
		// the loop is expected to be cut short
		return nil
	}
	return err
}

func init() {
	playCmd.Flags().StringVar(&playChannel, "channel", jsonic.DefaultChannel, "channel to queue the sounds on")
	playCmd.Flags().Float64Var(&playVolume, "volume", 1.0, "volume override within [0, 1]")
	playCmd.Flags().BoolVar(&playLoop, "loop", false, "repeat the sound until stopped")
	playCmd.Flags().DurationVar(&playFor, "for", 0, "stop playing after this long (0 waits until done)")
}
