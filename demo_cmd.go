package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/muesli/reflow/truncate"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/jsonic/jsonic"
)

const (
	disappear = "sounds/9081__tigersound__disappear"
	hvylas    = "sounds/18382__inferno__hvylas"

	rainInSpain = "The rain in Spain falls mainly on the plain."
	quickFox    = "The quick brown fox jumps over the lazy dog."
)

// batch queues requests for one scenario and keeps the first error.
type batch struct {
	ctx     context.Context
	engine  *jsonic.Engine
	handles []*jsonic.Handle
	err     error
}

func (b *batch) say(req jsonic.SayRequest) *jsonic.Handle {
	return b.keep(b.engine.Say(req))
}

func (b *batch) play(req jsonic.PlayRequest) *jsonic.Handle {
	return b.keep(b.engine.Play(req))
}

func (b *batch) set(name string, value any, channel string) {
	if err := b.engine.SetProperty(jsonic.PropertyRequest{Name: name, Value: value, Channel: channel}); err != nil && b.err == nil {
		b.err = err
	}
}

// then runs fn once h starts. Properties bind when a request starts, so
// changing them from here affects the requests queued behind h only.
func (b *batch) then(h *jsonic.Handle, fn func()) {
	if h != nil {
		h.OnBefore(fn)
	}
}

// setLater changes a property of every channel from a callback, where the
// batch has already been returned.
func setLater(engine *jsonic.Engine, name string, value any) {
	if err := engine.SetProperty(jsonic.PropertyRequest{Name: name, Value: value}); err != nil {
		log.Warn("could not set property", "name", name, "err", err)
	}
}

func (b *batch) keep(h *jsonic.Handle, err error) *jsonic.Handle {
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return nil
	}
	b.handles = append(b.handles, h)
	return h
}

type scenario func(b *batch)

var scenarios = map[string]scenario{
	"stop": func(b *batch) {
		for _, ch := range []string{jsonic.DefaultChannel, "second"} {
			b.engine.Stop(jsonic.ChannelRequest{Channel: ch})
			b.engine.Reset(jsonic.ChannelRequest{Channel: ch})
		}
	},
	"singleSay": func(b *batch) {
		b.say(jsonic.SayRequest{Text: rainInSpain})
	},
	"sequentialSay": func(b *batch) {
		b.say(jsonic.SayRequest{Text: rainInSpain, Cache: jsonic.Bool(true)})
		b.say(jsonic.SayRequest{Text: quickFox, Cache: jsonic.Bool(true)})
	},
	"simultaneousSay": func(b *batch) {
		b.say(jsonic.SayRequest{Text: rainInSpain})
		b.set(jsonic.PropVoice, "default+f1", "second")
		h := b.say(jsonic.SayRequest{Text: quickFox, Channel: "second"})
		b.then(h, func() { b.engine.Reset(jsonic.ChannelRequest{Channel: "second"}) })
	},
	"propertiesSay": func(b *batch) {
		b.set(jsonic.PropRate, 350, "")
		fast := b.say(jsonic.SayRequest{Text: rainInSpain})
		slow := b.say(jsonic.SayRequest{Text: quickFox})
		b.then(fast, func() { setLater(b.engine, jsonic.PropRate, 150) })
		b.then(slow, func() { b.engine.Reset(jsonic.ChannelRequest{}) })
	},
	"singleSound": func(b *batch) {
		b.play(jsonic.PlayRequest{URL: disappear})
	},
	"sequentialSound": func(b *batch) {
		b.play(jsonic.PlayRequest{URL: disappear})
		b.play(jsonic.PlayRequest{URL: hvylas})
	},
	"simultaneousSound": func(b *batch) {
		b.play(jsonic.PlayRequest{URL: disappear})
		b.play(jsonic.PlayRequest{URL: hvylas, Channel: "second"})
	},
	"propertiesSound": func(b *batch) {
		b.set(jsonic.PropVolume, 0.1, "")
		quiet := b.play(jsonic.PlayRequest{URL: disappear})
		loud := b.play(jsonic.PlayRequest{URL: hvylas})
		b.then(quiet, func() { setLater(b.engine, jsonic.PropVolume, 1.0) })
		b.then(loud, func() { b.engine.Reset(jsonic.ChannelRequest{}) })
	},
	"loopingSound": func(b *batch) {
		b.set(jsonic.PropLoop, true, "")
		h := b.play(jsonic.PlayRequest{URL: disappear})
		b.then(h, func() { b.engine.Reset(jsonic.ChannelRequest{}) })
	},
	"engineInfo": func(b *batch) {
		names, err := b.engine.GetEngines(b.ctx)
		if err != nil {
			b.err = err
			return
		}
		for _, name := range names {
			info, err := b.engine.GetEngineInfo(b.ctx, name)
			if err != nil {
				b.err = err
				return
			}
			fmt.Println(heading(name))
			fmt.Print(describeEngine(info))
		}
	},
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios))
	for name := range scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var demoCmd = &cobra.Command{
	Use:   "demo [SCENARIO...]",
	Short: "Run the button demos: speech and sound on two channels",
	Long: paragraph(fmt.Sprintf("\n%s named scenarios in order. Without arguments, scenario names are read from stdin one per line, so a looping sound can be stopped by typing stop. Scenarios: %s.",
		keyword("Run"), strings.Join(scenarioNames(), ", "))),
	Example: paragraph("jsonic demo sequentialSay simultaneousSound\njsonic demo --dry-run"),
	ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return scenarioNames(), cobra.ShellCompDirectiveNoFileComp
	},
	RunE: runDemo,
}

func runDemo(_ *cobra.Command, args []string) error {
	for _, name := range args {
		if _, ok := scenarios[name]; !ok {
			return fmt.Errorf("unknown scenario %q (have %s)", name, strings.Join(scenarioNames(), ", "))
		}
	}

	s, err := newSession(true)
	if err != nil {
		return err
	}
	defer s.close(5 * time.Second) //nolint:errcheck

	remove := s.engine.AddObserver(printNotice)
	defer remove()
	watchConfig(s.engine)

	ctx, stop := signalContext()
	defer stop()

	var handles []*jsonic.Handle
	run := func(name string) {
		b := &batch{ctx: ctx, engine: s.engine}
		scenarios[name](b)
		if b.err != nil {
			log.Error("scenario failed", "scenario", name, "err", b.err)
		}
		handles = append(handles, b.handles...)
	}

	if len(args) > 0 {
		for _, name := range args {
			run(name)
		}
	} else {
		fmt.Println(faint("scenarios: " + strings.Join(scenarioNames(), " ")))
		lines := make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				lines <- strings.TrimSpace(scanner.Text())
			}
		}()

	read:
		for {
			select {
			case <-ctx.Done():
				break read
			case line, ok := <-lines:
				if !ok || line == "quit" {
					break read
				}
				if _, known := scenarios[line]; !known {
					if line != "" {
						fmt.Println(failure("unknown scenario " + line))
					}
					continue
				}
				run(line)
			}
		}
	}

	if _, err := waitAll(ctx, handles); err != nil {
		s.engine.Stop(jsonic.ChannelRequest{})
	}
	return nil
}

func printNotice(n jsonic.Notice) {
	subject := n.URL
	if n.Action == jsonic.KindSay {
		subject = truncate.StringWithTail(n.Text, 48, "…")
	}

	status := faint(n.Name())
	if n.Phase == jsonic.PhaseFinished {
		if n.Completed {
			status = success(n.Name())
		} else {
			status = failure(n.Name())
		}
	}
	fmt.Printf("%s %s %s\n", labelCell(n.Channel), status, subject)
}

// watchConfig applies edits of the config file to the running engine.
func watchConfig(engine *jsonic.Engine) {
	if viper.ConfigFileUsed() == "" {
		return
	}

	viper.OnConfigChange(func(ev fsnotify.Event) {
		if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
			return
		}
		cfg, err := jsonic.LoadConfigFromViper()
		if err != nil {
			log.Warn("ignoring config change", "err", err)
			return
		}

		engine.SetDefaultCaching(cfg.DefaultCaching)
		defaults := map[string]any{
			jsonic.PropVoice:  cfg.Voice,
			jsonic.PropRate:   cfg.Rate,
			jsonic.PropPitch:  cfg.Pitch,
			jsonic.PropVolume: cfg.Volume,
		}
		for name, value := range defaults {
			if err := engine.SetProperty(jsonic.PropertyRequest{Name: name, Value: value}); err != nil {
				log.Warn("ignoring config change", "property", name, "err", err)
			}
		}
		log.Info("config reloaded", "path", ev.Name, "caching", cfg.DefaultCaching)
	})
	viper.WatchConfig()
}
