package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/jsonic/jsonic"
)

var enginesCmd = &cobra.Command{
	Use:   "engines [NAME...]",
	Short: "List the speech engines of the server and their properties",
	Long: paragraph(fmt.Sprintf("\n%s the engines the server offers. Each engine is described by the range, choices and default of its properties.",
		keyword("Discover"))),
	Example: paragraph("jsonic engines\njsonic engines espeak"),
	RunE:    runEngines,
}

func runEngines(_ *cobra.Command, args []string) error {
	s, err := newSession(false)
	if err != nil {
		return err
	}
	defer s.close(time.Second) //nolint:errcheck

	ctx, stop := signalContext()
	defer stop()

	names := args
	if len(names) == 0 {
		if names, err = s.engine.GetEngines(ctx); err != nil {
			return err
		}
	}

	infos := make([]jsonic.EngineInfo, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range names {
		g.Go(func() error {
			info, err := s.engine.GetEngineInfo(gctx, name)
			if err != nil {
				return err
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, name := range names {
		fmt.Println(heading(name))
		fmt.Print(describeEngine(infos[i]))
	}
	return nil
}

// describeEngine renders one line per property, sorted by name.
func describeEngine(info jsonic.EngineInfo) string {
	props := make([]string, 0, len(info))
	for name := range info {
		props = append(props, name)
	}
	sort.Strings(props)

	var b strings.Builder
	for _, name := range props {
		p := info[name]

		var detail string
		switch {
		case p.Minimum != nil && p.Maximum != nil:
			detail = cast.ToString(*p.Minimum) + ".." + cast.ToString(*p.Maximum)
		case len(p.Values) > 0:
			detail = strings.Join(p.Values, ", ")
		}
		if p.Default != nil {
			detail += faint(fmt.Sprintf(" (default %s)", cast.ToString(p.Default)))
		}
		fmt.Fprintf(&b, "  %s %s\n", labelCell(name), detail)
	}
	return b.String()
}
