package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/cbegin/arrange-go"
	"github.com/cbegin/arrange-go/internal/midiexport"
	"github.com/cbegin/arrange-go/internal/model"
	"github.com/cbegin/arrange-go/internal/project"
	"github.com/cbegin/arrange-go/internal/samples"
	"github.com/cbegin/arrange-go/internal/scheduler"
)

func openSession(output bool, opts ...arrange.Option) (*arrange.Session, error) {
	arr, err := project.Load(flags.project)
	if err != nil {
		return nil, err
	}
	opts = append([]arrange.Option{
		arrange.WithArrangement(arr),
		arrange.WithOutput(output),
		arrange.WithLogger(log),
	}, opts...)
	return arrange.NewSession(cfg, samples.NewStore(cfg.SampleDir), opts...)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

type exportFlags struct {
	out      string
	from, to int
	master   float64
}

func (f *exportFlags) register(cmd *cobra.Command, out string) {
	cmd.Flags().StringVarP(&f.out, "out", "o", out, "Output WAV file")
	cmd.Flags().IntVar(&f.from, "from", 0, "First bar to export (default: export markers or first pattern)")
	cmd.Flags().IntVar(&f.to, "to", 0, "Last bar to export (default: export markers or last pattern)")
	cmd.Flags().Float64Var(&f.master, "master", 0, "Master volume override (0 keeps the project's)")
}

func (f *exportFlags) request(mode arrange.ExportMode) arrange.ExportRequest {
	req := arrange.ExportRequest{Mode: mode, MasterVolume: f.master}
	if f.from > 0 && f.to >= f.from {
		req.Markers = &model.ExportMarkers{StartBar: f.from, EndBar: f.to, Active: true}
	}
	return req
}

func runExport(f *exportFlags, mode arrange.ExportMode) error {
	s, err := openSession(mode == arrange.ModeLive)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx, cancel := signalContext()
	defer cancel()
	go func() {
		// Ctrl-C ends a live capture early but still writes what was heard.
		<-ctx.Done()
		s.AbortExport()
	}()
	data, err := s.Export(context.Background(), f.request(mode))
	if err != nil {
		return err
	}
	if err := os.WriteFile(f.out, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", f.out, len(data))
	return nil
}

func renderCmd() *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the arrangement offline to a WAV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(&f, arrange.ModeOffline)
		},
	}
	f.register(cmd, "render.wav")
	return cmd
}

func captureCmd() *cobra.Command {
	var f exportFlags
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Play the export range and record the live output",
		Long: `capture plays the export range through the audio device in real time
and records it. If the capture fails the arrangement is rendered offline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(&f, arrange.ModeLive)
		},
	}
	f.register(cmd, "capture.wav")
	return cmd
}

func playCmd() *cobra.Command {
	var from int
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play the arrangement through the audio device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			last := 0
			s, err := openSession(true, arrange.WithPlayheadFunc(func(bar float64) {
				if b := int(bar); b != last {
					last = b
					fmt.Printf("\rbar %3d", b)
				}
			}))
			if err != nil {
				return err
			}
			defer s.Close()
			ctx, cancel := signalContext()
			defer cancel()
			if err := s.Play(ctx, from); err != nil {
				return err
			}
			t := time.NewTicker(100 * time.Millisecond)
			defer t.Stop()
			for s.State() == scheduler.Playing {
				select {
				case <-ctx.Done():
					s.Stop()
				case <-t.C:
					s.Poll()
				}
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().IntVar(&from, "from", 1, "Bar to start from")
	return cmd
}

func dropCmd() *cobra.Command {
	var (
		seed   int64
		blocks []string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Generate drop and breakdown variations and save the project",
		Long: `drop replaces the selected patterns with random full, build, drop and
breakdown variations. Without --block every track is filled from bar 1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []arrange.Option
			if cmd.Flags().Changed("seed") {
				opts = append(opts, arrange.WithGeneratorSeed(uint64(seed)))
			}
			s, err := openSession(false, opts...)
			if err != nil {
				return err
			}
			defer s.Close()
			res, err := s.GenerateDrop(blocks)
			if err != nil {
				return err
			}
			for id, v := range res.Variants {
				fmt.Printf("%s: %s\n", id, v)
			}
			if out == "" {
				out = flags.project
			}
			return project.Save(out, s.Arrangement())
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed for reproducible variations")
	cmd.Flags().StringSliceVarP(&blocks, "block", "b", nil, "Pattern ids to vary")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Where to save the result (default: overwrite the project)")
	return cmd
}

func stepsCmd() *cobra.Command {
	var (
		out      string
		from, to int
	)
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "Export the step grids of placed patterns as a MIDI file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			arr, err := project.Load(flags.project)
			if err != nil {
				return err
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			opts := midiexport.DefaultOptions()
			opts.FromBar, opts.ToBar = from, to
			n, err := midiexport.Write(f, arr, opts)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(out)
				if errors.Is(err, midiexport.ErrNoSteps) {
					return fmt.Errorf("%w: toggle some steps on the tracks first", err)
				}
				return err
			}
			fmt.Printf("wrote %s (%d notes)\n", out, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "steps.mid", "Output MIDI file")
	cmd.Flags().IntVar(&from, "from", 0, "First bar (default 1)")
	cmd.Flags().IntVar(&to, "to", 0, "Last bar (default: last pattern)")
	return cmd
}

func clipCmd() *cobra.Command {
	var bars int
	cmd := &cobra.Command{
		Use:   "clip",
		Short: "Change the timeline length, truncating patterns past the end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(false)
			if err != nil {
				return err
			}
			defer s.Close()
			rep, err := s.SetTotalBars(bars)
			if err != nil {
				return err
			}
			fmt.Printf("%d bars: %d truncated, %d removed\n", bars, len(rep.Clipped), len(rep.Dropped))
			return project.Save(flags.project, s.Arrangement())
		},
	}
	cmd.Flags().IntVarP(&bars, "bars", "n", model.DefaultTotalBars, "New timeline length in bars")
	return cmd
}
