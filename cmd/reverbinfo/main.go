// Command reverbinfo prints routing tables of the built-in reverb
// presets and validates preset files.
//
// Usage:
//
//	reverbinfo [flags] [preset-name ...]
//
// Without arguments it prints the routing of all built-in presets.
//
// Examples:
//
//	reverbinfo classic-hall
//	reverbinfo -file my-preset.toml
//	reverbinfo -measure -rt60 1.8
//	reverbinfo -list
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/cwbudde/algo-reverb/dsp/core"
	"github.com/cwbudde/algo-reverb/dsp/graph"
	"github.com/cwbudde/algo-reverb/dsp/node"
	"github.com/cwbudde/algo-reverb/dsp/signal"
	"github.com/cwbudde/algo-reverb/measure/decay"
)

const measureSampleRate = 48000.0

var builtins = []graph.PresetID{
	graph.PresetClassicHall,
	graph.PresetSparse,
	graph.PresetFeedbackBloom,
	graph.PresetParallelTriple,
	graph.PresetShimmerDrift,
	graph.PresetCrossweave,
	graph.PresetMemoryWash,
}

func main() {
	list := flag.Bool("list", false, "list built-in preset names")
	file := flag.String("file", "", "validate and print a TOML preset file")
	measure := flag.Bool("measure", false, "measure the reverb tail decay")
	rt60 := flag.Float64("rt60", 2.4, "configured decay time for -measure, in seconds")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: reverbinfo [flags] [preset-name ...]\n\n")
		fmt.Fprintf(os.Stderr, "Prints routing tables of built-in reverb presets.\n")
		fmt.Fprintf(os.Stderr, "Without arguments, prints all built-in presets.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *list {
		for _, id := range builtins {
			fmt.Println(id)
		}

		return
	}

	if *measure {
		if err := measureDecay(*rt60); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		return
	}

	if *file != "" {
		if err := printPresetFile(*file); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		return
	}

	presets := resolvePresets(flag.Args())
	if len(presets) == 0 {
		fmt.Fprintf(os.Stderr, "error: no matching presets\n")
		os.Exit(1)
	}

	g := graph.New()
	for _, id := range presets {
		if err := g.LoadPreset(id); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		printPreset(g.ActivePreset())
	}
}

func resolvePresets(names []string) []graph.PresetID {
	if len(names) == 0 {
		return builtins
	}

	byName := make(map[string]graph.PresetID, len(builtins))
	for _, id := range builtins {
		byName[id.String()] = id
	}

	var result []graph.PresetID
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))

		id, ok := byName[name]
		if !ok {
			fmt.Fprintf(os.Stderr, "warning: unknown preset %q (use -list to see available)\n", name)
			continue
		}

		result = append(result, id)
	}

	return result
}

func printPresetFile(path string) error {
	g := graph.New()
	if err := g.LoadPresetFile(path); err != nil {
		return err
	}

	fmt.Printf("%s: valid\n\n", path)
	printPreset(g.ActivePreset())

	return nil
}

func printPreset(p graph.Preset) {
	fmt.Printf("preset %s (%d connections)\n", p.Name, p.NumConnections)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  Source\tDestination\tMode\tBlend\tFeedback\tCrossfeed\tEnabled\n")

	for i := 0; i < p.NumConnections; i++ {
		c := p.Connections[i]
		fmt.Fprintf(tw, "  %v\t%v\t%v\t%.2f\t%.2f\t%.2f\t%t\n",
			c.Source, c.Destination, c.Mode, c.Blend, c.FeedbackGain, c.Crossfeed, c.Enabled)
	}

	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to flush output: %v\n", err)
	}

	var bypassed []string
	for id := graph.ModuleDrive; id <= graph.ModuleOutput; id++ {
		if p.Bypassed[id] {
			bypassed = append(bypassed, id.String())
		}
	}

	if len(bypassed) > 0 {
		fmt.Printf("  bypassed: %s\n", strings.Join(bypassed, ", "))
	}

	fmt.Println()
}

// measureDecay renders the reverb tail impulse response offline and
// prints its decay metrics next to the configured time.
func measureDecay(rt60 float64) error {
	r := node.NewReverb()
	if err := r.Prepare(measureSampleRate, 512, 1); err != nil {
		return err
	}

	if err := r.SetRT60(rt60); err != nil {
		return err
	}

	if err := r.SetWet(1); err != nil {
		return err
	}

	if err := r.SetDry(0); err != nil {
		return err
	}

	length := int(3 * rt60 * measureSampleRate)

	gen := signal.NewGenerator(core.WithSampleRate(measureSampleRate))
	ir, err := gen.Impulse(length, 0)
	if err != nil {
		return err
	}

	for start := 0; start < length; start += 512 {
		end := min(start+512, length)
		r.Process([][]float64{ir[start:end]})
	}

	times, err := decay.Analyze(decay.TrimOnset(ir), measureSampleRate)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Configured\tRT60\tEDT\tT20\tT30\n")
	fmt.Fprintf(tw, "%.2fs\t%.2fs\t%.2fs\t%.2fs\t%.2fs\n",
		rt60, times.RT60, times.EDT, times.T20, times.T30)

	return tw.Flush()
}
