package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lifxctl/internal/command"
	"lifxctl/internal/config"
	"lifxctl/internal/lights"
	"lifxctl/internal/profiles"
	"lifxctl/internal/store"
)

// Global flags
var (
	configPath   string
	logLevel     string
	outputFormat string

	cfg *config.Config

	// stdout receives machine-readable output.
	stdout io.Writer = os.Stdout
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, json)")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(presetCmd)
	rootCmd.AddCommand(sceneCmd)
	rootCmd.AddCommand(doCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	setupLogging(c.Log.Level, c.Log.JSON, c.Log.Colors)
	cfg = c
	return nil
}

// withApp runs fn with an App that is closed afterwards.
func withApp(fn func(ctx context.Context, a *App) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := NewApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if _, err := fmt.Fprintln(stdout, string(data)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func printLights(ls []lights.Light) error {
	if outputFormat == "json" {
		return printJSON(ls)
	}

	if len(ls) == 0 {
		fmt.Println("No lights found.")
		return nil
	}
	fmt.Printf("Found %d light(s):\n\n", len(ls))
	for i, l := range ls {
		fmt.Printf("%d. %s (%s)\n", i+1, l.Label, l.ID)
		fmt.Printf("   Power:      %s\n", onOff(l.Power))
		fmt.Printf("   Brightness: %d%%\n", l.Brightness)
		if l.Saturation > 0 {
			fmt.Printf("   Color:      hue %d°, saturation %d%%\n", l.Hue, l.Saturation)
		} else {
			fmt.Printf("   White:      %dK\n", l.Kelvin)
		}
		fmt.Printf("   Source:     %s\n", l.Source)
		if l.Group != "" {
			fmt.Printf("   Group:      %s\n", l.Group)
		}
		fmt.Println()
	}
	return nil
}

func printResults(results []lights.ControlResult) error {
	if outputFormat == "json" {
		type result struct {
			Light string `json:"light"`
			Error string `json:"error,omitempty"`
		}
		out := make([]result, len(results))
		for i, r := range results {
			out[i] = result{Light: r.LightID}
			if r.Err != nil {
				out[i].Error = r.Err.Error()
			}
		}
		return printJSON(out)
	}
	for _, r := range results {
		var err error
		if r.Err != nil {
			_, err = fmt.Fprintf(stdout, "  %s: failed: %v\n", r.LightID, r.Err)
		} else {
			_, err = fmt.Fprintf(stdout, "  %s: ok\n", r.LightID)
		}
		if err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

// discoverCmd lists every visible light
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover lights on the network and in the cloud",
	Example: `  # List lights
  lifxctl discover

  # JSON output for scripting
  lifxctl discover --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *App) error {
			found, err := a.Discover(ctx)
			if err != nil {
				return err
			}
			return printLights(found)
		})
	},
}

// statusCmd reports transport availability
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connection status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *App) error {
			_, discoverErr := a.Discover(ctx)
			state := a.lights.GetConnectionState()

			if outputFormat == "json" {
				return printJSON(state)
			}

			fmt.Printf("Connection:  %s\n", state.ConnectionType)
			fmt.Printf("LAN:         %s\n", available(state.LANAvailable))
			fmt.Printf("HTTP API:    %s\n", available(state.HTTPAvailable))
			fmt.Printf("Discovery:   %s\n", state.DiscoveryStatus)
			fmt.Printf("Lights:      %d\n", len(state.ActiveLights))
			if !state.LastDiscovery.IsZero() {
				fmt.Printf("Last scan:   %s\n", state.LastDiscovery.Local().Format(time.DateTime))
			}
			if state.LastError != "" {
				fmt.Printf("Last error:  %s\n", state.LastError)
			}
			if discoverErr != nil || state.ErrorType != lights.ErrorTypeNone {
				fmt.Println("\nTroubleshooting:")
				for _, step := range a.lights.TroubleshootingSteps() {
					fmt.Printf("  - %s\n", step)
				}
			}
			return nil
		})
	},
}

func available(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}

// Set command flags
var (
	setOn         bool
	setOff        bool
	setBrightness int
	setHue        int
	setSaturation int
	setKelvin     int
	setColor      string
	fadeDuration  time.Duration
)

var setCmd = &cobra.Command{
	Use:   "set <light>",
	Short: "Change power, brightness or color of a light",
	Long: `Change one or more attributes of a light. Attributes that are not
given keep their current value.

<light> is a light id, a label (case-insensitive) or "all".`,
	Example: `  # Turn the desk lamp on at half brightness
  lifxctl set desk --on --brightness 50

  # Warm white everywhere over five seconds
  lifxctl set all --kelvin 2700 --duration 5s

  # Named or hex colors
  lifxctl set d073d5000001 --color purple
  lifxctl set desk --color '#ff8800'`,
	Args: cobra.ExactArgs(1),
	RunE: runSet,
}

func init() {
	setCmd.Flags().BoolVar(&setOn, "on", false, "Turn the light on")
	setCmd.Flags().BoolVar(&setOff, "off", false, "Turn the light off")
	setCmd.Flags().IntVar(&setBrightness, "brightness", 0, "Brightness in percent (0-100)")
	setCmd.Flags().IntVar(&setHue, "hue", 0, "Hue in degrees (0-360)")
	setCmd.Flags().IntVar(&setSaturation, "saturation", 0, "Saturation in percent (0-100)")
	setCmd.Flags().IntVar(&setKelvin, "kelvin", 0, "Color temperature (2500-9000)")
	setCmd.Flags().StringVar(&setColor, "color", "", "Color name or hex value")
	setCmd.MarkFlagsMutuallyExclusive("on", "off")
	setCmd.MarkFlagsMutuallyExclusive("color", "hue")
	setCmd.MarkFlagsMutuallyExclusive("color", "saturation")

	for _, c := range []*cobra.Command{setCmd, groupCmd, profileApplyCmd, presetApplyCmd, sceneActivateCmd, doCmd} {
		c.Flags().DurationVar(&fadeDuration, "duration", 0, "Fade duration (default from config)")
	}
}

// changeFromFlags builds a change out of the flags that were given.
func changeFromFlags(cmd *cobra.Command) (lights.PartialControl, error) {
	var change lights.PartialControl
	flags := cmd.Flags()

	switch {
	case setOn:
		change.Power = lights.Bool(true)
	case setOff:
		change.Power = lights.Bool(false)
	}
	if flags.Changed("brightness") {
		change.Brightness = lights.Int(setBrightness)
	}
	if flags.Changed("hue") {
		change.Hue = lights.Int(setHue)
	}
	if flags.Changed("saturation") {
		change.Saturation = lights.Int(setSaturation)
	}
	if flags.Changed("kelvin") {
		change.Kelvin = lights.Int(setKelvin)
	}
	if setColor != "" {
		c, err := command.ParseColor(setColor)
		if err != nil {
			return change, err
		}
		change.Hue = lights.Int(c.Hue)
		change.Saturation = lights.Int(c.Saturation)
	}
	change.Duration = durationFlag(cmd)

	if change.IsEmpty() {
		return change, fmt.Errorf("nothing to change: give at least one of --on, --off, --brightness, --hue, --saturation, --kelvin, --color")
	}
	return change, change.Validate()
}

func durationFlag(cmd *cobra.Command) *time.Duration {
	if cmd.Flags().Changed("duration") {
		return lights.Dur(fadeDuration)
	}
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	change, err := changeFromFlags(cmd)
	if err != nil {
		return err
	}

	return withApp(func(ctx context.Context, a *App) error {
		found, err := a.Discover(ctx)
		if err != nil {
			return err
		}
		targets, err := resolveLights(found, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Applying %s to %d light(s)...\n", change, len(targets))
		results, err := a.Set(ctx, targets, change)
		return errors.Join(err, printResults(results))
	})
}

var groupCmd = &cobra.Command{
	Use:   "group <name> on|off",
	Short: "Turn every light of a cloud group on or off",
	Long: `Turn every light in a group on or off. Groups are reported by the
LIFX cloud API, so an HTTP API token must be configured.`,
	Example: `  lifxctl group kitchen off`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var on bool
		switch strings.ToLower(args[1]) {
		case "on":
			on = true
		case "off":
		default:
			return fmt.Errorf("invalid power %q: expected on or off", args[1])
		}

		return withApp(func(ctx context.Context, a *App) error {
			found, err := a.Discover(ctx)
			if err != nil {
				return err
			}
			targets, err := groupLights(found, args[0])
			if err != nil {
				return err
			}
			results, err := a.Set(ctx, targets, lights.PartialControl{Power: lights.Bool(on), Duration: durationFlag(cmd)})
			return errors.Join(err, printResults(results))
		})
	},
}

// Profile command flags
var (
	profileDescription string
	profileTags        []string
	profileLights      string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Save and restore light profiles",
}

var profileSaveCmd = &cobra.Command{
	Use:   "save <name>",
	Short: "Capture the current state of the lights as a profile",
	Example: `  lifxctl profile save "Evening" --tag cozy --tag relax
  lifxctl profile save "Desk only" --lights desk`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *App) error {
			found, err := a.Discover(ctx)
			if err != nil {
				return err
			}
			targets, err := resolveLights(found, profileLights)
			if err != nil {
				return err
			}
			p, err := a.profiles.Capture(args[0], profileDescription, profileTags, targets)
			if err != nil {
				return err
			}
			fmt.Printf("Saved profile %q with %d light(s) (id %s)\n", p.Name, len(p.Lights), p.ID)
			return nil
		})
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *App) error {
			all, err := a.profiles.List()
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(all)
			}
			if len(all) == 0 {
				fmt.Println("No profiles saved.")
				return nil
			}
			for _, p := range all {
				printProfile(p)
			}
			return nil
		})
	},
}

func printProfile(p *store.Profile) {
	fmt.Printf("%s (%d light(s))\n", p.Name, len(p.Lights))
	fmt.Printf("   ID:      %s\n", p.ID)
	if p.Description != "" {
		fmt.Printf("   About:   %s\n", p.Description)
	}
	if len(p.Tags) > 0 {
		fmt.Printf("   Tags:    %s\n", strings.Join(p.Tags, ", "))
	}
	fmt.Printf("   Updated: %s\n\n", p.UpdatedAt.Local().Format(time.DateTime))
}

var profileApplyCmd = &cobra.Command{
	Use:     "apply <profile>",
	Short:   "Restore a saved profile",
	Example: `  lifxctl profile apply evening`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *App) error {
			p, err := a.profiles.Find(args[0])
			if err != nil {
				return err
			}
			// Discovery teaches the coordinator which transport reaches each light.
			if _, err := a.Discover(ctx); err != nil {
				return err
			}
			fmt.Printf("Applying profile %q...\n", p.Name)
			results, err := a.profiles.Apply(ctx, p, a.duration(durationFlag(cmd)))
			return errors.Join(err, printResults(results))
		})
	},
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <profile>",
	Short: "Delete a saved profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *App) error {
			p, err := a.profiles.Find(args[0])
			if err != nil {
				return err
			}
			if err := a.profiles.Delete(p.ID); err != nil {
				return err
			}
			fmt.Printf("Deleted profile %q\n", p.Name)
			return nil
		})
	},
}

func init() {
	profileSaveCmd.Flags().StringVar(&profileDescription, "description", "", "Profile description")
	profileSaveCmd.Flags().StringSliceVar(&profileTags, "tag", nil, "Tag for the profile (repeatable)")
	profileSaveCmd.Flags().StringVar(&profileLights, "lights", "all", "Light to capture: id, label or all")

	profileCmd.AddCommand(profileSaveCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileApplyCmd)
	profileCmd.AddCommand(profileDeleteCmd)
}

var presetCategory string

var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Built-in lighting presets",
}

var presetListCmd = &cobra.Command{
	Use:   "list [search]",
	Short: "List built-in presets",
	Example: `  lifxctl preset list
  lifxctl preset list --category chill
  lifxctl preset list warm`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list := profiles.Presets()
		switch {
		case presetCategory != "":
			list = profiles.PresetsByCategory(profiles.Category(presetCategory))
		case len(args) == 1:
			list = profiles.SearchPresets(args[0])
		}

		if outputFormat == "json" {
			return printJSON(list)
		}
		if len(list) == 0 {
			fmt.Println("No presets match.")
			fmt.Printf("Categories: %s\n", joinCategories(profiles.PresetCategories()))
			return nil
		}
		for _, p := range list {
			fmt.Printf("%-14s %-14s %s\n", p.ID, p.Category, p.Description)
		}
		return nil
	},
}

func joinCategories(cs []profiles.Category) string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return strings.Join(out, ", ")
}

var presetApplyCmd = &cobra.Command{
	Use:   "apply <preset> [light]",
	Short: "Apply a preset to a light or to every light",
	Example: `  lifxctl preset apply movie
  lifxctl preset apply reading-mode desk`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		preset, ok := profiles.PresetByID(args[0])
		if !ok {
			return fmt.Errorf("unknown preset %q", args[0])
		}
		target := "all"
		if len(args) == 2 {
			target = args[1]
		}

		return withApp(func(ctx context.Context, a *App) error {
			found, err := a.Discover(ctx)
			if err != nil {
				return err
			}
			targets, err := resolveLights(found, target)
			if err != nil {
				return err
			}
			fmt.Printf("Applying preset %q...\n", preset.Name)
			results, err := a.profiles.ApplyPreset(ctx, preset, lightIDs(targets), a.duration(durationFlag(cmd)))
			return errors.Join(err, printResults(results))
		})
	},
}

var presetSaveCmd = &cobra.Command{
	Use:   "save <preset>",
	Short: "Store a preset as a profile of the current lights",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		preset, ok := profiles.PresetByID(args[0])
		if !ok {
			return fmt.Errorf("unknown preset %q", args[0])
		}
		return withApp(func(ctx context.Context, a *App) error {
			found, err := a.Discover(ctx)
			if err != nil {
				return err
			}
			p, err := a.profiles.SavePreset(preset, found)
			if err != nil {
				return err
			}
			fmt.Printf("Saved profile %q with %d light(s)\n", p.Name, len(p.Lights))
			return nil
		})
	},
}

func init() {
	presetListCmd.Flags().StringVar(&presetCategory, "category", "", "Only presets of this category")

	presetCmd.AddCommand(presetListCmd)
	presetCmd.AddCommand(presetApplyCmd)
	presetCmd.AddCommand(presetSaveCmd)
}

var sceneCmd = &cobra.Command{
	Use:   "scene",
	Short: "Scenes saved in the LIFX cloud account",
	Long: `Scenes are stored in the LIFX cloud, so these commands need an HTTP API
token (http.token in the config file).`,
}

var sceneListCmd = &cobra.Command{
	Use:   "list",
	Short: "List account scenes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *App) error {
			scenes, err := a.lights.Scenes(ctx)
			if err != nil {
				return err
			}
			if outputFormat == "json" {
				return printJSON(scenes)
			}
			if len(scenes) == 0 {
				fmt.Println("No scenes in this account.")
				return nil
			}
			for _, sc := range scenes {
				fmt.Printf("%-24s %s (%d state(s))\n", sc.Name, sc.UUID, len(sc.States))
			}
			return nil
		})
	},
}

var sceneActivateCmd = &cobra.Command{
	Use:   "activate <scene>",
	Short: "Activate an account scene by name or uuid",
	Example: `  lifxctl scene activate "Movie Night"
  lifxctl scene activate 2b1a4a2e-6f3c-4d6e-9d1f-0c4a5b6e7f80 --duration 3s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *App) error {
			scene, results, err := a.ActivateScene(ctx, args[0], durationFlag(cmd))
			if scene.Name != "" {
				fmt.Printf("Activated scene %q\n", scene.Name)
			}
			return errors.Join(err, printResults(results))
		})
	},
}

func init() {
	sceneCmd.AddCommand(sceneListCmd)
	sceneCmd.AddCommand(sceneActivateCmd)
}

var doCmd = &cobra.Command{
	Use:   "do <text>",
	Short: "Run a plain-language command",
	Long: `Interpret a short phrase and apply it. Phrases mentioning "all" address
every light, otherwise the first light. Saved profiles can be named too.`,
	Example: `  lifxctl do "turn on all lights"
  lifxctl do "set to purple and dim it a bit"
  lifxctl do "3000k"
  lifxctl do "apply my evening profile"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		return withApp(func(ctx context.Context, a *App) error {
			found, err := a.Discover(ctx)
			if err != nil {
				return err
			}
			if d := durationFlag(cmd); d != nil {
				a.cfg.Control.DefaultDuration = config.Duration(*d)
			}
			parsed, results, err := a.Do(ctx, text, found)
			if parsed.Kind != command.KindUnknown {
				fmt.Printf("%s (confidence %.0f%%)\n", command.Describe(parsed), parsed.Confidence*100)
			}
			return errors.Join(err, printResults(results))
		})
	},
}
