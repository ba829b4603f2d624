package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/teslashibe/go-focuscoach/internal/config"
	"github.com/teslashibe/go-focuscoach/internal/log"
	"github.com/teslashibe/go-focuscoach/pkg/coach"
	"github.com/teslashibe/go-focuscoach/pkg/presence/landmark"
	"github.com/teslashibe/go-focuscoach/pkg/tts"
)

// rootCommand builds the CLI. Flags override FOCUS_* environment variables,
// which override .env entries.
func rootCommand() *cobra.Command {
	v := config.New()

	root := &cobra.Command{
		Use:           "focuscoach",
		Short:         "Webcam focus coach",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			log.Init(v.GetString("log_level"))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("log-level", v.GetString("log_level"), "Log level: debug, info, warn, error")
	pf.String("data-dir", v.GetString("data_dir"), "Directory for settings and stats")
	pf.String("model", v.GetString("detector.model_path"), "Path to the face detection model")
	mustBind(v, "log_level", pf.Lookup("log-level"))
	mustBind(v, "data_dir", pf.Lookup("data-dir"))
	mustBind(v, "detector.model_path", pf.Lookup("model"))

	root.AddCommand(serveCommand(v), fetchModelCommand(v), voicesCommand(v))
	return root
}

func serveCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the focus coach and its dashboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), config.Load(v))
		},
	}

	f := cmd.Flags()
	f.String("addr", v.GetString("server.addr"), "Dashboard listen address")
	f.Int("camera", v.GetInt("camera.device"), "Webcam device index")
	f.String("user", v.GetString("user_name"), "Name used in coaching prompts")
	f.Int("focus", v.GetInt("timer.focus_minutes"), "Focus phase length in minutes")
	f.Int("break", v.GetInt("timer.break_minutes"), "Break length in minutes")
	f.Bool("voice", v.GetBool("voice.enabled"), "Speak coaching prompts")
	f.Bool("playback", v.GetBool("voice.playback"), "Play prompts on the sound card")
	f.String("ambient", v.GetString("ambient.sound"), "Background sound: off, white-noise, brown-noise")
	f.StringSlice("notify", v.GetStringSlice("notify.urls"), "Shoutrrr notification URLs")
	f.Duration("threshold", v.GetDuration("attention.distraction_threshold"), "Absence before a distraction is reported")
	f.Bool("fetch-model", v.GetBool("detector.fetch_model"), "Download the face model when missing")

	for key, name := range map[string]string{
		"server.addr":                     "addr",
		"camera.device":                   "camera",
		"user_name":                       "user",
		"timer.focus_minutes":             "focus",
		"timer.break_minutes":             "break",
		"voice.enabled":                   "voice",
		"voice.playback":                  "playback",
		"ambient.sound":                   "ambient",
		"notify.urls":                     "notify",
		"attention.distraction_threshold": "threshold",
		"detector.fetch_model":            "fetch-model",
	} {
		mustBind(v, key, f.Lookup(name))
	}
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	app, err := coach.New(cfg)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := app.Init(); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer app.Shutdown()

	log.Info("dashboard listening", "addr", cfg.Server.Addr)
	if err := app.Run(ctx); err != nil {
		return fmt.Errorf("runtime error: %w", err)
	}
	return nil
}

func fetchModelCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch-model",
		Short: "Download the face detection model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load(v)
			f := landmark.NewFetcher(cfg.Detector.ModelPath, cfg.Detector.ModelURL, log.L())
			if f.Available() {
				fmt.Printf("✅ Model already present at %s\n", cfg.Detector.ModelPath)
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			if err := f.Fetch(ctx); err != nil {
				return err
			}
			fmt.Printf("✅ Model saved to %s\n", cfg.Detector.ModelPath)
			return nil
		},
	}
	cmd.Flags().String("url", v.GetString("detector.model_url"), "Model download URL")
	mustBind(v, "detector.model_url", cmd.Flags().Lookup("url"))
	return cmd
}

func voicesCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "voices",
		Short: "List the ElevenLabs voices available to the API key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load(v)
			if cfg.Voice.ElevenLabsKey == "" {
				return fmt.Errorf("ELEVENLABS_API_KEY is not set")
			}
			el, err := tts.NewElevenLabs(tts.WithAPIKey(cfg.Voice.ElevenLabsKey), tts.WithLogger(log.L()))
			if err != nil {
				return err
			}
			defer el.Close()

			voices, err := el.Voices(cmd.Context())
			if err != nil {
				return err
			}
			for _, voice := range voices {
				fmt.Printf("%-24s %-20s %s\n", voice.ID, voice.Name, voice.Category)
			}
			return nil
		},
	}
}

func mustBind(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind %s: %v", key, err))
	}
}
