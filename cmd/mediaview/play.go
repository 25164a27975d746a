package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/thesyncim/mediaview"
	"github.com/thesyncim/mediaview/internal/api"
	"github.com/thesyncim/mediaview/internal/conf"
	"github.com/thesyncim/mediaview/internal/eventsink"
	"github.com/thesyncim/mediaview/internal/logging"
)

func playCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play [source]",
		Short: "Run an element and serve its control API",
		Long: "Run an element bound to a file, image or the virtual camera until interrupted.\n" +
			"A positional source overrides element.source from the config.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.settings.Element.Source = args[0]
			}
			return runPlay(cmd.Context(), a.settings, a.logger)
		},
	}

	flags := cmd.Flags()
	flags.Bool("camera", false, "Use the virtual camera")
	flags.Bool("image", false, "Treat the source as a still image")
	flags.Bool("loop", false, "Loop playback")
	flags.Bool("autoplay", false, "Start playback once data is ready")
	flags.Float64("rate", 1, "Playback rate")
	flags.String("scale", "fit", "Scale mode (fit or fill)")
	flags.String("listen", "127.0.0.1:8089", "Control API listen address")
	flags.Bool("mqtt", false, "Forward events to MQTT")
	bindFlags(a.viper, flags, map[string]string{
		"element.usecamera":    "camera",
		"element.isimage":      "image",
		"element.islooping":    "loop",
		"element.autoplay":     "autoplay",
		"element.playbackrate": "rate",
		"element.scalemode":    "scale",
		"http.listen":          "listen",
		"mqtt.enabled":         "mqtt",
	})
	return cmd
}

func runPlay(ctx context.Context, settings *conf.Settings, logger *slog.Logger) error {
	provider := mediaview.NewPatternDeviceProvider(settings.Camera.PatternConfig())
	mediaview.RegisterDeviceProvider(provider)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := mediaview.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	element := mediaview.NewElement(mediaview.ElementConfig{
		Loader: &mediaview.DefaultLoader{
			Prober: mediaview.FFProbe{Path: settings.Probe.FFProbePath},
			Images: mediaview.NewImageDecoder(settings.Probe.ImageTTL),
		},
		Acquire: mediaview.DefaultAcquire,
		Presenter: mediaview.PresenterFunc(func(kind mediaview.ResourceKind, rect mediaview.Rect) {
			logger.Debug("layout", "kind", kind.String(), "x", rect.X, "y", rect.Y, "width", rect.Width, "height", rect.Height)
		}),
		Metrics:        metrics,
		Logger:         logger.With("component", "mediaview"),
		SampleInterval: settings.Element.SampleInterval,
		LoadDelay:      settings.Element.LoadDelay,
		ScaleMode:      mediaview.ParseScaleMode(settings.Element.ScaleMode),
		Attributes:     settings.Element.Attributes(),
	})
	defer element.Close()

	element.On(func(ev mediaview.Event) {
		switch ev.Type {
		case mediaview.EventTimeUpdate:
			logger.Log(context.Background(), logging.LevelTrace, "time-update", "position", element.CurrentTime())
		case mediaview.EventError:
			logger.Warn("element error", "error", ev.Err)
		default:
			logger.Info("element event", "type", string(ev.Type), "state", element.State().String(), "kind", element.ActiveKind().String())
		}
	})

	mediaview.GetMediaDevices().OnDeviceChange(func() {
		logger.Info("capture devices changed")
		element.Reacquire()
	})

	g, ctx := errgroup.WithContext(ctx)

	if settings.HTTP.Enabled {
		controller := api.New(element, registry, logger)
		controller.EnableCameraAccess(provider)
		g.Go(func() error {
			logger.Info("control API listening", "addr", settings.HTTP.Listen)
			return controller.Start(ctx, settings.HTTP.Listen)
		})
	}

	if settings.MQTT.Enabled {
		pub := eventsink.NewMQTTPublisher(eventsink.MQTTConfig{
			Broker:   settings.MQTT.Broker,
			ClientID: settings.MQTT.ClientID,
			Username: settings.MQTT.Username,
			Password: settings.MQTT.Password,
		}, logger)
		if err := pub.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		defer pub.Disconnect()

		sink := eventsink.New(pub, eventsink.Config{
			Topic:      settings.MQTT.Topic,
			TimeUpdate: rate.Limit(settings.MQTT.TimeUpdate),
		}, logger)
		cancel := sink.Attach(element)
		defer cancel()
		g.Go(func() error { return sink.Run(ctx) })
	}

	element.Resize(settings.Element.Bounds())
	element.Attach()

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}
