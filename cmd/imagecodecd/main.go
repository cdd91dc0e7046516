// Command imagecodecd wires the imagecodec core into a standalone
// demo host process: it loads a YAML config, builds the device
// capacity/coordinator/registry/runner collaborators, picks a
// provider.Bridge (the GStreamer-backed reference provider if
// --gst-image is given, otherwise an in-memory mock), and serves a
// single decode request per invocation before shutting down cleanly.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/e7canasta/orion-imagecodec/examples/gstprovider"
	"github.com/e7canasta/orion-imagecodec/internal/capacity"
	"github.com/e7canasta/orion-imagecodec/internal/codec"
	"github.com/e7canasta/orion-imagecodec/internal/config"
	"github.com/e7canasta/orion-imagecodec/internal/coordinator"
	"github.com/e7canasta/orion-imagecodec/internal/imagetypes"
	"github.com/e7canasta/orion-imagecodec/internal/provider"
	"github.com/e7canasta/orion-imagecodec/internal/providertest"
	"github.com/e7canasta/orion-imagecodec/internal/registry"
	"github.com/e7canasta/orion-imagecodec/internal/runner"
	"github.com/e7canasta/orion-imagecodec/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to the host's YAML config (required)")
	gstImagePath := flag.String("gst-image", "", "decode this local image file with the GStreamer reference provider instead of the in-memory mock")
	requestURL := flag.String("url", "demo://placeholder", "RequestInfo.URL for the single demo decode request (ignored with -gst-image, which uses the image path itself)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -config is required")
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("imagecodecd: shutdown signal received")
		cancel()
	}()

	if err := run(ctx, *configPath, *gstImagePath, *requestURL, logger); err != nil {
		logger.Error("imagecodecd: fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, gstImagePath, requestURL string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("imagecodecd: %w", err)
	}
	logger.Info("imagecodecd: configuration loaded",
		"instance_id", cfg.InstanceID,
		"cpu_core_count", cfg.Coordinator.CPUCoreCount,
		"worker_pool_size", cfg.Runners.WorkerPoolSize,
	)

	uiRunner := runner.NewSerialRunner()
	ioRunner := runner.NewSerialRunner()
	workerPool := runner.NewWorkerPool(cfg.Runners.WorkerPoolSize)
	defer uiRunner.Close()
	defer ioRunner.Close()
	defer workerPool.Close()

	decodeCoordinator := coordinator.New(workerPool, logger)
	device := capacity.NewDevice()
	device.Set(capacity.Capacity{
		CPUCoreCount:      cfg.Coordinator.CPUCoreCount,
		MaxMemoryInFlight: cfg.Coordinator.MaxMemoryInFlightBytes,
	})
	decodeCoordinator.UpdateCapacity(cfg.Coordinator.CPUCoreCount, cfg.Coordinator.MaxMemoryInFlightBytes)

	pendingRegistry := registry.New()

	bridge, requestURL, err := buildProvider(gstImagePath, requestURL, cfg, logger)
	if err != nil {
		return err
	}

	manager := &codec.Manager{
		Provider:    bridge,
		RequestIDs:  provider.NewRequestIDs(),
		Registry:    pendingRegistry,
		Coordinator: decodeCoordinator,
		Device:      device,
		UI:          uiRunner,
		IO:          ioRunner,
		Uploader:    rasterUploader{log: logger},
		Log:         logger,
	}

	var emitter *telemetry.Emitter
	if cfg.Telemetry.Enabled {
		emitter = telemetry.NewEmitter(cfg.Telemetry, cfg.InstanceID, logger)
		if err := emitter.Connect(); err != nil {
			logger.Warn("imagecodecd: telemetry connect failed, continuing without it", "error", err)
			emitter = nil
		} else {
			go emitter.RunSnapshotLoop(decodeCoordinator)
			defer func() {
				emitter.Stop()
				emitter.Disconnect()
			}()
		}
	}

	done := make(chan struct{})
	uiRunner.Post(func() {
		runDemoRequest(manager, requestURL, emitter, logger, func() { close(done) })
	})

	select {
	case <-done:
	case <-ctx.Done():
		logger.Info("imagecodecd: shutting down before demo request completed")
	case <-time.After(30 * time.Second):
		logger.Warn("imagecodecd: demo request timed out")
	}

	logger.Info("imagecodecd: pending codecs at shutdown", "count", pendingRegistry.Len())
	return nil
}

// buildProvider picks the GStreamer reference provider when an image
// path is given, falling back to the in-memory mock otherwise (useful
// for exercising the core without a GStreamer runtime installed).
func buildProvider(gstImagePath, requestURL string, cfg *config.Config, logger *slog.Logger) (provider.Bridge, string, error) {
	if gstImagePath == "" {
		mock := providertest.NewMock()
		mock.AutoDeliverImage = mock.NewImage(1, 4, 4, 1, -1, 0)
		mock.DecodeFn = func(image *imagetypes.PlatformImage, frameIndex int) (*imagetypes.Bitmap, error) {
			pixels := make([]byte, image.Width*image.Height*4)
			return &imagetypes.Bitmap{
				Pixels:       pixels,
				PixelsCopied: true,
				Width:        image.Width,
				Height:       image.Height,
				BytesPerRow:  image.Width * 4,
				ColorType:    imagetypes.ColorRGBA8888,
				AlphaType:    imagetypes.AlphaUnpremul,
			}, nil
		}
		return mock, requestURL, nil
	}

	gp, err := gstprovider.New(logger, cfg.Coordinator.MaxMemoryInFlightBytes)
	if err != nil {
		return nil, "", fmt.Errorf("imagecodecd: failed to construct gstprovider: %w", err)
	}
	return gp, gstImagePath, nil
}

func runDemoRequest(manager *codec.Manager, url string, emitter *telemetry.Emitter, logger *slog.Logger, finished func()) {
	c, err := manager.NewCodec(imagetypes.RequestInfo{URL: url, TargetWidth: 0, TargetHeight: 0})
	if err != nil {
		logger.Error("imagecodecd: failed to construct codec", "error", err)
		finished()
		return
	}

	c.GetImageInfo(func(info imagetypes.InfoList) {
		logger.Info("imagecodecd: image info",
			"width", info[0], "height", info[1],
			"frame_count", info[2], "duration_ms", info[3], "repetition_count", info[4],
		)
	})

	c.GetNextFrame(func(frame *imagetypes.FrameInfo) {
		defer finished()
		if frame == nil {
			logger.Warn("imagecodecd: decode failed, no frame delivered")
			if emitter != nil {
				emitter.PublishCompletion(0, false)
			}
			return
		}
		logger.Info("imagecodecd: frame ready",
			"gpu_handle", frame.Image.Handle(),
			"duration_ms", frame.DurationMs,
		)
		if emitter != nil {
			emitter.PublishCompletion(frame.RequestID, true)
		}
	})
}

// rasterUploader is a demo-only codec.Uploader: it never enables GPU
// upload, so the core always exercises the CPU-raster path. A real
// host would upload to a platform texture instead.
type rasterUploader struct {
	log *slog.Logger
}

func (rasterUploader) GPUEnabled() bool { return false }

func (rasterUploader) UploadTexture(bitmap *imagetypes.Bitmap) (imagetypes.GPUImage, error) {
	return imagetypes.None, fmt.Errorf("rasterUploader: GPU upload not supported")
}

func (u rasterUploader) UploadRaster(pixels []byte, info codec.RasterInfo) (imagetypes.GPUImage, error) {
	u.log.Debug("imagecodecd: raster upload",
		"width", info.Width, "height", info.Height, "bytes", len(pixels),
	)
	return imagetypes.NewGPUImage(1), nil
}
