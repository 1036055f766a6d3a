package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/behavior-cascade/internal/cascade"
	"github.com/banshee-data/behavior-cascade/internal/config"
	"github.com/banshee-data/behavior-cascade/internal/detect/cvdnn"
	"github.com/banshee-data/behavior-cascade/internal/frame"
	"github.com/banshee-data/behavior-cascade/internal/frame/cvframe"
	"github.com/banshee-data/behavior-cascade/internal/publish"
	"github.com/banshee-data/behavior-cascade/internal/storage/sqlite"
	"github.com/banshee-data/behavior-cascade/internal/telemetry"
	"github.com/banshee-data/behavior-cascade/internal/version"
	"github.com/banshee-data/behavior-cascade/internal/watch"
)

// Run flags
var (
	runProfile      string
	runSource       string
	runPipelineID   string
	runInputSize    int
	runConcurrency  int
	runAsync        bool
	runMaxFrames    int64
	runSnapshotDir  string
	runWatch        bool
	runRedisAddr    string
	runRedisStream  string
	runOTLPEndpoint string
	runSampleRatio  float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a behavior pipeline over a video source",
	Long: `Run a behavior pipeline over a video file, stream URL or camera index.

Confirmed events are printed to stdout as JSON lines and, when configured,
stored in SQLite (--db) and appended to a Redis stream (--redis-addr).

Examples:
  cascade run --profile smoke.yaml --source clip.mp4
  cascade run --profile smoke.yaml --source 0 --db events.db --snapshots shots/
  cascade run --profile phone.json --source rtsp://cam/1 --watch --otlp-endpoint localhost:4317`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runProfile, "profile", "p", "", "Profile file (.json, .yaml or .yml)")
	f.StringVarP(&runSource, "source", "s", "", "Video file, stream URL or camera index")
	f.StringVar(&runPipelineID, "pipeline-id", "", "Id stamped on events (default: random)")
	f.IntVar(&runInputSize, "input-size", 640, "Square network input size")
	f.IntVar(&runConcurrency, "concurrency", 1, "Concurrent inferences per model")
	f.BoolVar(&runAsync, "async", false, "Submit frames with AsyncInfer")
	f.Int64Var(&runMaxFrames, "max-frames", 0, "Stop after this many frames (0 = until end of source)")
	f.StringVar(&runSnapshotDir, "snapshots", "", "Write annotated frames with events to this directory")
	f.BoolVar(&runWatch, "watch", false, "Reload models when the profile file changes")
	f.StringVar(&runRedisAddr, "redis-addr", "", "Publish events to Redis at this address")
	f.StringVar(&runRedisStream, "redis-stream", "cascade:events", "Redis stream key")
	f.StringVar(&runOTLPEndpoint, "otlp-endpoint", "", "Export pass traces to this OTLP gRPC collector")
	f.Float64Var(&runSampleRatio, "sample-ratio", 1.0, "Fraction of passes traced")
	_ = runCmd.MarkFlagRequired("profile")
	_ = runCmd.MarkFlagRequired("source")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadProfileConfig(runProfile)
	if err != nil {
		return err
	}
	if runSnapshotDir != "" {
		if err := os.MkdirAll(runSnapshotDir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	opts := []cascade.Option{}
	if runPipelineID != "" {
		opts = append(opts, cascade.WithID(runPipelineID))
	}

	sinks, closeSinks, err := openSinks()
	if err != nil {
		return err
	}
	defer closeSinks()
	opts = append(opts, cascade.WithSinks(sinks...))

	if runOTLPEndpoint != "" {
		otlpCfg := telemetry.DefaultOTLPConfig("behavior-cascade")
		otlpCfg.Endpoint = runOTLPEndpoint
		otlpCfg.ServiceVersion = version.Version
		otlpCfg.SamplingRatio = runSampleRatio
		tp, err := telemetry.Init(ctx, otlpCfg, true)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				log.Printf("trace shutdown: %v", err)
			}
		}()
		opts = append(opts, cascade.WithTracerProvider(tp.TracerProvider))
	}

	engine := cvdnn.Engine{InputSize: runInputSize, Concurrency: runConcurrency}
	pipeline, err := cascade.New(engine, cfg.ToProfile(), opts...)
	if err != nil {
		return err
	}
	defer pipeline.Close()
	if err := pipeline.LoadModels(cfg.ModelConfigs()); err != nil {
		return err
	}
	log.Printf("pipeline %s (%s) loaded %d model(s)", pipeline.ID(), cfg.Behavior, len(cfg.Models))

	capture, err := openCapture(runSource)
	if err != nil {
		return err
	}
	defer capture.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	if runWatch {
		w, err := watch.New(runProfile, pipeline)
		if err != nil {
			return err
		}
		g.Go(func() error { return w.Run(gctx) })
	}
	g.Go(func() error {
		defer cancel()
		return processFrames(gctx, pipeline, capture, cmd.OutOrStdout())
	})
	return g.Wait()
}

// openSinks opens the configured event sinks. The returned func closes
// whatever was opened.
func openSinks() ([]cascade.EventSink, func(), error) {
	var (
		sinks   []cascade.EventSink
		closers []io.Closer
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}

	if dbPath != "" {
		db, err := sqlite.Open(dbPath)
		if err != nil {
			return nil, func() {}, err
		}
		closers = append(closers, db)
		if err := sqlite.MigrateUp(db); err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sinks = append(sinks, sqlite.NewEventStore(db))
	}
	if runRedisAddr != "" {
		rcfg := publish.DefaultRedisConfig(runRedisAddr)
		rcfg.Stream = runRedisStream
		pub, err := publish.NewRedisPublisher(rcfg)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, pub)
		sinks = append(sinks, pub)
	}
	return sinks, closeAll, nil
}

func openCapture(source string) (*gocv.VideoCapture, error) {
	var device interface{} = source
	if n, err := strconv.Atoi(source); err == nil {
		device = n
	}
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open video source %s: %w", source, err)
	}
	return capture, nil
}

// processFrames reads until the source ends, ctx is cancelled or
// --max-frames is reached.
func processFrames(ctx context.Context, pipeline *cascade.Pipeline, capture *gocv.VideoCapture, out io.Writer) error {
	enc := json.NewEncoder(out)
	emit := func(frameID int64, f *cvframe.Frame, events []cascade.Event) {
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				log.Printf("frame %d: encode event: %v", frameID, err)
			}
		}
		if runSnapshotDir != "" && len(events) > 0 {
			if path, err := writeSnapshot(runSnapshotDir, f, frameID, events); err != nil {
				log.Printf("frame %d: %v", frameID, err)
			} else {
				log.Printf("frame %d: snapshot %s", frameID, path)
			}
		}
	}

	// Bounds the frames held by in-flight async passes.
	slots := make(chan struct{}, 2*max(runConcurrency, 1))

	var frameID int64
	for runMaxFrames <= 0 || frameID < runMaxFrames {
		if ctx.Err() != nil {
			break
		}
		mat := gocv.NewMat()
		if ok := capture.Read(&mat); !ok || mat.Empty() {
			mat.Close()
			break
		}
		frameID++
		f := cvframe.New(mat)

		if !runAsync {
			events, err := pipeline.SyncInfer(ctx, frameID, f)
			if err != nil {
				if !errors.Is(err, cascade.ErrInference) {
					f.Close()
					return err
				}
				log.Printf("frame %d: %v", frameID, err)
			}
			emit(frameID, f, events)
			f.Close()
			continue
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			f.Close()
			return nil
		}
		pipeline.AsyncInfer(frameID, f, func(id int64, _ frame.Frame, events []cascade.Event) {
			emit(id, f, events)
			f.Close()
			<-slots
		})
	}
	log.Printf("processed %d frame(s)", frameID)
	return nil
}
