package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/camera"
	"github.com/kozaktomas/rollcall/internal/camera/opencv"
	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/mariadb"
	"github.com/kozaktomas/rollcall/internal/database/postgres"
	"github.com/kozaktomas/rollcall/internal/delivery"
	"github.com/kozaktomas/rollcall/internal/detect"
	"github.com/kozaktomas/rollcall/internal/detect/dlib"
	"github.com/kozaktomas/rollcall/internal/evidence"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/kozaktomas/rollcall/internal/pipeline"
	"github.com/kozaktomas/rollcall/internal/presence"
	"github.com/kozaktomas/rollcall/internal/web"
	"github.com/spf13/cobra"
)

const dlibEmbeddingDim = 128

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the attendance capture loop",
	Long: `Open the camera, recognize enrolled faces and report each identity once.

The loop stops when Q is pressed in the preview window, on SIGINT/SIGTERM,
when POST /api/v1/stop is called on the control server, or when a replay
directory runs out of frames.

Examples:
  rollcall run
  rollcall run --camera 1 --threshold 0.5
  rollcall run --camera ./frames --headless --delivery-url http://localhost:5000/api/mark_attendance`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("camera", "", "Camera index, device path or a directory of frames to replay (overrides CAMERA_DEVICE)")
	runCmd.Flags().String("gallery", "", "Path to the gallery artifact (overrides GALLERY_PATH)")
	runCmd.Flags().Float64("threshold", 0, "Match distance threshold (overrides MATCH_THRESHOLD)")
	runCmd.Flags().String("metric", "", "Distance metric: euclidean or cosine")
	runCmd.Flags().String("selection", "", "Match selection: nearest or first")
	runCmd.Flags().String("scope", "", "Presence scope: run or day")
	runCmd.Flags().String("delivery-url", "", "Attendance endpoint (overrides DELIVERY_URL)")
	runCmd.Flags().String("evidence-dir", "", "Directory for evidence snapshots (overrides EVIDENCE_DIR)")
	runCmd.Flags().String("control-addr", "", "Listen address of the control server, e.g. :8090 (overrides CONTROL_ADDR)")
	runCmd.Flags().Bool("headless", false, "Do not open a preview window")
	runCmd.Flags().Duration("replay-interval", 0, "Delay between frames when replaying a directory")
}

// applyRunFlags overrides config values with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if v := mustGetString(cmd, "camera"); v != "" {
		cfg.Camera.Device = v
	}
	if v := mustGetString(cmd, "gallery"); v != "" {
		cfg.Gallery.Source = "file"
		cfg.Gallery.Path = v
	}
	if v := mustGetFloat64(cmd, "threshold"); v > 0 {
		cfg.Matcher.Threshold = v
	}
	if v := mustGetString(cmd, "metric"); v != "" {
		cfg.Matcher.Metric = v
	}
	if v := mustGetString(cmd, "selection"); v != "" {
		cfg.Matcher.Selection = v
	}
	if v := mustGetString(cmd, "scope"); v != "" {
		cfg.Presence.Scope = v
	}
	if v := mustGetString(cmd, "delivery-url"); v != "" {
		cfg.Delivery.URL = v
	}
	if v := mustGetString(cmd, "evidence-dir"); v != "" {
		cfg.Evidence.Dir = v
	}
	if v := mustGetString(cmd, "control-addr"); v != "" {
		cfg.Control.Addr = v
	}
}

// loadGallery reads the reference set from the artifact file or PostgreSQL.
func loadGallery(ctx context.Context, cfg *config.Config, pool *postgres.Pool) (*gallery.Gallery, error) {
	switch cfg.Gallery.Source {
	case "", "file":
		fmt.Printf("Loading gallery from %s...\n", cfg.Gallery.Path)
		return gallery.Load(cfg.Gallery.Path)
	case "postgres":
		if pool == nil {
			return nil, errors.New("GALLERY_SOURCE=postgres requires DATABASE_URL")
		}
		fmt.Printf("Loading gallery from PostgreSQL...\n")
		return gallery.LoadFromStore(ctx, postgres.NewGalleryRepository(pool))
	default:
		return nil, fmt.Errorf("unknown gallery source %q (want file or postgres)", cfg.Gallery.Source)
	}
}

// buildMatcher creates the frame matcher, with an HNSW index when configured.
func buildMatcher(cfg *config.Config, g *gallery.Gallery) (*facematch.Matcher, error) {
	metric, err := facematch.ParseMetric(cfg.Matcher.Metric)
	if err != nil {
		return nil, err
	}
	selection, err := facematch.ParseSelection(cfg.Matcher.Selection)
	if err != nil {
		return nil, err
	}

	opts := facematch.Options{Metric: metric, Threshold: cfg.Matcher.Threshold, Selection: selection}
	switch cfg.Matcher.Index {
	case "", "exact":
	case "hnsw":
		if selection == facematch.SelectFirst {
			fmt.Printf("Warning: HNSW index ignored with first-match selection\n")
			break
		}
		fmt.Printf("Building in-memory HNSW index for %d gallery entries...\n", g.Len())
		opts.Index = facematch.BuildIndex(g, metric)
	default:
		return nil, fmt.Errorf("unknown match index %q (want exact or hnsw)", cfg.Matcher.Index)
	}
	return facematch.NewMatcher(g, opts)
}

// openHistory collects the attendance stores consulted by the presence tracker.
// The writer is nil unless PostgreSQL is configured.
func openHistory(cfg *config.Config, pool *postgres.Pool) (database.HistoryReaders, database.HistoryWriter, func(), error) {
	var (
		readers database.HistoryReaders
		writer  database.HistoryWriter
		closers []func()
	)

	if pool != nil {
		repo := postgres.NewAttendanceRepository(pool)
		readers = append(readers, repo)
		writer = repo
	}

	if cfg.Database.RecordingDSN != "" {
		fmt.Printf("Connecting to recording service database...\n")
		mdb, err := mariadb.NewPool(cfg.Database.RecordingDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to recording database: %w", err)
		}
		readers = append(readers, mdb)
		closers = append(closers, func() { mdb.Close() })
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return readers, writer, closeAll, nil
}

// buildDetector creates the configured face detector. The returned func releases it.
func buildDetector(cfg *config.Config, g *gallery.Gallery) (detect.Detector, func(), error) {
	switch cfg.Detector.Backend {
	case "", "http":
		fmt.Printf("Using embedding server at %s\n", cfg.Detector.URL)
		return detect.NewHTTPDetector(cfg.Detector.URL, cfg.Detector.MaxFrameSize, cfg.Detector.Timeout), func() {}, nil
	case "dlib":
		fmt.Printf("Loading dlib models from %s...\n", cfg.Detector.ModelsPath)
		d, err := dlib.New(cfg.Detector.ModelsPath, cfg.Detector.MaxFrameSize)
		if err != nil {
			return nil, nil, err
		}
		if g.Dim() != dlibEmbeddingDim {
			fmt.Printf("Warning: gallery embeddings have dimension %d, dlib produces %d; nothing will match\n", g.Dim(), dlibEmbeddingDim)
		} else if g.Model() != "" && g.Model() != dlib.Model {
			fmt.Printf("Warning: gallery was enrolled with model %q, detector uses %q\n", g.Model(), dlib.Model)
		}
		return d, d.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown detector backend %q (want http or dlib)", cfg.Detector.Backend)
	}
}

// openSource opens a replay directory when device names one, otherwise a camera.
func openSource(device string, interval time.Duration) (camera.Source, error) {
	if info, err := os.Stat(device); err == nil && info.IsDir() {
		replay, err := camera.OpenReplay(device, interval)
		if err != nil {
			return nil, err
		}
		fmt.Printf("Replaying %d frames from %s\n", replay.Len(), device)
		return replay, nil
	}
	fmt.Printf("Opening camera %s...\n", device)
	webcam, err := opencv.OpenWebcam(device)
	if err != nil {
		return nil, err
	}
	return webcam, nil
}

// buildDisplay returns the preview sink and the headless buffer that backs GET /api/v1/frame.
func buildDisplay(cfg *config.Config, headless bool) (camera.Display, *camera.Headless) {
	buffer := camera.NewHeadless()
	if headless {
		return buffer, buffer
	}
	return camera.Tee{opencv.NewWindow(cfg.Camera.WindowTitle), buffer}, buffer
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyRunFlags(cmd, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pool *postgres.Pool
	if cfg.UsesPostgres() {
		fmt.Printf("Connecting to PostgreSQL database...\n")
		p, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		defer p.Close()
		pool = p
	}

	g, err := loadGallery(ctx, cfg, pool)
	if err != nil {
		return err
	}
	fmt.Printf("Gallery ready: %d identities, dimension %d\n", g.Len(), g.Dim())

	matcher, err := buildMatcher(cfg, g)
	if err != nil {
		return err
	}

	scope, err := presence.ParseScope(cfg.Presence.Scope)
	if err != nil {
		return err
	}
	readers, writer, closeHistory, err := openHistory(cfg, pool)
	if err != nil {
		return err
	}
	defer closeHistory()

	var history database.HistoryReader
	if len(readers) > 0 {
		history = readers
	} else if scope == presence.ScopeDay {
		fmt.Printf("Warning: presence scope 'day' without DATABASE_URL or RECORDING_DATABASE_DSN only suppresses repeats within this run\n")
	}
	tracker := presence.NewTracker(scope, history)

	detector, closeDetector, err := buildDetector(cfg, g)
	if err != nil {
		return err
	}
	defer closeDetector()

	policy, err := delivery.ParsePolicy(cfg.Delivery.QueuePolicy)
	if err != nil {
		return err
	}
	client := delivery.NewClient(cfg.Delivery.URL, cfg.Delivery.Timeout)
	dispatcher := delivery.NewDispatcher(client, delivery.DispatcherOptions{
		QueueSize:    cfg.Delivery.QueueSize,
		Policy:       policy,
		DrainTimeout: cfg.Delivery.DrainTimeout,
		History:      writer,
	})
	fmt.Printf("Delivering attendance to %s\n", client.URL())

	source, err := openSource(cfg.Camera.Device, mustGetDuration(cmd, "replay-interval"))
	if err != nil {
		dispatcher.Close()
		return err
	}
	display, frames := buildDisplay(cfg, mustGetBool(cmd, "headless"))

	loop, err := pipeline.New(pipeline.Deps{
		Source:   source,
		Display:  display,
		Detector: detector,
		Matcher:  matcher,
		Tracker:  tracker,
		Evidence: evidence.NewRecorder(cfg.Evidence.Dir, cfg.Evidence.JPEGQuality),
		Events:   dispatcher,
		Classifier: attendance.NewClassifier(
			cfg.Attendance.CutoffHour, cfg.Attendance.OnTimeLabel, cfg.Attendance.LateLabel),
		ReadTimeout: cfg.Camera.ReadTimeout,
	})
	if err != nil {
		source.Close()
		display.Close()
		dispatcher.Close()
		return err
	}

	server := startControlServer(cfg, loop, dispatcher, tracker, frames, pool)

	fmt.Printf("Capture loop started, press Q in the preview window or Ctrl+C to stop\n")
	runErr := loop.Run(ctx)

	if err := dispatcher.Close(); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
		cancel()
	}

	printRunSummary(loop.Stats(), dispatcher.Stats(), tracker.Count())
	if writer != nil {
		printHistoryCount(writer)
	}
	return runErr
}

// printHistoryCount reports how many identities the local history holds for today.
func printHistoryCount(writer database.HistoryWriter) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	today := attendance.Day(time.Now())
	count, err := writer.CountByDate(ctx, today)
	if err != nil {
		fmt.Printf("Warning: failed to count attendance history: %v\n", err)
		return
	}
	fmt.Printf("  Recorded %s: %d\n", today, count)
}

// startControlServer starts the control server in the background when an address is configured.
func startControlServer(
	cfg *config.Config, loop *pipeline.Loop, dispatcher *delivery.Dispatcher,
	tracker *presence.Tracker, frames *camera.Headless, pool *postgres.Pool,
) *web.Server {
	if cfg.Control.Addr == "" {
		return nil
	}

	opts := web.Options{
		Addr:     cfg.Control.Addr,
		Token:    cfg.Control.Token,
		Config:   cfg,
		Loop:     loop,
		Delivery: dispatcher,
		Presence: tracker,
		Frames:   frames,
	}
	if pool != nil {
		opts.History = postgres.NewAttendanceRepository(pool)
	}
	if cfg.Control.Token == "" {
		fmt.Printf("Warning: CONTROL_TOKEN is not set, anyone can stop the capture loop\n")
	}

	server := web.NewServer(opts)
	go func() {
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Control server error: %v\n", err)
		}
	}()
	return server
}

func printRunSummary(loop pipeline.Stats, d delivery.Stats, reported int) {
	fmt.Printf("\nSummary:\n")
	fmt.Printf("  Frames:      %d\n", loop.Frames)
	fmt.Printf("  Detections:  %d (%d recognized, %d unknown)\n", loop.Detections, loop.Recognized, loop.Unknown)
	fmt.Printf("  Reported:    %d\n", reported)
	fmt.Printf("  Delivered:   %d\n", d.Delivered)
	if d.Failed > 0 || d.Dropped > 0 {
		fmt.Printf("  Failed:      %d\n", d.Failed)
		fmt.Printf("  Dropped:     %d\n", d.Dropped)
	}
	if loop.EvidenceFailures > 0 {
		fmt.Printf("  Evidence failures: %d\n", loop.EvidenceFailures)
	}
	if loop.DetectErrors > 0 {
		fmt.Printf("  Detect errors: %d\n", loop.DetectErrors)
	}
}
