package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database/postgres"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/gallery"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Inspect and manage the enrolled gallery",
}

var galleryInfoCmd = &cobra.Command{
	Use:   "info [artifact]",
	Short: "Show the identities in a gallery",
	Long: `Show the identities in a gallery artifact, or in PostgreSQL with --db.

Examples:
  rollcall gallery info ai_module/encodings.json
  rollcall gallery info --db --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGalleryInfo,
}

var galleryVerifyCmd = &cobra.Command{
	Use:   "verify [artifact]",
	Short: "Validate a gallery and report ambiguous identities",
	Long: `Validate a gallery and list identity pairs whose reference embeddings are
closer than the match threshold. A face that falls between two such entries
may resolve to either of them.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGalleryVerify,
}

var galleryImportCmd = &cobra.Command{
	Use:   "import <artifact>",
	Short: "Replace the PostgreSQL gallery with an artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryImport,
}

var galleryExportCmd = &cobra.Command{
	Use:   "export <artifact>",
	Short: "Write the PostgreSQL gallery to an artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runGalleryExport,
}

func init() {
	rootCmd.AddCommand(galleryCmd)
	galleryCmd.AddCommand(galleryInfoCmd, galleryVerifyCmd, galleryImportCmd, galleryExportCmd)

	galleryInfoCmd.Flags().Bool("db", false, "Read the gallery from PostgreSQL")
	galleryInfoCmd.Flags().Bool("json", false, "Output as JSON")

	galleryVerifyCmd.Flags().Bool("db", false, "Read the gallery from PostgreSQL")
	galleryVerifyCmd.Flags().Float64("threshold", 0, "Match threshold (defaults to MATCH_THRESHOLD)")
	galleryVerifyCmd.Flags().String("metric", "", "Distance metric (defaults to MATCH_METRIC)")
}

// galleryFromArgs loads the gallery from the artifact argument, the configured
// path, or PostgreSQL when --db is set.
func galleryFromArgs(ctx context.Context, cmd *cobra.Command, cfg *config.Config, args []string) (*gallery.Gallery, error) {
	if mustGetBool(cmd, "db") {
		pool, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		defer pool.Close()
		return gallery.LoadFromStore(ctx, postgres.NewGalleryRepository(pool))
	}

	path := cfg.Gallery.Path
	if len(args) > 0 {
		path = args[0]
	}
	return gallery.Load(path)
}

func openPostgres(ctx context.Context, cfg *config.Config) (*postgres.Pool, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return pool, nil
}

// GalleryInfo is the JSON form of gallery info.
type GalleryInfo struct {
	Model      string             `json:"model,omitempty"`
	Dim        int                `json:"dim"`
	Identities []GalleryInfoEntry `json:"identities"`
}

// GalleryInfoEntry is one identity in GalleryInfo.
type GalleryInfoEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func runGalleryInfo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	g, err := galleryFromArgs(ctx, cmd, cfg, args)
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		info := GalleryInfo{Model: g.Model(), Dim: g.Dim(), Identities: make([]GalleryInfoEntry, g.Len())}
		for i := range g.Len() {
			e := g.Entry(i)
			info.Identities[i] = GalleryInfoEntry{ID: e.ID, Name: e.Name}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tNAME")
	fmt.Fprintln(w, "-\t--\t----")
	for i := range g.Len() {
		e := g.Entry(i)
		fmt.Fprintf(w, "%d\t%s\t%s\n", i, e.ID, e.Name)
	}
	w.Flush()

	model := g.Model()
	if model == "" {
		model = "unknown"
	}
	fmt.Printf("\nTotal: %d identities, dimension %d, model %s\n", g.Len(), g.Dim(), model)
	return nil
}

func runGalleryVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	g, err := galleryFromArgs(ctx, cmd, cfg, args)
	if err != nil {
		return err
	}

	metricName := cfg.Matcher.Metric
	if v := mustGetString(cmd, "metric"); v != "" {
		metricName = v
	}
	metric, err := facematch.ParseMetric(metricName)
	if err != nil {
		return err
	}
	threshold := cfg.Matcher.Threshold
	if v := mustGetFloat64(cmd, "threshold"); v > 0 {
		threshold = v
	}

	fmt.Printf("Gallery is valid: %d identities, dimension %d\n", g.Len(), g.Dim())

	type pair struct {
		a, b     gallery.Entry
		distance float64
	}
	var ambiguous []pair
	for i := range g.Len() {
		for j := i + 1; j < g.Len(); j++ {
			a, b := g.Entry(i), g.Entry(j)
			if d := metric.Distance(a.Embedding, b.Embedding); d < threshold {
				ambiguous = append(ambiguous, pair{a: a, b: b, distance: d})
			}
		}
	}

	if len(ambiguous) == 0 {
		fmt.Printf("No identity pairs closer than %.3f (%s)\n", threshold, metric)
		return nil
	}

	fmt.Printf("\n%d identity pairs closer than %.3f (%s):\n\n", len(ambiguous), threshold, metric)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID A\tNAME A\tID B\tNAME B\tDISTANCE")
	fmt.Fprintln(w, "----\t------\t----\t------\t--------")
	for _, p := range ambiguous {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.4f\n", p.a.ID, p.a.Name, p.b.ID, p.b.Name, p.distance)
	}
	w.Flush()
	return nil
}

func runGalleryImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	g, err := gallery.Load(args[0])
	if err != nil {
		return err
	}

	pool, err := openPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	bar := progressbar.NewOptions(g.Len(),
		progressbar.OptionSetDescription("Importing gallery"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("identities"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	repo := postgres.NewGalleryRepository(pool)
	if err := repo.ReplaceGallery(ctx, g, func() { bar.Add(1) }); err != nil {
		return fmt.Errorf("failed to import gallery: %w", err)
	}
	bar.Finish()

	count, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nImported %d identities from %s\n", count, args[0])
	return nil
}

func runGalleryExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	pool, err := openPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	g, err := gallery.LoadFromStore(ctx, postgres.NewGalleryRepository(pool))
	if err != nil {
		return err
	}
	if err := gallery.WriteArtifact(args[0], g); err != nil {
		return err
	}
	fmt.Printf("Exported %d identities to %s\n", g.Len(), args[0])
	return nil
}
