package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/pillguide/internal/ai"
	"github.com/dvloznov/pillguide/internal/analysis"
	"github.com/dvloznov/pillguide/internal/config"
	"github.com/dvloznov/pillguide/internal/domain"
	"github.com/dvloznov/pillguide/internal/extract"
	infraBQ "github.com/dvloznov/pillguide/internal/infra/bigquery"
	"github.com/dvloznov/pillguide/internal/infra/gcs"
	"github.com/dvloznov/pillguide/internal/logger"
	"github.com/dvloznov/pillguide/internal/store"
)

// Extraction kinds accepted by the extract command.
const (
	kindRaw              = "raw"
	kindPrescription     = "prescription"
	kindExplanation      = "explanation"
	kindContraindication = "contraindication"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel})

	switch os.Args[1] {
	case "extract":
		if err := extractCommand(os.Args[2:], os.Stdin, os.Stdout, os.Stderr); err != nil {
			log.Fatal().Err(err).Msg("Extraction failed")
		}
	case "analyze":
		runAnalyze(cfg, log)
	case "upload":
		runUpload(cfg, log)
	case "outputs":
		runOutputs(cfg, log)
	case "inspect":
		runInspect(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("PillGuide CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  extract   Pull the JSON object out of a saved model response")
	fmt.Println("  analyze   Analyse a local prescription image")
	fmt.Println("  upload    Upload a prescription image to GCS")
	fmt.Println("  outputs   List recorded model outputs from BigQuery")
	fmt.Println("  inspect   Show a stored prescription and its medications")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// extractCommand reads a raw model response from -file or in and writes
// the normalized result as JSON to out. Whether an object was found is
// reported on errOut.
func extractCommand(args []string, in io.Reader, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(errOut)
	file := fs.String("file", "", "File holding the raw response (default stdin)")
	kind := fs.String("kind", kindRaw, "raw, prescription, explanation or contraindication")
	defaultsJSON := fs.String("defaults", "{}", "Defaults record for -kind raw, as a JSON object")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var raw []byte
	var err error
	if *file != "" {
		raw, err = os.ReadFile(*file)
	} else {
		raw, err = io.ReadAll(in)
	}
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var (
		result any
		hit    bool
	)
	switch *kind {
	case kindRaw:
		var defaults extract.Record
		if err := json.Unmarshal([]byte(*defaultsJSON), &defaults); err != nil {
			return fmt.Errorf("parsing -defaults: %w", err)
		}
		parsed, ok := extract.Parse(string(raw))
		result, hit = extract.Merge(defaults, parsed), ok
	case kindPrescription:
		result, hit = analysis.DecodePrescriptionExtraction(string(raw))
	case kindExplanation:
		result, hit = analysis.DecodeMedicationExplanation(string(raw))
	case kindContraindication:
		result, hit = analysis.DecodeContraindicationResult(string(raw))
	default:
		return fmt.Errorf("unknown kind %q", *kind)
	}

	if hit {
		fmt.Fprintln(errOut, "json object found")
	} else {
		fmt.Fprintln(errOut, "no usable json object, defaults returned")
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(result)
}

func runAnalyze(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to the prescription image")
	lang := fs.String("lang", domain.DefaultLanguage, "Preferred language code")
	patientID := fs.String("patient", "", "Patient ID to attach")
	save := fs.Bool("save", false, "Store the result in MongoDB")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli analyze -file PATH [-lang es] [-save]")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read image")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	client, err := ai.NewGeminiClient(ctx, ai.Config{
		APIKey:        cfg.AI.APIKey,
		Model:         cfg.AI.Model,
		Timeout:       cfg.AI.Timeout,
		RetryAttempts: cfg.AI.RetryAttempts,
		RetryDelay:    cfg.AI.RetryDelay,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create model client")
	}

	upload := domain.PrescriptionCreate{
		ImageBase64:       base64.StdEncoding.EncodeToString(data),
		PreferredLanguage: *lang,
	}
	if *patientID != "" {
		upload.PatientID = patientID
	}

	service := analysis.NewService(client, nil, nil, log)
	prescription, err := service.AnalyzePrescription(ctx, "", upload)
	if err != nil {
		log.Fatal().Err(err).Msg("Analysis failed")
	}

	if *save {
		mongoClient, err := store.Connect(ctx, cfg.MongoURL, 10*time.Second)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
		}
		defer mongoClient.Disconnect(context.Background())

		if err := store.NewMongoStore(mongoClient.Database(cfg.DBName), log).InsertPrescription(ctx, prescription); err != nil {
			log.Fatal().Err(err).Msg("Failed to save prescription")
		}
		log.Info().Str("prescription_id", prescription.ID).Msg("Prescription saved")
	}

	printJSON(prescription)
}

func runUpload(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", cfg.GCSBucket, "GCS bucket name (defaults to GCS_BUCKET)")
	objectName := fs.String("object", "", "GCS object name (defaults to uploads/<filename>)")
	filePath := fs.String("file", "", "Path to local image file")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}

	if *objectName == "" {
		*objectName = "uploads/" + filepath.Base(*filePath)
	}

	ctx := logger.WithContext(context.Background(), log)

	images, err := gcs.NewImageStore(ctx, *bucketName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer images.Close()

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	uri, err := images.UploadFile(ctx, *objectName, *filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, uri)
}

func runOutputs(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("outputs", flag.ExitOnError)
	projectID := fs.String("project", cfg.BigQueryProject, "GCP project ID (defaults to BIGQUERY_PROJECT)")
	datasetID := fs.String("dataset", cfg.BigQueryDataset, "BigQuery dataset ID")
	subjectID := fs.String("subject", "", "Only outputs for this prescription or medication ID")
	callKind := fs.String("kind", "", "Only outputs of this call kind (e.g. prescription_ocr)")
	since := fs.String("since", "", "Only outputs recorded on or after this date (YYYY-MM-DD)")
	limit := fs.Int("limit", 20, "Maximum number of outputs")
	showRaw := fs.Bool("raw", false, "Print the raw response text")
	fs.Parse(os.Args[2:])

	if *projectID == "" {
		log.Fatal().Msg("Error: -project or BIGQUERY_PROJECT is required")
	}

	filter := infraBQ.ModelOutputFilter{SubjectID: *subjectID, CallKind: *callKind, Limit: *limit}
	if *since != "" {
		d, err := civil.ParseDate(*since)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -since date")
		}
		filter.Since = d
	}

	ctx := logger.WithContext(context.Background(), log)

	recorder, err := infraBQ.NewModelOutputRecorder(ctx, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer recorder.Close()

	outputs, err := recorder.ListModelOutputs(ctx, filter)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list model outputs")
	}

	hits := 0
	fmt.Printf("\n=== Model Outputs (%d) ===\n", len(outputs))
	for i, out := range outputs {
		if out.ExtractionHit {
			hits++
		}
		fmt.Printf("\n%d. %s  %s\n", i+1, out.CallKind, out.CreatedAt.Format(time.RFC3339))
		fmt.Printf("   Output ID: %s\n", out.OutputID)
		if out.SubjectID != "" {
			fmt.Printf("   Subject:   %s\n", out.SubjectID)
		}
		fmt.Printf("   Model:     %s\n", out.ModelName)
		fmt.Printf("   JSON hit:  %t\n", out.ExtractionHit)
		fmt.Printf("   Tokens:    %d in / %d out\n", out.TokensInput, out.TokensOutput)
		if *showRaw {
			fmt.Printf("   Raw:\n%s\n", indent(out.RawText, "     "))
		}
	}
	if len(outputs) > 0 {
		fmt.Printf("\nExtraction hit rate: %d/%d\n", hits, len(outputs))
	}
	fmt.Println()
}

func runInspect(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	prescriptionID := fs.String("id", "", "Prescription ID to inspect")
	fs.Parse(os.Args[2:])

	if *prescriptionID == "" {
		log.Fatal().Msg("Error: -id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mongoClient, err := store.Connect(ctx, cfg.MongoURL, 10*time.Second)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer mongoClient.Disconnect(context.Background())

	p, err := store.NewMongoStore(mongoClient.Database(cfg.DBName), log).GetPrescription(ctx, *prescriptionID)
	if errors.Is(err, store.ErrNotFound) {
		log.Fatal().Msg("Prescription not found")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get prescription")
	}

	fmt.Println("\n=== Prescription Details ===")
	fmt.Printf("ID:        %s\n", p.ID)
	if p.PatientID != nil {
		fmt.Printf("Patient:   %s\n", *p.PatientID)
	}
	fmt.Printf("Detected:  %s\n", p.DetectedLanguage)
	fmt.Printf("Language:  %s (%s)\n", domain.LanguageName(p.PreferredLanguage), p.PreferredLanguage)
	if p.ImageURI != "" {
		fmt.Printf("Image:     %s\n", p.ImageURI)
	}
	fmt.Printf("Created:   %s\n", p.CreatedAt.Format(time.RFC3339))

	fmt.Printf("\n=== Medications (%d) ===\n", len(p.Medications))
	for i, m := range p.Medications {
		fmt.Printf("\n%d. %s %s\n", i+1, m.Name, m.Dosage)
		fmt.Printf("   Frequency: %s\n", m.Frequency)
		if len(m.Timing) > 0 {
			fmt.Printf("   Timing:    %s\n", strings.Join(m.Timing, ", "))
		}
		if m.Duration != nil {
			fmt.Printf("   Duration:  %s\n", *m.Duration)
		}
		fmt.Printf("   With food: %t\n", m.WithFood)
		fmt.Printf("   %s\n", m.PlainLanguageExplanation)
	}
	fmt.Println()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
