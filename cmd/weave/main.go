// Command weave manages a pantry of baskets from the command line.
//
// Usage:
//
//	weave -root ./pantry upload -type results -label run42 data.csv
//	weave -root ./pantry ls -type results
//	weave -root ./pantry get <uuid>
//	weave -root ./pantry delete <uuid>
//	weave -root ./pantry sync
//	weave -root ./pantry validate -deep
//
// The storage driver defaults to the local filesystem; set -store s3 and
// the S3_ENDPOINT, S3_BUCKET, S3_ACCESS_KEY and S3_SECRET_KEY environment
// variables to run against an object store. The index defaults to sqlite
// next to the pantry root.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/309thEDDGE/weave"
	"github.com/309thEDDGE/weave/data"
	"github.com/309thEDDGE/weave/index"
	"github.com/309thEDDGE/weave/index/consul"
	"github.com/309thEDDGE/weave/index/memory"
	"github.com/309thEDDGE/weave/index/postgres"
	"github.com/309thEDDGE/weave/index/sqlite"
	"github.com/309thEDDGE/weave/log"
	"github.com/309thEDDGE/weave/storage"
	"github.com/309thEDDGE/weave/storage/local"
	"github.com/309thEDDGE/weave/storage/s3"
)

func main() {
	root := flag.String("root", "pantry", "pantry root directory (local store)")
	storeName := flag.String("store", "local", "storage driver: local or s3")
	indexName := flag.String("index", "sqlite", "index backend: memory, sqlite, postgres or consul")
	indexDSN := flag.String("index-dsn", "", "index location: sqlite path, postgres URL or consul address")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: weave [flags] <upload|get|ls|delete|sync|validate> ...")
		os.Exit(2)
	}

	logger := log.New("weave", log.Parse(*logLevel), "")
	ctx := context.Background()

	store, err := buildStore(*storeName, *root)
	if err != nil {
		logger.Fatal("failed to configure store: %v", err)
	}

	backend, err := buildIndex(*indexName, *indexDSN, *root)
	if err != nil {
		logger.Fatal("failed to configure index: %v", err)
	}

	pantry := weave.New(store, backend, weave.WithLogger(logger))
	if err := pantry.Open(ctx); err != nil {
		logger.Fatal("failed to open pantry: %v", err)
	}
	defer pantry.Close(ctx)

	// Non-persistent indexes (memory) start empty every invocation.
	if err := pantry.EnsureIndexed(ctx); err != nil {
		logger.Fatal("failed to populate index: %v", err)
	}

	if err := run(ctx, pantry, flag.Arg(0), flag.Args()[1:]); err != nil {
		logger.Fatal("%v", err)
	}
}

func buildStore(name, root string) (storage.ObjectStore, error) {
	switch name {
	case "local":
		return local.NewLocalStore(root), nil
	case "s3":
		return s3.NewS3Store(&s3.S3Config{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			Bucket:    os.Getenv("S3_BUCKET"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			UseSSL:    os.Getenv("S3_USE_SSL") == "true",
			Prefix:    root,
		})
	default:
		return nil, fmt.Errorf("unknown store %q", name)
	}
}

func buildIndex(name, dsn, root string) (index.Backend, error) {
	switch name {
	case "memory":
		return memory.NewMemoryBackend(), nil
	case "sqlite":
		if dsn == "" {
			dsn = strings.ReplaceAll(root, string(os.PathSeparator), "-") + ".db"
		}
		return sqlite.NewSQLiteBackend(dsn)
	case "postgres":
		return postgres.NewPostgresBackend(dsn)
	case "consul":
		return consul.NewConsulBackend(&consul.ConsulBackendConfig{
			Address: dsn,
			Prefix:  "weave/index/" + root,
		})
	default:
		return nil, fmt.Errorf("unknown index %q", name)
	}
}

func run(ctx context.Context, pantry *weave.Pantry, command string, args []string) error {
	switch command {
	case "upload":
		return runUpload(ctx, pantry, args)
	case "get":
		return runGet(ctx, pantry, args)
	case "ls":
		return runList(ctx, pantry, args)
	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: weave delete <uuid>")
		}
		return pantry.DeleteBasket(ctx, args[0])
	case "sync":
		return runSync(ctx, pantry)
	case "validate":
		return runValidate(ctx, pantry, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func runUpload(ctx context.Context, pantry *weave.Pantry, args []string) error {
	flags := flag.NewFlagSet("upload", flag.ExitOnError)
	basketType := flags.String("type", "", "basket type (required)")
	label := flags.String("label", "", "basket label")
	metaJSON := flags.String("meta", "", "metadata JSON object")
	stub := flags.Bool("stub", false, "record integrity data without copying bytes")
	var parents stringList
	flags.Var(&parents, "parent", "parent basket UUID (repeatable)")
	flags.Parse(args)

	items := make([]data.UploadItem, 0, flags.NArg())
	for _, path := range flags.Args() {
		items = append(items, data.UploadItem{Path: path, Stub: *stub})
	}

	opts := []weave.UploadOption{weave.WithLabel(*label), weave.WithParents(parents...)}
	if *metaJSON != "" {
		metadata := data.Metadata{}
		if err := json.Unmarshal([]byte(*metaJSON), &metadata); err != nil {
			return fmt.Errorf("invalid -meta: %w", err)
		}
		opts = append(opts, weave.WithMetadata(metadata))
	}

	committed, err := pantry.Upload(ctx, items, *basketType, opts...)
	if err != nil {
		return err
	}

	fmt.Printf("%s\t%s\n", committed.UUID, committed.Address)
	return nil
}

func runGet(ctx context.Context, pantry *weave.Pantry, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: weave get <uuid>")
	}

	view, err := pantry.GetBasket(ctx, args[0])
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(map[string]any{
		"address":    view.Address,
		"manifest":   view.Manifest,
		"supplement": view.Supplement,
		"metadata":   view.Metadata,
	}, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(encoded))
	return nil
}

func runList(ctx context.Context, pantry *weave.Pantry, args []string) error {
	flags := flag.NewFlagSet("ls", flag.ExitOnError)
	basketType := flags.String("type", "", "filter by basket type")
	label := flags.String("label", "", "filter by label")
	flags.Parse(args)

	query := &index.Query{SortBy: index.SortByUploadTime}
	if *basketType != "" {
		query.BasketType = basketType
	}
	if *label != "" {
		query.Label = label
	}

	rows, err := pantry.Query(ctx, query)
	if err != nil {
		return err
	}

	for _, row := range rows {
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n",
			row.UUID, row.UploadTime.Format("2006-01-02 15:04:05"),
			row.BasketType, row.Label, row.Address)
	}
	return nil
}

func runSync(ctx context.Context, pantry *weave.Pantry) error {
	report, err := pantry.Sync(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("indexed %d baskets\n", report.Indexed)
	for _, invalid := range report.Invalid {
		fmt.Printf("invalid: %s: %v\n", invalid.Address, invalid.Err)
	}
	for _, stale := range report.Stale {
		fmt.Printf("stale index row: %s at %s\n", stale.UUID, stale.Address)
	}
	return nil
}

func runValidate(ctx context.Context, pantry *weave.Pantry, args []string) error {
	flags := flag.NewFlagSet("validate", flag.ExitOnError)
	deep := flags.Bool("deep", false, "recompute file hashes against the supplement")
	flags.Parse(args)

	var opts []weave.ValidateOption
	if *deep {
		opts = append(opts, weave.WithDeepIntegrity())
	}

	warnings, err := pantry.Validate(ctx, opts...)
	if err != nil {
		return err
	}

	for _, warning := range warnings {
		fmt.Printf("%s\t%s\n", warning.Code, warning.Message)
	}
	if len(warnings) > 0 {
		return fmt.Errorf("%d validation warnings", len(warnings))
	}

	fmt.Println("pantry valid")
	return nil
}
