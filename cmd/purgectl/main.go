// Command purgectl triggers cache purges from the command line using the
// same configuration file as the daemon. Calls go directly to the CDN API,
// bypassing the background queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/purgeline/purged/internal/common/config"
	"github.com/purgeline/purged/internal/common/logger"
	"github.com/purgeline/purged/internal/purge/batcher"
	"github.com/purgeline/purged/internal/purge/cloudflare"
)

const usage = `Usage: purgectl [flags] <command> [args]

Commands:
  purge-urls <url> [url...]        purge specific URLs (relative paths are resolved against site_url)
  purge-tags <tag> [tag...]        purge by cache tag
  purge-prefixes <prefix> [...]    purge by URL prefix
  purge-all                        purge the entire zone cache
  verify-token                     check the configured API token

Flags:
`

func main() {
	configPath := flag.String("c", "configs/example/purged.yaml", "path to configuration file")
	dryRun := flag.Bool("dry-run", false, "print what would be purged without calling the API")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cliLogger, err := logger.NewDefaultLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer cliLogger.Sync()

	cfg, err := config.Load(*configPath, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if !cfg.Cloudflare.IsEnabled() {
		fmt.Fprintln(os.Stderr, "error: purging is disabled in configuration")
		os.Exit(1)
	}

	client, err := cloudflare.NewClient(cloudflare.Options{
		APIToken:       cfg.Cloudflare.APIToken,
		ZoneID:         cfg.Cloudflare.ZoneID,
		BaseURL:        cfg.Cloudflare.APIBaseURL,
		RequestTimeout: cfg.Purge.RequestTimeout.ToDuration(),
		MaxRetries:     cfg.Purge.MaxRetries,
		RetryBaseDelay: cfg.Purge.RetryBaseDelay.ToDuration(),
	}, cliLogger.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var runErr error
	switch args[0] {
	case "purge-urls":
		runErr = purgeURLs(ctx, client, cfg.Purge.SiteURL, cfg.Purge.BatchSize, args[1:], *dryRun)
	case "purge-tags":
		runErr = purgeTags(ctx, client, args[1:], *dryRun)
	case "purge-prefixes":
		runErr = purgePrefixes(ctx, client, args[1:], *dryRun)
	case "purge-all":
		runErr = purgeAll(ctx, client, *dryRun)
	case "verify-token":
		runErr = verifyToken(ctx, client)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		flag.Usage()
		os.Exit(2)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}

func purgeURLs(ctx context.Context, client *cloudflare.Client, siteURL string, batchSize int, urls []string, dryRun bool) error {
	if len(urls) == 0 {
		return fmt.Errorf("purge-urls requires at least one URL")
	}

	absolute := make([]string, 0, len(urls))
	for _, u := range urls {
		absolute = append(absolute, absolutize(u, siteURL))
	}

	batches, err := batcher.Split(absolute, batchSize)
	if err != nil {
		return err
	}

	if dryRun {
		for i, batch := range batches {
			fmt.Printf("batch %d/%d (%d URLs):\n", i+1, len(batches), len(batch))
			for _, u := range batch {
				fmt.Printf("  %s\n", u)
			}
		}
		fmt.Printf("dry run: %d URLs in %d batches, nothing purged\n", len(absolute), len(batches))
		return nil
	}

	failures := 0
	for i, batch := range batches {
		_, err := client.PurgeURLs(ctx, batch)
		if err != nil {
			failures++
			fmt.Printf("batch %d/%d: FAILED: %v\n", i+1, len(batches), err)
			continue
		}
		fmt.Printf("batch %d/%d: purged %d URLs\n", i+1, len(batches), len(batch))
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d batches failed", failures, len(batches))
	}
	return nil
}

func purgeTags(ctx context.Context, client *cloudflare.Client, tags []string, dryRun bool) error {
	if len(tags) == 0 {
		return fmt.Errorf("purge-tags requires at least one tag")
	}

	if dryRun {
		fmt.Printf("dry run: would purge tags: %s\n", strings.Join(tags, ", "))
		return nil
	}

	if _, err := client.PurgeTags(ctx, tags); err != nil {
		return err
	}
	fmt.Printf("purged %d tags\n", len(tags))
	return nil
}

func purgePrefixes(ctx context.Context, client *cloudflare.Client, prefixes []string, dryRun bool) error {
	if len(prefixes) == 0 {
		return fmt.Errorf("purge-prefixes requires at least one prefix")
	}

	if dryRun {
		fmt.Printf("dry run: would purge prefixes: %s\n", strings.Join(prefixes, ", "))
		return nil
	}

	if _, err := client.PurgePrefixes(ctx, prefixes); err != nil {
		return err
	}
	fmt.Printf("purged %d prefixes\n", len(prefixes))
	return nil
}

func purgeAll(ctx context.Context, client *cloudflare.Client, dryRun bool) error {
	if dryRun {
		fmt.Println("dry run: would purge the entire zone cache")
		return nil
	}

	if _, err := client.PurgeEverything(ctx); err != nil {
		return err
	}
	fmt.Println("purged entire zone cache")
	return nil
}

func verifyToken(ctx context.Context, client *cloudflare.Client) error {
	status, err := client.VerifyToken(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("token %s: %s\n", status.ID, status.Status)
	return nil
}

func absolutize(url, siteURL string) string {
	if strings.Contains(url, "://") || siteURL == "" {
		return url
	}
	if !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	return strings.TrimRight(siteURL, "/") + url
}
