// Command test_download fetches the products of one area and window as
// GeoTIFFs and prints their band statistics.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/forest-guardian/s2-downloader/internal/aoi"
	"github.com/forest-guardian/s2-downloader/internal/delivery"
	"github.com/forest-guardian/s2-downloader/internal/ee"
	"github.com/forest-guardian/s2-downloader/internal/properties"
	"github.com/forest-guardian/s2-downloader/internal/sentinel"
	"github.com/forest-guardian/s2-downloader/internal/tasks"
)

func main() {
	// Hardcoded test parameters, modify these to test different scenarios.
	area := "Atacado-Formiga"
	feature := "1"
	testDate := time.Date(2022, 3, 6, 0, 0, 0, 0, time.UTC)
	intervalDays := 5

	fmt.Println("=== S2 Test Image Download ===")
	fmt.Printf("Area: %s\n", area)
	fmt.Printf("Feature: %s\n", feature)
	fmt.Printf("Date: %s\n", testDate.Format("2006-01-02"))
	fmt.Println()

	cfg, err := properties.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Project == "" {
		fmt.Println("Make sure you have set the required environment variables:")
		fmt.Println("- EE_PROJECT")
		fmt.Println("- EE_CREDENTIALS_FILE or EE_ACCESS_TOKEN")
		fmt.Println("- ROOT_PATH")
		os.Exit(1)
	}

	ctx := context.Background()
	hc, err := ee.AuthenticatedClient(ctx, ee.Credentials{File: cfg.CredentialsFile, AccessToken: cfg.AccessToken})
	if err != nil {
		log.Fatalf("Failed to authenticate: %v", err)
	}
	client, err := ee.NewClient(cfg.Project, ee.WithHTTPClient(hc), ee.WithBaseURL(cfg.BaseURL), ee.WithRetries(cfg.Retries))
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	fmt.Printf("Loading geometry for area '%s', feature '%s'...\n", area, feature)
	region, err := aoi.Load(cfg.RootPath, area, feature)
	if err != nil {
		log.Fatalf("Failed to get geometry: %v", err)
	}
	fmt.Println("✓ Geometry loaded successfully")

	store, err := tasks.Open(cfg.TasksDBPath())
	if err != nil {
		log.Fatalf("Failed to open task ledger: %v", err)
	}
	defer store.Close()

	svc := delivery.New(client, store, delivery.WithWorkers(cfg.Workers), delivery.WithScale(cfg.Scale))
	req := delivery.Request{
		AOI:          region,
		Start:        testDate,
		End:          testDate.AddDate(0, 0, intervalDays),
		Products:     []sentinel.Product{sentinel.RGB, sentinel.NDVI},
		Mode:         delivery.ByInterval,
		IntervalDays: intervalDays,
	}

	dir := cfg.OutputPath("downloads", "test_"+area+"_"+feature)
	fmt.Printf("Requesting images from %s to %s (interval: %d days)...\n",
		req.Start.Format("2006-01-02"), req.End.Format("2006-01-02"), intervalDays)

	downloaded, err := svc.Download(ctx, req, dir)
	if err != nil {
		log.Printf("Some downloads failed: %v", err)
	}

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Total images downloaded: %d\n", len(downloaded))
	if len(downloaded) == 0 {
		fmt.Println("No images were downloaded. This could mean:")
		fmt.Println("- No satellite data available for this date")
		fmt.Println("- All scenes exceed the cloud percentage")
		fmt.Println("- API credentials issue")
		return
	}

	fmt.Println("\nDownloaded images:")
	for _, d := range downloaded {
		fmt.Printf("- %s (size: %dx%d) (bands: %d)\n", d.Item.Name(), d.Summary.Width, d.Summary.Height, len(d.Summary.Bands))
	}
	fmt.Printf("\nImage files saved to: %s\n", dir)
	fmt.Println("\n✓ Test completed successfully!")
}
