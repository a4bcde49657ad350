// Command mediactl pushes local files into a running media service through
// the upload queue, printing per-item progress and results.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/vendora/media/internal/uploader"
)

// stdoutNotifier prints terminal upload outcomes for interactive use.
type stdoutNotifier struct{}

func (stdoutNotifier) Success(kind uploader.Kind, message string) {
	fmt.Printf("ok: %s\n", message)
}

func (stdoutNotifier) Error(kind uploader.Kind, message string) {
	fmt.Printf("error: %s\n", message)
}

func main() {
	endpoint := flag.String("endpoint", "http://localhost:8080/api/v1/upload-file", "upload endpoint URL")
	kindFlag := flag.String("kind", "additional-image", "upload kind: thumbnail, additional-image, or video")
	category := flag.String("category", "", "storage category (defaults to the kind)")
	token := flag.String("token", os.Getenv("MEDIA_TOKEN"), "bearer token for the upload API")
	maxRetries := flag.Int("max-retries", uploader.DefaultMaxRetries, "automatic retry budget per file")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: mediactl [flags] file...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	kind := uploader.Kind(*kindFlag)

	client := uploader.NewClient(*endpoint)
	client.Token = *token

	queue := uploader.New(client, uploader.WithNotifier(stdoutNotifier{}))
	defer queue.Close()

	for _, path := range files {
		file, err := uploader.FileFromPath(path)
		if err != nil {
			log.Fatalf("cannot read %s: %v", path, err)
		}

		name := file.Name
		_, err = queue.AddToQueue(file, kind, uploader.AddOptions{
			Category:   *category,
			MaxRetries: *maxRetries,
			Callbacks: uploader.Callbacks{
				OnProgress: func(pct int) {
					fmt.Printf("\r%s: %3d%%", name, pct)
					if pct == 100 {
						fmt.Println()
					}
				},
				OnSuccess: func(url string) {
					fmt.Printf("%s -> %s\n", name, url)
				},
			},
		})
		if err != nil {
			// Rejected before enqueue; the notifier already reported why.
			continue
		}
	}

	queue.Wait()

	failed := 0
	for _, item := range queue.Items() {
		if item.Status == uploader.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}
