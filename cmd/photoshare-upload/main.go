// Command photoshare-upload prepares local images and publishes them to a
// PhotoShare server.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	"github.com/VascoOnEarth/PhotoShare/upload"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type options struct {
	Server      string
	Token       string
	Description string
	Files       []string
}

func parseFlags(args []string) (options, error) {
	var opts options

	fs := flag.NewFlagSet("photoshare-upload", flag.ContinueOnError)
	fs.StringVar(&opts.Server, "server", "", "PhotoShare server URL (or PHOTOSHARE_SERVER)")
	fs.StringVar(&opts.Token, "token", "", "Session token (or PHOTOSHARE_TOKEN)")
	fs.StringVar(&opts.Description, "description", "", "Description attached to every uploaded image")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.Files = fs.Args()

	if opts.Server == "" {
		opts.Server = os.Getenv("PHOTOSHARE_SERVER")
	}
	if opts.Server == "" {
		opts.Server = "http://localhost:3002"
	}
	if opts.Token == "" {
		opts.Token = os.Getenv("PHOTOSHARE_TOKEN")
	}
	if opts.Token == "" {
		return options{}, errors.New("session token required (use -token or PHOTOSHARE_TOKEN)")
	}
	if len(opts.Files) == 0 {
		return options{}, errors.New("at least one image file is required")
	}
	return opts, nil
}

// run uploads every file and returns how many failed.
func run(ctx context.Context, client *upload.Client, opts options) int {
	failed := 0
	for _, path := range opts.Files {
		log := logrus.WithField("file", path)
		id, err := client.Upload(ctx, path, opts.Description)
		if err != nil {
			log.WithError(err).Error("Failed to upload image")
			failed++
			continue
		}
		log.WithField("image_id", id).Info("Image uploaded successfully")
	}
	return failed
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		logrus.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if failed := run(ctx, upload.NewClient(opts.Server, opts.Token), opts); failed > 0 {
		logrus.WithField("failed", failed).Error("Some images were not uploaded")
		stop()
		os.Exit(1)
	}
}
