package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/chriskuehl/vcfrange/variants/config"
	"github.com/chriskuehl/vcfrange/variants/config/loader"
	"github.com/chriskuehl/vcfrange/variants/logging"
	"github.com/chriskuehl/vcfrange/variants/storage"
)

const Description = `vcfrange streams binary variant objects from S3, GCS or a local directory
and prints the records that fall inside a region, without ever holding a whole
object in memory.

Objects are named by URL: s3://bucket/key, gs://bucket/key or file:///path.
Append #contig to a URL to name the contig the object holds.

Defaults can be set in a TOML config file, for example:

    buffer_capacity = 1000000
    bounds = "closed"

    [s3_storage_backend]
    region = "us-west-2"

This file can be placed at either /etc/vcfrange.toml or $XDG_CONFIG_HOME/vcfrange.toml.
`

// ConfigPaths returns the config files that are read, in order, if they exist.
func ConfigPaths() []string {
	return []string{
		"/etc/vcfrange.toml",
		path.Join(xdg.ConfigHome, "vcfrange.toml"),
	}
}

// LoadConfig applies every existing config file in paths to conf. Later files override earlier
// ones.
func LoadConfig(conf *config.Config, paths []string) error {
	for _, configPath := range paths {
		if _, err := os.Stat(configPath); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("reading config file %s: %w", configPath, err)
		}
		if err := loader.LoadConfigTOML(conf, configPath); err != nil {
			return fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}
	return nil
}

// BackendForURL picks a storage backend from the scheme of an object URL. It is used when no
// backend is configured.
func BackendForURL(url string) (storage.Backend, error) {
	switch {
	case strings.HasPrefix(url, "s3://"):
		b, err := storage.NewS3Backend("", "", storage.NewS3Client)
		if err != nil {
			return nil, fmt.Errorf("creating S3 backend: %w", err)
		}
		return b, nil
	case strings.HasPrefix(url, "gs://"):
		return &storage.GCSBackend{}, nil
	case strings.HasPrefix(url, "file://"):
		return &storage.FilesystemBackend{Root: "/"}, nil
	default:
		return nil, fmt.Errorf("no storage backend configured and %q has no s3://, gs:// or file:// scheme", url)
	}
}

func NewLogger(w io.Writer, debug bool) logging.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func Bold(w io.Writer, s string) string {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "\x1b[1m" + s + "\x1b[0m"
	} else {
		return s
	}
}

func AddCommonOpts(command *cobra.Command) {
	command.PersistentFlags().String("config", "", "additional TOML config file, read after the default locations")
	command.PersistentFlags().Bool("debug", false, "log progress at debug level")
}
