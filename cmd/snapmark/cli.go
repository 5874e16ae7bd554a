package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v2"

	"github.com/snapmark/snapmark/internal/annotation"
	"github.com/snapmark/snapmark/internal/config"
	"github.com/snapmark/snapmark/internal/export"
	"github.com/snapmark/snapmark/internal/ipc"
	"github.com/snapmark/snapmark/internal/store"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	return &cli.App{
		Name:    "snapmark",
		Usage:   "Control the SnapMark capture daemon",
		Version: Version,
		Commands: []*cli.Command{
			commandCmd("record", "Start recording the primary screen", ipc.CmdRecord),
			commandCmd("pause", "Pause the active recording", ipc.CmdPause),
			commandCmd("resume", "Resume a paused recording", ipc.CmdResume),
			commandCmd("stop", "Stop and save the recording", ipc.CmdStop),
			commandCmd("cancel", "Abort the recording and discard output", ipc.CmdCancel),
			commandCmd("shot", "Capture a screenshot of the primary screen", ipc.CmdScreenshot),
			commandCmd("quit", "Shut down the daemon", ipc.CmdQuit),
			statusCmd(),
			galleryCmd(),
			flattenCmd(),
		},
	}
}

// commandCmd wraps a fire-and-forget daemon command.
func commandCmd(name, usage string, cmd ipc.Command) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(_ *cli.Context) error {
			if err := ipc.WriteCommand(cmd); err != nil {
				return fmt.Errorf("failed to send %s command: %w", name, err)
			}
			fmt.Printf("Sent %s command\n", name)
			return nil
		},
	}
}

// statusCmd reads and prints the daemon's status.json.
func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show daemon status",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Keep printing status as it changes"},
		},
		Action: func(c *cli.Context) error {
			if err := printStatus(); err != nil {
				return err
			}
			if !c.Bool("watch") {
				return nil
			}
			return watchStatus()
		},
	}
}

func printStatus() error {
	status, err := ipc.ReadStatus()
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no status file found; is snapmark-core running?")
		}
		return err
	}

	fmt.Printf("State:    %s\n", status.State)
	if status.SessionID != "" {
		fmt.Printf("Session:  %s\n", status.SessionID)
		fmt.Printf("Source:   %s\n", status.SourceName)
		fmt.Printf("Duration: %s\n", formatSeconds(status.DurationSeconds))
	}
	if status.EngineConnected {
		fmt.Println("Engine:   connected")
	} else {
		fmt.Println("Engine:   disconnected")
	}
	if status.LastArtifact != "" {
		fmt.Printf("Saved:    %s\n", status.LastArtifact)
	}
	if status.LastError != "" {
		fmt.Printf("Error:    %s\n", status.LastError)
	}
	fmt.Printf("Updated:  %s\n", status.Timestamp.Format(time.RFC3339))
	return nil
}

// watchStatus re-prints the status every time the daemon rewrites the file.
func watchStatus() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	statusPath := ipc.StatusPath()
	if err := watcher.Add(filepath.Dir(statusPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(statusPath), err)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// The daemon writes via rename, so watch for Create too.
			if event.Name == statusPath && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
				fmt.Println("---")
				if err := printStatus(); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}

// galleryCmd lists recent artifacts from the library index.
func galleryCmd() *cli.Command {
	return &cli.Command{
		Name:  "gallery",
		Usage: "List recent recordings and screenshots",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Maximum entries to show"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			library, err := store.Open(cfg.OutputDir)
			if err != nil {
				return fmt.Errorf("failed to open library at %s: %w", cfg.OutputDir, err)
			}
			defer library.Close()

			artifacts, err := library.ListRecent(context.Background(), c.Int("limit"))
			if err != nil {
				return err
			}
			if len(artifacts) == 0 {
				fmt.Println("Library is empty")
				return nil
			}

			for _, a := range artifacts {
				fmt.Printf("%s  %-10s  %8s  %s\n",
					a.CreatedAt.Format("2006-01-02 15:04"),
					a.Kind,
					formatBytes(a.SizeBytes),
					a.Name)
			}
			return nil
		},
	}
}

// flattenCmd renders a shape document on top of a base image and writes the
// composite as PNG.
func flattenCmd() *cli.Command {
	return &cli.Command{
		Name:  "flatten",
		Usage: "Render a markup document onto its base image",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "image", Aliases: []string{"i"}, Required: true, Usage: "Base image (PNG or JPEG)"},
			&cli.StringFlag{Name: "doc", Aliases: []string{"d"}, Required: true, Usage: "Shape document JSON"},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output PNG path (defaults into the library)"},
		},
		Action: func(c *cli.Context) error {
			base, err := loadImage(c.String("image"))
			if err != nil {
				return err
			}

			docBytes, err := os.ReadFile(c.String("doc"))
			if err != nil {
				return fmt.Errorf("failed to read document: %w", err)
			}
			shapes, err := annotation.UnmarshalDocument(docBytes)
			if err != nil {
				return err
			}

			out, err := export.EncodePNG(base, shapes)
			if err != nil {
				return fmt.Errorf("failed to render markup: %w", err)
			}

			if dest := c.String("out"); dest != "" {
				if err := os.WriteFile(dest, out, 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", dest, err)
				}
				fmt.Printf("Wrote %s (%d shapes)\n", dest, len(shapes))
				return nil
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			library, err := store.Open(cfg.OutputDir)
			if err != nil {
				return fmt.Errorf("failed to open library at %s: %w", cfg.OutputDir, err)
			}
			defer library.Close()

			stem := filepath.Base(c.String("image"))
			stem = stem[:len(stem)-len(filepath.Ext(stem))]
			artifact, err := library.WriteArtifact(context.Background(), out, stem+"-markup.png", "Markups", store.KindMarkup)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s (%d shapes)\n", artifact.Path, len(shapes))
			return nil
		},
	}
}

func loadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

func formatSeconds(s float64) string {
	d := time.Duration(s * float64(time.Second)).Round(time.Second)
	m := int(d.Minutes())
	return fmt.Sprintf("%02d:%02d", m, int(d.Seconds())-m*60)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
